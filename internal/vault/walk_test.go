package vault

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestScanTopLevelManifests(t *testing.T) {
	root := t.TempDir()
	a := createManifestAt(t, root, "a/b")
	b := createManifestAt(t, root, "b")
	createManifestAt(t, root, "b/c/d") // nested beneath b, never surfaced
	c := createManifestAt(t, root, "c/d")

	got := collectPaths(t, NewScan(root))
	want := []string{a, b, c}
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("scan found %d manifests %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("manifest[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScanManifestNameCasing(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, mkdir(t, root, "title"), "Cargo.toml")
	writeManifest(t, mkdir(t, root, "lower"), "cargo.toml")
	writeManifest(t, mkdir(t, root, "upper"), "CARGO.TOML")
	writeManifest(t, mkdir(t, root, "mixed"), "Cargo.Toml")
	writeManifest(t, mkdir(t, root, "other"), "Bargo.toml")

	got := collectPaths(t, NewScan(root))
	want := []string{
		filepath.Join(root, "lower", "cargo.toml"),
		filepath.Join(root, "title", "Cargo.toml"),
	}
	if len(got) != len(want) {
		t.Fatalf("scan found %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("manifest[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScanMalformedManifestStillClaims(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "broken")
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	// A valid manifest nested beneath the broken one must not be promoted to
	// top level.
	createManifestAt(t, root, "broken/nested")

	scan := NewScan(root)
	var okCount, errCount int
	for scan.Next() {
		if _, err := scan.Entry(); err != nil {
			errCount++
			var parseErr *ManifestParseError
			if !errors.As(err, &parseErr) {
				t.Errorf("expected ManifestParseError, got %v", err)
			}
		} else {
			okCount++
		}
	}
	if errCount != 1 {
		t.Errorf("errCount = %d, want 1", errCount)
	}
	if okCount != 0 {
		t.Errorf("okCount = %d, want 0 (nested manifest must stay hidden)", okCount)
	}
}

func TestScanIncompleteManifest(t *testing.T) {
	root := t.TempDir()
	dir := mkdir(t, root, "anon")
	if err := os.WriteFile(filepath.Join(dir, "Cargo.toml"), []byte("[package]\nname = \"anon\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	scan := NewScan(root)
	if !scan.Next() {
		t.Fatal("expected one scan entry")
	}
	if _, err := scan.Entry(); err == nil {
		t.Error("expected error for manifest without a version")
	}
	if scan.Next() {
		t.Error("expected scan to be exhausted")
	}
}

func TestScanReportsCrateIdentity(t *testing.T) {
	root := t.TempDir()
	path := createManifestAt(t, root, "se/rd/serde/1.0.228")

	scan := NewScan(root)
	if !scan.Next() {
		t.Fatal("expected one scan entry")
	}
	cv, err := scan.Entry()
	if err != nil {
		t.Fatalf("scan entry failed: %v", err)
	}
	if cv.Name != "foo" || cv.Version != "0.0.0" {
		t.Errorf("crate identity = %s@%s, want foo@0.0.0", cv.Name, cv.Version)
	}
	if cv.Path != path {
		t.Errorf("path = %q, want %q", cv.Path, path)
	}
}

func TestScanIgnoresStagingDirectories(t *testing.T) {
	root := t.TempDir()
	a := createManifestAt(t, root, "a")
	// A crashed or in-flight populate leaves a staging tree with a complete
	// crate inside; it holds no address and must stay invisible.
	createManifestAt(t, root, ".staging-8412/serde-1.0.228")

	got := collectPaths(t, NewScan(root))
	if len(got) != 1 || got[0] != a {
		t.Errorf("scan found %v, want only %q", got, a)
	}
}

func TestScanEmptyRoot(t *testing.T) {
	scan := NewScan(t.TempDir())
	if scan.Next() {
		t.Error("expected no entries for an empty root")
	}
}

func TestScanMissingRoot(t *testing.T) {
	scan := NewScan(filepath.Join(t.TempDir(), "nope"))
	if !scan.Next() {
		t.Fatal("expected a traversal error entry")
	}
	_, err := scan.Entry()
	var walkErr *WalkError
	if !errors.As(err, &walkErr) {
		t.Errorf("expected WalkError, got %v", err)
	}
	if scan.Next() {
		t.Error("expected scan to be exhausted")
	}
}

func TestScanIsRestartable(t *testing.T) {
	root := t.TempDir()
	createManifestAt(t, root, "a")
	createManifestAt(t, root, "b")

	first := collectPaths(t, NewScan(root))
	second := collectPaths(t, NewScan(root))
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("scans found %d and %d manifests, want 2 and 2", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("scan order not reproducible: %v vs %v", first, second)
		}
	}
}

func collectPaths(t *testing.T, scan *Scan) []string {
	t.Helper()
	var paths []string
	for scan.Next() {
		cv, err := scan.Entry()
		if err != nil {
			t.Fatalf("scan entry failed: %v", err)
		}
		paths = append(paths, cv.Path)
	}
	sort.Strings(paths)
	return paths
}

func createManifestAt(t *testing.T, base, rel string) string {
	t.Helper()
	dir := mkdir(t, base, rel)
	return writeManifest(t, dir, "Cargo.toml")
}

func mkdir(t *testing.T, base, rel string) string {
	t.Helper()
	dir := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func writeManifest(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := "[package]\nname = \"foo\"\nversion = \"0.0.0\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
