package cratevault_test

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/git-pkgs/cratevault"
	"github.com/git-pkgs/cratevault/extract"
	"github.com/git-pkgs/cratevault/fetch"
)

// crateServer serves gzip-compressed crate tarballs the way static.crates.io
// lays them out.
func crateServer(t *testing.T, releases ...cratevault.Release) *httptest.Server {
	t.Helper()
	archives := make(map[string][]byte)
	for _, r := range releases {
		path := fmt.Sprintf("/%s/%s-%s.crate", r.Name, r.Name, r.Version)
		archives[path] = crateArchive(t, r.Name, r.Version)
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, ok := archives[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/gzip")
		_, _ = w.Write(data)
	}))
}

func crateArchive(t *testing.T, name, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)
	manifest := fmt.Sprintf("[package]\nname = %q\nversion = %q\n", name, version)
	hdr := &tar.Header{
		Name: fmt.Sprintf("%s-%s/Cargo.toml", name, version),
		Mode: 0o644,
		Size: int64(len(manifest)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write([]byte(manifest)); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPopulateAndEnumerate(t *testing.T) {
	releases := []cratevault.Release{
		{Name: "serde", Version: "1.0.228"},
		{Name: "itoa", Version: "1.0.11"},
	}
	server := crateServer(t, releases...)
	defer server.Close()

	root := t.TempDir()
	corpus, err := cratevault.NewCorpus(root,
		fetch.NewFetcher(fetch.WithDownloadBase(server.URL)), extract.TarGz{})
	if err != nil {
		t.Fatalf("NewCorpus failed: %v", err)
	}

	for _, r := range releases {
		path, err := corpus.Populate(context.Background(), r.Name, r.Version)
		if err != nil {
			t.Fatalf("Populate(%s@%s) failed: %v", r.Name, r.Version, err)
		}
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Fatalf("populated path is not a directory: %v", err)
		}
	}

	// The scan recovers the (name, version) mapping purely from the
	// filesystem.
	found := make(map[string]string)
	scan := corpus.Vault().CrateVersions()
	for scan.Next() {
		cv, err := scan.Entry()
		if err != nil {
			t.Fatalf("scan entry failed: %v", err)
		}
		found[cv.Name] = cv.Version
	}
	if len(found) != len(releases) {
		t.Fatalf("scan found %v, want %d releases", found, len(releases))
	}
	for _, r := range releases {
		if found[r.Name] != r.Version {
			t.Errorf("scan found %s@%s, want %s", r.Name, found[r.Name], r.Version)
		}
	}
}

func TestPopulatedPathMatchesAddress(t *testing.T) {
	server := crateServer(t, cratevault.Release{Name: "serde", Version: "1.0.228"})
	defer server.Close()

	root := t.TempDir()
	corpus, err := cratevault.NewCorpus(root,
		fetch.NewFetcher(fetch.WithDownloadBase(server.URL)), extract.TarGz{})
	if err != nil {
		t.Fatalf("NewCorpus failed: %v", err)
	}

	path, err := corpus.Populate(context.Background(), "serde", "1.0.228")
	if err != nil {
		t.Fatalf("Populate failed: %v", err)
	}

	rel, err := cratevault.VersionPath("serde", "1.0.228")
	if err != nil {
		t.Fatal(err)
	}
	resolved, err := filepath.EvalSymlinks(filepath.Join(root, rel))
	if err != nil {
		t.Fatal(err)
	}
	if path != resolved {
		t.Errorf("populated path %q, want %q", path, resolved)
	}
}

func TestPopulateMissingRelease(t *testing.T) {
	server := crateServer(t)
	defer server.Close()

	corpus, err := cratevault.NewCorpus(t.TempDir(),
		fetch.NewFetcher(fetch.WithDownloadBase(server.URL)), extract.TarGz{})
	if err != nil {
		t.Fatalf("NewCorpus failed: %v", err)
	}

	_, err = corpus.Populate(context.Background(), "ghost", "0.0.1")
	if !errors.Is(err, fetch.ErrNotFound) {
		t.Errorf("Populate = %v, want fetch.ErrNotFound", err)
	}
}
