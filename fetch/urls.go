package fetch

import "fmt"

// DefaultDownloadBase is the crates.io static download host.
const DefaultDownloadBase = "https://static.crates.io/crates"

// URLs builds crates.io locations for a crate release.
type URLs struct {
	// DownloadBase overrides the archive host; empty means crates.io.
	DownloadBase string
}

// Download returns the archive URL for a release.
func (u URLs) Download(name, version string) string {
	base := u.DownloadBase
	if base == "" {
		base = DefaultDownloadBase
	}
	return fmt.Sprintf("%s/%s/%s-%s.crate", base, name, name, version)
}

// Filename returns the archive file name for a release.
func (u URLs) Filename(name, version string) string {
	return fmt.Sprintf("%s-%s.crate", name, version)
}

// Registry returns the human-facing crates.io page for a release.
func (u URLs) Registry(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://crates.io/crates/%s/%s", name, version)
	}
	return fmt.Sprintf("https://crates.io/crates/%s", name)
}

// Documentation returns the docs.rs page for a release.
func (u URLs) Documentation(name, version string) string {
	if version != "" {
		return fmt.Sprintf("https://docs.rs/%s/%s", name, version)
	}
	return fmt.Sprintf("https://docs.rs/%s", name)
}

// PURL returns the package URL identifying a release.
func (u URLs) PURL(name, version string) string {
	if version != "" {
		return fmt.Sprintf("pkg:cargo/%s@%s", name, version)
	}
	return fmt.Sprintf("pkg:cargo/%s", name)
}
