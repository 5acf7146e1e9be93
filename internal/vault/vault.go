// Package vault addresses and enumerates extracted crate releases on disk.
//
// A vault is a plain directory tree: every release lives at a path that is a
// pure function of its crate name and version, and the set of materialized
// releases is recovered by scanning the tree for each crate's own manifest.
// Nothing is cached between calls; the filesystem is the only state.
package vault

import "path/filepath"

// StagingPrefix names the temporary directories populate runs stage into
// under the vault root. Scans skip them: a staging tree is either in flight
// or debris from a crash, never a materialized release.
const StagingPrefix = ".staging-"

// CrateVersion identifies one materialized crate tree by the name and version
// its own manifest declares. Path is the location of that manifest.
//
// CrateVersions are scan-scoped: they are re-derived on every scan and never
// cached across scans.
type CrateVersion struct {
	Name    string
	Version string
	Path    string
}

// Vault is a root directory holding extracted crate releases under the
// sharded layout produced by VersionPath.
type Vault struct {
	root string
}

// New returns a Vault rooted at the given directory. The directory is not
// created or inspected; lookups are pure and scans report whatever is there.
func New(root string) *Vault {
	return &Vault{root: root}
}

// Root returns the vault's root directory.
func (v *Vault) Root() string {
	return v.root
}

// Path returns the location where the given release lives, or would live once
// populated. Purely computed; the path may not exist.
func (v *Vault) Path(name, version string) (string, error) {
	rel, err := VersionPath(name, version)
	if err != nil {
		return "", err
	}
	return filepath.Join(v.root, rel), nil
}

// CrateVersions scans the vault for materialized releases. Each call starts a
// fresh scan from the root.
func (v *Vault) CrateVersions() *Scan {
	return NewScan(v.root)
}
