// Package cratevault maintains a local, on-disk mirror of crates.io release
// artifacts.
//
// A vault is a directory tree in which every extracted release lives at a
// path that is a pure function of its crate name and version, and the set of
// materialized releases is recovered by scanning the tree for each crate's
// own manifest. A corpus wraps a vault with the populate protocol: fetch,
// extract into a staging directory, then a single atomic rename, so a release
// directory either does not exist or is complete.
//
// Basic usage:
//
//	import (
//		"context"
//		"github.com/git-pkgs/cratevault"
//		"github.com/git-pkgs/cratevault/extract"
//		"github.com/git-pkgs/cratevault/fetch"
//	)
//
//	corpus, err := cratevault.NewCorpus("/srv/crates",
//		fetch.NewFetcher(), extract.TarGz{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	path, err := corpus.Populate(context.Background(), "serde", "1.0.228")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(path)
//
//	scan := corpus.Vault().CrateVersions()
//	for scan.Next() {
//		cv, err := scan.Entry()
//		if err != nil {
//			continue
//		}
//		fmt.Println(cv.Name, cv.Version)
//	}
//
// The registry index that enumerates candidate releases lives in the index
// subpackage; cmd/cratevault drives index updates and parallel populate runs.
package cratevault

import (
	"github.com/git-pkgs/cratevault/internal/corpus"
	"github.com/git-pkgs/cratevault/internal/vault"
)

// Re-export types from internal/vault
type (
	// Vault is a root directory holding extracted crate releases under a
	// deterministic sharded layout.
	Vault = vault.Vault

	// CrateVersion identifies one materialized crate tree by the name and
	// version its own manifest declares.
	CrateVersion = vault.CrateVersion

	// Scan lazily enumerates the top-level manifests beneath a vault root.
	Scan = vault.Scan
)

// Re-export types from internal/corpus
type (
	// Corpus fills a Vault with extracted crate releases fetched on demand.
	Corpus = corpus.Corpus

	// Release names one crate version to populate.
	Release = corpus.Release

	// Fetcher retrieves the packaged archive for one crate release.
	Fetcher = corpus.Fetcher

	// Extractor unpacks an archive stream into a directory.
	Extractor = corpus.Extractor

	// ProgressFunc observes bulk populate progress.
	ProgressFunc = corpus.ProgressFunc

	// CorpusOption configures a Corpus.
	CorpusOption = corpus.Option
)

// Re-export errors
var (
	ErrInvalidName    = vault.ErrInvalidName
	ErrInvalidVersion = vault.ErrInvalidVersion
)

// Error types
type (
	NotADirectoryError = corpus.NotADirectoryError
	ManifestReadError  = vault.ManifestReadError
	ManifestParseError = vault.ManifestParseError
	WalkError          = vault.WalkError
)

// NewVault returns a Vault rooted at the given directory.
func NewVault(root string) *Vault {
	return vault.New(root)
}

// NewCorpus creates a Corpus rooted at the given directory, creating the
// directory if needed.
func NewCorpus(root string, fetcher Fetcher, extractor Extractor, opts ...CorpusOption) (*Corpus, error) {
	return corpus.New(root, fetcher, extractor, opts...)
}

// WithLogger sets the logger used for populate diagnostics.
var WithLogger = corpus.WithLogger

// WithExclusiveKeys serializes populate calls per (name, version) key.
var WithExclusiveKeys = corpus.WithExclusiveKeys

// ShardPath returns the store-relative directory holding all versions of the
// named crate.
func ShardPath(name string) (string, error) {
	return vault.ShardPath(name)
}

// VersionPath returns the store-relative directory for one released version
// of a crate.
func VersionPath(name, version string) (string, error) {
	return vault.VersionPath(name, version)
}
