// Package corpus populates a vault with extracted crate releases.
//
// Population is idempotent and crash safe: an artifact is staged into a
// private temporary directory under the vault root and moved into its final
// address with a single rename, so a release directory either does not exist
// yet or is complete. Nothing is ever written to a final address directly.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/git-pkgs/cratevault/internal/vault"
)

// Fetcher retrieves the packaged archive for one crate release.
type Fetcher interface {
	FetchCrate(ctx context.Context, name, version string) (io.ReadCloser, error)
}

// Extractor unpacks an archive stream into a directory, overwriting any
// colliding entries already present there.
type Extractor interface {
	Extract(ctx context.Context, r io.Reader, dest string) error
}

// NotADirectoryError reports a release address occupied by something other
// than a directory. The corpus never resolves this itself; the caller decides
// whether to remove the offending path before retrying.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("path exists, but is not a directory: %s", e.Path)
}

// Corpus fills a Vault with extracted crate releases fetched on demand.
type Corpus struct {
	vault     *vault.Vault
	fetcher   Fetcher
	extractor Extractor
	log       zerolog.Logger
	keys      *keyLocks
}

// Option configures a Corpus.
type Option func(*Corpus)

// WithLogger sets the logger used for populate diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Corpus) {
		c.log = log
	}
}

// WithExclusiveKeys serializes populate calls per (name, version) key. By
// default two concurrent calls for the same release can both observe the
// address absent and both fetch; the results are content-identical, so the
// default accepts the duplicate work and spends no memory on lock state.
func WithExclusiveKeys() Option {
	return func(c *Corpus) {
		c.keys = newKeyLocks()
	}
}

// New creates a Corpus rooted at the given directory, creating the directory
// if needed.
func New(root string, fetcher Fetcher, extractor Extractor, opts ...Option) (*Corpus, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	c := &Corpus{
		vault:     vault.New(root),
		fetcher:   fetcher,
		extractor: extractor,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Vault returns the underlying vault.
func (c *Corpus) Vault() *vault.Vault {
	return c.vault
}

// Path returns the address the release occupies in the vault, whether or not
// it has been populated yet.
func (c *Corpus) Path(name, version string) (string, error) {
	return c.vault.Path(name, version)
}

// Populate ensures the release is materialized at its vault address and
// returns that address.
//
// An address that already exists as a directory is returned as is, with no
// network activity. An address occupied by a non-directory fails with
// NotADirectoryError. Otherwise the archive is fetched, extracted into a
// staging directory under the vault root, and renamed into place. Any failure
// before the rename leaves the address absent, so a retry is indistinguishable
// from a first attempt. No retries happen here; retry policy belongs to the
// caller.
func (c *Corpus) Populate(ctx context.Context, name, version string) (string, error) {
	if c.keys != nil {
		unlock := c.keys.lock(name + "/" + version)
		defer unlock()
	}

	path, err := c.vault.Path(name, version)
	if err != nil {
		return "", err
	}

	switch info, err := os.Stat(path); {
	case err == nil && info.IsDir():
		return path, nil
	case err == nil:
		return "", &NotADirectoryError{Path: path}
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	// Create the parent chain and canonicalize it so the rename target stays
	// stable even when the vault root is reached through a symlink.
	parent := filepath.Dir(path)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return "", err
	}
	canon, err := filepath.EvalSymlinks(parent)
	if err != nil {
		return "", err
	}
	target := filepath.Join(canon, filepath.Base(path))

	// Stage under the vault root so the final rename never crosses a
	// filesystem boundary.
	staging, err := os.MkdirTemp(c.vault.Root(), vault.StagingPrefix)
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(staging)

	body, err := c.fetcher.FetchCrate(ctx, name, version)
	if err != nil {
		return "", fmt.Errorf("fetching %s@%s: %w", name, version, err)
	}
	defer body.Close()

	if err := c.extractor.Extract(ctx, body, staging); err != nil {
		return "", fmt.Errorf("extracting %s@%s: %w", name, version, err)
	}

	// Crate archives unpack to a single name-version directory. Moving it
	// into place is the one state transition: observers see the address
	// either absent or complete, never partial.
	extracted := filepath.Join(staging, fmt.Sprintf("%s-%s", name, version))
	if err := os.Rename(extracted, target); err != nil {
		return "", err
	}

	c.log.Debug().Str("crate", name).Str("version", version).Str("path", target).Msg("populated release")
	return target, nil
}
