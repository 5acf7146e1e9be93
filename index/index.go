// Package index maintains a local clone of the crates.io registry index and
// resolves crate version records from it.
//
// The registry index is a git repository of JSON-lines files, one file per
// crate, laid out under the same sharded scheme the vault uses for extracted
// releases. Updating is a fetch plus a hard reset to the remote branch; the
// clone is treated as a read-only mirror, never committed to.
package index

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/rs/zerolog"

	"github.com/git-pkgs/cratevault/internal/vault"
)

// DefaultRemote is the upstream crates.io index repository.
const DefaultRemote = "https://github.com/rust-lang/crates.io-index"

// DefaultBranch is the upstream index branch.
const DefaultBranch = "master"

// ErrNotFound is returned when a crate has no record in the index.
var ErrNotFound = errors.New("crate not found")

// NotFoundError wraps ErrNotFound with the crate name.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("crate not found in index: %s", e.Name)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotADirectoryError reports an index path occupied by a plain file.
type NotADirectoryError struct {
	Path string
}

func (e *NotADirectoryError) Error() string {
	return fmt.Sprintf("path exists, but is not a directory: %s", e.Path)
}

// Index is a local clone of the registry index.
type Index struct {
	path     string
	log      zerolog.Logger
	progress io.Writer
}

// Option configures an Index.
type Option func(*Index)

// WithLogger sets the logger used for update diagnostics.
func WithLogger(log zerolog.Logger) Option {
	return func(ix *Index) {
		ix.log = log
	}
}

// WithProgressWriter receives the remote's sideband progress during fetches.
func WithProgressWriter(w io.Writer) Option {
	return func(ix *Index) {
		ix.progress = w
	}
}

// Open returns an Index rooted at path, initializing an empty git repository
// there if none exists yet. A directory without a .git subdirectory is
// initialized in place: the directory existing does not mean it is a valid
// repository.
func Open(path string, opts ...Option) (*Index, error) {
	switch info, err := os.Stat(path); {
	case err == nil && info.IsDir():
		if gitInfo, gitErr := os.Stat(filepath.Join(path, git.GitDirName)); gitErr != nil || !gitInfo.IsDir() {
			if _, initErr := git.PlainInit(path, false); initErr != nil {
				return nil, initErr
			}
		}
	case err == nil:
		return nil, &NotADirectoryError{Path: path}
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(path, 0o755); mkErr != nil {
			return nil, mkErr
		}
		if _, initErr := git.PlainInit(path, false); initErr != nil {
			return nil, initErr
		}
	default:
		return nil, err
	}

	canon, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, err
	}

	ix := &Index{path: canon, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Path returns the index clone's directory.
func (ix *Index) Path() string {
	return ix.path
}

// Update fetches the given branch from the remote and hard-resets the
// worktree to it. The origin remote is repointed at remoteURL on every call.
func (ix *Index) Update(ctx context.Context, remoteURL, branch string) error {
	repo, err := git.PlainOpen(ix.path)
	if err != nil {
		return err
	}

	if _, err := repo.Remote("origin"); err == nil {
		if err := repo.DeleteRemote("origin"); err != nil {
			return err
		}
	} else if !errors.Is(err, git.ErrRemoteNotFound) {
		return err
	}
	remote, err := repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteURL},
	})
	if err != nil {
		return err
	}

	ix.log.Info().Str("remote", remoteURL).Str("branch", branch).Msg("fetching index")
	refspec := config.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/origin/%s", branch, branch))
	err = remote.FetchContext(ctx, &git.FetchOptions{
		RefSpecs: []config.RefSpec{refspec},
		Tags:     git.NoTags,
		Force:    true,
		Progress: ix.progress,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return fmt.Errorf("fetching %s: %w", remoteURL, err)
	}

	ref, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", branch), true)
	if err != nil {
		return err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return err
	}
	if err := worktree.Reset(&git.ResetOptions{Commit: ref.Hash(), Mode: git.HardReset}); err != nil {
		return fmt.Errorf("resetting to origin/%s: %w", branch, err)
	}

	ix.log.Info().Str("commit", ref.Hash().String()).Msg("index updated")
	return nil
}

// Get looks up one crate's record set. A missing index file maps to
// NotFoundError here, at the lookup boundary; other I/O failures pass
// through untranslated.
func (ix *Index) Get(name string) (*Krate, error) {
	rel, err := vault.ShardPath(name)
	if err != nil {
		return nil, err
	}

	krate, err := openKrate(name, filepath.Join(ix.path, rel))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &NotFoundError{Name: name}
	}
	return krate, err
}

// All enumerates every crate name recorded in the index, in walk order.
func (ix *Index) All() ([]string, error) {
	var names []string
	err := filepath.WalkDir(ix.path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// .git and other dot directories are repository plumbing, not
			// crate shards.
			if path != ix.path && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isCrateFileName(d.Name()) {
			names = append(names, d.Name())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// isCrateFileName reports whether a file name can be a crate entry. Anything
// else (config.json, README.md) is registry metadata.
func isCrateFileName(name string) bool {
	if name == "" {
		return false
	}
	for i := range len(name) {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_':
		default:
			return false
		}
	}
	return true
}
