// Package extract unpacks gzip-compressed tar archives, the packaging format
// of crates.io release artifacts.
package extract

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// ErrUnsafePath is returned for archive entries that would land outside the
// destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// TarGz unpacks .crate archives (gzip-compressed tarballs) into a directory,
// overwriting colliding entries.
type TarGz struct{}

// Extract reads a gzip-compressed tarball from r and materializes it under
// dest. Regular files, directories and destination-local symlinks are
// written; other entry types are skipped. Extraction stops at the first
// error, leaving whatever was already written in place; callers stage into a
// scratch directory and discard it on failure.
func (TarGz) Extract(ctx context.Context, r io.Reader, dest string) error {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}

		rel := filepath.FromSlash(hdr.Name)
		if !filepath.IsLocal(rel) {
			return fmt.Errorf("%w: %q", ErrUnsafePath, hdr.Name)
		}
		path := filepath.Join(dest, rel)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, dirMode(hdr)); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := writeFile(path, tr, fileMode(hdr)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := writeSymlink(path, rel, hdr.Linkname); err != nil {
				return err
			}
		default:
			// Devices, FIFOs and hard links have no place in a crate.
		}
	}
}

func writeFile(path string, r io.Reader, mode fs.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeSymlink(path, rel, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("%w: symlink %q -> %q", ErrUnsafePath, rel, linkname)
	}
	resolved := filepath.Join(filepath.Dir(rel), filepath.FromSlash(linkname))
	if !filepath.IsLocal(resolved) {
		return fmt.Errorf("%w: symlink %q -> %q", ErrUnsafePath, rel, linkname)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	// Overwrite semantics: replace whatever already sits at the link path.
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return os.Symlink(linkname, path)
}

func fileMode(hdr *tar.Header) fs.FileMode {
	mode := fs.FileMode(hdr.Mode).Perm()
	if mode == 0 {
		mode = 0o644
	}
	return mode
}

func dirMode(hdr *tar.Header) fs.FileMode {
	// The extracting user always keeps full access to what it just wrote.
	return fs.FileMode(hdr.Mode).Perm() | 0o700
}
