package vault

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// A Scan lazily enumerates the top-level manifests beneath a root directory.
// Crate archives can carry nested manifests (vendored crates, test fixtures),
// so only the first manifest along any path from the root identifies a
// materialized crate; once a directory is known to hold one, the walk never
// descends beneath it.
//
// Usage follows the bufio.Scanner shape:
//
//	scan := vault.NewScan(root)
//	for scan.Next() {
//		cv, err := scan.Entry()
//		...
//	}
//
// Errors are per entry: an unreadable directory or a malformed manifest is
// reported for that entry and the scan continues elsewhere. A Scan is
// single-use and not safe for concurrent use; re-scan by constructing a new
// one.
type Scan struct {
	claimed prefixSet
	stack   []walkItem
	cur     CrateVersion
	curErr  error
}

type walkItem struct {
	path string
	dir  bool
}

// NewScan starts a scan rooted at the given directory.
func NewScan(root string) *Scan {
	return &Scan{stack: []walkItem{{path: root, dir: true}}}
}

// Next advances the scan to the next entry, returning false once the walk is
// exhausted.
func (s *Scan) Next() bool {
	for len(s.stack) > 0 {
		item := s.stack[len(s.stack)-1]
		s.stack = s.stack[:len(s.stack)-1]

		if !item.dir {
			s.cur, s.curErr = s.visitManifest(item.path)
			return true
		}

		if s.claimed.contains(item.path) {
			continue
		}
		entries, err := os.ReadDir(item.path)
		if err != nil {
			s.cur, s.curErr = CrateVersion{}, &WalkError{Path: item.path, Err: err}
			return true
		}
		s.push(item.path, entries)
	}
	return false
}

// Entry returns the result produced by the last call to Next.
func (s *Scan) Entry() (CrateVersion, error) {
	return s.cur, s.curErr
}

// push schedules a directory's children. Manifests sort before everything
// else so that the parent is claimed before any sibling subdirectory is
// considered for descent; the remaining entries are ordered lexically, which
// keeps scans reproducible but carries no other meaning.
func (s *Scan) push(dir string, entries []os.DirEntry) {
	sorted := make([]os.DirEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, mj := isManifestEntry(sorted[i]), isManifestEntry(sorted[j])
		if mi != mj {
			return mi
		}
		return sorted[i].Name() < sorted[j].Name()
	})

	// The stack is LIFO, so push in reverse to pop in sorted order.
	for i := len(sorted) - 1; i >= 0; i-- {
		entry := sorted[i]
		switch {
		case isManifestEntry(entry):
			s.stack = append(s.stack, walkItem{path: filepath.Join(dir, entry.Name())})
		case entry.IsDir():
			if strings.HasPrefix(entry.Name(), StagingPrefix) {
				continue
			}
			s.stack = append(s.stack, walkItem{path: filepath.Join(dir, entry.Name()), dir: true})
		}
		// Symlinks, sockets and the like are of no interest.
	}
}

func (s *Scan) visitManifest(path string) (CrateVersion, error) {
	// Claim the parent even when the manifest turns out to be malformed: a
	// broken manifest at this level must not promote deeper nested manifests
	// to top level.
	s.claimed.insert(filepath.Dir(path))

	m, err := parseManifest(path)
	if err != nil {
		return CrateVersion{}, err
	}
	return CrateVersion{
		Name:    m.Package.Name,
		Version: m.Package.Version,
		Path:    path,
	}, nil
}

func isManifestEntry(entry os.DirEntry) bool {
	return entry.Type().IsRegular() && isManifestName(entry.Name())
}

// prefixSet records directories already known to hold a top-level manifest.
// Membership is by ancestry: a path is contained when it or any of its
// ancestors was inserted.
type prefixSet struct {
	dirs map[string]struct{}
}

func (p *prefixSet) insert(dir string) {
	if p.dirs == nil {
		p.dirs = make(map[string]struct{})
	}
	p.dirs[dir] = struct{}{}
}

func (p *prefixSet) contains(path string) bool {
	if p.dirs == nil {
		return false
	}
	for {
		if _, ok := p.dirs[path]; ok {
			return true
		}
		parent := filepath.Dir(path)
		if parent == path {
			return false
		}
		path = parent
	}
}
