package index

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
)

// Krate is one crate's record set in the registry index: a JSON-lines file
// with one release per line, oldest first.
type Krate struct {
	Name     string
	Versions []VersionRecord
}

// VersionRecord mirrors one line of a crate's index file.
type VersionRecord struct {
	Name     string             `json:"name"`
	Version  string             `json:"vers"`
	Checksum string             `json:"cksum"`
	Yanked   bool               `json:"yanked"`
	Deps     []DependencyRecord `json:"deps"`
}

// DependencyRecord names one dependency of a release.
type DependencyRecord struct {
	Name     string `json:"name"`
	Req      string `json:"req"`
	Kind     string `json:"kind"`
	Optional bool   `json:"optional"`
}

// ReleaseVersions returns the non-yanked version strings, oldest first.
func (k *Krate) ReleaseVersions() []string {
	var versions []string
	for _, rec := range k.Versions {
		if !rec.Yanked {
			versions = append(versions, rec.Version)
		}
	}
	return versions
}

func openKrate(name, path string) (*Krate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	k := &Krate{Name: name}
	scanner := bufio.NewScanner(f)
	// Crates with many releases and heavy feature maps produce long lines.
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec VersionRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("parsing index record for %s: %w", name, err)
		}
		k.Versions = append(k.Versions, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return k, nil
}
