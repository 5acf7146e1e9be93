package vault

import (
	"errors"
	"os"

	"github.com/BurntSushi/toml"
)

// manifest is the slice of a Cargo.toml we care about: the identity the
// package declares for itself.
type manifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

var errIncompleteManifest = errors.New("missing package name or version")

func parseManifest(path string) (manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest{}, &ManifestReadError{Path: path, Err: err}
	}

	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return manifest{}, &ManifestParseError{Path: path, Err: err}
	}
	if m.Package.Name == "" || m.Package.Version == "" {
		return manifest{}, &ManifestParseError{Path: path, Err: errIncompleteManifest}
	}
	return m, nil
}

// isManifestName reports whether a file name is a recognized manifest
// spelling. Exactly two spellings count: the conventional title case and all
// lowercase. No other casing is a manifest.
func isManifestName(name string) bool {
	return name == "Cargo.toml" || name == "cargo.toml"
}
