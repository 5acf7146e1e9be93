package vault

import "path/filepath"

// ShardPath returns the store-relative directory holding all versions of the
// named crate. The layout follows the crates.io index convention for bounding
// per-directory fan-out: one to three character names go into length buckets,
// longer names are bucketed by their first four characters.
//
//	a        -> 1/a
//	ab       -> 2/ab
//	abc      -> 3/a/abc
//	serde    -> se/rd/serde
//
// ShardPath is pure: same name, same path, no I/O.
func ShardPath(name string) (string, error) {
	switch len(name) {
	case 0:
		return "", ErrInvalidName
	case 1:
		return filepath.Join("1", name), nil
	case 2:
		return filepath.Join("2", name), nil
	case 3:
		return filepath.Join("3", name[0:1], name), nil
	default:
		return filepath.Join(name[0:2], name[2:4], name), nil
	}
}

// VersionPath returns the store-relative directory for one released version
// of a crate: the crate's shard path with the version appended.
func VersionPath(name, version string) (string, error) {
	shard, err := ShardPath(name)
	if err != nil {
		return "", err
	}
	if version == "" {
		return "", ErrInvalidVersion
	}
	return filepath.Join(shard, version), nil
}
