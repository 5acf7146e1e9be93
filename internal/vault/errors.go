package vault

import (
	"errors"
	"fmt"
)

// ErrInvalidName is returned when a crate name cannot be sharded.
var ErrInvalidName = errors.New("invalid crate name: cannot be empty")

// ErrInvalidVersion is returned when a version string is empty.
var ErrInvalidVersion = errors.New("invalid crate version: cannot be empty")

// ManifestReadError reports a manifest file that could not be opened or read.
type ManifestReadError struct {
	Path string
	Err  error
}

func (e *ManifestReadError) Error() string {
	return fmt.Sprintf("reading manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestReadError) Unwrap() error {
	return e.Err
}

// ManifestParseError reports a manifest file whose contents could not be
// decoded, or that lacks a package name or version.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("parsing manifest %s: %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// WalkError reports a directory that could not be traversed during a scan.
type WalkError struct {
	Path string
	Err  error
}

func (e *WalkError) Error() string {
	return fmt.Sprintf("walking vault directory %s: %v", e.Path, e.Err)
}

func (e *WalkError) Unwrap() error {
	return e.Err
}
