package dataset

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEmptyQueryResult is returned when a query matches no row
	ErrEmptyQueryResult = errors.New("no record matches the query")

	// ErrInconsistentTable is returned when a cell's row count differs from
	// the number of image files found in its directory
	ErrInconsistentTable = errors.New("dataset table is inconsistent with its source directories")
)

// MissingDirectoryError reports a required class/split directory that does not exist
type MissingDirectoryError struct {
	Path string
}

func (e *MissingDirectoryError) Error() string {
	return fmt.Sprintf("missing directory: %s", e.Path)
}

// UnreadableImageError reports a file that could not be decoded
type UnreadableImageError struct {
	Path string
	Err  error
}

func (e *UnreadableImageError) Error() string {
	return fmt.Sprintf("unreadable image %s: %v", e.Path, e.Err)
}

// Unwrap returns the decode error
func (e *UnreadableImageError) Unwrap() error { return e.Err }
