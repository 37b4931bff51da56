// Package apperr holds the sentinel errors shared across halosync packages.
package apperr

import "errors"

var (
	// ErrNotFound is matched by remote lookups that answered 404.
	ErrNotFound = errors.New("not found")
	// ErrConflict is matched by create calls rejected because the name or slug is taken.
	ErrConflict = errors.New("conflict")
	// ErrNoFrontMatter means the document has no (or an empty) front-matter block.
	ErrNoFrontMatter = errors.New("no front-matter")
)
