// Package storage enumerates and reads the post files under the sync root.
package storage

import "github.com/starford/halosync/internal/models"

// Provider is the interface for read access to the posts directory.
type Provider interface {
	// Root returns the absolute directory every path is relative to.
	Root() string
	// List returns metadata for every regular file under dir (relative to
	// root), recursively, in lexical order, without reading any of them.
	List(dir string) ([]models.FileMeta, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Load reads the file at path into a Document.
	Load(path string) (*models.Document, error)
}
