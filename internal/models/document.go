// Package models defines the domain types shared by halosync packages.
package models

import "time"

// Document is a local post file, read once per sync and then discarded.
type Document struct {
	Path     string    `json:"path"`
	Content  []byte    `json:"-"`
	Checksum string    `json:"checksum"`
	ModTime  time.Time `json:"mod_time"`
}

// FileMeta is the lightweight listing entry for a file under the sync root.
// Listing never reads content, so there is no checksum here.
type FileMeta struct {
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mod_time"`
}
