package syncer

import (
	"errors"
	"fmt"

	"github.com/starford/halosync/internal/frontmatter"
	"github.com/starford/halosync/internal/slugify"
)

// Draft is a document prepared for upload. Tags and Categories are still
// display names; they are resolved against the remote taxonomy on sync.
type Draft struct {
	Path        string   `json:"path"`
	Checksum    string   `json:"checksum"`
	Title       string   `json:"title"`
	Slug        string   `json:"slug"`
	Tags        []string `json:"tags"`
	Categories  []string `json:"categories"`
	Cover       string   `json:"cover"`
	Pinned      bool     `json:"pinned"`
	PublishTime string   `json:"publishTime,omitempty"`
	Body        string   `json:"-"`
	HTML        string   `json:"html"`
	// Ignored lists declared front-matter keys that are not synced, in
	// source order.
	Ignored []string `json:"ignored,omitempty"`
}

var syncedKeys = map[string]bool{
	"title":      true,
	"tags":       true,
	"categories": true,
	"cover":      true,
	"sticky":     true,
	"date":       true,
	"abbrlink":   true,
}

// Prepare reads path and derives everything that does not need the remote:
// front-matter, slug, publish time, stripped body and rendered HTML. It
// returns an error matching apperr.ErrNoFrontMatter for files without a
// front-matter block.
func (s *Syncer) Prepare(path string) (*Draft, error) {
	doc, err := s.source.Load(path)
	if err != nil {
		return nil, err
	}
	d := &Draft{Path: path, Checksum: doc.Checksum}

	fm, err := frontmatter.Parse(doc.Content)
	if err != nil {
		return d, err
	}
	if fm.Title == "" {
		return d, errors.New("front-matter has no title")
	}
	d.Title = fm.Title
	d.Tags = fm.Tags
	d.Categories = fm.Categories
	d.Cover = fm.Cover
	d.Pinned = fm.Sticky
	for _, k := range fm.Keys {
		if !syncedKeys[k] {
			d.Ignored = append(d.Ignored, k)
		}
	}

	d.Slug = fm.Abbrlink
	if d.Slug == "" {
		d.Slug = slugify.Make(fm.Title)
	}
	if d.Slug == "" {
		return d, fmt.Errorf("cannot derive a slug from title %q", fm.Title)
	}

	if fm.Date != nil {
		d.PublishTime = FormatPublishTime(*fm.Date)
	}

	d.Body = frontmatter.Strip(string(doc.Content))
	d.HTML, err = s.renderer.Render(d.Body)
	if err != nil {
		return d, fmt.Errorf("render: %w", err)
	}
	return d, nil
}
