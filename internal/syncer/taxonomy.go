package syncer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/halosync/internal/halo"
)

// Taxonomy caches remote tags and categories by display name for one run.
// Values are the immutable metadata names posts reference.
type Taxonomy struct {
	Tags       map[string]string
	Categories map[string]string
}

// NewTaxonomy returns an empty cache.
func NewTaxonomy() *Taxonomy {
	return &Taxonomy{
		Tags:       map[string]string{},
		Categories: map[string]string{},
	}
}

// SeedTaxonomy builds a cache from the remote tag and category listings.
// When several remote terms share a display name the first listed wins.
func (s *Syncer) SeedTaxonomy(ctx context.Context) (*Taxonomy, error) {
	tax := NewTaxonomy()

	tags, err := s.remote.ListTags(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: list tags: %w", err)
	}
	for _, t := range tags {
		if _, ok := tax.Tags[t.Spec.DisplayName]; !ok {
			tax.Tags[t.Spec.DisplayName] = t.Metadata.Name
		}
	}

	cats, err := s.remote.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("syncer: list categories: %w", err)
	}
	for _, c := range cats {
		if _, ok := tax.Categories[c.Spec.DisplayName]; !ok {
			tax.Categories[c.Spec.DisplayName] = c.Metadata.Name
		}
	}

	s.logger.Info("sync: taxonomy seeded",
		slog.Int("tags", len(tax.Tags)),
		slog.Int("categories", len(tax.Categories)))
	return tax, nil
}

type createTermFunc func(ctx context.Context, name string) (string, error)

// resolve translates display names into metadata names, creating the
// missing terms and caching them immediately.
func (s *Syncer) resolve(ctx context.Context, cache map[string]string, names []string, kind string, create createTermFunc) ([]string, error) {
	ids := make([]string, 0, len(names))
	for _, name := range names {
		id, ok := cache[name]
		if !ok {
			var err error
			id, err = create(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("create %s %q: %w", kind, name, err)
			}
			cache[name] = id
			s.logger.Info("sync: "+kind+" created", slog.String("name", name), slog.String("id", id))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *Syncer) createTag(ctx context.Context, name string) (string, error) {
	tag, err := s.remote.CreateTag(ctx, halo.TagInput{Name: name, Color: s.opts.TaxonomyColor})
	if err != nil {
		return "", err
	}
	return tag.Metadata.Name, nil
}

func (s *Syncer) createCategory(ctx context.Context, name string) (string, error) {
	cat, err := s.remote.CreateCategory(ctx, halo.CategoryInput{Name: name, Color: s.opts.TaxonomyColor})
	if err != nil {
		return "", err
	}
	return cat.Metadata.Name, nil
}
