// Package syncer reconciles a folder of Markdown posts with a Halo site.
//
// Documents are processed one at a time. Every step of a document that can
// fail is captured in its Result so the batch always reaches the last file.
package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/starford/halosync/internal/apperr"
	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/storage"
)

// Remote is the part of the Halo client the syncer calls.
type Remote interface {
	ListTags(ctx context.Context) ([]halo.Tag, error)
	ListCategories(ctx context.Context) ([]halo.Category, error)
	CreateTag(ctx context.Context, in halo.TagInput) (*halo.Tag, error)
	CreateCategory(ctx context.Context, in halo.CategoryInput) (*halo.Category, error)
	GetPostMeta(ctx context.Context, slug string) (*halo.Post, error)
	CreatePost(ctx context.Context, req halo.PostRequest) (*halo.Post, error)
	UpdatePost(ctx context.Context, slug string, patch halo.PostPatch) (*halo.Post, error)
	Publish(ctx context.Context, slug string) (*halo.Post, error)
}

// Renderer converts a Markdown body into HTML.
type Renderer interface {
	Render(markdown string) (string, error)
}

// Options tunes what the syncer sends.
type Options struct {
	// Publish calls publish after every successful create or update.
	Publish      bool
	AllowComment bool
	Visible      string
	// TaxonomyColor is used for created tags and categories.
	TaxonomyColor string
	// OnBegin, when set, is called once per batch before the first document.
	OnBegin func(*Report)
	// OnResult, when set, receives every document outcome as it happens.
	OnResult func(Result)
}

// Syncer drives batches against one remote.
type Syncer struct {
	remote   Remote
	renderer Renderer
	source   storage.Provider
	opts     Options
	logger   *slog.Logger
}

// New creates a Syncer. A nil logger falls back to slog.Default().
func New(remote Remote, renderer Renderer, source storage.Provider, opts Options, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Visible == "" {
		opts.Visible = halo.VisiblePublic
	}
	return &Syncer{
		remote:   remote,
		renderer: renderer,
		source:   source,
		opts:     opts,
		logger:   logger,
	}
}

// Run syncs every file under the source root in lexical path order. The
// taxonomy is updated in place as terms are created. Per-document failures
// end up in the report; an error is returned only when the files cannot be
// listed or ctx is cancelled between documents.
func (s *Syncer) Run(ctx context.Context, tax *Taxonomy) (*Report, error) {
	files, err := s.source.List("")
	if err != nil {
		return nil, fmt.Errorf("syncer: list documents: %w", err)
	}
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return s.SyncPaths(ctx, tax, paths)
}

// SyncPaths runs one batch over the given root-relative paths, in the order
// given.
func (s *Syncer) SyncPaths(ctx context.Context, tax *Taxonomy, paths []string) (*Report, error) {
	if tax == nil {
		tax = NewTaxonomy()
	}
	report := &Report{
		RunID:     uuid.NewString(),
		Root:      s.source.Root(),
		StartedAt: time.Now().UTC(),
	}
	s.logger.Info("sync: batch started",
		slog.String("run_id", report.RunID),
		slog.String("root", report.Root),
		slog.Int("documents", len(paths)))
	if s.opts.OnBegin != nil {
		s.opts.OnBegin(report)
	}

	for i, p := range paths {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = time.Now().UTC()
			return report, fmt.Errorf("syncer: run interrupted: %w", err)
		}
		report.Results = append(report.Results, s.sync(ctx, report.RunID, i, p, tax))
	}

	report.FinishedAt = time.Now().UTC()
	c := report.Counts()
	s.logger.Info("sync: batch finished",
		slog.String("run_id", report.RunID),
		slog.Int("documents", c.Total()),
		slog.Int("created", c.Created),
		slog.Int("updated", c.Updated),
		slog.Int("skipped", c.Skipped),
		slog.Int("failed", c.Failed),
		slog.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

// SyncDocument processes one file. index is the document's position in the
// batch and only appears in logs and the result.
func (s *Syncer) SyncDocument(ctx context.Context, index int, path string, tax *Taxonomy) Result {
	return s.sync(ctx, "", index, path, tax)
}

func (s *Syncer) sync(ctx context.Context, runID string, index int, path string, tax *Taxonomy) Result {
	if tax == nil {
		tax = NewTaxonomy()
	}
	res := Result{RunID: runID, Index: index, Path: path}
	s.syncDocument(ctx, &res, tax)
	s.report(res)
	return res
}

func (s *Syncer) syncDocument(ctx context.Context, res *Result, tax *Taxonomy) {
	fail := func(err error) {
		res.Status = StatusFailed
		res.Err = err
	}

	d, err := s.Prepare(res.Path)
	if d != nil {
		res.Checksum = d.Checksum
		res.Title = d.Title
	}
	if errors.Is(err, apperr.ErrNoFrontMatter) {
		res.Status = StatusSkipped
		res.Reason = "no front-matter"
		return
	}
	if err != nil {
		fail(err)
		return
	}
	res.Slug = d.Slug
	if len(d.Ignored) > 0 {
		s.logger.Debug("sync: front-matter keys not synced",
			slog.String("path", res.Path),
			slog.Any("keys", d.Ignored))
	}

	tags, err := s.resolve(ctx, tax.Tags, d.Tags, "tag", s.createTag)
	if err != nil {
		fail(err)
		return
	}
	categories, err := s.resolve(ctx, tax.Categories, d.Categories, "category", s.createCategory)
	if err != nil {
		fail(err)
		return
	}

	_, err = s.remote.GetPostMeta(ctx, d.Slug)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		res.Action = string(StatusCreated)
		_, err = s.remote.CreatePost(ctx, s.postRequest(d, tags, categories))
		if errors.Is(err, apperr.ErrConflict) {
			res.Status = StatusSkipped
			res.Reason = "duplicate slug"
			res.Err = err
			return
		}
	default:
		// Only a definite not-found creates; any other answer updates, and
		// UpdatePost fetches the post again itself.
		if err != nil {
			s.logger.Warn("sync: existence check failed, updating",
				slog.String("path", res.Path),
				slog.String("slug", d.Slug),
				slog.String("error", err.Error()))
		}
		res.Action = string(StatusUpdated)
		_, err = s.remote.UpdatePost(ctx, d.Slug, postPatch(d, tags, categories))
	}
	if err != nil {
		fail(err)
		return
	}
	res.Status = Status(res.Action)

	if s.opts.Publish {
		if _, err := s.remote.Publish(ctx, d.Slug); err != nil {
			fail(fmt.Errorf("publish: %w", err))
			return
		}
		res.Published = true
	}
}

func (s *Syncer) postRequest(d *Draft, tags, categories []string) halo.PostRequest {
	spec := halo.PostSpec{
		Title:        d.Title,
		Slug:         d.Slug,
		Cover:        d.Cover,
		Pinned:       d.Pinned,
		AllowComment: s.opts.AllowComment,
		Visible:      s.opts.Visible,
		Excerpt:      halo.Excerpt{AutoGenerate: true},
		Categories:   categories,
		Tags:         tags,
		HTMLMetas:    []json.RawMessage{},
	}
	if d.PublishTime != "" {
		pt := d.PublishTime
		spec.PublishTime = &pt
	}
	return halo.PostRequest{
		Post: halo.Post{
			APIVersion: halo.ContentAPIVersion,
			Kind:       halo.KindPost,
			Metadata:   halo.Metadata{Name: d.Slug},
			Spec:       spec,
		},
		Content: halo.Content{Raw: d.Body, Content: d.HTML, RawType: "markdown"},
	}
}

func postPatch(d *Draft, tags, categories []string) halo.PostPatch {
	patch := halo.PostPatch{
		Raw:         d.Body,
		HTML:        d.HTML,
		Title:       d.Title,
		Cover:       d.Cover,
		Categories:  categories,
		Tags:        tags,
		PublishTime: d.PublishTime,
	}
	if d.Pinned {
		pinned := true
		patch.Pinned = &pinned
	}
	return patch
}

func (s *Syncer) report(res Result) {
	attrs := []any{
		slog.Int("index", res.Index),
		slog.String("path", res.Path),
		slog.String("status", string(res.Status)),
	}
	if res.Slug != "" {
		attrs = append(attrs, slog.String("slug", res.Slug))
	}
	if res.Reason != "" {
		attrs = append(attrs, slog.String("reason", res.Reason))
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("error", res.Err.Error()))
	}

	switch res.Status {
	case StatusFailed:
		s.logger.Error("sync: document failed", attrs...)
	case StatusSkipped:
		s.logger.Warn("sync: document skipped", attrs...)
	default:
		attrs = append(attrs, slog.Bool("published", res.Published))
		s.logger.Info("sync: document "+string(res.Status), attrs...)
	}

	if s.opts.OnResult != nil {
		s.opts.OnResult(res)
	}
}
