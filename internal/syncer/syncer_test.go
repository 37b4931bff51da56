package syncer_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/halosync/internal/apperr"
	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/halotest"
	"github.com/starford/halosync/internal/render"
	"github.com/starford/halosync/internal/syncer"
	"github.com/starford/halosync/internal/testutil"
)

const token = "t0k3n"

type fixture struct {
	srv *halotest.Server
	dir string
	s   *syncer.Syncer
	tax *syncer.Taxonomy
}

func newFixture(t *testing.T, files map[string]string, opts syncer.Options) *fixture {
	t.Helper()
	srv := halotest.NewServer(t, token)
	dir, store := testutil.TestPosts(t, files)
	client := halo.NewClient(halo.Config{BaseURL: srv.URL, Token: token})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &fixture{
		srv: srv,
		dir: dir,
		s:   syncer.New(client, render.New(render.Options{}), store, opts, logger),
	}
}

func (f *fixture) run(t *testing.T) *syncer.Report {
	t.Helper()
	tax, err := f.s.SeedTaxonomy(context.Background())
	require.NoError(t, err)
	f.tax = tax
	report, err := f.s.Run(context.Background(), tax)
	require.NoError(t, err)
	return report
}

func TestRun_EndToEndCreateAndPublish(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.md": "---\ntitle: A\ntags: [x]\ncategories: []\n---\n# A\n\nbody\n",
	}, syncer.Options{Publish: true})

	report := f.run(t)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, syncer.StatusCreated, res.Status)
	assert.Equal(t, "a", res.Slug)
	assert.True(t, res.Published)
	assert.NotEmpty(t, report.RunID)

	assert.Equal(t, 1, f.srv.Count(http.MethodPost, halo.ContentPrefix+"/tags"))
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, halo.ContentPrefix+"/categories"))
	assert.Equal(t, 1, f.srv.Count(http.MethodGet, halo.ContentPrefix+"/posts/a"))
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, halo.ConsolePrefix+"/posts"))
	assert.Equal(t, 1, f.srv.Count(http.MethodPut, halo.ConsolePrefix+"/posts/a/publish"))

	tags := f.srv.Tags()
	require.Len(t, tags, 1)
	assert.Equal(t, "x", tags[0].Spec.DisplayName)
	assert.Equal(t, tags[0].Metadata.Name, f.tax.Tags["x"])

	post, content, ok := f.srv.Post("a")
	require.True(t, ok)
	assert.Equal(t, []string{tags[0].Metadata.Name}, post.Spec.Tags)
	assert.True(t, post.Spec.Publish)
	assert.Equal(t, "markdown", content.RawType)
	assert.Contains(t, content.Content, `<h1 id="a">A</h1>`)
	assert.NotContains(t, content.Raw, "title: A")

	// categories must go over the wire as an empty array, not null
	var sent struct {
		Post struct {
			Spec struct {
				Categories json.RawMessage `json:"categories"`
			} `json:"spec"`
		} `json:"post"`
	}
	for _, c := range f.srv.Calls() {
		if c.Method == http.MethodPost && c.Path == halo.ConsolePrefix+"/posts" {
			require.NoError(t, json.Unmarshal(c.Body, &sent))
		}
	}
	assert.JSONEq(t, `[]`, string(sent.Post.Spec.Categories))
}

func TestRun_NoFrontMatterMakesNoCalls(t *testing.T) {
	f := newFixture(t, map[string]string{
		"readme.txt": "just some notes\n",
		"draft.md":   "# Draft\n",
	}, syncer.Options{Publish: true})

	tax, err := f.s.SeedTaxonomy(context.Background())
	require.NoError(t, err)
	before := len(f.srv.Calls())

	report, err := f.s.Run(context.Background(), tax)
	require.NoError(t, err)
	assert.Len(t, f.srv.Calls(), before)
	assert.Equal(t, syncer.Counts{Skipped: 2}, report.Counts())
	for _, r := range report.Results {
		assert.Equal(t, "no front-matter", r.Reason)
	}
}

func TestRun_TagCreatedOncePerRun(t *testing.T) {
	f := newFixture(t, map[string]string{
		"one.md": "---\ntitle: One\ntags: [go, shared]\ncategories: [Notes]\n---\nbody\n",
		"two.md": "---\ntitle: Two\ntags: [shared]\ncategories: [Notes]\n---\nbody\n",
	}, syncer.Options{})
	f.srv.SeedTag("go")

	report := f.run(t)
	assert.Equal(t, syncer.Counts{Created: 2}, report.Counts())
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, halo.ContentPrefix+"/tags"))
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, halo.ContentPrefix+"/categories"))
	assert.Len(t, f.tax.Tags, 2)

	one, _, _ := f.srv.Post("one")
	two, _, _ := f.srv.Post("two")
	assert.Equal(t, one.Spec.Tags[1], two.Spec.Tags[0])
	assert.Equal(t, one.Spec.Categories, two.Spec.Categories)
	assert.False(t, one.Spec.Publish)
}

func TestRun_ExistingPostIsUpdated(t *testing.T) {
	f := newFixture(t, map[string]string{
		"post.md": "---\ntitle: New Title\nabbrlink: my-post\nsticky: true\ndate: 2024-01-22T05:12:33.716773\n---\nnew body\n",
	}, syncer.Options{})
	f.srv.SeedPost(halo.Post{
		Metadata: halo.Metadata{Name: "my-post"},
		Spec:     halo.PostSpec{Title: "Old", Slug: "my-post", Cover: "/keep.png"},
	}, halo.Content{Raw: "old", Content: "<p>old</p>", RawType: "markdown"})

	report := f.run(t)
	require.Len(t, report.Results, 1)
	res := report.Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, syncer.StatusUpdated, res.Status)
	assert.Equal(t, "my-post", res.Slug)

	post, content, _ := f.srv.Post("my-post")
	assert.Equal(t, "New Title", post.Spec.Title)
	assert.Equal(t, "/keep.png", post.Spec.Cover)
	assert.True(t, post.Spec.Pinned)
	require.NotNil(t, post.Spec.PublishTime)
	assert.Equal(t, "2024-01-22T05:12:33.716773000Z", *post.Spec.PublishTime)
	assert.Contains(t, content.Raw, "new body")
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, halo.ConsolePrefix+"/posts"))
}

func TestRun_CheckErrorTakesUpdatePath(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.md": "---\ntitle: A\n---\nnew body\n",
	}, syncer.Options{})
	f.srv.SeedPost(halo.Post{
		Metadata: halo.Metadata{Name: "a"},
		Spec:     halo.PostSpec{Title: "Old", Slug: "a"},
	}, halo.Content{Raw: "old", Content: "<p>old</p>", RawType: "markdown"})
	f.srv.Fail(http.MethodGet, halo.ContentPrefix+"/posts/a", http.StatusInternalServerError, "Flaky", 1)

	res := f.run(t).Results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, syncer.StatusUpdated, res.Status)
	assert.Equal(t, 2, f.srv.Count(http.MethodGet, halo.ContentPrefix+"/posts/a"))
	assert.Equal(t, 1, f.srv.Count(http.MethodPut, halo.ContentPrefix+"/posts/a"))
	assert.Equal(t, 0, f.srv.Count(http.MethodPost, halo.ConsolePrefix+"/posts"))

	post, content, _ := f.srv.Post("a")
	assert.Equal(t, "A", post.Spec.Title)
	assert.Contains(t, content.Raw, "new body")
}

func TestRun_DuplicateSlugIsSkipped(t *testing.T) {
	f := newFixture(t, map[string]string{
		"dup.md": "---\ntitle: Dup\n---\nbody\n",
	}, syncer.Options{Publish: true})
	f.srv.Fail(http.MethodPost, halo.ConsolePrefix+"/posts", http.StatusBadRequest, "Duplicate Name", 1)

	report := f.run(t)
	res := report.Results[0]
	assert.Equal(t, syncer.StatusSkipped, res.Status)
	assert.Equal(t, "duplicate slug", res.Reason)
	assert.False(t, res.Published)
	assert.Equal(t, 1, f.srv.Count(http.MethodPost, halo.ConsolePrefix+"/posts"))
	assert.Equal(t, 0, f.srv.CountPrefix(http.MethodPut, halo.ConsolePrefix))
}

func TestRun_FailureDoesNotStopBatch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"a.md": "---\ntitle: A\n---\nbody a\n",
		"b.md": "---\ntitle: B\n---\nbody b\n",
		"c.md": "---\ntitle: C\n---\nbody c\n",
		"d.md": "---\ncover: /x.png\n---\nno title\n",
	}, syncer.Options{})
	f.srv.Fail(http.MethodGet, halo.ContentPrefix+"/posts/b", http.StatusInternalServerError, "Boom", -1)

	report := f.run(t)
	require.Len(t, report.Results, 4)
	assert.Equal(t, syncer.Counts{Created: 2, Failed: 2}, report.Counts())
	assert.Equal(t, 4, report.Counts().Total())

	assert.Equal(t, "b.md", report.Results[1].Path)
	assert.Equal(t, syncer.StatusFailed, report.Results[1].Status)
	assert.ErrorContains(t, report.Results[1].Err, "Boom")
	assert.Equal(t, "updated", report.Results[1].Action)
	assert.Equal(t, syncer.StatusCreated, report.Results[2].Status)
	assert.ErrorContains(t, report.Results[3].Err, "no title")

	failures := report.Failures()
	require.Len(t, failures, 2)
	assert.Equal(t, 1, failures[0].Index)
}

func TestRun_UnreadableFilesFailAlone(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	f := newFixture(t, map[string]string{
		"a.md":        "---\ntitle: A\n---\nbody a\n",
		"b.md":        "---\ntitle: B\n---\nbody b\n",
		"c.md":        "---\ntitle: C\n---\nbody c\n",
		"sealed/d.md": "---\ntitle: D\n---\nbody d\n",
	}, syncer.Options{})
	require.NoError(t, os.Chmod(filepath.Join(f.dir, "b.md"), 0))
	sealed := filepath.Join(f.dir, "sealed")
	require.NoError(t, os.Chmod(sealed, 0))
	t.Cleanup(func() { _ = os.Chmod(sealed, 0o755) })

	report := f.run(t)
	require.Len(t, report.Results, 4)
	assert.Equal(t, syncer.Counts{Created: 2, Failed: 2}, report.Counts())

	assert.Equal(t, "b.md", report.Results[1].Path)
	assert.Equal(t, syncer.StatusFailed, report.Results[1].Status)
	assert.ErrorIs(t, report.Results[1].Err, os.ErrPermission)
	assert.Equal(t, "sealed", report.Results[3].Path)
	assert.Equal(t, syncer.StatusFailed, report.Results[3].Status)

	for _, slug := range []string{"a", "c"} {
		_, _, ok := f.srv.Post(slug)
		assert.True(t, ok, slug)
	}
	assert.Equal(t, 0, f.srv.Count(http.MethodGet, halo.ContentPrefix+"/posts/b"))
}

func TestRun_PublishFailureKeepsAction(t *testing.T) {
	f := newFixture(t, map[string]string{
		"p.md": "---\ntitle: P\n---\nbody\n",
	}, syncer.Options{Publish: true})
	f.srv.Fail(http.MethodPut, halo.ConsolePrefix+"/posts/p/publish", http.StatusInternalServerError, "Nope", 1)

	res := f.run(t).Results[0]
	assert.Equal(t, syncer.StatusFailed, res.Status)
	assert.Equal(t, "created", res.Action)
	assert.False(t, res.Published)
	assert.ErrorContains(t, res.Err, "publish")
}

func TestRun_OnResultHook(t *testing.T) {
	var seen []syncer.Result
	f := newFixture(t, map[string]string{
		"a.md":     "---\ntitle: A\n---\nbody\n",
		"skip.txt": "plain\n",
	}, syncer.Options{OnResult: func(r syncer.Result) { seen = append(seen, r) }})

	report := f.run(t)
	require.Len(t, seen, 2)
	assert.Equal(t, report.Results, seen)
	assert.NotEmpty(t, seen[0].Checksum)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t, map[string]string{"a.md": "---\ntitle: A\n---\n"}, syncer.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.s.Run(ctx, nil)
	require.Error(t, err)
	require.NotNil(t, report)
	assert.Empty(t, report.Results)
	assert.Empty(t, f.srv.Calls())
}

func TestSeedTaxonomy(t *testing.T) {
	f := newFixture(t, nil, syncer.Options{})
	tag := f.srv.SeedTag("Go")
	cat := f.srv.SeedCategory("Tech")

	tax, err := f.s.SeedTaxonomy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Go": tag.Metadata.Name}, tax.Tags)
	assert.Equal(t, map[string]string{"Tech": cat.Metadata.Name}, tax.Categories)
}

func TestSeedTaxonomy_Failure(t *testing.T) {
	f := newFixture(t, nil, syncer.Options{})
	f.srv.Fail(http.MethodGet, halo.ContentPrefix+"/categories", http.StatusBadGateway, "Down", 1)

	_, err := f.s.SeedTaxonomy(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list categories")
}

func TestPrepare_NoNetwork(t *testing.T) {
	f := newFixture(t, map[string]string{
		"hello.md": "---\ntitle: Hello World\nlayout: post\ntags: [go]\nsticky:\ndate: 2024-01-22T05:12:33.716773\ncomments: false\n---\n# Hi\n",
		"plain.md": "# no block\n",
	}, syncer.Options{})

	d, err := f.s.Prepare("hello.md")
	require.NoError(t, err)
	assert.Equal(t, "hello-world", d.Slug)
	assert.Equal(t, []string{"go"}, d.Tags)
	assert.True(t, d.Pinned)
	assert.Equal(t, "2024-01-22T05:12:33.716773000Z", d.PublishTime)
	assert.Contains(t, d.HTML, `<h1 id="hi">Hi</h1>`)
	assert.NotEmpty(t, d.Checksum)
	assert.Equal(t, []string{"layout", "comments"}, d.Ignored)

	_, err = f.s.Prepare("plain.md")
	assert.ErrorIs(t, err, apperr.ErrNoFrontMatter)
	assert.Empty(t, f.srv.Calls())
}

func TestSyncPaths_OnBegin(t *testing.T) {
	var begun *syncer.Report
	f := newFixture(t, map[string]string{
		"a.md": "---\ntitle: A\n---\n",
		"b.md": "---\ntitle: B\n---\n",
	}, syncer.Options{OnBegin: func(r *syncer.Report) { begun = r }})

	report, err := f.s.SyncPaths(context.Background(), nil, []string{"b.md"})
	require.NoError(t, err)
	require.NotNil(t, begun)
	assert.Equal(t, report.RunID, begun.RunID)
	require.Len(t, report.Results, 1)
	assert.Equal(t, "b", report.Results[0].Slug)
	assert.Equal(t, report.RunID, report.Results[0].RunID)
	_, _, ok := f.srv.Post("a")
	assert.False(t, ok)
}
