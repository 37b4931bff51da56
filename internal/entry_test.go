package internal

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/halotest"
	"github.com/starford/halosync/internal/sse"
	"github.com/starford/halosync/internal/testutil"
)

func testConfig(t *testing.T, site, token string) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.HaloSite = site
	cfg.UserToken = token
	published := true
	cfg.Published = &published
	cfg.RequestDelay = 0
	cfg.StatePath = filepath.Join(t.TempDir(), "state.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func TestRun_SyncsAndRecordsHistory(t *testing.T) {
	srv := halotest.NewServer(t, "tok")
	root, _ := testutil.TestPosts(t, map[string]string{
		"posts/a.md": "---\ntitle: A\ntags: [x]\n---\nbody\n",
		"posts/b.md": "---\ntitle: B\n---\nbody\n",
		"notes.txt":  "no front-matter\n",
		"broken.md":  "---\ncover: /c.png\n---\nmissing title\n",
	})
	cfg := testConfig(t, srv.URL, "tok")

	if err := Run(context.Background(), WithConfig(cfg), WithRoot(root)); err != nil {
		t.Fatalf("Run: %v", err)
	}

	for _, slug := range []string{"a", "b"} {
		post, _, ok := srv.Post(slug)
		if !ok {
			t.Fatalf("post %q not created", slug)
		}
		if !post.Spec.Publish {
			t.Errorf("post %q not published", slug)
		}
	}
	if n := srv.Count(http.MethodPost, halo.ContentPrefix+"/tags"); n != 1 {
		t.Errorf("tag creations = %d, want 1", n)
	}

	var out bytes.Buffer
	if err := History(context.Background(), WithConfig(cfg), WithOutput(&out)); err != nil {
		t.Fatalf("History: %v", err)
	}
	text := out.String()
	if !strings.Contains(text, "CREATED") {
		t.Errorf("history missing header: %s", text)
	}
	if !strings.Contains(text, "broken.md") || !strings.Contains(text, "no title") {
		t.Errorf("history missing failure detail: %s", text)
	}
}

func TestRun_TaxonomySeedFailureIsFatal(t *testing.T) {
	srv := halotest.NewServer(t, "tok")
	srv.Fail(http.MethodGet, halo.ContentPrefix+"/tags", http.StatusInternalServerError, "Down", -1)
	root, _ := testutil.TestPosts(t, map[string]string{"a.md": "---\ntitle: A\n---\n"})

	err := Run(context.Background(), WithConfig(testConfig(t, srv.URL, "tok")), WithRoot(root))
	if err == nil {
		t.Fatal("expected error")
	}
	if n := srv.CountPrefix(http.MethodPost, "/apis"); n != 0 {
		t.Errorf("no document should be processed, got %d creations", n)
	}
}

func TestRun_RequiresConfigAndRoot(t *testing.T) {
	if err := Run(context.Background()); err == nil {
		t.Error("missing config should fail")
	}
	cfg := testConfig(t, "http://localhost:1", "tok")
	if err := Run(context.Background(), WithConfig(cfg)); err == nil {
		t.Error("missing root should fail")
	}
	if err := Run(context.Background(), WithConfig(cfg), WithRoot(filepath.Join(t.TempDir(), "nope"))); err == nil {
		t.Error("missing root dir should fail")
	}
}

func TestHistory_RequiresStatePath(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1", "tok")
	cfg.StatePath = ""
	if err := History(context.Background(), WithConfig(cfg)); err == nil {
		t.Error("expected error without statePath")
	}
}

func TestStatusRouter(t *testing.T) {
	cfg := testConfig(t, "http://localhost:1", "tok")
	broker := sse.NewBroker(0)
	defer broker.Close()

	r := newStatusRouter(cfg, nil, broker)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("runs without ledger = %d, want 404", w.Code)
	}

	db := testutil.TestLedger(t)
	r = newStatusRouter(cfg, db, broker)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	if w.Code != http.StatusOK {
		t.Errorf("runs with ledger = %d, want 200", w.Code)
	}
}
