// Package halotest provides an in-memory fake of the Halo REST API for tests.
package halotest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/halosync/internal/halo"
)

// Call is one request received by the fake.
type Call struct {
	Method string
	Path   string
	Body   []byte
}

// Key returns "METHOD path", the form used by Count and Fail.
func (c Call) Key() string { return c.Method + " " + c.Path }

type failure struct {
	status int
	title  string
	times  int // remaining; <0 means always
}

// Server is a Halo API fake backed by maps. All methods are safe for
// concurrent use.
type Server struct {
	*httptest.Server
	Token string

	mu         sync.Mutex
	calls      []Call
	seq        int
	tags       map[string]halo.Tag
	categories map[string]halo.Category
	posts      map[string]halo.Post
	rawPosts   map[string]json.RawMessage
	contents   map[string]halo.Content
	failures   map[string]*failure
}

// NewServer starts a fake that requires token as bearer credential. It is
// closed when the test ends.
func NewServer(t testing.TB, token string) *Server {
	t.Helper()
	s := &Server{
		Token:      token,
		tags:       map[string]halo.Tag{},
		categories: map[string]halo.Category{},
		posts:      map[string]halo.Post{},
		rawPosts:   map[string]json.RawMessage{},
		contents:   map[string]halo.Content{},
		failures:   map[string]*failure{},
	}
	s.Server = httptest.NewServer(s.router())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(bearerAuth(s.Token))
	r.Use(s.injectFailures)

	r.Route(halo.ContentPrefix, func(r chi.Router) {
		r.Get("/tags", s.listTags)
		r.Post("/tags", s.createTag)
		r.Get("/categories", s.listCategories)
		r.Post("/categories", s.createCategory)
		r.Get("/posts/{name}", s.getPost)
		r.Put("/posts/{name}", s.putPost)
	})
	r.Route(halo.ConsolePrefix, func(r chi.Router) {
		r.Get("/posts", s.listPosts)
		r.Post("/posts", s.createPost)
		r.Get("/posts/{name}/head-content", s.getContent)
		r.Put("/posts/{name}/content", s.putContent)
		r.Put("/posts/{name}/publish", s.publish(true))
		r.Put("/posts/{name}/unpublish", s.publish(false))
	})
	return r
}

// SeedTag stores an existing tag and returns it.
func (s *Server) SeedTag(displayName string) halo.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	tag := halo.Tag{
		APIVersion: halo.ContentAPIVersion,
		Kind:       halo.KindTag,
		Metadata:   halo.Metadata{Name: s.nextName("tag-")},
		Spec:       halo.TagSpec{DisplayName: displayName, Slug: strings.ToLower(displayName)},
	}
	s.tags[tag.Metadata.Name] = tag
	return tag
}

// SeedCategory stores an existing category and returns it.
func (s *Server) SeedCategory(displayName string) halo.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	cat := halo.Category{
		APIVersion: halo.ContentAPIVersion,
		Kind:       halo.KindCategory,
		Metadata:   halo.Metadata{Name: s.nextName("category-")},
		Spec:       halo.CategorySpec{DisplayName: displayName, Slug: strings.ToLower(displayName)},
	}
	s.categories[cat.Metadata.Name] = cat
	return cat
}

// SeedPost stores an existing post under post.Metadata.Name.
func (s *Server) SeedPost(post halo.Post, content halo.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if post.Metadata.Version == nil {
		v := int64(1)
		post.Metadata.Version = &v
	}
	s.posts[post.Metadata.Name] = post
	s.contents[post.Metadata.Name] = content
}

// SeedPostJSON stores an existing post given as raw JSON. GET answers with
// raw verbatim, including fields halo.Post does not model, until the post is
// next written.
func (s *Server) SeedPostJSON(t testing.TB, raw string, content halo.Content) halo.Post {
	t.Helper()
	var post halo.Post
	if err := json.Unmarshal([]byte(raw), &post); err != nil {
		t.Fatalf("halotest: seed post: %v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.Metadata.Name] = post
	s.rawPosts[post.Metadata.Name] = json.RawMessage(raw)
	s.contents[post.Metadata.Name] = content
	return post
}

// Fail makes the next times requests matching "METHOD path" answer status
// with a problem-detail title. times < 0 fails every matching request.
func (s *Server) Fail(method, path string, status int, title string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = &failure{status: status, title: title, times: times}
}

// Calls returns every request received so far, in order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many requests matched "METHOD path".
func (s *Server) Count(method, path string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// CountPrefix returns how many requests of method had a path starting with prefix.
func (s *Server) CountPrefix(method, prefix string) int {
	n := 0
	for _, c := range s.Calls() {
		if c.Method == method && strings.HasPrefix(c.Path, prefix) {
			n++
		}
	}
	return n
}

// Post returns the stored post and content named name.
func (s *Server) Post(name string) (halo.Post, halo.Content, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[name]
	return p, s.contents[name], ok
}

// Tags returns the stored tags sorted by metadata name.
func (s *Server) Tags() []halo.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]halo.Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Name < out[j].Metadata.Name })
	return out
}

// Categories returns the stored categories sorted by metadata name.
func (s *Server) Categories() []halo.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]halo.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.Name < out[j].Metadata.Name })
	return out
}

func (s *Server) nextName(prefix string) string {
	s.seq++
	return prefix + strconv.Itoa(s.seq)
}

// --- middleware ---

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))

		s.mu.Lock()
		s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path, Body: body})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != token {
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		if ok {
			if f.times == 0 {
				ok = false
			} else if f.times > 0 {
				f.times--
			}
		}
		s.mu.Unlock()
		if ok {
			writeProblem(w, f.status, f.title, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// --- handlers ---

func (s *Server) listTags(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, s.Tags())
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	writeList(w, r, s.Categories())
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	items := make([]halo.ListedPost, 0, len(s.posts))
	for _, p := range s.posts {
		items = append(items, halo.ListedPost{Post: p})
	}
	s.mu.Unlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Post.Metadata.Name < items[j].Post.Metadata.Name })
	writeList(w, r, items)
}

func (s *Server) createTag(w http.ResponseWriter, r *http.Request) {
	var tag halo.Tag
	if !decode(w, r, &tag) {
		return
	}
	s.mu.Lock()
	tag.Metadata.Name = s.nextName(tag.Metadata.GenerateName)
	s.tags[tag.Metadata.Name] = tag
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, tag)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var cat halo.Category
	if !decode(w, r, &cat) {
		return
	}
	s.mu.Lock()
	cat.Metadata.Name = s.nextName(cat.Metadata.GenerateName)
	s.categories[cat.Metadata.Name] = cat
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, cat)
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req halo.PostRequest
	if !decode(w, r, &req) {
		return
	}
	name := req.Post.Metadata.Name
	s.mu.Lock()
	if _, exists := s.posts[name]; exists {
		s.mu.Unlock()
		writeProblem(w, http.StatusBadRequest, "Duplicate Name", fmt.Sprintf("post %q already exists", name))
		return
	}
	v := int64(1)
	req.Post.Metadata.Version = &v
	s.posts[name] = req.Post
	s.contents[name] = req.Content
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, req.Post)
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	name := urlName(r)
	p, _, ok := s.Post(name)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("post %q not found", name))
		return
	}
	s.mu.Lock()
	raw, seeded := s.rawPosts[name]
	s.mu.Unlock()
	if seeded {
		writeJSON(w, http.StatusOK, raw)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) putPost(w http.ResponseWriter, r *http.Request) {
	name := urlName(r)
	var post halo.Post
	if !decode(w, r, &post) {
		return
	}
	s.mu.Lock()
	cur, ok := s.posts[name]
	if !ok {
		s.mu.Unlock()
		writeProblem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	if cur.Metadata.Version != nil && (post.Metadata.Version == nil || *post.Metadata.Version != *cur.Metadata.Version) {
		s.mu.Unlock()
		writeProblem(w, http.StatusConflict, "Conflict", "version mismatch")
		return
	}
	v := int64(1)
	if cur.Metadata.Version != nil {
		v = *cur.Metadata.Version + 1
	}
	post.Metadata.Version = &v
	s.posts[name] = post
	delete(s.rawPosts, name)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) getContent(w http.ResponseWriter, r *http.Request) {
	name := urlName(r)
	_, c, ok := s.Post(name)
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) putContent(w http.ResponseWriter, r *http.Request) {
	name := urlName(r)
	var c halo.Content
	if !decode(w, r, &c) {
		return
	}
	s.mu.Lock()
	p, ok := s.posts[name]
	if ok {
		s.contents[name] = c
	}
	s.mu.Unlock()
	if !ok {
		writeProblem(w, http.StatusNotFound, "Not Found", "")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) publish(on bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := urlName(r)
		s.mu.Lock()
		p, ok := s.posts[name]
		if ok {
			p.Spec.Publish = on
			s.posts[name] = p
			delete(s.rawPosts, name)
		}
		s.mu.Unlock()
		if !ok {
			writeProblem(w, http.StatusNotFound, "Not Found", "")
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// --- helpers ---

func urlName(r *http.Request) string {
	raw := chi.URLParam(r, "name")
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return false
	}
	return true
}

func writeList[T any](w http.ResponseWriter, r *http.Request, all []T) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("size"))
	items := all
	hasNext := false
	if page > 0 && size > 0 {
		start := min((page-1)*size, len(all))
		end := min(start+size, len(all))
		items = all[start:end]
		hasNext = end < len(all)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"page":    page,
		"size":    size,
		"total":   len(all),
		"items":   items,
		"hasNext": hasNext,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("halotest: json encode failed", slog.String("error", err.Error()))
	}
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	writeJSON(w, status, map[string]any{
		"type":   "about:blank",
		"title":  title,
		"status": status,
		"detail": detail,
	})
}
