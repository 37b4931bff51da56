// Package halo is a thin client for the Halo 2 console and content REST APIs.
package halo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/starford/halosync/internal/slugify"
)

// API group prefixes.
const (
	ConsolePrefix = "/apis/api.console.halo.run/v1alpha1"
	ContentPrefix = "/apis/content.halo.run/v1alpha1"
)

const (
	pageSize             = 100
	defaultTaxonomyColor = "#ffffff"
	rawTypeMarkdown      = "markdown"
)

// Config configures a Client.
type Config struct {
	// BaseURL is the site root, e.g. https://blog.example.com.
	BaseURL string
	// Token is the personal access token sent as a bearer credential.
	Token string
	// Delay is the minimum spacing between two API calls. Zero disables it.
	Delay time.Duration
	// TaxonomyColor is used for created tags and categories without a color.
	TaxonomyColor string
	// HTTPClient is the base client wrapped with bearer authentication.
	HTTPClient *http.Client
}

// Client talks to one Halo site. Calls are never retried.
type Client struct {
	baseURL string
	color   string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a client for cfg.
func NewClient(cfg Config) *Client {
	ctx := context.Background()
	if cfg.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, cfg.HTTPClient)
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token, TokenType: "Bearer"})

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}

	color := cfg.TaxonomyColor
	if color == "" {
		color = defaultTaxonomyColor
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		color:   color,
		http:    oauth2.NewClient(ctx, src),
		limiter: rate.NewLimiter(limit, 1),
	}
}

// ListTags returns every tag on the site.
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	return listAll[Tag](ctx, c, ContentPrefix+"/tags")
}

// ListCategories returns every category on the site.
func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	return listAll[Category](ctx, c, ContentPrefix+"/categories")
}

// ListPosts returns every post visible in the console listing.
func (c *Client) ListPosts(ctx context.Context) ([]ListedPost, error) {
	return listAll[ListedPost](ctx, c, ConsolePrefix+"/posts")
}

// GetPostMeta fetches the post named slug. A missing post yields an error
// matching apperr.ErrNotFound.
func (c *Client) GetPostMeta(ctx context.Context, slug string) (*Post, error) {
	var post Post
	if err := c.do(ctx, http.MethodGet, postPath(ContentPrefix, slug), nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPostContent fetches the head (latest draft) content of a post.
func (c *Client) GetPostContent(ctx context.Context, slug string) (*Content, error) {
	var content Content
	if err := c.do(ctx, http.MethodGet, postPath(ConsolePrefix, slug)+"/head-content", nil, nil, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// CreateTag creates a tag; the server assigns its metadata name.
func (c *Client) CreateTag(ctx context.Context, in TagInput) (*Tag, error) {
	color := in.Color
	if color == "" {
		color = c.color
	}
	body := Tag{
		APIVersion: ContentAPIVersion,
		Kind:       KindTag,
		Metadata:   Metadata{GenerateName: "tag-"},
		Spec: TagSpec{
			DisplayName: in.Name,
			Slug:        slugify.Make(in.Name),
			Color:       color,
			Cover:       in.Cover,
		},
	}
	var tag Tag
	if err := c.do(ctx, http.MethodPost, ContentPrefix+"/tags", nil, body, &tag); err != nil {
		return nil, err
	}
	return &tag, nil
}

// CreateCategory creates a top-level category; the server assigns its
// metadata name.
func (c *Client) CreateCategory(ctx context.Context, in CategoryInput) (*Category, error) {
	color := in.Color
	if color == "" {
		color = c.color
	}
	body := Category{
		APIVersion: ContentAPIVersion,
		Kind:       KindCategory,
		Metadata:   Metadata{GenerateName: "category-"},
		Spec: CategorySpec{
			DisplayName: in.Name,
			Slug:        slugify.Make(in.Name),
			Description: in.Description,
			Cover:       in.Cover,
			Priority:    len(in.Name),
			Children:    []string{},
			Color:       color,
		},
	}
	var cat Category
	if err := c.do(ctx, http.MethodPost, ContentPrefix+"/categories", nil, body, &cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// CreatePost creates an unpublished post with its content. A taken slug
// yields an error matching apperr.ErrConflict.
func (c *Client) CreatePost(ctx context.Context, req PostRequest) (*Post, error) {
	if req.Post.APIVersion == "" {
		req.Post.APIVersion = ContentAPIVersion
	}
	if req.Post.Kind == "" {
		req.Post.Kind = KindPost
	}
	if req.Content.RawType == "" {
		req.Content.RawType = rawTypeMarkdown
	}
	req.Post.Spec.Publish = false

	var post Post
	if err := c.do(ctx, http.MethodPost, ConsolePrefix+"/posts", nil, req, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost fetches the current metadata and content of slug, overlays the
// non-empty fields of patch and writes both back with two independent PUTs.
// Post fields this package does not model are sent back unchanged. Both PUTs
// are attempted; their errors are joined.
func (c *Client) UpdatePost(ctx context.Context, slug string, patch PostPatch) (*Post, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, postPath(ContentPrefix, slug), nil, nil, &raw); err != nil {
		return nil, fmt.Errorf("halo: update %s: fetch metadata: %w", slug, err)
	}
	var post Post
	if err := json.Unmarshal(raw, &post); err != nil {
		return nil, fmt.Errorf("halo: update %s: decode metadata: %w", slug, err)
	}
	content, err := c.GetPostContent(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("halo: update %s: fetch content: %w", slug, err)
	}

	applyPatch(&post, content, patch)

	body, err := overlayJSON(raw, post, "metadata", "spec")
	if err != nil {
		return nil, fmt.Errorf("halo: update %s: encode metadata: %w", slug, err)
	}

	var (
		updated Post
		errs    []error
	)
	if err := c.do(ctx, http.MethodPut, postPath(ContentPrefix, slug), nil, body, &updated); err != nil {
		errs = append(errs, fmt.Errorf("halo: update %s: put metadata: %w", slug, err))
	}
	if err := c.do(ctx, http.MethodPut, postPath(ConsolePrefix, slug)+"/content", nil, content, nil); err != nil {
		errs = append(errs, fmt.Errorf("halo: update %s: put content: %w", slug, err))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &updated, nil
}

// overlayJSON writes the encoding of v over the object in raw. Keys of raw
// that v does not produce are kept; the objects under nested are merged one
// level down the same way. A raw value that is not an object is replaced.
func overlayJSON(raw json.RawMessage, v any, nested ...string) (json.RawMessage, error) {
	typed, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var base map[string]json.RawMessage
	if err := json.Unmarshal(raw, &base); err != nil || base == nil {
		return typed, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(typed, &fields); err != nil {
		return nil, err
	}
	for k, val := range fields {
		if slices.Contains(nested, k) {
			if val, err = overlayJSON(base[k], val); err != nil {
				return nil, err
			}
		}
		base[k] = val
	}
	return json.Marshal(base)
}

func applyPatch(post *Post, content *Content, patch PostPatch) {
	if patch.Raw != "" {
		content.Raw = patch.Raw
		content.Content = patch.HTML
		if content.RawType == "" {
			content.RawType = rawTypeMarkdown
		}
	}
	if patch.Title != "" {
		post.Spec.Title = patch.Title
	}
	if patch.Cover != "" {
		post.Spec.Cover = patch.Cover
	}
	if len(patch.Categories) > 0 {
		post.Spec.Categories = patch.Categories
	}
	if len(patch.Tags) > 0 {
		post.Spec.Tags = patch.Tags
	}
	if patch.PublishTime != "" {
		pt := patch.PublishTime
		post.Spec.PublishTime = &pt
	}
	if patch.Pinned != nil {
		post.Spec.Pinned = *patch.Pinned
	}
}

// Publish publishes the post named slug.
func (c *Client) Publish(ctx context.Context, slug string) (*Post, error) {
	return c.putAction(ctx, slug, "publish")
}

// Unpublish takes the post named slug offline.
func (c *Client) Unpublish(ctx context.Context, slug string) (*Post, error) {
	return c.putAction(ctx, slug, "unpublish")
}

func (c *Client) putAction(ctx context.Context, slug, action string) (*Post, error) {
	var post Post
	if err := c.do(ctx, http.MethodPut, postPath(ConsolePrefix, slug)+"/"+action, nil, nil, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func listAll[T any](ctx context.Context, c *Client, path string) ([]T, error) {
	var out []T
	for page := 1; ; page++ {
		q := url.Values{}
		q.Set("page", strconv.Itoa(page))
		q.Set("size", strconv.Itoa(pageSize))

		var res listResult[T]
		if err := c.do(ctx, http.MethodGet, path, q, nil, &res); err != nil {
			return nil, err
		}
		out = append(out, res.Items...)
		if !res.HasNext || len(res.Items) == 0 {
			return out, nil
		}
	}
}

func postPath(prefix, slug string) string {
	return prefix + "/posts/" + url.PathEscape(slug)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("halo: wait: %w", err)
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("halo: marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("halo: new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("halo: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("halo: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(method, path, resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("halo: decode %s %s: %w", method, path, err)
	}
	return nil
}
