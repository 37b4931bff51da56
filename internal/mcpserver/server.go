// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes halosync tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/halosync/internal/apperr"
	"github.com/starford/halosync/internal/halo"
	"github.com/starford/halosync/internal/ledger"
	"github.com/starford/halosync/internal/storage"
	"github.com/starford/halosync/internal/syncer"
)

const formatURI = "halosync://post-format"

// Preparer derives a post from a local file without calling the remote.
type Preparer interface {
	Prepare(path string) (*syncer.Draft, error)
}

// SyncFunc runs one batch over the given paths.
type SyncFunc func(ctx context.Context, paths []string) (*syncer.Report, error)

// RunStore is the read side of the ledger.
type RunStore interface {
	RecentRuns(limit int) ([]ledger.Run, error)
}

// Posts is the part of the Halo client used for remote post inspection.
type Posts interface {
	ListPosts(ctx context.Context) ([]halo.ListedPost, error)
	Unpublish(ctx context.Context, slug string) (*halo.Post, error)
}

// Deps are the collaborators the tools call. Runs may be nil when the
// ledger is disabled.
type Deps struct {
	Store    storage.Provider
	Preparer Preparer
	Sync     SyncFunc
	Posts    Posts
	Runs     RunStore
}

// Server wraps the MCP server with halosync tools.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
}

// New creates a new MCP server with all halosync tools registered.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	s.mcp = server.NewMCPServer(
		"halosync",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List the files under the posts folder."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("preview_document",
		mcp.WithDescription("Show how a file would be uploaded: slug, taxonomy names, "+
			"publish time and rendered HTML. Does not contact the blog."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the post (e.g. 2024/hello.md)")),
	), s.previewDocument)

	s.mcp.AddTool(mcp.NewTool("sync_document",
		mcp.WithDescription("Create or update one post on the blog from a local file. "+
			"Read the format first via get_post_format or the "+formatURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the post")),
	), s.syncDocument)

	s.mcp.AddTool(mcp.NewTool("list_remote_posts",
		mcp.WithDescription("List the posts that exist on the blog, with their publish state."),
	), s.listRemotePosts)

	s.mcp.AddTool(mcp.NewTool("unpublish_post",
		mcp.WithDescription("Take a post off the public site. The post and its content are kept."),
		mcp.WithString("slug", mcp.Required(), mcp.Description("Post slug (metadata name)")),
	), s.unpublishPost)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent sync runs with their outcome counts."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the front-matter format posts must follow."),
	), s.getPostFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Post Format",
			mcp.WithResourceDescription("Front-matter format understood by halosync."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio serves the MCP protocol on stdin/stdout until ctx is done
// or stdin closes.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) listDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := req.GetString("folder", "")

	metas, err := s.deps.Store.List(folder)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var paths []string
	for _, m := range metas {
		paths = append(paths, m.Path)
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) previewDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.deps.Preparer.Prepare(path)
	if errors.Is(err, apperr.ErrNoFrontMatter) {
		return mcp.NewToolResultError(fmt.Sprintf("%s has no front-matter and would be skipped", path)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(d)
}

type syncOutcome struct {
	RunID     string `json:"runId"`
	Path      string `json:"path"`
	Slug      string `json:"slug,omitempty"`
	Status    string `json:"status"`
	Published bool   `json:"published"`
	Reason    string `json:"reason,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) syncDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.deps.Store.Read(path); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", path)), nil
	}

	report, err := s.deps.Sync(ctx, []string{path})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(report.Results) == 0 {
		return mcp.NewToolResultError("sync produced no result"), nil
	}

	res := report.Results[0]
	out := syncOutcome{
		RunID:     report.RunID,
		Path:      res.Path,
		Slug:      res.Slug,
		Status:    string(res.Status),
		Published: res.Published,
		Reason:    res.Reason,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	result, err := jsonResult(out)
	if result != nil && res.Status == syncer.StatusFailed {
		result.IsError = true
	}
	return result, err
}

type remotePost struct {
	Slug      string `json:"slug"`
	Title     string `json:"title"`
	Published bool   `json:"published"`
	Pinned    bool   `json:"pinned,omitempty"`
}

func (s *Server) listRemotePosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	listed, err := s.deps.Posts.ListPosts(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := make([]remotePost, 0, len(listed))
	for _, lp := range listed {
		out = append(out, remotePost{
			Slug:      lp.Post.Metadata.Name,
			Title:     lp.Post.Spec.Title,
			Published: lp.Post.Spec.Publish,
			Pinned:    lp.Post.Spec.Pinned,
		})
	}
	return jsonResult(out)
}

func (s *Server) unpublishPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slug, err := req.RequireString("slug")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.deps.Posts.Unpublish(ctx, slug); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError(fmt.Sprintf("no post with slug %s", slug)), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("unpublished: %s", slug)), nil
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.deps.Runs == nil {
		return mcp.NewToolResultError("run ledger disabled: set statePath in the config"), nil
	}
	limit := req.GetInt("limit", 10)
	runs, err := s.deps.Runs.RecentRuns(limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no runs recorded"), nil
	}
	return jsonResult(runs)
}

func (s *Server) getPostFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormatContract), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PostFormatContract,
		},
	}, nil
}
