package internal

import (
	"context"
	"log/slog"
	"os"

	"github.com/starford/halosync/internal/mcpserver"
)

// ServeMCP exposes the sync tools over MCP on stdin/stdout. Logs go to
// stderr since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	logger := newLogger(app.config, os.Stderr)

	p, err := newPipeline(app, logger, nil)
	if err != nil {
		return err
	}
	defer p.Close()

	deps := mcpserver.Deps{
		Store:    p.store,
		Preparer: p.syncer,
		Sync:     p.batch,
		Posts:    p.client,
	}
	if p.ledger != nil {
		deps.Runs = p.ledger
	}

	logger.Info("Serving MCP on stdio", slog.String("root", app.root))
	return mcpserver.New(deps).ServeStdio(ctx)
}
