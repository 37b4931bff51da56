package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/halosync/internal"
	"github.com/starford/halosync/internal/watch"
	pkgconfig "github.com/starford/halosync/pkg/config"
)

const appName = "halosync"

var errUsage = errors.New("expected exactly one argument: the posts directory")

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func rootArg(cmd *cli.Command) (string, error) {
	if cmd.Args().Len() != 1 {
		name := appName
		if cmd.Name != appName {
			name += " " + cmd.Name
		}
		fmt.Fprintf(os.Stderr, "Usage: %s [--config FILE] %s\n", name, cmd.ArgsUsage)
		return "", errUsage
	}
	return cmd.Args().First(), nil
}

func run(ctx context.Context, cmd *cli.Command) error {
	root, err := rootArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithRoot(root)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	root, err := rootArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithRoot(root),
		internal.WithListen(cmd.String("listen")),
		internal.WithDebounce(cmd.Duration("debounce")),
	}
	if err := internal.Watch(ctx, opts...); err != nil {
		return fmt.Errorf("app watch error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	root, err := rootArg(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.ServeMCP(ctx, internal.WithConfig(cfg), internal.WithRoot(root)); err != nil {
		return fmt.Errorf("app mcp error: %w", err)
	}
	return nil
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.History(ctx,
		internal.WithConfig(cfg),
		internal.WithHistoryLimit(int(cmd.Int("limit"))),
		internal.WithOutput(os.Stdout))
}

func main() {
	cmd := &cli.Command{
		Name:      appName,
		Usage:     "Migrate a folder of Markdown posts into a Halo blog",
		ArgsUsage: "<root-dir>",
		Action:    run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.json",
				Value:       "config/config.json",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "watch",
				Usage:     "Sync once, then keep syncing files as they change",
				ArgsUsage: "<root-dir>",
				Action:    runWatch,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address for the live status feed, e.g. :8080",
					},
					&cli.DurationFlag{
						Name:  "debounce",
						Usage: "Quiet period before changed files are synced",
						Value: watch.DefaultDebounce,
					},
				},
			},
			{
				Name:      "mcp",
				Usage:     "Serve preview and sync tools over MCP on stdio",
				ArgsUsage: "<root-dir>",
				Action:    runMCP,
			},
			{
				Name:   "history",
				Usage:  "Print recent sync runs from the ledger",
				Action: runHistory,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Number of runs to show",
						Value: 10,
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
