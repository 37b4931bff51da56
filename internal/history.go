package internal

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/starford/halosync/internal/ledger"
)

const defaultHistoryLimit = 10

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
)

// History prints the most recent runs recorded in the ledger, followed by
// the failed documents of each.
func History(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	if cfg.StatePath == "" {
		return fmt.Errorf("history: statePath is not configured")
	}

	db, err := ledger.Open(cfg.StatePath)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	defer db.Close()

	limit := app.historyLimit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	runs, err := db.RecentRuns(limit)
	if err != nil {
		return fmt.Errorf("history: %w", err)
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(app.out, "no runs recorded")
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("RUN", "STARTED", "ROOT", "CREATED", "UPDATED", "SKIPPED", "FAILED").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range runs {
		t.Row(r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Root,
			strconv.Itoa(r.Created), strconv.Itoa(r.Updated), strconv.Itoa(r.Skipped), strconv.Itoa(r.Failed))
	}
	if _, err := fmt.Fprintln(app.out, t.Render()); err != nil {
		return err
	}

	for _, r := range runs {
		if r.Failed == 0 {
			continue
		}
		docs, err := db.RunDocuments(r.ID)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		fmt.Fprintf(app.out, "\nrun %s failures:\n", r.ID)
		for _, d := range docs {
			if d.Status != "failed" {
				continue
			}
			fmt.Fprintf(app.out, "  [%d] %s: %s\n", d.Index, d.Path, failedStyle.Render(d.Error))
		}
	}
	return nil
}
