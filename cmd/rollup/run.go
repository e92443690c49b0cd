package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/h0rv/rollup/internal/auth"
	"github.com/h0rv/rollup/internal/config"
	"github.com/h0rv/rollup/internal/domain"
	"github.com/h0rv/rollup/internal/fetch"
	"github.com/h0rv/rollup/internal/gh"
	"github.com/h0rv/rollup/internal/logger"
	"github.com/h0rv/rollup/internal/query"
	"github.com/h0rv/rollup/internal/report"
	"github.com/h0rv/rollup/internal/store"
	"github.com/h0rv/rollup/internal/tui"
	"github.com/h0rv/rollup/internal/update"
	"github.com/natefinch/atomic"
	"github.com/spf13/cobra"
)

// pipeline holds the wired collaborators for one command invocation.
type pipeline struct {
	cfg    *config.Config
	log    logger.Logger
	client *gh.Client
	stats  *fetch.Stats
	orch   *fetch.Orchestrator
	parser *query.Parser
	engine *update.Engine

	// Fetch custom fields for the browse grouping heuristic
	groupHeuristic bool
}

func newPipeline(ctx context.Context, cfg *config.Config, logOut io.Writer) (*pipeline, error) {
	log, err := logger.New(
		logger.WithLevel(cfg.Log.Level),
		logger.WithFormat(cfg.Log.Format),
		logger.WithOutput(logOut),
	)
	if err != nil {
		return nil, err
	}

	token, err := auth.GetToken(cfg.GitHub.Token)
	if err != nil {
		return nil, err
	}

	client := gh.New(auth.TokenSource(token),
		gh.WithEndpoint(cfg.GitHub.Endpoint),
		gh.WithRateLimit(cfg.GitHub.RequestsPerSecond, cfg.GitHub.Burst),
		gh.WithLogger(log),
	)

	chain, err := cfg.Update.Chain()
	if err != nil {
		return nil, err
	}

	stats := fetch.NewStats()
	return &pipeline{
		cfg:    cfg,
		log:    log,
		client: client,
		stats:  stats,
		orch: fetch.New(client,
			fetch.WithBatchSize(cfg.Fetch.BatchSize),
			fetch.WithStats(stats),
			fetch.WithLogger(log),
		),
		parser: query.NewParser(client.ActorFunc(ctx), nil),
		engine: update.NewEngine(chain, nil),
	}, nil
}

// build lists items, applies the saved view and filter query, and resolves
// every item's updates. It starts a new run for stats and the update cache.
func (p *pipeline) build(ctx context.Context) (*tui.Report, error) {
	runID := p.stats.Reset()
	p.engine.Reset()
	log := p.log.WithFields("run", runID)
	rc := p.cfg.Report

	kind := domain.KindIssue
	if rc.Kind == "discussion" {
		kind = domain.KindDiscussion
	}
	items, err := p.client.ListItems(ctx, gh.ListParams{Search: rc.Search, Kind: kind, Limit: rc.MaxItems})
	if err != nil {
		return nil, err
	}
	log.Info("Listed items", "kind", string(kind), "count", len(items))

	list := store.New(items, p.orch, store.WithLogger(log))
	title := "Status report"

	if rc.View != "" {
		owner, project, viewNumber, err := parseViewRef(rc.View)
		if err != nil {
			return nil, err
		}
		view, err := p.client.ProjectViewFilter(ctx, owner, project, viewNumber)
		if err != nil {
			return nil, err
		}
		if err := p.applyQuery(ctx, list, view.Filter); err != nil {
			return nil, fmt.Errorf("view %q: %w", view.Name, err)
		}
		title = fmt.Sprintf("%s: %s", view.Project.Title, view.Name)
	}
	if err := p.applyQuery(ctx, list, rc.Query); err != nil {
		return nil, err
	}

	if (rc.GroupBy == "" && p.groupHeuristic) || needsCustomFields(rc.GroupBy) {
		if err := list.Fetch(ctx, store.FetchParams{CustomFields: true}); err != nil {
			return nil, err
		}
	}

	updates, err := list.Updates(ctx, p.engine, p.cfg.Update.Count, p.cfg.Fetch.CommentPageSize, nil)
	if err != nil {
		return nil, err
	}

	snap := p.stats.Snapshot()
	log.Info("Resolved updates",
		"items", list.Len(),
		"queries", snap.Queries,
		"cost", snap.Cost,
		"remaining", snap.Remaining,
		"throttled", snap.Throttled,
		"batch_size", p.orch.BatchSize(),
		"elapsed", snap.Elapsed.String(),
	)
	return &tui.Report{Title: title, List: list, Updates: updates}, nil
}

func (p *pipeline) applyQuery(ctx context.Context, list *store.ItemList, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	q, err := p.parser.Parse(raw)
	if err != nil {
		return err
	}
	return list.ApplyView(ctx, q)
}

// parseViewRef parses "owner/project/view".
func parseViewRef(ref string) (owner string, project, view int, err error) {
	parts := strings.Split(ref, "/")
	if len(parts) != 3 || parts[0] == "" {
		return "", 0, 0, fmt.Errorf("invalid view %q: expected owner/project/view", ref)
	}
	project, err = strconv.Atoi(parts[1])
	if err != nil || project < 1 {
		return "", 0, 0, fmt.Errorf("invalid project number in view %q", ref)
	}
	view, err = strconv.Atoi(parts[2])
	if err != nil || view < 1 {
		return "", 0, 0, fmt.Errorf("invalid view number in view %q", ref)
	}
	return parts[0], project, view, nil
}

// itemAttributes are grouping fields read from the item itself.
var itemAttributes = map[string]bool{
	"state": true, "is": true, "author": true, "type": true, "kind": true,
	"repo": true, "repository": true, "organization": true, "org": true, "owner": true,
	"label": true, "labels": true, "assignee": true, "assignees": true,
}

// needsCustomFields reports whether grouping by field requires board or
// native fields.
func needsCustomFields(field string) bool {
	return field != "" && !itemAttributes[domain.NormalizeFieldName(field)]
}

func newReportCmd() *cobra.Command {
	var title string
	var width int

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render a markdown status report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			p, err := newPipeline(ctx, cfg, os.Stderr)
			if err != nil {
				return err
			}

			r, err := p.build(ctx)
			if err != nil {
				return err
			}
			if title != "" {
				r.Title = title
			}

			snap := p.stats.Snapshot()
			var buf bytes.Buffer
			err = report.Write(&buf, r.List, r.Updates, report.Options{
				Title:   r.Title,
				GroupBy: cfg.Report.GroupBy,
				Width:   width,
				Now:     time.Now(),
				Stats:   &snap,
			})
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}

			if cfg.Report.Output == "" || cfg.Report.Output == "-" {
				_, err = cmd.OutOrStdout().Write(buf.Bytes())
				return err
			}
			size := buf.Len()
			if err := atomic.WriteFile(cfg.Report.Output, &buf); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			p.log.Info("Wrote report", "path", cfg.Report.Output, "bytes", size)
			return nil
		},
	}

	addSelectionFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	cmd.Flags().StringVar(&title, "title", "", "Report title")
	cmd.Flags().IntVar(&width, "width", 0, "Wrap update text at this width (0 = no wrapping)")
	return cmd
}

func newBrowseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Browse items and their updates in a terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Logs would corrupt the alternate screen
			logFile, err := os.CreateTemp("", "rollup-*.log")
			if err != nil {
				return fmt.Errorf("failed to create log file: %w", err)
			}
			defer logFile.Close()

			ctx := cmd.Context()
			p, err := newPipeline(ctx, cfg, logFile)
			if err != nil {
				return err
			}
			p.groupHeuristic = true

			app := tui.NewAppModel(ctx, p.build, p.parser, cfg.Report.GroupBy)
			prog := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := prog.Run(); err != nil {
				return fmt.Errorf("program error: %w", err)
			}
			return nil
		},
	}

	addSelectionFlags(cmd)
	return cmd
}

func newParseCmd() *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "parse QUERY",
		Short: "Print how a filter query is parsed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parser := query.NewParser(func() (string, error) {
				if actor == "" {
					return "", fmt.Errorf("@me needs --actor")
				}
				return actor, nil
			}, nil)
			q, err := parser.Parse(args[0])
			if err != nil {
				return err
			}
			printQuery(cmd, q)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "", "Login substituted for @me")
	return cmd
}

func printQuery(cmd *cobra.Command, q *query.Query) {
	out := cmd.OutOrStdout()
	for _, tp := range q.TitlePatterns {
		neg := ""
		if tp.Negate {
			neg = "-"
		}
		fmt.Fprintf(out, "title\t%s%s => %s\n", neg, tp.Source, tp.Regexp)
	}
	for _, f := range q.Filters {
		scope := "builtin"
		if !query.IsBuiltinKey(f.Key) {
			scope = "custom"
		}
		fmt.Fprintf(out, "%s\t%s\n", scope, f)
	}
	if keys := q.CustomKeys(); len(keys) > 0 {
		fmt.Fprintf(out, "fetches custom fields: %s\n", strings.Join(keys, ", "))
	}
}
