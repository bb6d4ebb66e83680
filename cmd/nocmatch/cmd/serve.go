package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/nocmatch/internal/config"
	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/internal/mcp"
	"github.com/Aman-CERP/nocmatch/internal/watcher"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server over stdio",
		Long: `Start the MCP server on stdin/stdout.

Tools: match_by_title, match_by_query, rebuild_index, matcher_status.

Stdout carries JSON-RPC only; logs go to ~/.nocmatch/logs/nocmatch.log.
With --watch, edits to the taxonomy file trigger an index rebuild while
the previous index keeps serving.`,
		Example: `  nocmatch serve
  nocmatch serve --watch`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), root, watch)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "Rebuild the index when the taxonomy file changes")

	return cmd
}

func runServe(ctx context.Context, root *rootOptions, watch bool) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	// The CLI logger may mirror to stderr under --debug; swap it for the
	// file-only MCP logger.
	root.stopLogging()
	level := cfg.Server.LogLevel
	if root.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	svc, err := matcher.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Shutdown() }()

	// A missing taxonomy leaves the server up but not ready; matcher_status
	// reports it, and rebuild_index or the watcher can recover.
	if err := svc.Init(ctx); err != nil {
		slog.Error("initial index build failed",
			slog.String("taxonomy", cfg.Taxonomy.Path),
			slog.String("error", err.Error()))
	}

	srv, err := mcp.NewServer(svc)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if watch {
		if err := startWatcher(gctx, g, cfg, svc); err != nil {
			return err
		}
	}
	g.Go(func() error {
		// The client closing stdin ends the session and the watcher with it.
		defer cancel()
		return srv.Serve(gctx)
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// startWatcher runs the taxonomy watcher and reloader on g. They stop when
// ctx is cancelled.
func startWatcher(ctx context.Context, g *errgroup.Group, cfg *config.Config, svc *matcher.Service) error {
	w, err := watcher.New([]string{cfg.Taxonomy.Path}, watcher.Options{Debounce: cfg.WatchDebounce()})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	reloader := watcher.NewReloader(svc)

	slog.Info("watching taxonomy",
		slog.String("path", cfg.Taxonomy.Path),
		slog.Bool("polling", w.Polling()))

	g.Go(func() error {
		err := w.Start(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		err := reloader.Run(ctx, w.Events())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case err := <-w.Errors():
				slog.Warn("watcher error", slog.String("error", err.Error()))
			}
		}
	})
	return nil
}
