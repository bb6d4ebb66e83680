// Package cmd provides the CLI commands for nocmatch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nocmatch/internal/config"
	nocerrors "github.com/Aman-CERP/nocmatch/internal/errors"
	"github.com/Aman-CERP/nocmatch/internal/logging"
	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/pkg/version"
)

// rootOptions holds persistent flags shared by every subcommand.
type rootOptions struct {
	debug bool
	dir   string

	loggingCleanup func()
}

// NewRootCmd creates the root command for the nocmatch CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "nocmatch",
		Short: "Classify job titles and duties against the NOC taxonomy",
		Long: `nocmatch maps free-text job titles and duty descriptions to occupations
in the National Occupational Classification (NOC).

Titles resolve through a code shortcut, exact and alias matching, and a
fused lexical and semantic ranking. Duty descriptions are ranked by
embedding similarity with keyword boosts.

Run 'nocmatch serve' to expose the matcher as MCP tools over stdio.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.startLogging()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			opts.stopLogging()
			return nil
		},
	}

	cmd.SetVersionTemplate("nocmatch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.nocmatch/logs/")
	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Directory holding .nocmatch.yaml and relative data paths")

	cmd.AddCommand(newTitleCmd(opts))
	cmd.AddCommand(newDutiesCmd(opts))
	cmd.AddCommand(newIndexCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command, printing coded errors the way the matcher
// reports them.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprint(cmd.ErrOrStderr(), nocerrors.FormatForCLI(err))
	}
	return err
}

// startLogging installs file logging for CLI commands. Only --debug mirrors
// logs to stderr; stdout stays clean for results.
func (o *rootOptions) startLogging() error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if o.debug {
		cfg = logging.DebugConfig()
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// File logging is best effort for CLI commands.
		return nil
	}
	o.loggingCleanup = cleanup
	slog.SetDefault(logger)
	if o.debug {
		slog.Debug("debug logging enabled",
			slog.String("log_file", cfg.FilePath),
			slog.String("version", version.Version))
	}
	return nil
}

func (o *rootOptions) stopLogging() {
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	if info, err := os.Stat(o.dir); err != nil || !info.IsDir() {
		return nil, nocerrors.New(nocerrors.ErrCodeConfigNotFound,
			fmt.Sprintf("project directory %s not found", o.dir), err).
			WithSuggestion("Pass an existing directory with --dir.")
	}
	cfg, err := config.Load(o.dir)
	if err != nil {
		return nil, nocerrors.ConfigError("failed to load configuration", err).
			WithSuggestion("Run 'nocmatch config show' to inspect the merged settings.")
	}
	return cfg, nil
}

// openService loads config and builds a ready matcher. The caller must call
// Shutdown.
func (o *rootOptions) openService(ctx context.Context) (*matcher.Service, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	svc, err := matcher.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := svc.Init(ctx); err != nil {
		_ = svc.Shutdown()
		return nil, err
	}
	return svc, nil
}
