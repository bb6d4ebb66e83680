package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/internal/output"
	"github.com/Aman-CERP/nocmatch/internal/search"
)

// matchOptions holds CLI flags for title and duties.
type matchOptions struct {
	topK   int
	format string
}

type matchFunc func(svc *matcher.Service, ctx context.Context, text string, topK int) ([]search.MatchResult, error)

func newTitleCmd(root *rootOptions) *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "title <job title>",
		Short: "Classify a job title",
		Long: `Classify a job title against the NOC taxonomy.

A five-digit NOC code returns that occupation directly. A title or alias
that matches exactly returns a single result with score 1.0. Anything else
is ranked by fused fuzzy and semantic similarity.`,
		Example: `  nocmatch title "software engineer"
  nocmatch title 21234
  nocmatch title "RN" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, root, strings.Join(args, " "), opts, (*matcher.Service).MatchByTitle)
		},
	}
	addMatchFlags(cmd, &opts)
	return cmd
}

func newDutiesCmd(root *rootOptions) *cobra.Command {
	var opts matchOptions

	cmd := &cobra.Command{
		Use:   "duties <description>",
		Short: "Find occupations matching a duties description",
		Example: `  nocmatch duties "operate heavy trucks to transport goods"
  nocmatch duties "provide patient care" --top-k 10`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, root, strings.Join(args, " "), opts, (*matcher.Service).MatchByQuery)
		},
	}
	addMatchFlags(cmd, &opts)
	return cmd
}

func addMatchFlags(cmd *cobra.Command, opts *matchOptions) {
	cmd.Flags().IntVarP(&opts.topK, "top-k", "k", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
}

func runMatch(cmd *cobra.Command, root *rootOptions, text string, opts matchOptions, fn matchFunc) error {
	format, err := output.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	svc, err := root.openService(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Shutdown() }()

	topK := opts.topK
	if !cmd.Flags().Changed("top-k") {
		topK = svc.DefaultTopK()
	}

	slog.Info("match_started", slog.String("command", cmd.Name()), slog.Int("top_k", topK))
	results, err := fn(svc, ctx, text, topK)
	if err != nil {
		return err
	}
	slog.Info("match_complete", slog.String("command", cmd.Name()), slog.Int("results", len(results)))

	return output.New(cmd.OutOrStdout()).Results(text, results, format)
}
