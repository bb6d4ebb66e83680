package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/nocmatch/internal/matcher"
	"github.com/Aman-CERP/nocmatch/internal/output"
)

func newIndexCmd(root *rootOptions) *cobra.Command {
	var (
		force      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Build the matching indexes from the taxonomy file",
		Long: `Load the taxonomy JSONL file, embed every entry, and persist the vector
store and HNSW artifact under data_dir.

Entries whose duties text and model are unchanged reuse their stored
embeddings. Use --force to re-embed everything.`,
		Example: `  nocmatch index
  nocmatch index --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, root, force, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Re-embed every entry instead of reusing stored vectors")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output rebuild stats as JSON")

	return cmd
}

func runIndex(cmd *cobra.Command, root *rootOptions, force, jsonOutput bool) error {
	cfg, err := root.loadConfig()
	if err != nil {
		return err
	}

	svc, err := matcher.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Shutdown() }()

	if _, err := svc.RebuildIndex(cmd.Context(), force); err != nil {
		return err
	}

	st := svc.Stats()
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	out := output.New(cmd.OutOrStdout())
	info := st.LastRebuild
	if info == nil {
		return nil
	}
	out.Successf("Indexed %d occupations in %s", info.Entries, info.Duration.Round(time.Millisecond))
	out.Statusf("", "Embedded: %d  Reused: %d  Titles embedded: %d  Pruned: %d  Skipped: %d",
		info.Embedded, info.Reused, info.TitlesEmbedded, info.Pruned, info.Skipped)
	if st.Snapshot != nil {
		out.Statusf("", "Backend: %s  Model: %s  Dimensions: %d",
			st.Snapshot.Backend, st.Snapshot.Model, st.Snapshot.Dimensions)
	}
	for _, w := range info.Warnings {
		out.Warning(w)
	}
	return nil
}
