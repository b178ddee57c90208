// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/batch"
	"github.com/pdiddy/recall-engine/internal/extract"
	"github.com/pdiddy/recall-engine/pkg/types"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Scan session logs and index new handoffs",
	Long: `Index scans the sessions directory for Claude Code session logs, extracts
a handoff from each new session through OpenRouter, saves the handoff as
markdown, and updates the search index. Sessions already in the index are
skipped unless --reindex is set.

Requires an OpenRouter API key in .secrets/openrouter-api-key or the
extraction.api_key config value (not needed with --dry-run).`,
	RunE: runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	opts, err := indexOptionsFromFlags(cmd, cfg)
	if err != nil {
		return err
	}

	apiKey := secretDefault("openrouter-api-key", cfg.Extraction.APIKey)
	if !opts.DryRun && apiKey == "" {
		return fmt.Errorf("openrouter-api-key is not set: add .secrets/openrouter-api-key or set extraction.api_key")
	}

	backend, err := extract.NewOpenRouterBackend(cfg.Extraction, apiKey)
	if err != nil {
		return err
	}

	summary, err := batch.Run(context.Background(), backend, cfg, opts, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d session(s) failed indexing", summary.Failed)
	}
	return nil
}

// indexOptionsFromFlags merges batch flags over the configured defaults.
// A flag only overrides its config value when set on the command line.
func indexOptionsFromFlags(cmd *cobra.Command, cfg types.PipelineConfig) (batch.Options, error) {
	opts := batch.Options{
		Concurrency: cfg.Batch.Concurrency,
		Delay:       cfg.Batch.Delay,
	}
	opts.DryRun, _ = cmd.Flags().GetBool("dry-run")
	opts.Reindex, _ = cmd.Flags().GetBool("reindex")
	opts.Max, _ = cmd.Flags().GetInt("max")

	if cmd.Flags().Changed("concurrency") {
		opts.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("delay") {
		opts.Delay, _ = cmd.Flags().GetDuration("delay")
	}

	if opts.Concurrency < 1 || opts.Concurrency > 20 {
		return batch.Options{}, fmt.Errorf("concurrency must be between 1 and 20, got %d", opts.Concurrency)
	}
	if opts.Max < 0 {
		return batch.Options{}, fmt.Errorf("max must not be negative, got %d", opts.Max)
	}
	if opts.Delay < 0 {
		return batch.Options{}, fmt.Errorf("delay must not be negative, got %s", opts.Delay)
	}
	return opts, nil
}

func init() {
	indexCmd.Flags().Bool("dry-run", false, "report what would be indexed without calling the API")
	indexCmd.Flags().Bool("reindex", false, "process sessions even when already indexed")
	indexCmd.Flags().Int("max", 0, "maximum sessions to process (0 = no cap)")
	indexCmd.Flags().Int("concurrency", 4, "parallel sessions, 1-20 (default from config)")
	indexCmd.Flags().Duration("delay", 0, "minimum spacing between API calls (default from config)")

	rootCmd.AddCommand(indexCmd)
}
