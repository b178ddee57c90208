package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/indexstore"
	"github.com/pdiddy/recall-engine/internal/retrieval"
)

var recallCmd = &cobra.Command{
	Use:   "recall [query...]",
	Short: "Search past session handoffs by keyword and recency",
	Long: `Recall searches the handoff index. With a query, sessions are ranked by
keyword and project matches weighted by rarity and recency. Without a
query, the most recent sessions are listed instead.

Sessions graded as having no meaningful work never appear in results.`,
	RunE: runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	idx, err := loadIndex(cfg.Index.IndexPath)
	if err != nil {
		return err
	}

	daysBack := cfg.Retrieval.DaysBack
	if cmd.Flags().Changed("days-back") {
		daysBack, _ = cmd.Flags().GetInt("days-back")
	}
	maxResults := cfg.Retrieval.MaxResults
	if cmd.Flags().Changed("max") {
		maxResults, _ = cmd.Flags().GetInt("max")
	}

	results := retrieval.Retrieve(idx, retrieval.Options{
		Query:    strings.Join(args, " "),
		Now:      time.Now(),
		DaysBack: daysBack,
		Max:      maxResults,
	})

	jsonOutput, _ := cmd.Flags().GetBool("json")
	return formatRecallOutput(results, jsonOutput)
}

// loadIndex loads the index, pointing at rebuild when the file is corrupt.
func loadIndex(path string) (*indexstore.Index, error) {
	idx, err := indexstore.Load(path)
	if errors.Is(err, indexstore.ErrCorruptIndex) {
		return nil, fmt.Errorf("%w: run 'recall-engine rebuild' to regenerate it from the handoff files", err)
	}
	return idx, err
}

func formatRecallOutput(results []retrieval.Result, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}

	fmt.Fprintf(os.Stdout, "%-4s  %-10s  %-10s  %-7s  %-44s  %s\n",
		"Rank", "Session", "Date", "Score", "Headline", "Projects")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 100))

	for i, r := range results {
		headline := r.Headline
		if len(headline) > 44 {
			headline = headline[:41] + "..."
		}
		projects := strings.Join(r.Projects, ",")
		if len(projects) > 20 {
			projects = projects[:17] + "..."
		}
		fmt.Fprintf(os.Stdout, "%-4d  %-10s  %-10s  %-7.2f  %-44s  %s\n",
			i+1, r.SessionID, r.Date, r.Score, headline, projects)
	}

	fmt.Fprintf(os.Stdout, "\n%d results\n", len(results))
	return nil
}

func init() {
	recallCmd.Flags().Int("days-back", 30, "recency window in days (default from config)")
	recallCmd.Flags().Int("max", 5, "maximum results, capped at 5 (default from config)")
	recallCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(recallCmd)
}
