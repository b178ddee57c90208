package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/handoff"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one indexed handoff in full",
	Long: `Show prints the index entry for a session followed by the body of its
handoff markdown file.`,
	Args: cobra.ExactArgs(1),
	RunE: runShow,
}

func runShow(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	idx, err := loadIndex(cfg.Index.IndexPath)
	if err != nil {
		return err
	}

	rec, err := idx.Get(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Session:   %s\n", rec.SessionID)
	fmt.Printf("Date:      %s\n", rec.Date)
	fmt.Printf("Headline:  %s\n", rec.Headline)
	fmt.Printf("Projects:  %s\n", strings.Join(rec.Projects, ", "))
	fmt.Printf("Keywords:  %s\n", strings.Join(rec.Keywords, ", "))
	fmt.Printf("Substance: %d\n", rec.Substance)
	fmt.Printf("Duration:  %dm\n", rec.DurationMinutes)

	path := filepath.Join(cfg.Index.HandoffsDir, fmt.Sprintf("%s-%s.md", rec.Date, rec.SessionID))
	doc, err := handoff.Parse(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "\nhandoff file unavailable: %v\n", err)
		return nil
	}

	fmt.Println()
	fmt.Println(doc.RawBody)
	return nil
}

func init() {
	rootCmd.AddCommand(showCmd)
}
