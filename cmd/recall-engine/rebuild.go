package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/pdiddy/recall-engine/internal/handoff"
	"github.com/pdiddy/recall-engine/internal/indexstore"
)

var rebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the index from handoff markdown files",
	Long: `Rebuild walks the handoffs directory, parses every handoff markdown file,
and regenerates the index from scratch. Use it to recover from a corrupt
index or after editing handoff files by hand.

Files that cannot be parsed or fail validation are skipped with a warning
rather than aborting the rebuild.`,
	RunE: runRebuild,
}

func runRebuild(cmd *cobra.Command, args []string) error {
	cfg := pipelineConfig()

	if _, err := os.Stat(cfg.Index.HandoffsDir); os.IsNotExist(err) {
		return fmt.Errorf("handoffs directory %s does not exist", cfg.Index.HandoffsDir)
	}

	if dir := filepath.Dir(cfg.Index.IndexPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}
	lock := flock.New(cfg.Index.IndexPath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("locking index: %w", err)
	}
	defer lock.Unlock()

	idx := indexstore.New()
	var skipped int
	err := filepath.WalkDir(cfg.Index.HandoffsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}

		doc, err := handoff.Parse(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Skipping unreadable handoff %s: %v\n", path, err)
			skipped++
			return nil
		}
		if doc.SessionID == "" {
			fmt.Fprintf(os.Stderr, "Skipping %s: missing session_id\n", path)
			skipped++
			return nil
		}
		if err := idx.Upsert(doc.IndexRecord()); err != nil {
			fmt.Fprintf(os.Stderr, "Skipping %s: %v\n", path, err)
			skipped++
			return nil
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking handoffs directory: %w", err)
	}

	if err := idx.Save(cfg.Index.IndexPath); err != nil {
		return err
	}

	fmt.Printf("Rebuilt index with %d handoffs at %s\n", idx.Len(), cfg.Index.IndexPath)
	if skipped > 0 {
		fmt.Printf("Skipped %d file(s)\n", skipped)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
