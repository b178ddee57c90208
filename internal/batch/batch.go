// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch drives bulk session indexing. It scans session logs,
// extracts handoffs concurrently through an AI backend, and applies the
// results to the index in one locked writer pass.
package batch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/recall-engine/internal/extract"
	"github.com/pdiddy/recall-engine/internal/handoff"
	"github.com/pdiddy/recall-engine/internal/indexstore"
	"github.com/pdiddy/recall-engine/internal/transcript"
	"github.com/pdiddy/recall-engine/pkg/types"
)

const (
	// minTurns is the fewest conversation turns a session needs to be
	// worth extracting.
	minTurns = 3

	// minContentChars is the fewest combined content characters a session
	// needs to be worth extracting.
	minContentChars = 400
)

// Options control one batch run.
type Options struct {
	// DryRun reports what would be extracted without calling the backend
	// or touching the index.
	DryRun bool

	// Reindex processes sessions even when the index already has them.
	Reindex bool

	// Max caps how many sessions are queued. Zero means no cap.
	Max int

	// Concurrency is the number of sessions processed in parallel.
	Concurrency int

	// Delay is the minimum spacing between extraction API calls across
	// all workers.
	Delay time.Duration
}

// Summary reports what one batch run did.
type Summary struct {
	Scanned        int
	Queued         int
	Processed      int
	SkippedIndexed int
	SkippedSmall   int
	Failed         int
}

func (s Summary) String() string {
	return fmt.Sprintf("Scanned=%d Queued=%d Processed=%d SkippedIndexed=%d SkippedSmall=%d Failed=%d",
		s.Scanned, s.Queued, s.Processed, s.SkippedIndexed, s.SkippedSmall, s.Failed)
}

type job struct {
	path      string
	sessionID string
}

// Run executes one batch indexing pass and writes progress to w. The
// returned Summary counts every scanned session exactly once; a non-nil
// error means the run aborted before completing.
func Run(ctx context.Context, backend extract.Backend, cfg types.PipelineConfig, opts Options, w io.Writer) (Summary, error) {
	var summary Summary

	loc := transcript.Location(cfg.Sessions.Timezone)

	files, err := scanSessionLogs(cfg.Sessions.SessionsDir)
	if err != nil {
		return summary, err
	}
	if len(files) == 0 {
		fmt.Fprintf(w, "No session logs found in %s\n", cfg.Sessions.SessionsDir)
		return summary, nil
	}
	summary.Scanned = len(files)

	idx, err := indexstore.Load(cfg.Index.IndexPath)
	if err != nil {
		return summary, fmt.Errorf("loading index: %w", err)
	}

	var queue []job
	for _, path := range files {
		sid := sessionIDFromPath(path)
		if !opts.Reindex {
			if _, err := idx.Get(sid); err == nil {
				summary.SkippedIndexed++
				continue
			}
		}
		queue = append(queue, job{path: path, sessionID: sid})
	}
	if opts.Max > 0 && len(queue) > opts.Max {
		queue = queue[:opts.Max]
	}
	summary.Queued = len(queue)

	mode := "unindexed"
	if opts.Reindex {
		mode = "reindex"
	}
	fmt.Fprintf(w, "Scanning complete. Found %d sessions; queued %d (%s mode).\n",
		summary.Scanned, summary.Queued, mode)
	if len(queue) == 0 {
		fmt.Fprintln(w, "Nothing to process. All discovered sessions are already indexed.")
		return summary, nil
	}
	fmt.Fprintf(w, "Model: %s | Dry run: %v | Delay: %s | Concurrency: %d | Output dir: %s\n\n",
		cfg.Extraction.Model, opts.DryRun, opts.Delay, opts.Concurrency, cfg.Index.HandoffsDir)

	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	var (
		mu      sync.Mutex
		gate    rateGate
		records = make([]*types.HandoffRecord, len(queue))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, jb := range queue {
		g.Go(func() error {
			var buf bytes.Buffer
			fmt.Fprintf(&buf, "[%d/%d] %s <- %s\n", i+1, len(queue), jb.sessionID, jb.path)

			rec, outcome, err := processSession(gctx, &buf, backend, cfg, opts, loc, &gate, jb)

			mu.Lock()
			w.Write(buf.Bytes())
			switch outcome {
			case outcomeProcessed:
				summary.Processed++
			case outcomeSkippedSmall:
				summary.SkippedSmall++
			case outcomeFailed:
				summary.Failed++
			}
			records[i] = rec
			mu.Unlock()

			return err
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	if !opts.DryRun {
		var produced []types.HandoffRecord
		for _, rec := range records {
			if rec != nil {
				produced = append(produced, *rec)
			}
		}
		if len(produced) > 0 {
			applied, rejected, err := applyRecords(cfg.Index.IndexPath, produced, w)
			summary.Processed += applied
			summary.Failed += rejected
			if err != nil {
				return summary, err
			}
		}
	}

	fmt.Fprintf(w, "\nBatch indexing complete.\n%s\n", summary)
	return summary, nil
}

type sessionOutcome int

const (
	outcomeNone sessionOutcome = iota
	outcomeProcessed
	outcomeSkippedSmall
	outcomeFailed
)

// processSession runs one session through parse, extract, and handoff
// save. It returns the index record to apply later, or nil when the
// session was skipped, failed, or only dry-run reported. Progress lines
// go to buf so concurrent workers never interleave output.
func processSession(ctx context.Context, buf *bytes.Buffer, backend extract.Backend, cfg types.PipelineConfig, opts Options, loc *time.Location, gate *rateGate, jb job) (*types.HandoffRecord, sessionOutcome, error) {
	sess, err := transcript.ParseFile(jb.path)
	if err != nil {
		fmt.Fprintf(buf, "  FAILED (read error): %v\n", err)
		return nil, outcomeFailed, nil
	}

	turns := len(sess.Turns)
	chars := contentChars(sess)
	if turns < minTurns {
		fmt.Fprintf(buf, "  SKIP short session (%d turns; minimum %d)\n", turns, minTurns)
		return nil, outcomeSkippedSmall, nil
	}
	if chars < minContentChars {
		fmt.Fprintf(buf, "  SKIP trivial session (%d chars; minimum %d)\n", chars, minContentChars)
		return nil, outcomeSkippedSmall, nil
	}

	date, ok := transcript.SessionDate(sess, loc)
	if !ok {
		fmt.Fprintln(buf, "  FAILED (session date unavailable)")
		return nil, outcomeFailed, nil
	}

	if opts.DryRun {
		fmt.Fprintf(buf, "  DRY RUN would extract and index (turns=%d, chars=%d, date=%s)\n", turns, chars, date)
		return nil, outcomeProcessed, nil
	}

	if err := gate.wait(ctx, opts.Delay); err != nil {
		return nil, outcomeNone, err
	}

	markdown := transcript.Render(sess, loc)
	payload, err := extract.ExtractSession(ctx, backend, markdown, cfg.Extraction.MaxRetries)
	if err != nil {
		if ctx.Err() != nil {
			return nil, outcomeNone, ctx.Err()
		}
		fmt.Fprintf(buf, "  FAILED (extraction): %v\n", err)
		return nil, outcomeFailed, nil
	}

	model := "unknown"
	if len(sess.ModelsUsed) > 0 {
		model = sess.ModelsUsed[0]
	}
	extract.Normalize(&payload, jb.sessionID, date, transcript.FormatDuration(sess.DurationSeconds), model)
	if err := extract.ValidatePayload(payload); err != nil {
		fmt.Fprintf(buf, "  FAILED (validation): %v\n", err)
		return nil, outcomeFailed, nil
	}

	savedPath, err := handoff.Save(cfg.Index.HandoffsDir, payload)
	if err != nil {
		fmt.Fprintf(buf, "  FAILED (saving handoff): %v\n", err)
		return nil, outcomeFailed, nil
	}

	// Index what the saved file round-trips to, not the raw payload, so
	// the index always mirrors what is on disk.
	doc, err := handoff.Parse(savedPath)
	if err != nil {
		fmt.Fprintf(buf, "  FAILED (parse saved handoff): %v\n", err)
		return nil, outcomeFailed, nil
	}

	fmt.Fprintf(buf, "  OK saved %s\n", savedPath)
	rec := doc.IndexRecord()
	return &rec, outcomeNone, nil
}

// applyRecords merges produced records into the index under an exclusive
// file lock and saves once. Records the index rejects are reported and
// counted without aborting the pass.
func applyRecords(indexPath string, records []types.HandoffRecord, w io.Writer) (applied, rejected int, err error) {
	if dir := filepath.Dir(indexPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, 0, fmt.Errorf("creating index directory: %w", err)
		}
	}

	lock := flock.New(indexPath + ".lock")
	if err := lock.Lock(); err != nil {
		return 0, 0, fmt.Errorf("locking index: %w", err)
	}
	defer lock.Unlock()

	idx, err := indexstore.Load(indexPath)
	if err != nil {
		return 0, 0, fmt.Errorf("loading index: %w", err)
	}
	for _, rec := range records {
		if err := idx.Upsert(rec); err != nil {
			fmt.Fprintf(w, "  FAILED (index update) %s: %v\n", rec.SessionID, err)
			rejected++
			continue
		}
		applied++
	}
	if err := idx.Save(indexPath); err != nil {
		return applied, rejected, fmt.Errorf("saving index: %w", err)
	}
	return applied, rejected, nil
}

// rateGate spaces extraction API calls across workers. Each waiter
// reserves the next slot and sleeps until it arrives.
type rateGate struct {
	mu   sync.Mutex
	next time.Time
}

func (g *rateGate) wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	g.mu.Lock()
	now := time.Now()
	at := g.next
	if at.Before(now) {
		at = now
	}
	g.next = at.Add(delay)
	g.mu.Unlock()

	wait := time.Until(at)
	if wait <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(wait):
		return nil
	}
}

// scanSessionLogs finds *.jsonl files under dir, oldest first so early
// sessions index before later ones. A missing directory is treated as
// empty.
func scanSessionLogs(dir string) ([]string, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil, nil
	}

	type entry struct {
		path  string
		mtime time.Time
	}
	var entries []entry
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".jsonl") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		entries = append(entries, entry{path: path, mtime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning sessions directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].mtime.Equal(entries[j].mtime) {
			return entries[i].mtime.Before(entries[j].mtime)
		}
		return entries[i].path < entries[j].path
	})
	paths := make([]string, len(entries))
	for i, e := range entries {
		paths[i] = e.path
	}
	return paths, nil
}

// sessionIDFromPath derives the 8-character session ID from a log file
// name.
func sessionIDFromPath(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if len(stem) > 8 {
		return stem[:8]
	}
	return stem
}

// contentChars totals the conversation text length across all turns.
func contentChars(s types.Session) int {
	var n int
	for _, turn := range s.Turns {
		n += len(turn.User) + len(turn.Assistant)
	}
	return n
}
