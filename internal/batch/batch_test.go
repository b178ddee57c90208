// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/recall-engine/internal/indexstore"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// stubBackend returns a fixed payload and records every call. Safe for
// concurrent workers.
type stubBackend struct {
	mu      sync.Mutex
	payload types.HandoffPayload
	err     error
	calls   int
	seen    []string
}

func (b *stubBackend) Extract(_ context.Context, markdown string) (types.HandoffPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	b.seen = append(b.seen, markdown)
	if b.err != nil {
		return types.HandoffPayload{}, b.err
	}
	return b.payload, nil
}

func (b *stubBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

// extractedPayload deliberately carries the wrong identity fields so tests
// prove normalization pins them back to the transcript's values.
func extractedPayload() types.HandoffPayload {
	return types.HandoffPayload{
		SessionID:    "zzzz9999",
		Date:         "2020-01-01",
		Headline:     "Reworked the index writer",
		WhatHappened: "Moved the index save onto a temp file plus rename.",
		Projects:     []string{"recall-engine"},
		Keywords:     []string{"index", "atomic-write"},
		Substance:    2,
	}
}

func testCfg(t *testing.T) types.PipelineConfig {
	t.Helper()
	root := t.TempDir()
	return types.PipelineConfig{
		Sessions: types.SessionsConfig{
			SessionsDir: filepath.Join(root, "sessions"),
			Timezone:    "UTC",
		},
		Index: types.IndexConfig{
			IndexPath:   filepath.Join(root, "index.json"),
			HandoffsDir: filepath.Join(root, "handoffs"),
		},
		Extraction: types.ExtractionConfig{
			AIConfig: types.AIConfig{Model: "test/model", MaxRetries: 1},
		},
	}
}

// writeSessionLog writes a JSONL session log with the given number of
// user/assistant turn pairs and sets its mtime.
func writeSessionLog(t *testing.T, dir, stem string, turns int, mtime time.Time) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))

	filler := strings.Repeat("working through the session scanner logic ", 3)
	var lines []string
	for i := 0; i < turns; i++ {
		ts := fmt.Sprintf("2026-02-10T09:%02d:00Z", i*2)
		lines = append(lines,
			fmt.Sprintf(`{"type":"user","timestamp":%q,"message":{"content":"turn %d: %s"}}`, ts, i, filler),
			fmt.Sprintf(`{"type":"assistant","timestamp":%q,"message":{"model":"test-model-1","content":"reply %d: %s"}}`, ts, i, filler),
		)
	}

	path := filepath.Join(dir, stem+".jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func seedIndex(t *testing.T, path string, ids ...string) {
	t.Helper()
	idx := indexstore.New()
	for _, id := range ids {
		require.NoError(t, idx.Upsert(types.HandoffRecord{
			SessionID: id,
			Date:      "2026-02-10",
			Headline:  "seeded",
			Substance: 1,
		}))
	}
	require.NoError(t, idx.Save(path))
}

func TestRunIndexesSessions(t *testing.T) {
	cfg := testCfg(t)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-old", 3, base)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "bbbb2222-new", 4, base.Add(time.Hour))

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 2, summary.Queued)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, backend.callCount())

	// Older session goes first.
	text := out.String()
	assert.Contains(t, text, "[1/2] aaaa1111 <- ")
	assert.Contains(t, text, "[2/2] bbbb2222 <- ")
	assert.Less(t, strings.Index(text, "aaaa1111"), strings.Index(text, "bbbb2222"))
	assert.Contains(t, text, "  OK saved ")
	assert.Contains(t, text, "Batch indexing complete.")
	assert.Contains(t, text, "Scanned=2 Queued=2 Processed=2 SkippedIndexed=0 SkippedSmall=0 Failed=0")

	// Handoff files land in the handoffs dir, named date-session.
	for _, sid := range []string{"aaaa1111", "bbbb2222"} {
		_, err := os.Stat(filepath.Join(cfg.Index.HandoffsDir, "2026-02-10-"+sid+".md"))
		assert.NoError(t, err, sid)
	}

	// Index holds both records under the transcript-derived IDs.
	idx, err := indexstore.Load(cfg.Index.IndexPath)
	require.NoError(t, err)
	require.Equal(t, 2, idx.Len())
	rec, err := idx.Get("aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "2026-02-10", rec.Date)
	assert.Equal(t, "Reworked the index writer", rec.Headline)
	assert.Equal(t, []string{"index", "atomic-write"}, rec.Keywords)
}

func TestRunSkipsIndexedSessions(t *testing.T) {
	cfg := testCfg(t)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, base)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "bbbb2222-x", 3, base.Add(time.Minute))
	seedIndex(t, cfg.Index.IndexPath, "aaaa1111")

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Scanned)
	assert.Equal(t, 1, summary.SkippedIndexed)
	assert.Equal(t, 1, summary.Queued)
	assert.Equal(t, 1, backend.callCount())
	assert.Contains(t, out.String(), "Found 2 sessions; queued 1 (unindexed mode).")
}

func TestRunNothingToProcess(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())
	seedIndex(t, cfg.Index.IndexPath, "aaaa1111")

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Queued)
	assert.Equal(t, 1, summary.SkippedIndexed)
	assert.Equal(t, 0, backend.callCount())
	assert.Contains(t, out.String(), "Nothing to process.")
}

func TestRunReindexProcessesIndexedSessions(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())
	seedIndex(t, cfg.Index.IndexPath, "aaaa1111")

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1, Reindex: true}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Queued)
	assert.Equal(t, 0, summary.SkippedIndexed)
	assert.Equal(t, 1, summary.Processed)
	assert.Contains(t, out.String(), "(reindex mode)")

	// The reindexed record replaces the seeded one.
	idx, err := indexstore.Load(cfg.Index.IndexPath)
	require.NoError(t, err)
	rec, err := idx.Get("aaaa1111")
	require.NoError(t, err)
	assert.Equal(t, "Reworked the index writer", rec.Headline)
}

func TestRunSkipsThinSessions(t *testing.T) {
	cfg := testCfg(t)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	// Two turns is below the turn minimum.
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 2, base)
	// Three turns but almost no text.
	short := filepath.Join(cfg.Sessions.SessionsDir, "bbbb2222-x.jsonl")
	var lines []string
	for i := 0; i < 3; i++ {
		lines = append(lines,
			fmt.Sprintf(`{"type":"user","timestamp":"2026-02-10T09:0%d:00Z","message":{"content":"hi"}}`, i),
			fmt.Sprintf(`{"type":"assistant","timestamp":"2026-02-10T09:0%d:30Z","message":{"content":"ok"}}`, i),
		)
	}
	require.NoError(t, os.WriteFile(short, []byte(strings.Join(lines, "\n")), 0o644))

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.SkippedSmall)
	assert.Equal(t, 0, summary.Processed)
	assert.Equal(t, 0, backend.callCount())
	assert.Contains(t, out.String(), "SKIP short session (2 turns; minimum 3)")
	assert.Contains(t, out.String(), "SKIP trivial session (")
}

func TestRunDryRun(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1, DryRun: true}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 0, backend.callCount())
	assert.Contains(t, out.String(), "DRY RUN would extract and index (turns=3, chars=")

	// Nothing written.
	_, err = os.Stat(cfg.Index.HandoffsDir)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(cfg.Index.IndexPath)
	assert.True(t, os.IsNotExist(err))
}

func TestRunExtractionFailure(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())

	backend := &stubBackend{err: fmt.Errorf("model exploded")}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 0, summary.Processed)
	assert.Contains(t, out.String(), "FAILED (extraction):")

	// No index entry for the failed session.
	idx, err := indexstore.Load(cfg.Index.IndexPath)
	require.NoError(t, err)
	assert.Equal(t, 0, idx.Len())
}

func TestRunValidationFailure(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())

	bad := extractedPayload()
	bad.Substance = 9
	backend := &stubBackend{payload: bad}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Contains(t, out.String(), "FAILED (validation):")
}

func TestRunMaxCapsQueue(t *testing.T) {
	cfg := testCfg(t)
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, base)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "bbbb2222-x", 3, base.Add(time.Minute))
	writeSessionLog(t, cfg.Sessions.SessionsDir, "cccc3333-x", 3, base.Add(2*time.Minute))

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 2, Max: 2}, &out)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Scanned)
	assert.Equal(t, 2, summary.Queued)
	assert.Equal(t, 2, backend.callCount())
	// The cap keeps the oldest sessions.
	assert.Contains(t, out.String(), "aaaa1111")
	assert.Contains(t, out.String(), "bbbb2222")
	assert.NotContains(t, out.String(), "cccc3333")
}

func TestRunNoSessionLogs(t *testing.T) {
	cfg := testCfg(t)

	backend := &stubBackend{}
	var out bytes.Buffer

	summary, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Scanned)
	assert.Contains(t, out.String(), "No session logs found in ")
}

func TestRunCorruptIndexAborts(t *testing.T) {
	cfg := testCfg(t)
	writeSessionLog(t, cfg.Sessions.SessionsDir, "aaaa1111-x", 3, time.Now())
	require.NoError(t, os.WriteFile(cfg.Index.IndexPath, []byte("{not json"), 0o644))

	backend := &stubBackend{payload: extractedPayload()}
	var out bytes.Buffer

	_, err := Run(context.Background(), backend, cfg, Options{Concurrency: 1}, &out)
	require.Error(t, err)
	assert.ErrorIs(t, err, indexstore.ErrCorruptIndex)
}

func TestScanSessionLogsOrder(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	// Lexically later name but older mtime sorts first.
	writeSessionLog(t, dir, "zzzz9999-old", 3, base)
	writeSessionLog(t, dir, "aaaa1111-new", 3, base.Add(time.Hour))
	// Same mtime breaks ties by path.
	writeSessionLog(t, dir, "mmmm5555-tie", 3, base.Add(time.Hour))

	got, err := scanSessionLogs(dir)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Contains(t, got[0], "zzzz9999-old")
	assert.Contains(t, got[1], "aaaa1111-new")
	assert.Contains(t, got[2], "mmmm5555-tie")
}

func TestScanSessionLogsMissingDir(t *testing.T) {
	got, err := scanSessionLogs(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSessionIDFromPath(t *testing.T) {
	assert.Equal(t, "abcd1234", sessionIDFromPath("/tmp/abcd1234-ef56-7890.jsonl"))
	assert.Equal(t, "short", sessionIDFromPath("short.jsonl"))
}

func TestRateGateHonorsCancellation(t *testing.T) {
	var gate rateGate

	// First waiter reserves the slot without sleeping.
	require.NoError(t, gate.wait(context.Background(), time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gate.wait(ctx, time.Minute)
	assert.ErrorIs(t, err, context.Canceled)
}
