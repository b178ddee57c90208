// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package transcript parses Claude Code session logs (JSONL) into
// normalized sessions and renders them as markdown input for handoff
// extraction.
package transcript

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// MaxLineSize caps a single JSONL line. Assistant turns carrying large
// tool results can exceed bufio's default 64KB limit.
const MaxLineSize = 1024 * 1024

// noiseTypes are record types that carry no conversation content.
var noiseTypes = map[string]bool{
	"file-history-snapshot": true,
	"queue-operation":       true,
	"progress":              true,
}

// logLine is the top-level structure of a session log line.
type logLine struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	SessionID string          `json:"sessionId"`
	Summary   string          `json:"summary"`
	Message   *messagePayload `json:"message"`
}

// messagePayload is the message field within a log line. Content stays raw
// because it is either a plain string or a list of content blocks.
type messagePayload struct {
	Model   string          `json:"model"`
	Content json.RawMessage `json:"content"`
}

// contentBlock is a single entry in a block-style content list.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
	Name string `json:"name"`
}

func (l logLine) content() json.RawMessage {
	if l.Message == nil {
		return nil
	}
	return l.Message.Content
}

// ParseFile reads a Claude Code JSONL session log and assembles it into a
// normalized session. The session ID defaults to the file name stem.
func ParseFile(path string) (types.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Session{}, fmt.Errorf("opening session log: %w", err)
	}
	defer f.Close()

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return parse(f, stem)
}

// parse scans JSONL records and folds them into conversation turns. A user
// record opens a turn; assistant records append to the open turn. Malformed
// lines are skipped because live sessions can have a partially written tail.
func parse(r io.Reader, sessionID string) (types.Session, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, MaxLineSize), MaxLineSize)

	var (
		summary      string
		models       = map[string]bool{}
		minTS, maxTS string
		turns        []types.Turn
		current      *types.Turn
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec logLine
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		if noiseTypes[rec.Type] {
			continue
		}

		if sessionID == "" && rec.SessionID != "" {
			sessionID = rec.SessionID
		}
		if rec.Timestamp != "" {
			if minTS == "" || rec.Timestamp < minTS {
				minTS = rec.Timestamp
			}
			if rec.Timestamp > maxTS {
				maxTS = rec.Timestamp
			}
		}

		switch rec.Type {
		case "summary":
			summary = rec.Summary

		case "user":
			text := extractText(rec.content())
			if strings.Contains(text, "[Request interrupted by user]") {
				continue
			}
			if current != nil {
				turns = append(turns, *current)
			}
			current = &types.Turn{User: text, TimestampStart: rec.Timestamp}

		case "assistant":
			var model string
			if rec.Message != nil {
				model = rec.Message.Model
			}
			if model != "" && !strings.HasPrefix(model, "<") {
				models[model] = true
			}

			text := extractText(rec.content())
			if current == nil {
				current = &types.Turn{
					Assistant:      text,
					TimestampStart: rec.Timestamp,
					TimestampEnd:   rec.Timestamp,
					Model:          model,
				}
				continue
			}
			if text != "" {
				if current.Assistant != "" {
					current.Assistant += "\n\n"
				}
				current.Assistant += text
			}
			current.TimestampEnd = rec.Timestamp
			current.Model = model
		}
	}
	if err := scanner.Err(); err != nil {
		return types.Session{}, fmt.Errorf("scanning session log: %w", err)
	}
	if current != nil {
		turns = append(turns, *current)
	}

	sess := types.Session{
		SessionID:      sessionID,
		Summary:        summary,
		Turns:          turns,
		TimestampStart: minTS,
		TimestampEnd:   maxTS,
		ModelsUsed:     sortedKeys(models),
	}
	if start, ok := parseTS(minTS); ok {
		if end, ok := parseTS(maxTS); ok {
			sess.DurationSeconds = math.Max(end.Sub(start).Seconds(), 0)
		}
	}
	return sess, nil
}

// extractText flattens message content into plain text. Text blocks are
// kept and tool calls are reduced to a "[tool: name]" marker.
func extractText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return strings.TrimSpace(plain)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}

	var parts []string
	for _, item := range items {
		var lit string
		if err := json.Unmarshal(item, &lit); err == nil {
			if t := strings.TrimSpace(lit); t != "" {
				parts = append(parts, t)
			}
			continue
		}

		var block contentBlock
		if err := json.Unmarshal(item, &block); err != nil {
			continue
		}
		switch block.Type {
		case "text":
			if t := strings.TrimSpace(block.Text); t != "" {
				parts = append(parts, t)
			}
		case "tool_use":
			name := block.Name
			if name == "" {
				name = "tool"
			}
			parts = append(parts, fmt.Sprintf("[tool: %s]", name))
		}
	}
	return strings.Join(parts, "\n\n")
}

func parseTS(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
