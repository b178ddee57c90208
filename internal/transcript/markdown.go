// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pdiddy/recall-engine/pkg/types"
)

const (
	// truncateLimit is the longest turn text carried into markdown intact.
	truncateLimit = 100_000
	// truncatePreview is how much of an oversized turn survives truncation.
	truncatePreview = 5_000
)

// ErrEmptySession reports a session log with no conversation turns.
var ErrEmptySession = errors.New("session has no conversation turns")

// Location resolves an IANA timezone name, falling back to UTC when the
// name is unknown.
func Location(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		slog.Warn("unknown timezone, falling back to UTC", "timezone", name)
		return time.UTC
	}
	return loc
}

// Render formats a session as markdown with a frontmatter header and a
// timestamped heading per conversation side. Clock times are shown in loc.
func Render(s types.Session, loc *time.Location) string {
	sessionID := s.SessionID
	if len(sessionID) > 8 {
		sessionID = sessionID[:8]
	}
	modelName := "unknown"
	if len(s.ModelsUsed) > 0 {
		modelName = s.ModelsUsed[0]
	}

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "session_id: %s\n", sessionID)
	fmt.Fprintf(&b, "date: %s\n", stamp(s.TimestampStart, loc, "2006-01-02", "unknown"))
	fmt.Fprintf(&b, "start: %s\n", stamp(s.TimestampStart, loc, "15:04", "unknown"))
	fmt.Fprintf(&b, "end: %s\n", stamp(s.TimestampEnd, loc, "15:04", "unknown"))
	fmt.Fprintf(&b, "duration: %s\n", FormatDuration(s.DurationSeconds))
	fmt.Fprintf(&b, "model: %s\n", modelName)
	fmt.Fprintf(&b, "turns: %d\n", len(s.Turns))
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# Session: %s\n\n", sessionTitle(s.Summary))
	b.WriteString("## Conversation\n\n")

	for _, turn := range s.Turns {
		userText := truncate(turn.User)
		assistantText := truncate(turn.Assistant)

		endStamp := turn.TimestampEnd
		if endStamp == "" {
			endStamp = turn.TimestampStart
		}

		if userText != "" {
			fmt.Fprintf(&b, "### [%s] User\n%s\n\n", stamp(turn.TimestampStart, loc, "15:04", "??:??"), userText)
		}
		if assistantText != "" {
			fmt.Fprintf(&b, "### [%s] Claude\n%s\n\n", stamp(endStamp, loc, "15:04", "??:??"), assistantText)
		}
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// SessionDate returns the session's calendar date in loc, in ISO form.
// ok is false when the session has no parseable start timestamp.
func SessionDate(s types.Session, loc *time.Location) (string, bool) {
	t, ok := parseTS(s.TimestampStart)
	if !ok {
		return "", false
	}
	return t.In(loc).Format("2006-01-02"), true
}

// ConvertFile parses a session log and renders it as markdown. It returns
// ErrEmptySession when the log holds no conversation turns.
func ConvertFile(path string, loc *time.Location) (string, error) {
	sess, err := ParseFile(path)
	if err != nil {
		return "", err
	}
	if len(sess.Turns) == 0 {
		return "", ErrEmptySession
	}
	return Render(sess, loc), nil
}

// stamp renders ts in loc using layout, or fallback when unparseable.
func stamp(ts string, loc *time.Location, layout, fallback string) string {
	t, ok := parseTS(ts)
	if !ok {
		return fallback
	}
	return t.In(loc).Format(layout)
}

// sessionTitle derives the markdown title from the session summary.
func sessionTitle(summary string) string {
	title := strings.TrimSpace(summary)
	if len(title) > 80 {
		title = title[:80]
	}
	if title == "" {
		return "Session Handoff Source"
	}
	return title
}

// FormatDuration formats elapsed seconds as "1h 23m", "45m", or "0m".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "0m"
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// truncate caps oversized turn text, keeping a preview plus a marker
// noting the original length.
func truncate(text string) string {
	text = strings.TrimSpace(text)
	if len(text) <= truncateLimit {
		return text
	}
	return fmt.Sprintf("%s\n\n[... truncated from %d chars]", text[:truncatePreview], len(text))
}
