// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract turns session transcript markdown into handoff payloads
// via a Generative AI backend.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// Backend abstracts the chat-completions API so tests can supply a mock.
// Each implementation receives one session's transcript markdown and
// returns the extracted handoff payload.
type Backend interface {
	Extract(ctx context.Context, transcriptMarkdown string) (types.HandoffPayload, error)
}

// backoffBase controls the base duration for exponential backoff. Tests
// override this to avoid real sleeps.
var backoffBase = time.Second

// ExtractSession calls the backend with exponential backoff between
// attempts. HTTP-level rate limiting is retried inside the backend; this
// loop covers transport failures and unparseable replies.
func ExtractSession(ctx context.Context, backend Backend, transcriptMarkdown string, maxRetries int) (types.HandoffPayload, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return types.HandoffPayload{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		payload, err := backend.Extract(ctx, transcriptMarkdown)
		if err == nil {
			return payload, nil
		}
		lastErr = err
	}
	return types.HandoffPayload{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidatePayload checks the shape a handoff payload must have before it
// is saved and indexed. Mirrors the index's own record validation so a
// payload that passes here projects to an acceptable HandoffRecord.
func ValidatePayload(p types.HandoffPayload) error {
	if len(p.SessionID) < 4 {
		return fmt.Errorf("session_id missing or shorter than 4 characters")
	}
	if !dateRe.MatchString(p.Date) {
		return fmt.Errorf("date %q is not in YYYY-MM-DD form", p.Date)
	}
	if strings.TrimSpace(p.Headline) == "" {
		return fmt.Errorf("headline is empty")
	}
	if p.Substance < 0 || p.Substance > 2 {
		return fmt.Errorf("substance %d outside 0-2", p.Substance)
	}
	return nil
}

// Normalize forces the identity fields the transcript already established
// onto the payload. The model is asked to copy them verbatim but does not
// always comply, and the index must key on the transcript's values.
func Normalize(p *types.HandoffPayload, sessionID, date, duration, model string) {
	if p.SessionID != sessionID {
		slog.Warn("normalizing extracted session_id",
			"from", p.SessionID, "to", sessionID)
		p.SessionID = sessionID
	}
	if p.Date != date {
		slog.Warn("normalizing extracted date",
			"session_id", sessionID, "from", p.Date, "to", date)
		p.Date = date
	}
	if p.Duration == "" {
		p.Duration = duration
	}
	if p.Model == "" {
		p.Model = model
	}
	if p.Projects == nil {
		p.Projects = []string{}
	}
	if p.Keywords == nil {
		p.Keywords = []string{}
	}
}

var codeFenceRe = regexp.MustCompile("(?i)^```(?:json)?\\s*|\\s*```$")

// ParsePayload extracts the handoff JSON object from a model reply.
// Replies are supposed to be bare JSON but models wrap them in code
// fences or prose often enough that stripping fences and falling back to
// the outermost brace pair is worth the trouble.
func ParsePayload(raw string) (types.HandoffPayload, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return types.HandoffPayload{}, fmt.Errorf("empty model reply")
	}

	cleaned := strings.TrimSpace(codeFenceRe.ReplaceAllString(text, ""))

	var payload types.HandoffPayload
	for _, candidate := range []string{cleaned, text} {
		if err := json.Unmarshal([]byte(candidate), &payload); err == nil {
			return payload, nil
		}
	}

	first := strings.Index(cleaned, "{")
	last := strings.LastIndex(cleaned, "}")
	if first == -1 || last <= first {
		return types.HandoffPayload{}, fmt.Errorf("model reply contains no JSON object")
	}
	if err := json.Unmarshal([]byte(cleaned[first:last+1]), &payload); err != nil {
		return types.HandoffPayload{}, fmt.Errorf("parsing model reply JSON: %w", err)
	}
	return payload, nil
}
