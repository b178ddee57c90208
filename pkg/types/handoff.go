// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// HandoffRecord is the searchable projection of one work session. The full
// handoff body lives in a markdown file under the handoffs directory; the
// index stores only this metadata and never reads the body.
type HandoffRecord struct {
	// SessionID is the 8-character session identifier, unique across the index.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Date is the session's calendar date in ISO form (YYYY-MM-DD).
	Date string `json:"date" yaml:"date"`

	// Headline is a one-line description of what the session accomplished.
	Headline string `json:"headline" yaml:"headline"`

	// Projects lists the project names the session touched; may be empty.
	Projects []string `json:"projects" yaml:"projects"`

	// Keywords lists searchable topic terms; may be empty.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Substance grades how much real work the session represents:
	// 0 = nothing meaningful, 1 = routine work, 2 = significant work.
	// Substance 0 records are indexed but never returned by retrieval.
	Substance int `json:"substance" yaml:"substance"`

	// DurationMinutes is the session length in whole minutes.
	DurationMinutes int `json:"duration_minutes" yaml:"duration_minutes"`
}

// HandoffPayload is the full handoff produced by the extraction stage, one
// per session. It is rendered to a markdown file with YAML frontmatter; the
// index keeps only the HandoffRecord projection.
type HandoffPayload struct {
	// SessionID is the 8-character session identifier.
	SessionID string `json:"session_id" yaml:"session_id"`

	// Date is the session date in ISO form (YYYY-MM-DD).
	Date string `json:"date" yaml:"date"`

	// Duration is the human-readable session length (e.g. "1h 23m").
	Duration string `json:"duration" yaml:"duration"`

	// Model is the model identifier that drove the session.
	Model string `json:"model" yaml:"model"`

	// Headline is a one-line description of the session.
	Headline string `json:"headline" yaml:"headline"`

	// WhatHappened narrates the work done, a few sentences.
	WhatHappened string `json:"what_happened" yaml:"what_happened"`

	// Insights records anything learned worth carrying forward.
	Insights string `json:"insights" yaml:"insights"`

	// OpenThreads lists unfinished work and next steps.
	OpenThreads string `json:"open_threads" yaml:"open_threads"`

	// Projects lists the project names the session touched.
	Projects []string `json:"projects" yaml:"projects"`

	// Keywords lists searchable topic terms.
	Keywords []string `json:"keywords" yaml:"keywords"`

	// Substance grades the session: 0 = nothing meaningful, 1 = routine,
	// 2 = significant.
	Substance int `json:"substance" yaml:"substance"`
}
