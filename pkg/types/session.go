// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Turn is one user/assistant exchange within a session transcript.
type Turn struct {
	// User is the user's message text. Empty when the assistant spoke first.
	User string `json:"user" yaml:"user"`

	// Assistant is the concatenated assistant reply text for the turn.
	Assistant string `json:"assistant" yaml:"assistant"`

	// TimestampStart is the raw timestamp of the record that opened the turn.
	TimestampStart string `json:"timestamp_start" yaml:"timestamp_start"`

	// TimestampEnd is the raw timestamp of the last assistant record.
	TimestampEnd string `json:"timestamp_end" yaml:"timestamp_end"`

	// Model is the model identifier from the last assistant record, if any.
	Model string `json:"model" yaml:"model"`
}

// Session is a normalized work-session transcript parsed from a Claude Code
// JSONL file, ready for markdown rendering and extraction.
type Session struct {
	// SessionID is the transcript file stem (UUID for real sessions).
	SessionID string `json:"session_id" yaml:"session_id"`

	// Summary is the conversation summary recorded in the transcript, if any.
	Summary string `json:"summary" yaml:"summary"`

	// Turns lists the user/assistant exchanges in order.
	Turns []Turn `json:"turns" yaml:"turns"`

	// TimestampStart and TimestampEnd are the earliest and latest raw record
	// timestamps seen anywhere in the transcript.
	TimestampStart string `json:"timestamp_start" yaml:"timestamp_start"`
	TimestampEnd   string `json:"timestamp_end" yaml:"timestamp_end"`

	// DurationSeconds is the elapsed time between the first and last
	// timestamp, zero when either is missing.
	DurationSeconds float64 `json:"duration_seconds" yaml:"duration_seconds"`

	// ModelsUsed lists the distinct model identifiers seen, sorted.
	ModelsUsed []string `json:"models_used" yaml:"models_used"`
}
