// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package configs provides the embedded extraction assets for recall-engine.
//
// The extraction prompt and the handoff JSON schema are embedded at build
// time so the binary works without an asset directory. Both can be
// overridden by path in the extraction config for prompt iteration without
// a rebuild.
package configs

import _ "embed"

// ExtractionPrompt is the system prompt sent with every handoff extraction
// request. It instructs the model to summarize a work session transcript as
// a structured handoff.
//
//go:embed extraction-prompt.txt
var ExtractionPrompt string

// HandoffSchema is the JSON schema the model's response must match. It is
// embedded verbatim into the user message of each extraction request.
//
//go:embed handoff-schema.json
var HandoffSchema string
