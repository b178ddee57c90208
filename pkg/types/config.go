package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "recall-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// AIConfig holds shared settings for stages that call a Generative AI API.
type AIConfig struct {
	// Model is the AI model identifier (e.g. "anthropic/claude-sonnet-4.5").
	Model string `json:"model" yaml:"model"`

	// APIKey is the authentication key for the AI API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// BaseURL is the chat-completions endpoint. Empty uses the OpenRouter
	// default.
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// MaxRetries is the number of retry attempts for failed API calls (default 3).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`
}

// SessionsConfig holds settings for session transcript discovery and conversion.
type SessionsConfig struct {
	// SessionsDir is the directory scanned recursively for *.jsonl transcripts.
	SessionsDir string `json:"sessions_dir" yaml:"sessions_dir"`

	// Timezone is the IANA zone name used when rendering session times
	// (e.g. "America/Toronto"). Unknown zones fall back to UTC.
	Timezone string `json:"timezone" yaml:"timezone"`
}

// IndexConfig holds settings for the handoff index store.
type IndexConfig struct {
	// IndexPath is the location of the index JSON document.
	IndexPath string `json:"index_path" yaml:"index_path"`

	// HandoffsDir is the directory holding handoff markdown files.
	HandoffsDir string `json:"handoffs_dir" yaml:"handoffs_dir"`
}

// ExtractionConfig holds settings for the handoff extraction stage.
type ExtractionConfig struct {
	AIConfig   `yaml:",inline"`
	HTTPConfig `yaml:",inline"`

	// PromptPath overrides the built-in extraction system prompt.
	PromptPath string `json:"prompt_path,omitempty" yaml:"prompt_path,omitempty"`

	// SchemaPath overrides the built-in handoff JSON schema sent to the model.
	SchemaPath string `json:"schema_path,omitempty" yaml:"schema_path,omitempty"`
}

// BatchConfig holds settings for batch session indexing.
type BatchConfig struct {
	// Concurrency is the number of sessions processed in parallel (1-20).
	Concurrency int `json:"concurrency" yaml:"concurrency"`

	// Delay is the minimum spacing between extraction API calls.
	Delay time.Duration `json:"delay" yaml:"delay"`
}

// RetrievalConfig holds settings for handoff retrieval.
type RetrievalConfig struct {
	// DaysBack is the recency window in days; sessions older than this
	// decay exponentially (default 30).
	DaysBack int `json:"days_back" yaml:"days_back"`

	// MaxResults is the default number of results to return. Requests are
	// capped at 5 regardless.
	MaxResults int `json:"max_results" yaml:"max_results"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Sessions   SessionsConfig   `json:"sessions" yaml:"sessions"`
	Index      IndexConfig      `json:"index" yaml:"index"`
	Extraction ExtractionConfig `json:"extraction" yaml:"extraction"`
	Batch      BatchConfig      `json:"batch" yaml:"batch"`
	Retrieval  RetrievalConfig  `json:"retrieval" yaml:"retrieval"`
}
