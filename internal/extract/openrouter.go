// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/pdiddy/recall-engine/configs"
	"github.com/pdiddy/recall-engine/internal/httputil"
	"github.com/pdiddy/recall-engine/pkg/types"
)

// DefaultBaseURL is the OpenRouter chat-completions endpoint.
const DefaultBaseURL = "https://openrouter.ai/api/v1/chat/completions"

// OpenRouterBackend extracts handoff payloads through the OpenRouter
// chat-completions API.
type OpenRouterBackend struct {
	// APIKey authenticates requests (Bearer token).
	APIKey string

	// Model is the OpenRouter model identifier.
	Model string

	// BaseURL is the chat-completions endpoint. Empty uses DefaultBaseURL.
	BaseURL string

	// MaxRetries bounds HTTP-level retries on 429/5xx responses.
	MaxRetries int

	// UserAgent is sent with each request when non-empty.
	UserAgent string

	// Prompt is the system prompt. Empty uses the built-in prompt.
	Prompt string

	// Schema is the JSON schema embedded in the user message. Empty uses
	// the built-in schema.
	Schema string

	// Client is the HTTP client used for requests.
	Client *http.Client
}

// NewOpenRouterBackend builds a backend from extraction settings, loading
// prompt and schema overrides from disk when configured.
func NewOpenRouterBackend(cfg types.ExtractionConfig, apiKey string) (*OpenRouterBackend, error) {
	b := &OpenRouterBackend{
		APIKey:     apiKey,
		Model:      cfg.Model,
		BaseURL:    cfg.BaseURL,
		MaxRetries: cfg.MaxRetries,
		UserAgent:  cfg.UserAgent,
		Client:     &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.PromptPath != "" {
		data, err := os.ReadFile(cfg.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("reading prompt override: %w", err)
		}
		b.Prompt = string(data)
	}
	if cfg.SchemaPath != "" {
		data, err := os.ReadFile(cfg.SchemaPath)
		if err != nil {
			return nil, fmt.Errorf("reading schema override: %w", err)
		}
		b.Schema = string(data)
	}
	return b, nil
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content json.RawMessage `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Extract sends the transcript to OpenRouter and parses the JSON payload
// out of the model's reply.
func (b *OpenRouterBackend) Extract(ctx context.Context, transcriptMarkdown string) (types.HandoffPayload, error) {
	reqBody := chatRequest{
		Model: b.Model,
		Messages: []chatMessage{
			{Role: "system", Content: b.systemPrompt()},
			{Role: "user", Content: buildUserMessage(b.schema(), transcriptMarkdown)},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return types.HandoffPayload{}, fmt.Errorf("encoding request: %w", err)
	}

	url := b.BaseURL
	if url == "" {
		url = DefaultBaseURL
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.HandoffPayload{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+b.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.DoWithRetry(ctx, client, req, b.MaxRetries)
	if err != nil {
		return types.HandoffPayload{}, fmt.Errorf("calling OpenRouter: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.HandoffPayload{}, fmt.Errorf("OpenRouter status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return types.HandoffPayload{}, fmt.Errorf("decoding response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return types.HandoffPayload{}, fmt.Errorf("OpenRouter error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return types.HandoffPayload{}, fmt.Errorf("response contains no choices")
	}

	text, err := contentText(parsed.Choices[0].Message.Content)
	if err != nil {
		return types.HandoffPayload{}, err
	}
	return ParsePayload(text)
}

func (b *OpenRouterBackend) systemPrompt() string {
	if b.Prompt != "" {
		return b.Prompt
	}
	return configs.ExtractionPrompt
}

func (b *OpenRouterBackend) schema() string {
	if b.Schema != "" {
		return b.Schema
	}
	return configs.HandoffSchema
}

func buildUserMessage(schema, transcriptMarkdown string) string {
	return fmt.Sprintf("Return only a JSON object that strictly matches this schema.\n"+
		"Do not include markdown fences or any explanatory text.\n\n"+
		"JSON schema:\n%s\n\nSession transcript markdown:\n%s",
		schema, transcriptMarkdown)
}

// contentText flattens a message content field. Providers return either a
// plain string or a list of typed blocks.
func contentText(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("response message has no content")
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}

	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", fmt.Errorf("unsupported content shape in response")
	}
	var sb strings.Builder
	for _, blk := range blocks {
		sb.WriteString(blk.Text)
	}
	return sb.String(), nil
}
