// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package handoff

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// frontmatter fixes the field order of the rendered YAML block.
type frontmatter struct {
	SessionID string   `yaml:"session_id"`
	Date      string   `yaml:"date"`
	Duration  string   `yaml:"duration"`
	Model     string   `yaml:"model"`
	Projects  []string `yaml:"projects"`
	Keywords  []string `yaml:"keywords"`
	Substance int      `yaml:"substance"`
}

// Render produces the handoff markdown document for a payload. The three
// body sections are always present so saved handoffs share one shape.
func Render(p types.HandoffPayload) (string, error) {
	fm, err := yaml.Marshal(frontmatter{
		SessionID: p.SessionID,
		Date:      p.Date,
		Duration:  p.Duration,
		Model:     p.Model,
		Projects:  p.Projects,
		Keywords:  p.Keywords,
		Substance: p.Substance,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling frontmatter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n\n")

	fmt.Fprintf(&b, "# %s\n", strings.TrimSpace(p.Headline))
	for _, sec := range []struct {
		heading string
		text    string
	}{
		{"What Happened", p.WhatHappened},
		{"Insights", p.Insights},
		{"Open Threads", p.OpenThreads},
	} {
		fmt.Fprintf(&b, "\n## %s\n", sec.heading)
		if text := strings.TrimSpace(sec.text); text != "" {
			b.WriteString(text)
			b.WriteString("\n")
		}
	}

	return b.String(), nil
}

// Save renders the payload and writes it to dir as <date>-<session_id>.md,
// returning the written path.
func Save(dir string, p types.HandoffPayload) (string, error) {
	content, err := Render(p)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating handoffs directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.md", p.Date, p.SessionID))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing handoff %s: %w", path, err)
	}

	return path, nil
}
