// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package handoff reads and writes handoff markdown documents: YAML
// frontmatter carrying the session metadata, followed by a headline and
// the What Happened, Insights, and Open Threads sections.
package handoff

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// Document is a parsed handoff markdown file. Parsing is tolerant:
// malformed frontmatter or missing sections yield zero values rather than
// errors, and the indexer's own validation decides what is usable.
type Document struct {
	types.HandoffPayload

	// DurationMinutes is the Duration string parsed to whole minutes.
	DurationMinutes int

	// RawBody is the markdown body below the frontmatter.
	RawBody string
}

// IndexRecord returns the searchable projection of the document.
func (d Document) IndexRecord() types.HandoffRecord {
	return types.HandoffRecord{
		SessionID:       d.SessionID,
		Date:            d.Date,
		Headline:        d.Headline,
		Projects:        d.Projects,
		Keywords:        d.Keywords,
		Substance:       d.Substance,
		DurationMinutes: d.DurationMinutes,
	}
}

// Parse reads and parses the handoff markdown file at path.
func Parse(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("reading handoff %s: %w", path, err)
	}
	return ParseContent(string(data)), nil
}

var headlineRe = regexp.MustCompile(`(?m)^#\s+(.+)$`)

// ParseContent parses handoff markdown. Frontmatter scalars are normalized
// to the shapes the index expects: dates become ISO strings, bare scalars
// become single-element lists for projects and keywords, and substance
// defaults to 1 when missing or unreadable.
func ParseContent(content string) Document {
	fm, body := splitFrontmatter(content)

	var doc Document
	doc.SessionID = asString(fm["session_id"])
	doc.Date = asString(fm["date"])
	doc.Duration = asString(fm["duration"])
	doc.Model = asString(fm["model"])
	doc.Projects = asStringList(fm["projects"])
	doc.Keywords = asStringList(fm["keywords"])
	doc.Substance = asInt(fm["substance"], 1)

	if m := headlineRe.FindStringSubmatch(body); m != nil {
		doc.Headline = strings.TrimSpace(m[1])
	} else {
		doc.Headline = asString(fm["headline"])
	}

	doc.WhatHappened = section(body, "What Happened")
	doc.Insights = section(body, "Insights")
	doc.OpenThreads = section(body, "Open Threads")
	doc.DurationMinutes = durationMinutes(doc.Duration)
	doc.RawBody = body

	return doc
}

// splitFrontmatter separates the leading YAML block from the body. Content
// without a well-formed frontmatter fence is returned whole as body.
func splitFrontmatter(content string) (map[string]any, string) {
	if !strings.HasPrefix(content, "---") {
		return map[string]any{}, strings.TrimSpace(content)
	}

	parts := strings.SplitN(content, "---", 3)
	if len(parts) < 3 {
		return map[string]any{}, strings.TrimSpace(content)
	}

	var fm map[string]any
	if err := yaml.Unmarshal([]byte(parts[1]), &fm); err != nil {
		slog.Warn("failed to parse handoff frontmatter", "error", err)
		return map[string]any{}, strings.TrimSpace(content)
	}
	if fm == nil {
		fm = map[string]any{}
	}

	return fm, strings.TrimSpace(parts[2])
}

// section returns the body text under the "## heading" line, up to the
// next second-level heading. Third-level headings stay inside the section.
func section(body, heading string) string {
	lines := strings.Split(body, "\n")
	var capturing bool
	var out []string

	for _, line := range lines {
		if strings.HasPrefix(line, "## ") {
			if capturing {
				break
			}
			if strings.TrimSpace(strings.TrimPrefix(line, "## ")) == heading {
				capturing = true
			}
			continue
		}
		if capturing {
			out = append(out, line)
		}
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}

var (
	hoursRe   = regexp.MustCompile(`(\d+)\s*h`)
	minutesRe = regexp.MustCompile(`(\d+)\s*m`)
)

// durationMinutes converts strings like "1h 23m", "45m", or "2h" to whole
// minutes. Unrecognized input yields zero.
func durationMinutes(duration string) int {
	if duration == "" {
		return 0
	}
	total := 0
	if m := hoursRe.FindStringSubmatch(duration); m != nil {
		if hours, err := strconv.Atoi(m[1]); err == nil {
			total += hours * 60
		}
	}
	if m := minutesRe.FindStringSubmatch(duration); m != nil {
		if minutes, err := strconv.Atoi(m[1]); err == nil {
			total += minutes
		}
	}
	return total
}

// asString renders a frontmatter scalar as a string. YAML dates arrive as
// time.Time and are rendered in ISO form.
func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case time.Time:
		return val.Format("2006-01-02")
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// asStringList normalizes a frontmatter value to a string list: a bare
// scalar becomes a single-element list, anything unusable an empty one.
func asStringList(v any) []string {
	switch val := v.(type) {
	case nil:
		return []string{}
	case string:
		return []string{val}
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s := asString(item); s != "" {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// asInt coerces a frontmatter value to an int, falling back to def.
func asInt(v any, def int) int {
	switch val := v.(type) {
	case int:
		return val
	case int64:
		return int(val)
	case float64:
		return int(val)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return n
		}
		return def
	default:
		return def
	}
}
