// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package indexstore persists the handoff index: a single JSON document
// holding per-session metadata plus inverted maps from project and keyword
// to session ids. The document is human-inspectable and safe to hand-edit
// as long as a rebuild follows.
package indexstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// Meta summarizes the index as a whole.
type Meta struct {
	// LastUpdated is the RFC 3339 UTC time of the last mutation. Empty for
	// a store that has never been written.
	LastUpdated string `json:"last_updated"`

	// HandoffCount is the number of indexed sessions.
	HandoffCount int `json:"handoff_count"`

	// DateRange is [earliest, latest] over all session dates, or empty
	// when no indexed session carries a date.
	DateRange []string `json:"date_range"`
}

// Index is the persisted aggregate. Handoffs is the source of truth;
// ByProject and ByKeyword are exact derived indices of it, maintained by
// Upsert and RemovePostings. Posting lists hold session ids in insertion
// order without duplicates, and a key with no remaining postings is
// deleted rather than kept as an empty list.
type Index struct {
	Meta      Meta                           `json:"meta"`
	Handoffs  map[string]types.HandoffRecord `json:"handoffs"`
	ByProject map[string][]string            `json:"by_project"`
	ByKeyword map[string][]string            `json:"by_keyword"`
}

// New returns an empty index.
func New() *Index {
	return &Index{
		Meta:      Meta{DateRange: []string{}},
		Handoffs:  map[string]types.HandoffRecord{},
		ByProject: map[string][]string{},
		ByKeyword: map[string][]string{},
	}
}

// Load reads the index document at path. A missing file yields an empty
// index; a file that exists but fails structural validation yields
// ErrCorruptIndex. Load never repairs: callers recover via rebuild.
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}
		return nil, fmt.Errorf("reading index %s: %w", path, err)
	}

	var idx Index
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("parsing index %s: %w: %v", path, ErrCorruptIndex, err)
	}

	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("validating index %s: %w", path, err)
	}

	return &idx, nil
}

// validate checks the structural invariants a well-formed document must
// satisfy. It is deliberately one-directional: postings must point at
// stored handoffs, but a hand-trimmed posting list is not flagged, so a
// partially edited index stays loadable until the next rebuild.
func (idx *Index) validate() error {
	if idx.Handoffs == nil || idx.ByProject == nil || idx.ByKeyword == nil {
		return fmt.Errorf("%w: missing handoffs, by_project, or by_keyword", ErrCorruptIndex)
	}

	if idx.Meta.HandoffCount != len(idx.Handoffs) {
		return fmt.Errorf("%w: handoff_count %d does not match %d stored handoffs",
			ErrCorruptIndex, idx.Meta.HandoffCount, len(idx.Handoffs))
	}

	for sessionID, rec := range idx.Handoffs {
		switch rec.SessionID {
		case sessionID:
		case "":
			// Entries written before the session_id field was embedded
			// carry it only as the map key.
			rec.SessionID = sessionID
			idx.Handoffs[sessionID] = rec
		default:
			return fmt.Errorf("%w: handoff %q carries session_id %q",
				ErrCorruptIndex, sessionID, rec.SessionID)
		}
	}

	for _, m := range []struct {
		name     string
		postings map[string][]string
	}{
		{"by_project", idx.ByProject},
		{"by_keyword", idx.ByKeyword},
	} {
		for term, ids := range m.postings {
			if len(ids) == 0 {
				return fmt.Errorf("%w: %s[%q] is an empty posting list",
					ErrCorruptIndex, m.name, term)
			}
			for _, id := range ids {
				if _, ok := idx.Handoffs[id]; !ok {
					return fmt.Errorf("%w: %s[%q] references unknown session %q",
						ErrCorruptIndex, m.name, term, id)
				}
			}
		}
	}

	if idx.Meta.DateRange == nil {
		idx.Meta.DateRange = []string{}
	}

	return nil
}

// Save writes the full document to path via a temp file in the same
// directory followed by an atomic rename, so a concurrent reader sees
// either the previous complete file or the new one, never a truncation.
func (idx *Index) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating index directory: %w", err)
	}

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(filepath.Dir(path), ".index-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing index: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("replacing index %s: %w", path, err)
	}

	return nil
}

// Get returns the stored record for sessionID, or ErrNotFound.
func (idx *Index) Get(sessionID string) (types.HandoffRecord, error) {
	rec, ok := idx.Handoffs[sessionID]
	if !ok {
		return types.HandoffRecord{}, fmt.Errorf("session %q: %w", sessionID, ErrNotFound)
	}
	return rec, nil
}

// Len returns the number of indexed sessions.
func (idx *Index) Len() int {
	return len(idx.Handoffs)
}

// RemovePostings deletes every by_project and by_keyword posting that
// points at sessionID. Posting lists left empty are removed from their
// map entirely so iteration never sees dead keys.
func (idx *Index) RemovePostings(sessionID string) {
	for _, postings := range []map[string][]string{idx.ByProject, idx.ByKeyword} {
		for term, ids := range postings {
			kept := ids[:0]
			for _, id := range ids {
				if id != sessionID {
					kept = append(kept, id)
				}
			}
			if len(kept) == 0 {
				delete(postings, term)
			} else {
				postings[term] = kept
			}
		}
	}
}
