// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package indexstore

import (
	"time"

	"github.com/pdiddy/recall-engine/pkg/types"
)

// timeNow returns the clock used for meta.last_updated. Tests override
// this for deterministic output.
var timeNow = time.Now

// Upsert inserts or replaces one handoff record and its inverted-index
// contributions. When the session id is already indexed its old postings
// are removed first, which makes the operation idempotent and makes
// rebuild order-independent: re-applying an unchanged record leaves the
// index identical apart from meta.last_updated.
//
// A record failing shape validation is rejected with InvalidRecordError
// and the index is not touched.
func (idx *Index) Upsert(rec types.HandoffRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	if _, exists := idx.Handoffs[rec.SessionID]; exists {
		idx.RemovePostings(rec.SessionID)
	}

	idx.Handoffs[rec.SessionID] = rec

	for _, project := range rec.Projects {
		appendUnique(idx.ByProject, project, rec.SessionID)
	}
	for _, keyword := range rec.Keywords {
		appendUnique(idx.ByKeyword, keyword, rec.SessionID)
	}

	idx.updateMeta()
	return nil
}

// Rebuild derives a fresh index from the full record set. Order does not
// matter: Upsert removes prior contributions first, so per-record
// application is commutative. Rebuild fails on the first invalid record;
// callers that tolerate bad records filter before calling.
func Rebuild(records []types.HandoffRecord) (*Index, error) {
	idx := New()
	for _, rec := range records {
		if err := idx.Upsert(rec); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func validateRecord(rec types.HandoffRecord) error {
	if len(rec.SessionID) < 4 {
		return &InvalidRecordError{SessionID: rec.SessionID, Reason: "session_id missing or shorter than 4 characters"}
	}
	if rec.Substance < 0 || rec.Substance > 2 {
		return &InvalidRecordError{SessionID: rec.SessionID, Reason: "substance must be 0, 1, or 2"}
	}
	if rec.DurationMinutes < 0 {
		return &InvalidRecordError{SessionID: rec.SessionID, Reason: "duration_minutes must not be negative"}
	}
	return nil
}

func appendUnique(postings map[string][]string, term, sessionID string) {
	for _, id := range postings[term] {
		if id == sessionID {
			return
		}
	}
	postings[term] = append(postings[term], sessionID)
}

// updateMeta recomputes the summary block from the stored handoffs.
func (idx *Index) updateMeta() {
	idx.Meta.LastUpdated = timeNow().UTC().Format(time.RFC3339)
	idx.Meta.HandoffCount = len(idx.Handoffs)

	var minDate, maxDate string
	for _, rec := range idx.Handoffs {
		if rec.Date == "" {
			continue
		}
		if minDate == "" || rec.Date < minDate {
			minDate = rec.Date
		}
		if maxDate == "" || rec.Date > maxDate {
			maxDate = rec.Date
		}
	}

	if minDate == "" {
		idx.Meta.DateRange = []string{}
	} else {
		idx.Meta.DateRange = []string{minDate, maxDate}
	}
}
