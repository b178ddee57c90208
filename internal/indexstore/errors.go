// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package indexstore

import (
	"errors"
	"fmt"
)

// ErrCorruptIndex reports that a persisted index file exists but fails
// structural validation. The store never repairs in place; the recovery
// path is a rebuild from the handoff markdown files.
var ErrCorruptIndex = errors.New("corrupt index")

// ErrNotFound reports a lookup for a session id absent from the index.
var ErrNotFound = errors.New("session not found")

// InvalidRecordError reports a handoff record that failed shape validation.
// The record is rejected whole; the index is left unchanged.
type InvalidRecordError struct {
	SessionID string
	Reason    string
}

func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid handoff record %q: %s", e.SessionID, e.Reason)
}
