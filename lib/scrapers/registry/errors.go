package registry

import (
	"errors"
	"fmt"
)

// ErrNotReady means a search or lookup ran on a session that never
// made it past the entry gate. Programming error, not a portal one.
var ErrNotReady = errors.New("session has not passed the entry gate")

// ErrInvalidDateRange surfaces the portal's one-calendar-month limit.
// Chunk splitting upstream should make this unreachable; it exists as
// a defensive check.
var ErrInvalidDateRange = errors.New("search range exceeds one calendar month")

// ErrDocumentUnavailable means a filing's document could not be
// retrieved by any strategy. Taken per filing, it does not abort a
// batch.
var ErrDocumentUnavailable = errors.New("document unavailable")

// GateBypassError reports where the session was stuck after the full
// bypass sequence ran.
type GateBypassError struct {
	Location   string
	Challenges int
}

func (e *GateBypassError) Error() string {
	return fmt.Sprintf(
		"gate bypass failed: still at %s after %d challenge(s)",
		e.Location, e.Challenges,
	)
}
