package goc

import (
	"fmt"
	"time"
)

// TimingViolationError indicates that a pulse width fell outside every
// tolerance window of the configured timing table. The pulse is
// reported, never coerced to the nearest symbol.
type TimingViolationError struct {
	// Index is the position of the offending event in the pulse train
	Index int

	// Width is the measured pulse width
	Width time.Duration

	// Rising is the edge direction of the offending event
	Rising bool
}

func (e *TimingViolationError) Error() string {
	edge := "falling"
	if e.Rising {
		edge = "rising"
	}
	return fmt.Sprintf("timing violation: %s pulse %d width %s matches no symbol window",
		edge, e.Index, e.Width)
}

// FramingError indicates a structurally malformed pulse train: a
// missing start or stop marker, or an edge sequence that cannot occur
// on a two-level rail.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("pulse train framing error: %s", e.Reason)
}
