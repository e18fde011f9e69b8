package power

import "fmt"

// RailNotEnergizedError indicates a protocol operation attempted while
// the channel's governing rail is off. The operation performed no
// transport writes.
type RailNotEnergizedError struct {
	// Channel is the channel that was used
	Channel Channel

	// Rail is the de-energized governing rail
	Rail Rail
}

func (e *RailNotEnergizedError) Error() string {
	return fmt.Sprintf("%s channel unavailable: %s rail is not energized", e.Channel, e.Rail)
}

// ResetInProgressError indicates a reset was requested while another
// reset's settle delay had not yet elapsed.
type ResetInProgressError struct{}

func (e *ResetInProgressError) Error() string {
	return "reset already in progress"
}
