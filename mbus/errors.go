package mbus

import (
	"errors"
	"fmt"
	"time"
)

// ErrIncomplete is returned by Reassembler.Add while fragments of a
// message are still outstanding. It is a progress signal, not a
// failure.
var ErrIncomplete = errors.New("mbus: message incomplete")

// CRCError indicates a fragment that failed structural or CRC
// validation.
type CRCError struct {
	Reason string
}

func (e *CRCError) Error() string {
	return "mbus fragment rejected: " + e.Reason
}

// BroadcastTooLargeError indicates an attempt to send a broadcast
// payload that does not fit in a single fragment.
type BroadcastTooLargeError struct {
	// Channel is the broadcast channel that was addressed
	Channel uint8

	// Size is the offending payload size
	Size int
}

func (e *BroadcastTooLargeError) Error() string {
	return fmt.Sprintf("broadcast to channel %X too large: %d bytes exceeds single-fragment maximum %d",
		e.Channel, e.Size, MaxPayload)
}

// MessageTooLargeError indicates a payload needing more fragments than
// the fragment index can number.
type MessageTooLargeError struct {
	// Size is the offending payload size
	Size int
}

func (e *MessageTooLargeError) Error() string {
	return fmt.Sprintf("message too large: %d bytes exceeds the %d-byte maximum of %d fragments",
		e.Size, MaxFragments*MaxPayload, MaxFragments)
}

// ReassemblyTimeoutError indicates that a partially received message
// was discarded because no fragment arrived within the timeout.
type ReassemblyTimeoutError struct {
	// Source and Dest identify the abandoned message
	Source Address
	Dest   Address

	// MsgID is the abandoned message identity
	MsgID uint8

	// Received is the number of fragments that had arrived
	Received int

	// Age is how long the partial buffer had been idle
	Age time.Duration
}

func (e *ReassemblyTimeoutError) Error() string {
	return fmt.Sprintf("reassembly of %s->%s msg %d timed out after %s with %d fragment(s) buffered",
		e.Source, e.Dest, e.MsgID, e.Age, e.Received)
}
