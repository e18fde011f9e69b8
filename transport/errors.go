package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on a Mux after Close.
var ErrClosed = errors.New("transport: mux is closed")

// NakError indicates the board rejected the most recent write with a
// negative acknowledgement. The transport never retries on its own;
// retry policy belongs to the caller.
type NakError struct {
	Tag byte
	Seq uint8
}

func (e *NakError) Error() string {
	return fmt.Sprintf("transport: packet tag %q seq %d rejected with NAK", e.Tag, e.Seq)
}

// AckTimeoutError indicates the board never acknowledged a write
// within the configured window.
type AckTimeoutError struct {
	Tag     byte
	Seq     uint8
	Timeout time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("transport: no ACK for tag %q seq %d within %v", e.Tag, e.Seq, e.Timeout)
}

// ResponseTimeoutError indicates a request was acknowledged but the
// matching asynchronous response never arrived.
type ResponseTimeoutError struct {
	Tag     byte
	Timeout time.Duration
}

func (e *ResponseTimeoutError) Error() string {
	return fmt.Sprintf("transport: no response on tag %q within %v", e.Tag, e.Timeout)
}

// UnrecognizedTrafficError describes a packet whose tag is outside the
// recognized channel set. Such packets are surfaced through the
// observer and counted; this error is how the count is reported.
type UnrecognizedTrafficError struct {
	Tag byte
	Len int
}

func (e *UnrecognizedTrafficError) Error() string {
	return fmt.Sprintf("transport: unrecognized tag 0x%02X with %d payload bytes", e.Tag, e.Len)
}
