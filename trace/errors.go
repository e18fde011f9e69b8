package trace

import "fmt"

// WriteFailureError reports that the background sink writer failed.
// Recording continues in memory after the failure; the error is
// surfaced through Recorder.Status.
type WriteFailureError struct {
	Err error
}

func (e *WriteFailureError) Error() string {
	return fmt.Sprintf("trace: sink write failed: %v", e.Err)
}

func (e *WriteFailureError) Unwrap() error { return e.Err }

// ParseError reports a malformed line in a serialized trace.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("trace: line %d: %s", e.Line, e.Reason)
}
