package ein

import "fmt"

// ChecksumError indicates that a frame's checksum did not match the
// value computed over its header and payload.
type ChecksumError struct {
	// Expected is the checksum carried in the frame
	Expected uint16

	// Actual is the checksum computed over the received bytes
	Actual uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("frame checksum mismatch: got 0x%04X, expected 0x%04X",
		e.Actual, e.Expected)
}

// LengthError indicates that a frame's declared payload length
// disagrees with the actual frame size.
type LengthError struct {
	// Declared is the payload length carried in the frame header
	Declared int

	// Actual is the frame size implied by the received bytes
	Actual int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("frame length mismatch: declared payload %d bytes, frame holds %d",
		e.Declared, e.Actual)
}

// MarkerError indicates a missing start or end marker.
type MarkerError struct {
	// Position is "start" or "end"
	Position string

	// Got is the byte found at the marker position
	Got byte
}

func (e *MarkerError) Error() string {
	return fmt.Sprintf("invalid %s of frame: got 0x%02X", e.Position, e.Got)
}
