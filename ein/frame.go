package ein

import (
	"encoding/binary"
	"fmt"
)

// Frame is one parsed EIN frame.
type Frame struct {
	// Dest is the destination chip address
	Dest byte

	// Opcode identifies the command or response
	Opcode byte

	// Payload is the opaque command payload
	Payload []byte
}

// BuildFrame constructs a serialized EIN frame.
//
// Frame structure:
//
//	[SOP][DEST][OPCODE][LEN_L][LEN_H][PAYLOAD...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// Returns the complete frame ready to send, or an error if the payload
// exceeds MaxPayloadSize.
func BuildFrame(dest byte, opcode byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("payload length %d exceeds maximum %d bytes", len(payload), MaxPayloadSize)
	}

	frame := make([]byte, 0, MinFrameSize+len(payload))

	frame = append(frame, StartOfFrame)
	frame = append(frame, dest)
	frame = append(frame, opcode)

	lenBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(lenBytes, uint16(len(payload)))
	frame = append(frame, lenBytes...)

	frame = append(frame, payload...)

	checksum := calculateChecksum(frame[1:])
	checksumBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(checksumBytes, checksum)
	frame = append(frame, checksumBytes...)

	frame = append(frame, EndOfFrame)

	return frame, nil
}

// ParseFrame validates a serialized frame and extracts its fields.
//
// Validation order: markers, declared length against actual size,
// checksum. A frame that fails any check is rejected whole.
func ParseFrame(raw []byte) (*Frame, error) {
	if len(raw) < MinFrameSize {
		return nil, &LengthError{Declared: 0, Actual: len(raw)}
	}

	if raw[0] != StartOfFrame {
		return nil, &MarkerError{Position: "start", Got: raw[0]}
	}
	if raw[len(raw)-1] != EndOfFrame {
		return nil, &MarkerError{Position: "end", Got: raw[len(raw)-1]}
	}

	declared := int(binary.LittleEndian.Uint16(raw[3:5]))
	if len(raw) != MinFrameSize+declared {
		return nil, &LengthError{Declared: declared, Actual: len(raw) - MinFrameSize}
	}

	expected := binary.LittleEndian.Uint16(raw[len(raw)-3 : len(raw)-1])
	actual := calculateChecksum(raw[1 : len(raw)-3])
	if expected != actual {
		return nil, &ChecksumError{Expected: expected, Actual: actual}
	}

	frame := &Frame{
		Dest:   raw[1],
		Opcode: raw[2],
	}
	if declared > 0 {
		frame.Payload = make([]byte, declared)
		copy(frame.Payload, raw[5:5+declared])
	}
	return frame, nil
}

// calculateChecksum computes the 16-bit frame checksum: sum all bytes,
// then two's complement. Covers DEST through PAYLOAD.
func calculateChecksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return 1 + (0xFFFF ^ sum)
}
