package goc

import (
	"encoding/binary"
	"fmt"
	"time"
)

// PulseEvent is one timestamped logical edge on the GOC rail.
//
// At is the offset from the start of the transmission. Rising events
// carry the on-time of the pulse in Width; falling events carry the
// off-time until the next rising edge.
type PulseEvent struct {
	// At is the offset of the edge from the start of the pulse train
	At time.Duration

	// Rising is true for a rising edge, false for a falling edge
	Rising bool

	// Width is the duration until the opposite edge
	Width time.Duration
}

// Wire encoding constants for pulse trains.
const (
	// PulseWireSize is the encoded size of one PulseEvent in bytes:
	// AT_US(4) + FLAGS|WIDTH_US(4)
	PulseWireSize = 8

	// pulseRisingFlag marks a rising edge in the flags/width word
	pulseRisingFlag = 0x80000000

	// pulseWidthMask extracts the microsecond width from the flags/width word
	pulseWidthMask = 0x7FFFFFFF
)

// MarshalPulses encodes a pulse sequence for the shared transport.
//
// Each event is 8 bytes: a big-endian microsecond offset followed by a
// big-endian word whose high bit marks a rising edge and whose low 31
// bits hold the width in microseconds.
func MarshalPulses(pulses []PulseEvent) []byte {
	out := make([]byte, 0, len(pulses)*PulseWireSize)
	buf := make([]byte, 4)
	for _, p := range pulses {
		binary.BigEndian.PutUint32(buf, uint32(p.At/time.Microsecond))
		out = append(out, buf...)

		w := uint32(p.Width/time.Microsecond) & pulseWidthMask
		if p.Rising {
			w |= pulseRisingFlag
		}
		binary.BigEndian.PutUint32(buf, w)
		out = append(out, buf...)
	}
	return out
}

// UnmarshalPulses decodes a wire-encoded pulse sequence.
func UnmarshalPulses(raw []byte) ([]PulseEvent, error) {
	if len(raw)%PulseWireSize != 0 {
		return nil, fmt.Errorf("pulse train length %d is not a multiple of %d", len(raw), PulseWireSize)
	}

	pulses := make([]PulseEvent, 0, len(raw)/PulseWireSize)
	for off := 0; off < len(raw); off += PulseWireSize {
		at := binary.BigEndian.Uint32(raw[off : off+4])
		w := binary.BigEndian.Uint32(raw[off+4 : off+8])
		pulses = append(pulses, PulseEvent{
			At:     time.Duration(at) * time.Microsecond,
			Rising: w&pulseRisingFlag != 0,
			Width:  time.Duration(w&pulseWidthMask) * time.Microsecond,
		})
	}
	return pulses, nil
}
