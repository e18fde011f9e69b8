package ein

import (
	"bytes"
	"errors"
	"testing"
)

func TestBuildParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		dest    byte
		opcode  byte
		payload []byte
	}{
		{
			name:   "empty payload",
			dest:   0x42,
			opcode: OpPing,
		},
		{
			name:    "single byte",
			dest:    0x01,
			opcode:  OpProgram,
			payload: []byte{0xA5},
		},
		{
			name:    "longer payload",
			dest:    0xFF,
			opcode:  OpProgramDone,
			payload: []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x00, 0x11, 0x22},
		},
		{
			name:    "max payload",
			dest:    0x10,
			opcode:  OpProgram,
			payload: bytes.Repeat([]byte{0x5A}, MaxPayloadSize),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := BuildFrame(tt.dest, tt.opcode, tt.payload)
			if err != nil {
				t.Fatalf("BuildFrame() error = %v", err)
			}

			frame, err := ParseFrame(raw)
			if err != nil {
				t.Fatalf("ParseFrame() error = %v", err)
			}
			if frame.Dest != tt.dest {
				t.Errorf("Dest = 0x%02X, want 0x%02X", frame.Dest, tt.dest)
			}
			if frame.Opcode != tt.opcode {
				t.Errorf("Opcode = 0x%02X, want 0x%02X", frame.Opcode, tt.opcode)
			}
			if !bytes.Equal(frame.Payload, tt.payload) {
				t.Errorf("Payload = % X, want % X", frame.Payload, tt.payload)
			}
		})
	}
}

func TestBuildFrameTooLarge(t *testing.T) {
	if _, err := BuildFrame(0x01, OpProgram, make([]byte, MaxPayloadSize+1)); err == nil {
		t.Error("BuildFrame() with oversized payload, want error")
	}
}

func TestParseFrameErrors(t *testing.T) {
	valid, err := BuildFrame(0x42, OpPing, []byte{0x01, 0x02})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		mangle func([]byte) []byte
		want   any
	}{
		{
			name:   "too short",
			mangle: func(b []byte) []byte { return b[:MinFrameSize-1] },
			want:   new(*LengthError),
		},
		{
			name: "bad start marker",
			mangle: func(b []byte) []byte {
				b[0] = 0x55
				return b
			},
			want: new(*MarkerError),
		},
		{
			name: "bad end marker",
			mangle: func(b []byte) []byte {
				b[len(b)-1] = 0x55
				return b
			},
			want: new(*MarkerError),
		},
		{
			name: "declared length too long",
			mangle: func(b []byte) []byte {
				b[3] = 0xF0
				return b
			},
			want: new(*LengthError),
		},
		{
			name: "corrupted payload",
			mangle: func(b []byte) []byte {
				b[5] ^= 0xFF
				return b
			},
			want: new(*ChecksumError),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := append([]byte(nil), valid...)
			raw = tt.mangle(raw)

			_, err := ParseFrame(raw)
			if err == nil {
				t.Fatal("ParseFrame() succeeded, want error")
			}
			switch want := tt.want.(type) {
			case **LengthError:
				if !errors.As(err, want) {
					t.Errorf("error = %v, want *LengthError", err)
				}
			case **MarkerError:
				if !errors.As(err, want) {
					t.Errorf("error = %v, want *MarkerError", err)
				}
			case **ChecksumError:
				if !errors.As(err, want) {
					t.Errorf("error = %v, want *ChecksumError", err)
				}
			}
		})
	}
}

// Flipping any single bit of the payload must change the additive
// checksum and be rejected.
func TestParseFrameSingleBitFlips(t *testing.T) {
	payload := []byte{0x00, 0x55, 0xAA, 0xFF, 0x12, 0x34}
	raw, err := BuildFrame(0x07, OpProgram, payload)
	if err != nil {
		t.Fatal(err)
	}

	payloadStart := 5
	for i := 0; i < len(payload); i++ {
		for bit := 0; bit < 8; bit++ {
			mangled := append([]byte(nil), raw...)
			mangled[payloadStart+i] ^= 1 << bit

			_, err := ParseFrame(mangled)
			var ce *ChecksumError
			if !errors.As(err, &ce) {
				t.Fatalf("flip byte %d bit %d: error = %v, want *ChecksumError", i, bit, err)
			}
		}
	}
}

func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected uint16
	}{
		{
			name:     "empty data",
			data:     []byte{},
			expected: 0x0001,
		},
		{
			name:     "single byte",
			data:     []byte{0x42},
			expected: 0xFFBE,
		},
		{
			name:     "header bytes",
			data:     []byte{0x42, 0x01, 0x02, 0x00},
			expected: 0xFFBB,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := calculateChecksum(tt.data); got != tt.expected {
				t.Errorf("calculateChecksum() = 0x%04X, want 0x%04X", got, tt.expected)
			}
		})
	}
}
