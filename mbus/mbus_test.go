package mbus

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestAddressBroadcast(t *testing.T) {
	tests := []struct {
		addr      Address
		broadcast bool
	}{
		{0x00000000, true},
		{0x0000000F, true},
		{0x00000007, true},
		{0x00000010, false},
		{0xF0012345, false},
		{0x00000074, false},
	}

	for _, tt := range tests {
		if got := tt.addr.IsBroadcast(); got != tt.broadcast {
			t.Errorf("Address(%08X).IsBroadcast() = %v, want %v", uint32(tt.addr), got, tt.broadcast)
		}
	}
}

func TestMessageMarshalRoundTrip(t *testing.T) {
	m := Message{
		Source:    0xF0012345,
		Dest:      0x00000074,
		MsgID:     7,
		FragIndex: 2,
		Last:      true,
		Payload:   []byte{0xDE, 0xAD, 0xBE, 0xEF},
	}

	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary() error = %v", err)
	}

	var got Message
	if err := got.UnmarshalBinary(raw); err != nil {
		t.Fatalf("UnmarshalBinary() error = %v", err)
	}
	if got.Source != m.Source || got.Dest != m.Dest || got.MsgID != m.MsgID ||
		got.FragIndex != m.FragIndex || got.Last != m.Last {
		t.Errorf("round trip = %+v, want %+v", got, m)
	}
	if !bytes.Equal(got.Payload, m.Payload) {
		t.Errorf("Payload = % X, want % X", got.Payload, m.Payload)
	}
}

func TestMessageCRCRejection(t *testing.T) {
	m := Message{Source: 0x00000074, Dest: 0x00000022, MsgID: 1, Last: true,
		Payload: []byte{0xA5, 0xA5}}
	raw, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}

	for i := range raw {
		mangled := append([]byte(nil), raw...)
		mangled[i] ^= 0x01

		var got Message
		err := got.UnmarshalBinary(mangled)
		var ce *CRCError
		if !errors.As(err, &ce) {
			t.Fatalf("flip of byte %d: error = %v, want *CRCError", i, err)
		}
	}
}

func TestFragmentReassembleRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{name: "empty", size: 0},
		{name: "one byte", size: 1},
		{name: "exactly one fragment", size: MaxPayload},
		{name: "one byte over", size: MaxPayload + 1},
		{name: "many fragments", size: MaxPayload*4 + 17},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := make([]byte, tt.size)
			for i := range payload {
				payload[i] = byte(i)
			}

			frags, err := Fragment(0xF0012345, 0x00000074, 9, payload)
			if err != nil {
				t.Fatalf("Fragment() error = %v", err)
			}

			r := NewReassembler()
			var got []byte
			for i, f := range frags {
				out, err := r.Add(f)
				if i < len(frags)-1 {
					if !errors.Is(err, ErrIncomplete) {
						t.Fatalf("Add(frag %d) error = %v, want ErrIncomplete", i, err)
					}
					continue
				}
				if err != nil {
					t.Fatalf("Add(last frag) error = %v", err)
				}
				got = out
			}
			if !bytes.Equal(got, payload) {
				t.Errorf("reassembled %d bytes, want %d", len(got), len(payload))
			}
			if r.Pending() != 0 {
				t.Errorf("Pending() = %d after completion, want 0", r.Pending())
			}
		})
	}
}

func TestReassembleOutOfOrder(t *testing.T) {
	payload := make([]byte, MaxPayload*3)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	frags, err := Fragment(0x00000033, 0x00000044, 3, payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(frags) != 3 {
		t.Fatalf("Fragment() produced %d fragments, want 3", len(frags))
	}

	r := NewReassembler()
	for _, idx := range []int{2, 0, 1} {
		out, err := r.Add(frags[idx])
		if idx != 1 {
			if !errors.Is(err, ErrIncomplete) {
				t.Fatalf("Add(frag %d) error = %v, want ErrIncomplete", idx, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("Add(final arrival) error = %v", err)
		}
		if !bytes.Equal(out, payload) {
			t.Error("out-of-order reassembly produced wrong payload")
		}
	}
}

func TestReassembleProperSubsetStaysIncomplete(t *testing.T) {
	payload := make([]byte, MaxPayload*4)
	frags, err := Fragment(0x00000033, 0x00000044, 5, payload)
	if err != nil {
		t.Fatal(err)
	}

	// Every proper subset that includes the Last fragment must still
	// report Incomplete, never a corrupted partial payload.
	for skip := 0; skip < len(frags)-1; skip++ {
		r := NewReassembler()
		var lastErr error
		for i, f := range frags {
			if i == skip {
				continue
			}
			_, lastErr = r.Add(f)
		}
		if !errors.Is(lastErr, ErrIncomplete) {
			t.Errorf("subset missing frag %d: error = %v, want ErrIncomplete", skip, lastErr)
		}
	}
}

func TestBroadcastTooLarge(t *testing.T) {
	_, err := Fragment(0x00000033, 0x0000000F, 1, make([]byte, MaxPayload+1))
	var be *BroadcastTooLargeError
	if !errors.As(err, &be) {
		t.Fatalf("Fragment() error = %v, want *BroadcastTooLargeError", err)
	}

	// A broadcast that fits must pass.
	frags, err := Fragment(0x00000033, 0x0000000F, 1, make([]byte, MaxPayload))
	if err != nil {
		t.Fatalf("Fragment() error = %v", err)
	}
	if len(frags) != 1 || !frags[0].Last {
		t.Error("in-range broadcast must be a single Last fragment")
	}
}

func TestFragmentIndexCannotWrap(t *testing.T) {
	// One byte past the largest message the 8-bit fragment index can
	// number. Without the bound the index wraps and the wrapped Last
	// fragment completes reassembly with a tiny corrupted payload.
	_, err := Fragment(0x00000033, 0x00000044, 1, make([]byte, MaxFragments*MaxPayload+1))
	var te *MessageTooLargeError
	if !errors.As(err, &te) {
		t.Fatalf("Fragment() error = %v, want *MessageTooLargeError", err)
	}
	if te.Size != MaxFragments*MaxPayload+1 {
		t.Errorf("Size = %d, want %d", te.Size, MaxFragments*MaxPayload+1)
	}

	// The largest in-range payload must fragment cleanly.
	frags, err := Fragment(0x00000033, 0x00000044, 1, make([]byte, MaxFragments*MaxPayload))
	if err != nil {
		t.Fatalf("Fragment() error = %v", err)
	}
	if len(frags) != MaxFragments {
		t.Fatalf("Fragment() produced %d fragments, want %d", len(frags), MaxFragments)
	}
	last := frags[len(frags)-1]
	if last.FragIndex != MaxFragments-1 || !last.Last {
		t.Errorf("final fragment index = %d, Last = %v; want %d, true",
			last.FragIndex, last.Last, MaxFragments-1)
	}
}

func TestReassemblyTimeout(t *testing.T) {
	payload := make([]byte, MaxPayload*2)
	frags, err := Fragment(0x00000033, 0x00000044, 8, payload)
	if err != nil {
		t.Fatal(err)
	}

	clock := time.Now()
	r := NewReassembler(WithTimeout(100 * time.Millisecond))
	r.now = func() time.Time { return clock }

	if _, err := r.Add(frags[0]); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Add() error = %v, want ErrIncomplete", err)
	}

	clock = clock.Add(200 * time.Millisecond)

	_, err = r.Add(frags[1])
	var te *ReassemblyTimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("Add() after timeout error = %v, want *ReassemblyTimeoutError", err)
	}
	if te.Received != 1 {
		t.Errorf("Received = %d, want 1", te.Received)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after timeout, want 0", r.Pending())
	}
}

func TestSweep(t *testing.T) {
	clock := time.Now()
	r := NewReassembler(WithTimeout(50 * time.Millisecond))
	r.now = func() time.Time { return clock }

	frags, _ := Fragment(0x00000011, 0x00000022, 1, make([]byte, MaxPayload*2))
	if _, err := r.Add(frags[0]); !errors.Is(err, ErrIncomplete) {
		t.Fatal(err)
	}

	if errs := r.Sweep(); len(errs) != 0 {
		t.Fatalf("Sweep() before timeout = %d errors, want 0", len(errs))
	}

	clock = clock.Add(time.Second)
	errs := r.Sweep()
	if len(errs) != 1 {
		t.Fatalf("Sweep() = %d errors, want 1", len(errs))
	}
	var te *ReassemblyTimeoutError
	if !errors.As(errs[0], &te) {
		t.Errorf("Sweep() error = %v, want *ReassemblyTimeoutError", errs[0])
	}
}

func TestReset(t *testing.T) {
	r := NewReassembler()
	frags, _ := Fragment(0x00000011, 0x00000022, 1, make([]byte, MaxPayload*2))
	if _, err := r.Add(frags[0]); !errors.Is(err, ErrIncomplete) {
		t.Fatal(err)
	}
	r.Reset()
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d after Reset, want 0", r.Pending())
	}
}
