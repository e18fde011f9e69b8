package goc

import "time"

// Codec translates between logical bits and pulse trains using one
// pinned timing table. The zero value is not usable; construct with
// NewCodec. All methods are pure and safe for concurrent use.
type Codec struct {
	timing Timing
}

// NewCodec creates a codec for the given timing table.
//
// Example:
//
//	codec := goc.NewCodec(goc.TimingForVersion(3))
func NewCodec(t Timing) *Codec {
	return &Codec{timing: t}
}

// Timing returns the codec's timing table.
func (c *Codec) Timing() Timing {
	return c.timing
}

// Encode produces the pulse train for a bit sequence: a start marker,
// one pulse per bit (short for 0, long for 1), and a stop marker, with
// the table's gap between consecutive pulses. Falling-edge events
// carrying the gap widths are included so the train round-trips
// through a snoop capture.
func (c *Codec) Encode(bits []bool) []PulseEvent {
	pulses := make([]PulseEvent, 0, 2*(len(bits)+2))
	at := time.Duration(0)

	emit := func(width time.Duration) {
		pulses = append(pulses, PulseEvent{At: at, Rising: true, Width: width})
		at += width
		pulses = append(pulses, PulseEvent{At: at, Rising: false, Width: c.timing.Gap})
		at += c.timing.Gap
	}

	emit(c.timing.Start)
	for _, b := range bits {
		if b {
			emit(c.timing.Long)
		} else {
			emit(c.timing.Short)
		}
	}
	emit(c.timing.Stop)

	// The final falling edge has no following pulse; drop its gap.
	pulses[len(pulses)-1].Width = 0
	return pulses
}

// EncodeBytes encodes a byte sequence MSB first.
func (c *Codec) EncodeBytes(data []byte) []PulseEvent {
	bits := make([]bool, 0, len(data)*8)
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			bits = append(bits, b&(1<<i) != 0)
		}
	}
	return c.Encode(bits)
}

// Decode recovers the bit sequence from a pulse train.
//
// The train must begin with a start marker and end with a stop marker.
// Every rising pulse width is classified against the tolerance windows
// of the timing table; a width outside all windows yields a
// TimingViolationError. Falling edges are validated against the gap
// window and carry no data; only the trailing edge, which has no
// following pulse, may carry width zero.
func (c *Codec) Decode(pulses []PulseEvent) ([]bool, error) {
	var symbols []time.Duration
	for i, p := range pulses {
		if !p.Rising {
			if p.Width == 0 && i == len(pulses)-1 {
				continue
			}
			if !c.timing.window(p.Width, c.timing.Gap) {
				return nil, &TimingViolationError{Index: i, Width: p.Width, Rising: false}
			}
			continue
		}
		if !c.validWidth(p.Width) {
			return nil, &TimingViolationError{Index: i, Width: p.Width, Rising: true}
		}
		symbols = append(symbols, p.Width)
	}

	if len(symbols) < 2 {
		return nil, &FramingError{Reason: "train shorter than start+stop markers"}
	}
	if !c.timing.window(symbols[0], c.timing.Start) {
		return nil, &FramingError{Reason: "missing start marker"}
	}
	if !c.timing.window(symbols[len(symbols)-1], c.timing.Stop) {
		return nil, &FramingError{Reason: "missing stop marker"}
	}

	bits := make([]bool, 0, len(symbols)-2)
	for _, w := range symbols[1 : len(symbols)-1] {
		switch {
		case c.timing.window(w, c.timing.Short):
			bits = append(bits, false)
		case c.timing.window(w, c.timing.Long):
			bits = append(bits, true)
		default:
			// A marker width in a data position is a framing problem,
			// not a timing one.
			return nil, &FramingError{Reason: "marker pulse inside data section"}
		}
	}
	return bits, nil
}

// DecodeBytes decodes a pulse train whose bit count is a multiple of
// eight into bytes, MSB first.
func (c *Codec) DecodeBytes(pulses []PulseEvent) ([]byte, error) {
	bits, err := c.Decode(pulses)
	if err != nil {
		return nil, err
	}
	if len(bits)%8 != 0 {
		return nil, &FramingError{Reason: "bit count is not a whole number of bytes"}
	}

	data := make([]byte, len(bits)/8)
	for i, b := range bits {
		if b {
			data[i/8] |= 1 << (7 - i%8)
		}
	}
	return data, nil
}

// validWidth reports whether a rising pulse width matches any symbol
// window of the table.
func (c *Codec) validWidth(w time.Duration) bool {
	return c.timing.window(w, c.timing.Short) ||
		c.timing.window(w, c.timing.Long) ||
		c.timing.window(w, c.timing.Start) ||
		c.timing.window(w, c.timing.Stop)
}
