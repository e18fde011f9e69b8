// Package goc implements the bit/timing codec for the GOC power-glitch
// channel.
//
// # Overview
//
// GOC commands are transmitted by modulating pulse durations on a power
// rail (in practice, by blinking a light at the chip's optical
// receiver). The alphabet is defined entirely by duration thresholds:
// a short pulse encodes a 0 bit, a long pulse encodes a 1 bit, and
// distinguished start/stop pulses bracket every transmission.
//
// The codec is a pure, table-driven transform between logical bits and
// sequences of PulseEvent. Timing thresholds are board-generation
// specific and pinned by TimingForVersion; decoding applies a tolerance
// window around each threshold and reports a TimingViolationError for
// any pulse that falls outside all windows rather than guessing.
//
// # Basic Usage
//
//	codec := goc.NewCodec(goc.TimingForVersion(3))
//
//	pulses := codec.EncodeBytes([]byte{0xA5})
//	bits, err := codec.Decode(pulses)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Wire Format
//
// MarshalPulses and UnmarshalPulses translate pulse sequences to the
// byte representation carried on the shared transport: 8 bytes per
// event, big-endian microsecond offset followed by a flags/width word
// whose high bit marks a rising edge.
package goc
