// Package ein implements the EIN framed command/response protocol.
//
// # Overview
//
// EIN is the byte-framed debug channel layered over the shared ICE
// transport, used for richer chip commands than GOC can carry. Frames
// are addressed to a chip, carry an opcode and an opaque payload, and
// are protected by an additive two's-complement checksum.
//
// Frame structure:
//
//	[SOP][DEST][OPCODE][LEN_L][LEN_H][PAYLOAD...][CHECKSUM_L][CHECKSUM_H][EOP]
//
// The checksum covers DEST through PAYLOAD. A frame with a mismatched
// checksum is rejected whole; it is never partially applied.
//
// # Basic Usage
//
//	raw, err := ein.BuildFrame(0x42, ein.OpPing, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	frame, err := ein.ParseFrame(raw)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The framer is stateless: every call is independent and safe for
// concurrent use.
package ein
