package ein

// Frame structure constants.
const (
	// StartOfFrame is the frame start marker (0x01)
	StartOfFrame = 0x01

	// EndOfFrame is the frame end marker (0x17)
	EndOfFrame = 0x17

	// MinFrameSize is the minimum frame size in bytes:
	// SOP(1) + DEST(1) + OPCODE(1) + LEN(2) + CHECKSUM(2) + EOP(1)
	MinFrameSize = 8

	// MaxPayloadSize is the maximum payload per frame. Bounded so a
	// frame always fits in a handful of link packets.
	MaxPayloadSize = 1024
)

// Opcodes understood by the virtual chip and by real boards of the
// supported generations.
const (
	// OpPing requests an OpPong response carrying the chip identity
	OpPing = 0x01

	// OpPong is the response to OpPing
	OpPong = 0x02

	// OpStatus requests the chip's current run state
	OpStatus = 0x03

	// OpProgram carries one chunk of a programming image
	OpProgram = 0x10

	// OpProgramDone ends a programming sequence; payload is the image
	// checksum the chip must verify before leaving programming mode
	OpProgramDone = 0x11

	// OpStart commands the chip to begin executing its program
	OpStart = 0x20

	// OpAck is a generic positive response with no payload
	OpAck = 0x7F
)
