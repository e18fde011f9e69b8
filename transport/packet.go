package transport

import "fmt"

// Link tags. Each tag names one logical channel carried by the
// multiplexer. The synchronous ACK/NAK pair acknowledges the most
// recent write; everything else is asynchronous traffic.
const (
	TagAck byte = 0x00
	TagNak byte = 0x01

	TagFlow       byte = 'f' // GOC/EIN flow traffic (pulse trains)
	TagEin        byte = 'e' // EIN framed messages
	TagMbus       byte = 'b' // MBus messages addressed to the board
	TagMbusSnoop  byte = 'B' // MBus messages observed in snoop mode
	TagI2C        byte = 'd' // legacy I2C-framed traffic
	TagPowerSet   byte = 'p' // power rail control
	TagPowerQuery byte = 'P' // power rail query
	TagBusSet     byte = 'm' // bus parameter control (snoop, masks)
	TagBusQuery   byte = 'M' // bus parameter query
	TagVersionSet byte = 'V' // select a negotiated protocol version
	TagVersion    byte = 'v' // enumerate supported protocol versions
	TagCapability byte = '?' // enumerate per-version capabilities
	TagBaud       byte = '_' // change link baud rate
)

// MaxFragmentSize is the largest payload a single link packet can
// carry. A payload of exactly this size marks a fragment that is
// continued by the next packet with the same tag.
const MaxFragmentSize = 255

// headerSize is the fixed [TAG][SEQ][LEN] prefix of every packet.
const headerSize = 3

// Direction tells an Observer which way a packet travelled.
type Direction int

const (
	// DirOut is traffic written by the host toward the board.
	DirOut Direction = iota
	// DirIn is traffic read from the board toward the host.
	DirIn
)

func (d Direction) String() string {
	switch d {
	case DirOut:
		return "out"
	case DirIn:
		return "in"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Packet is one reassembled unit of traffic on a single channel. For
// fragmented channels the payload is the full defragmented message,
// not an individual link fragment.
type Packet struct {
	Tag     byte
	Seq     uint8
	Payload []byte
}

// Observer receives a copy of every link packet in either direction,
// including ACK/NAK replies and unrecognized traffic. Implementations
// must never block: a slow observer may drop, but it cannot stall the
// link.
type Observer interface {
	Observe(dir Direction, tag byte, payload []byte)
}

// Logger mirrors the optional structured logger accepted across this
// module. Any implementation with leveled keysAndValues methods fits;
// zap's SugaredLogger and logr both satisfy it directly.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Recognized reports whether tag belongs to the known channel set.
// Unrecognized tags still reach the observer but are never queued.
func Recognized(tag byte) bool {
	switch tag {
	case TagAck, TagNak,
		TagFlow, TagEin, TagMbus, TagMbusSnoop, TagI2C,
		TagPowerSet, TagPowerQuery, TagBusSet, TagBusQuery,
		TagVersionSet, TagVersion, TagCapability, TagBaud:
		return true
	}
	return false
}
