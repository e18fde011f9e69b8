package mbus

import (
	"encoding/binary"
	"fmt"

	"github.com/sigurn/crc16"
)

// Address is a 32-bit MBus node address. Addresses whose upper 28 bits
// are zero are 4-bit broadcast channels rather than node addresses.
type Address uint32

// IsBroadcast reports whether the address is a broadcast channel.
func (a Address) IsBroadcast() bool {
	return a&0xFFFFFFF0 == 0
}

// Channel returns the 4-bit broadcast channel number. Only meaningful
// when IsBroadcast is true.
func (a Address) Channel() uint8 {
	return uint8(a & 0x0F)
}

func (a Address) String() string {
	if a.IsBroadcast() {
		return fmt.Sprintf("bcast:%X", a.Channel())
	}
	return fmt.Sprintf("%08X", uint32(a))
}

// Framing constants.
const (
	// HeaderSize is the fixed fragment header size in bytes:
	// SRC(4) + DST(4) + MSG_ID(1) + FRAG_IDX(1) + FLAGS(1) + LEN(1)
	HeaderSize = 12

	// CRCSize is the size of the trailing CRC in bytes
	CRCSize = 2

	// MaxPayload is the maximum payload per fragment, chosen so one
	// fragment always fits in a single 255-byte link packet
	MaxPayload = 255 - HeaderSize - CRCSize

	// MaxFragments is the most fragments one message can carry, bounded
	// by the 8-bit fragment index
	MaxFragments = 256

	// flagLast marks the final fragment of a message
	flagLast = 0x01
)

// crcTable is the CRC-16/CCITT-FALSE table used for all fragments.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Message is one MBus fragment. A payload that fits in a single
// fragment is a message with FragIndex 0 and Last set.
type Message struct {
	// Source is the sending node address
	Source Address

	// Dest is the destination node address or broadcast channel
	Dest Address

	// MsgID identifies the message all fragments belong to
	MsgID uint8

	// FragIndex is the fragment's position within the message
	FragIndex uint8

	// Last marks the final fragment
	Last bool

	// Payload is this fragment's payload chunk
	Payload []byte
}

// MarshalBinary serializes the fragment and appends its CRC.
func (m *Message) MarshalBinary() ([]byte, error) {
	if len(m.Payload) > MaxPayload {
		return nil, fmt.Errorf("fragment payload %d exceeds maximum %d bytes", len(m.Payload), MaxPayload)
	}

	buf := make([]byte, 0, HeaderSize+len(m.Payload)+CRCSize)
	word := make([]byte, 4)

	binary.BigEndian.PutUint32(word, uint32(m.Source))
	buf = append(buf, word...)
	binary.BigEndian.PutUint32(word, uint32(m.Dest))
	buf = append(buf, word...)

	buf = append(buf, m.MsgID, m.FragIndex)

	var flags byte
	if m.Last {
		flags |= flagLast
	}
	buf = append(buf, flags, byte(len(m.Payload)))
	buf = append(buf, m.Payload...)

	crc := crc16.Checksum(buf, crcTable)
	buf = append(buf, byte(crc>>8), byte(crc))
	return buf, nil
}

// UnmarshalBinary parses a fragment and verifies its CRC.
func (m *Message) UnmarshalBinary(raw []byte) error {
	if len(raw) < HeaderSize+CRCSize {
		return &CRCError{Reason: fmt.Sprintf("fragment too short: %d bytes", len(raw))}
	}

	declared := int(raw[HeaderSize-1])
	if len(raw) != HeaderSize+declared+CRCSize {
		return &CRCError{Reason: fmt.Sprintf("declared payload %d bytes, fragment holds %d",
			declared, len(raw)-HeaderSize-CRCSize)}
	}

	body := raw[:len(raw)-CRCSize]
	got := uint16(raw[len(raw)-2])<<8 | uint16(raw[len(raw)-1])
	want := crc16.Checksum(body, crcTable)
	if got != want {
		return &CRCError{Reason: fmt.Sprintf("checksum mismatch: got 0x%04X, computed 0x%04X", got, want)}
	}

	m.Source = Address(binary.BigEndian.Uint32(raw[0:4]))
	m.Dest = Address(binary.BigEndian.Uint32(raw[4:8]))
	m.MsgID = raw[8]
	m.FragIndex = raw[9]
	m.Last = raw[10]&flagLast != 0
	m.Payload = nil
	if declared > 0 {
		m.Payload = make([]byte, declared)
		copy(m.Payload, raw[HeaderSize:HeaderSize+declared])
	}
	return nil
}

// Fragment splits a payload into ordered fragments of at most
// MaxPayload bytes each.
//
// Broadcast destinations are never fragmented: a broadcast payload
// that does not fit in one fragment yields a BroadcastTooLargeError.
// A payload needing more than MaxFragments fragments would wrap the
// 8-bit fragment index and yields a MessageTooLargeError. An empty
// payload produces a single empty fragment.
func Fragment(src, dst Address, msgID uint8, payload []byte) ([]Message, error) {
	if dst.IsBroadcast() && len(payload) > MaxPayload {
		return nil, &BroadcastTooLargeError{Channel: dst.Channel(), Size: len(payload)}
	}

	n := (len(payload) + MaxPayload - 1) / MaxPayload
	if n == 0 {
		n = 1
	}
	if n > MaxFragments {
		return nil, &MessageTooLargeError{Size: len(payload)}
	}

	frags := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		lo := i * MaxPayload
		hi := lo + MaxPayload
		if hi > len(payload) {
			hi = len(payload)
		}
		frags = append(frags, Message{
			Source:    src,
			Dest:      dst,
			MsgID:     msgID,
			FragIndex: uint8(i),
			Last:      i == n-1,
			Payload:   payload[lo:hi],
		})
	}
	return frags, nil
}
