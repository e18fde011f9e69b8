// Package board simulates the interposer board and the chip behind
// it, answering the same link protocol the real hardware speaks.
//
// A Simulator owns the board end of a duplex connection, normally one
// side of transport.Pipe or a pseudo-terminal pair. It acknowledges
// every link packet, negotiates a protocol version before serving any
// other channel, mirrors power rail state, decodes GOC pulse trains
// against the negotiated timing, answers EIN pings with its chip ID,
// and acknowledges or rejects bus messages according to its address
// policy (ack-all, or an address mask with don't-care bits).
//
// Two traffic drivers exist and are mutually exclusive: a live driver
// that can synthesize periodic bus chatter for exercising snoop
// consumers, and a replay driver that re-emits a previously captured
// trace with its original timing.
package board
