// Package transport owns the single physical link shared by every
// protocol the interposer speaks, and multiplexes GOC pulse trains,
// EIN frames and MBus traffic over it.
//
// # Wire Format
//
// Every link packet is a 3-byte header followed by a payload:
//
//	[TAG][SEQ][LEN][PAYLOAD... (LEN bytes, at most 255)]
//
// The TAG byte is the structural marker that classifies the channel:
// 'f' carries a GOC pulse train, 'e' an EIN frame, 'b' an MBus
// message, 'B' a snooped MBus message, 'p'/'P' power control/query,
// 'm'/'M' bus control/query, 'V'/'v' version negotiation, '?' a
// capability query. 0x00 and 0x01 are the synchronous ACK and NAK
// replies. A payload of exactly 255 bytes is a link fragment continued
// by the next packet with the same tag.
//
// A tag outside the recognized set is classified as unrecognized
// traffic: it is handed to the observer (the snoop recorder) and
// counted, but never delivered to a framer and never dropped silently.
//
// # Concurrency
//
// One dedicated reader goroutine pulls packets and demultiplexes them
// into per-tag queues. Writes are mutually excluded so at most one
// write is in flight; reads proceed concurrently with a write. Each
// Mux is fully independent; run one per attached board.
package transport
