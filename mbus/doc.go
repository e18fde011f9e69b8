// Package mbus implements framing, fragmentation and reassembly for
// the MBus multi-drop message bus.
//
// # Overview
//
// MBus connects every chip attached to the interposer. Messages are
// addressed (with broadcast channels), CRC-protected per fragment, and
// payloads larger than one fragment are split and reassembled in
// fragment-index order regardless of arrival order.
//
// Fragment wire format:
//
//	[SRC(4)][DST(4)][MSG_ID][FRAG_IDX][FLAGS][LEN][PAYLOAD...][CRC(2)]
//
// The CRC is CRC-16/CCITT-FALSE over all preceding fields.
//
// # Basic Usage
//
//	frags, err := mbus.Fragment(src, dst, msgID, payload)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := mbus.NewReassembler(mbus.WithTimeout(2 * time.Second))
//	for _, f := range frags {
//	    payload, err := r.Add(f)
//	    if errors.Is(err, mbus.ErrIncomplete) {
//	        continue
//	    }
//	    // payload is complete
//	}
//
// Reassembly state is keyed by (source, destination, message identity);
// distinct keys never contend on shared partial state. Broadcast
// destinations must fit in a single fragment.
package mbus
