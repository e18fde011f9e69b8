// Package trace records link traffic for snooping and plays it back.
//
// A Recorder attaches to a transport.Mux as its observer and keeps a
// timestamped copy of every packet in both directions, ACK/NAK and
// unrecognized traffic included. Recording never blocks the link: when
// the recorder cannot keep up it drops and counts, and a failing
// export sink is reported out of band through Status.
//
// # Trace Format
//
// Traces serialize one record per line:
//
//	microseconds,dir,tag,hexpayload
//
// where microseconds is the offset from the start of the recording,
// dir is "out" or "in", tag is the two-digit hex channel tag and
// hexpayload the upper-case hex payload (empty for zero-length
// packets). A Replayer reads the same format back and re-emits the
// records with their original relative timing.
package trace
