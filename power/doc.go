// Package power tracks and drives the logical power rails that gate
// protocol delivery.
//
// # Overview
//
// The interposer exposes independent rails (core 0.6V-class, 1.2V-class
// I/O, battery, and the GOC drive circuit). Each protocol channel is
// gated by one rail: traffic on a channel is only decodable while its
// governing rail is energized, and a power-down transition invalidates
// any in-flight partial frame on that channel.
//
// The Controller is a pure state machine over rail states plus timed
// resets. Rail transitions are the only path by which channels become
// enabled or disabled; callers check Require before touching the
// transport and register a GateListener to flush per-channel state on
// power-down.
//
// # Resets
//
// A reset cycles the target rail(s) off and restores the prior non-off
// states after a settle delay. The settle wait is not cancellable
// mid-flight; a second reset issued while one is in progress fails
// with ResetInProgressError.
package power
