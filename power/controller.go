package power

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Rail identifies one independent power rail on the board.
type Rail int

const (
	// Rail0P6 is the 0.6V-class rail powering the MBus I/O cells
	Rail0P6 Rail = iota

	// Rail1P2 is the 1.2V-class core rail powering the EIN debug port
	Rail1P2

	// RailVBatt is the battery rail
	RailVBatt

	// RailGOC is the GOC drive circuit
	RailGOC

	railCount
)

func (r Rail) String() string {
	switch r {
	case Rail0P6:
		return "0.6V"
	case Rail1P2:
		return "1.2V"
	case RailVBatt:
		return "vbatt"
	case RailGOC:
		return "goc"
	default:
		return fmt.Sprintf("rail(%d)", int(r))
	}
}

// RailState is the logical drive level of a rail.
type RailState int

const (
	// StateOff de-energizes the rail
	StateOff RailState = iota

	// StateLow drives the 0.6V-class level
	StateLow

	// StateMid drives the 1.2V-class level
	StateMid

	// StateHigh drives the 1.8V-class level
	StateHigh
)

func (s RailState) String() string {
	switch s {
	case StateOff:
		return "off"
	case StateLow:
		return "0.6V"
	case StateMid:
		return "1.2V"
	case StateHigh:
		return "1.8V"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Channel is a protocol channel gated by a rail.
type Channel int

const (
	// ChannelGOC is gated by the GOC drive circuit
	ChannelGOC Channel = iota

	// ChannelEIN is gated by the 1.2V core rail
	ChannelEIN

	// ChannelMBus is gated by the 0.6V bus I/O rail
	ChannelMBus
)

func (c Channel) String() string {
	switch c {
	case ChannelGOC:
		return "GOC"
	case ChannelEIN:
		return "EIN"
	case ChannelMBus:
		return "MBus"
	default:
		return fmt.Sprintf("channel(%d)", int(c))
	}
}

// GoverningRail returns the rail that gates the channel.
func (c Channel) GoverningRail() Rail {
	switch c {
	case ChannelGOC:
		return RailGOC
	case ChannelEIN:
		return Rail1P2
	default:
		return Rail0P6
	}
}

// ResetKind selects the scope of a reset.
type ResetKind int

const (
	// ResetSoft power-cycles a single rail
	ResetSoft ResetKind = iota

	// ResetHard power-cycles all rails
	ResetHard
)

// GateListener is notified when a rail powers down, so in-flight
// partial frames on the affected channels can be invalidated.
type GateListener interface {
	// RailDown is called with every channel whose governing rail just
	// de-energized. It must not block.
	RailDown(ch Channel)
}

// DefaultSettleDelay is the time a rail needs after a reset before
// protocol decoding resumes.
const DefaultSettleDelay = 50 * time.Millisecond

// Option configures a Controller.
type Option func(*Controller)

// WithSettleDelay sets the post-reset settle delay.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.settle = d
		}
	}
}

// WithGateListener registers the listener notified on power-downs.
func WithGateListener(l GateListener) Option {
	return func(c *Controller) {
		c.listener = l
	}
}

// Controller owns the rail states for one board. All rails start off.
// Safe for concurrent use; at most one reset may be in flight.
type Controller struct {
	mu        sync.Mutex
	states    [railCount]RailState
	settle    time.Duration
	listener  GateListener
	resetting bool
}

// NewController creates a controller with all rails off.
func NewController(opts ...Option) *Controller {
	c := &Controller{settle: DefaultSettleDelay}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetRail drives a rail to the given state.
func (c *Controller) SetRail(rail Rail, state RailState) error {
	if rail < 0 || rail >= railCount {
		return fmt.Errorf("invalid rail: %d", int(rail))
	}

	c.mu.Lock()
	prev := c.states[rail]
	c.states[rail] = state
	listener := c.listener
	c.mu.Unlock()

	if prev != StateOff && state == StateOff && listener != nil {
		for _, ch := range railChannels(rail) {
			listener.RailDown(ch)
		}
	}
	return nil
}

// State returns the current state of a rail.
func (c *Controller) State(rail Rail) RailState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.states[rail]
}

// Energized reports whether a rail is in any non-off state.
func (c *Controller) Energized(rail Rail) bool {
	return c.State(rail) != StateOff
}

// Require fails with RailNotEnergizedError unless the channel's
// governing rail is energized.
func (c *Controller) Require(ch Channel) error {
	rail := ch.GoverningRail()
	if !c.Energized(rail) {
		return &RailNotEnergizedError{Channel: ch, Rail: rail}
	}
	return nil
}

// Reset power-cycles the target rail (soft) or all rails (hard): the
// rails go off, the settle delay elapses, and the prior non-off states
// are restored. The settle wait is not cancellable mid-flight; ctx is
// only consulted before the cycle begins. A concurrent reset fails
// with ResetInProgressError.
func (c *Controller) Reset(ctx context.Context, kind ResetKind, rail Rail) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.resetting {
		c.mu.Unlock()
		return &ResetInProgressError{}
	}
	c.resetting = true

	var targets []Rail
	if kind == ResetHard {
		for r := Rail(0); r < railCount; r++ {
			targets = append(targets, r)
		}
	} else {
		targets = []Rail{rail}
	}

	prior := make(map[Rail]RailState, len(targets))
	var downed []Channel
	for _, r := range targets {
		prior[r] = c.states[r]
		if c.states[r] != StateOff {
			downed = append(downed, railChannels(r)...)
		}
		c.states[r] = StateOff
	}
	listener := c.listener
	settle := c.settle
	c.mu.Unlock()

	if listener != nil {
		for _, ch := range downed {
			listener.RailDown(ch)
		}
	}

	time.Sleep(settle)

	c.mu.Lock()
	for r, s := range prior {
		if s != StateOff {
			c.states[r] = s
		}
	}
	c.resetting = false
	c.mu.Unlock()
	return nil
}

// SettleDelay returns the configured settle delay.
func (c *Controller) SettleDelay() time.Duration {
	return c.settle
}

// railChannels returns the channels gated by a rail.
func railChannels(rail Rail) []Channel {
	switch rail {
	case RailGOC:
		return []Channel{ChannelGOC}
	case Rail1P2:
		return []Channel{ChannelEIN}
	case Rail0P6:
		return []Channel{ChannelMBus}
	default:
		return nil
	}
}
