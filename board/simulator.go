package board

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/moffa90/go-ice/ein"
	"github.com/moffa90/go-ice/goc"
	"github.com/moffa90/go-ice/mbus"
	"github.com/moffa90/go-ice/power"
	"github.com/moffa90/go-ice/trace"
	"github.com/moffa90/go-ice/transport"
)

// DefaultBootDelay is how long the simulated chip takes to come up
// after a rail is energized.
const DefaultBootDelay = 50 * time.Millisecond

// DefaultChipID is the identity returned in pong replies when none is
// configured.
var DefaultChipID = []byte{0x4D, 0x33}

// defaultVersions lists the protocol versions the simulator offers,
// newest last.
var defaultVersions = [][2]byte{{0, 2}, {0, 3}, {0, 4}}

// Config holds the tunable parameters of a Simulator.
type Config struct {
	Logger      transport.Logger
	BootDelay   time.Duration
	Versions    [][2]byte
	ChipID      []byte
	AckAll      bool
	Mask        mbus.AddressMask
	hasMask     bool
	GenInterval time.Duration
	Replay      []trace.Record
	ReplaySpeed float64
}

// Option customizes a Simulator.
type Option func(*Config)

// WithLogger attaches an optional structured logger.
func WithLogger(l transport.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithBootDelay sets the power-on settle window. Zero boots the chip
// the moment its rails come up.
func WithBootDelay(d time.Duration) Option {
	return func(c *Config) { c.BootDelay = d }
}

// WithChipID sets the identity returned in pong replies.
func WithChipID(id []byte) Option {
	return func(c *Config) { c.ChipID = append([]byte(nil), id...) }
}

// WithVersions overrides the protocol versions offered during
// negotiation.
func WithVersions(versions [][2]byte) Option {
	return func(c *Config) { c.Versions = versions }
}

// WithAckAll makes the board acknowledge every bus message regardless
// of its destination address.
func WithAckAll() Option {
	return func(c *Config) { c.AckAll = true }
}

// WithAddressMask makes the board acknowledge only bus messages whose
// destination byte satisfies the mask.
func WithAddressMask(m mbus.AddressMask) Option {
	return func(c *Config) {
		c.Mask = m
		c.hasMask = true
	}
}

// WithMessageGeneration turns on the live driver's synthetic bus
// chatter, one message per interval while snooping is enabled.
func WithMessageGeneration(interval time.Duration) Option {
	return func(c *Config) { c.GenInterval = interval }
}

// WithReplay selects the replay driver: captured records flow back
// onto the link with their original relative timing, scaled by speed.
func WithReplay(records []trace.Record, speed float64) Option {
	return func(c *Config) {
		c.Replay = records
		c.ReplaySpeed = speed
	}
}

// Simulator plays the board side of a link. Start it with NewSimulator
// and stop it with Close.
type Simulator struct {
	conn io.ReadWriteCloser
	cfg  Config

	writeMu sync.Mutex
	outSeq  uint8

	mu         sync.Mutex
	state      State
	rails      *power.Controller
	negotiated bool
	version    [2]byte
	timing     goc.Timing
	snoop      bool
	ackAll     bool
	mask       mbus.AddressMask
	hasMask    bool
	frags      map[byte][]byte
	reasm      *mbus.Reassembler
	inbox      []mbus.Message
	wakes      [][]byte
	progBuf    []byte
	image      []byte
	bootTimer  *time.Timer
	closed     bool

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSimulator takes ownership of conn and starts serving the link
// protocol on it.
func NewSimulator(conn io.ReadWriteCloser, opts ...Option) (*Simulator, error) {
	cfg := Config{
		BootDelay: DefaultBootDelay,
		Versions:  defaultVersions,
		ChipID:    DefaultChipID,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Replay) > 0 && cfg.GenInterval > 0 {
		return nil, &DriverConflictError{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Simulator{
		conn:    conn,
		cfg:     cfg,
		state:   PoweredOff,
		rails:   power.NewController(power.WithSettleDelay(0)),
		ackAll:  cfg.AckAll,
		mask:    cfg.Mask,
		hasMask: cfg.hasMask,
		frags:   make(map[byte][]byte),
		reasm:   mbus.NewReassembler(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.readLoop()
	if cfg.GenInterval > 0 {
		go s.generate(ctx)
	}
	if len(cfg.Replay) > 0 {
		go s.replay(ctx)
	}
	return s, nil
}

// Close stops the simulator and closes its end of the link.
func (s *Simulator) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.bootTimer != nil {
		s.bootTimer.Stop()
	}
	s.mu.Unlock()
	s.cancel()
	return s.conn.Close()
}

// Done is closed when the reader exits, normally after Close or the
// peer hanging up.
func (s *Simulator) Done() <-chan struct{} { return s.done }

// State reports the simulated chip's lifecycle position.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Negotiated reports the selected protocol version, if negotiation
// completed.
func (s *Simulator) Negotiated() ([2]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.negotiated
}

// Inbox returns the bus messages the board acknowledged, in order.
func (s *Simulator) Inbox() []mbus.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mbus.Message(nil), s.inbox...)
}

// Wakes returns the payloads decoded from accepted GOC pulse trains.
func (s *Simulator) Wakes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.wakes))
	for i, w := range s.wakes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Image returns the program accepted by the last completed transfer.
func (s *Simulator) Image() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.image...)
}

// Snooping reports whether snoop mode is on.
func (s *Simulator) Snooping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snoop
}

func (s *Simulator) readLoop() {
	defer close(s.done)
	hdr := make([]byte, 3)
	for {
		if _, err := io.ReadFull(s.conn, hdr); err != nil {
			return
		}
		tag, seq, n := hdr[0], hdr[1], int(hdr[2])
		payload := make([]byte, n)
		if _, err := io.ReadFull(s.conn, payload); err != nil {
			return
		}

		// A full-size payload is a link fragment; stash it and
		// acknowledge, the terminating packet completes the message.
		if n == transport.MaxFragmentSize {
			s.mu.Lock()
			s.frags[tag] = append(s.frags[tag], payload...)
			s.mu.Unlock()
			s.reply(transport.TagAck, seq)
			continue
		}
		s.mu.Lock()
		if pending, ok := s.frags[tag]; ok {
			payload = append(pending, payload...)
			delete(s.frags, tag)
		}
		s.mu.Unlock()

		resp, err := s.handle(tag, payload)
		if err != nil {
			s.logDebug("rejecting packet", "tag", tag, "err", err)
			s.reply(transport.TagNak, seq)
			continue
		}
		s.reply(transport.TagAck, seq)
		if resp != nil {
			s.send(resp.tag, resp.payload)
		}
	}
}

type response struct {
	tag     byte
	payload []byte
}

// handle runs one complete inbound message and returns the follow-up
// packet to emit after the ACK, if any.
func (s *Simulator) handle(tag byte, payload []byte) (*response, error) {
	switch tag {
	case transport.TagVersion:
		return s.handleVersionQuery()
	case transport.TagVersionSet:
		return nil, s.handleVersionSet(payload)
	case transport.TagCapability:
		return s.handleCapability(payload)
	}

	s.mu.Lock()
	negotiated := s.negotiated
	s.mu.Unlock()
	if !negotiated {
		return nil, fmt.Errorf("board: version not negotiated, tag %q refused", tag)
	}

	switch tag {
	case transport.TagPowerSet:
		return nil, s.handlePowerSet(payload)
	case transport.TagPowerQuery:
		return s.handlePowerQuery(payload)
	case transport.TagBusSet:
		return nil, s.handleBusSet(payload)
	case transport.TagBusQuery:
		return s.handleBusQuery(payload)
	case transport.TagFlow:
		return nil, s.handleFlow(payload)
	case transport.TagEin:
		return s.handleEin(payload)
	case transport.TagMbus:
		return nil, s.handleMbus(payload)
	case transport.TagBaud:
		// An in-process link has no baud rate to change.
		return nil, nil
	default:
		return nil, fmt.Errorf("board: unsupported tag %q", tag)
	}
}

func (s *Simulator) handleVersionQuery() (*response, error) {
	payload := make([]byte, 0, 2*len(s.cfg.Versions))
	for _, v := range s.cfg.Versions {
		payload = append(payload, v[0], v[1])
	}
	return &response{tag: transport.TagVersion, payload: payload}, nil
}

func (s *Simulator) handleVersionSet(payload []byte) error {
	if len(payload) != 2 {
		return fmt.Errorf("board: version select wants 2 bytes, got %d", len(payload))
	}
	want := [2]byte{payload[0], payload[1]}
	for _, v := range s.cfg.Versions {
		if v == want {
			s.mu.Lock()
			s.negotiated = true
			s.version = want
			s.timing = goc.TimingForVersion(int(want[1]))
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("board: version %d.%d not offered", want[0], want[1])
}

func (s *Simulator) handleCapability(payload []byte) (*response, error) {
	if len(payload) != 2 {
		return nil, fmt.Errorf("board: capability query wants 2 bytes, got %d", len(payload))
	}
	caps := capabilities([2]byte{payload[0], payload[1]})
	if caps == nil {
		return nil, fmt.Errorf("board: version %d.%d not offered", payload[0], payload[1])
	}
	return &response{tag: transport.TagCapability, payload: caps}, nil
}

// capabilities maps a protocol version to the channel tags it serves.
func capabilities(v [2]byte) []byte {
	switch v {
	case [2]byte{0, 2}:
		return []byte("?Vbefpv")
	case [2]byte{0, 3}:
		return []byte("?BMPVbefmpv")
	case [2]byte{0, 4}:
		return []byte("?BMPV_befmpv")
	default:
		return nil
	}
}

func (s *Simulator) handlePowerSet(payload []byte) error {
	if len(payload) != 2 {
		return fmt.Errorf("board: power set wants 2 bytes, got %d", len(payload))
	}
	rail, level := payload[0], payload[1]
	if rail > transport.WireRailGOC || level > transport.WireLevelHigh {
		return fmt.Errorf("board: power set rail=%d level=%d out of range", rail, level)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.rails.SetRail(power.Rail(rail), power.RailState(level)); err != nil {
		return err
	}
	s.syncChipState()
	return nil
}

func (s *Simulator) handlePowerQuery(payload []byte) (*response, error) {
	if len(payload) != 1 || payload[0] > transport.WireRailGOC {
		return nil, fmt.Errorf("board: power query wants one rail byte")
	}
	s.mu.Lock()
	level := s.rails.State(power.Rail(payload[0]))
	s.mu.Unlock()
	return &response{
		tag:     transport.TagPowerQuery,
		payload: []byte{payload[0], byte(level)},
	}, nil
}

// syncChipState moves the chip between PoweredOff, Booting and Idle as
// the rails change: any rail coming up starts the boot, and the chip
// powers off only once every rail is dark. Callers hold s.mu.
func (s *Simulator) syncChipState() {
	anyUp := false
	for _, r := range []power.Rail{power.Rail0P6, power.Rail1P2, power.RailVBatt, power.RailGOC} {
		if s.rails.Energized(r) {
			anyUp = true
			break
		}
	}

	switch {
	case anyUp && s.state == PoweredOff:
		if s.cfg.BootDelay <= 0 {
			s.state = Idle
			return
		}
		s.state = Booting
		s.bootTimer = time.AfterFunc(s.cfg.BootDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.state == Booting {
				s.state = Idle
			}
		})
	case !anyUp && s.state != PoweredOff:
		if s.bootTimer != nil {
			s.bootTimer.Stop()
			s.bootTimer = nil
		}
		s.state = PoweredOff
		s.progBuf = nil
		s.reasm.Reset()
		for tag := range s.frags {
			delete(s.frags, tag)
		}
	}
}

func (s *Simulator) handleBusSet(payload []byte) error {
	if len(payload) < 2 {
		return fmt.Errorf("board: bus set wants at least 2 bytes, got %d", len(payload))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch payload[0] {
	case transport.BusParamSnoop:
		s.snoop = payload[1] == 1
	case transport.BusParamAckAll:
		s.ackAll = payload[1] == 1
	case transport.BusParamMask:
		if len(payload) != 3 {
			return fmt.Errorf("board: mask set wants [param ones zeros], got %d bytes", len(payload))
		}
		s.mask = mbus.AddressMask{Ones: payload[1], Zeros: payload[2]}
		s.hasMask = true
		s.ackAll = false
	default:
		return fmt.Errorf("board: unknown bus parameter %d", payload[0])
	}
	return nil
}

func (s *Simulator) handleBusQuery(payload []byte) (*response, error) {
	if len(payload) != 1 {
		return nil, fmt.Errorf("board: bus query wants one parameter byte")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch payload[0] {
	case transport.BusParamSnoop:
		return &response{tag: transport.TagBusQuery, payload: []byte{payload[0], boolByte(s.snoop)}}, nil
	case transport.BusParamAckAll:
		return &response{tag: transport.TagBusQuery, payload: []byte{payload[0], boolByte(s.ackAll)}}, nil
	case transport.BusParamMask:
		return &response{tag: transport.TagBusQuery, payload: []byte{payload[0], s.mask.Ones, s.mask.Zeros}}, nil
	default:
		return nil, fmt.Errorf("board: unknown bus parameter %d", payload[0])
	}
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func (s *Simulator) handleFlow(payload []byte) error {
	s.mu.Lock()
	timing := s.timing
	s.mu.Unlock()
	if err := s.requireChannel(power.ChannelGOC); err != nil {
		return err
	}

	pulses, err := goc.UnmarshalPulses(payload)
	if err != nil {
		return err
	}
	data, err := goc.NewCodec(timing).DecodeBytes(pulses)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.wakes = append(s.wakes, data)
	// A GOC wake pulls an idle chip into execution.
	if s.state == Idle {
		s.state = Running
	}
	return nil
}

func (s *Simulator) handleEin(payload []byte) (*response, error) {
	if err := s.requireChannel(power.ChannelEIN); err != nil {
		return nil, err
	}
	frame, err := ein.ParseFrame(payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch frame.Opcode {
	case ein.OpPing:
		pong, err := ein.BuildFrame(frame.Dest, ein.OpPong, s.cfg.ChipID)
		if err != nil {
			return nil, err
		}
		return &response{tag: transport.TagEin, payload: pong}, nil
	case ein.OpStatus:
		reply, err := ein.BuildFrame(frame.Dest, ein.OpStatus, []byte{byte(s.state)})
		if err != nil {
			return nil, err
		}
		return &response{tag: transport.TagEin, payload: reply}, nil
	case ein.OpProgram:
		s.progBuf = append(s.progBuf, frame.Payload...)
		s.state = Programming
		return nil, nil
	case ein.OpProgramDone:
		if s.state != Programming {
			return nil, fmt.Errorf("board: program-done outside a transfer")
		}
		s.image = s.progBuf
		s.progBuf = nil
		s.state = Idle
		return nil, nil
	case ein.OpStart:
		s.state = Running
		return nil, nil
	default:
		return nil, fmt.Errorf("board: unsupported opcode 0x%02X", frame.Opcode)
	}
}

func (s *Simulator) handleMbus(payload []byte) error {
	if err := s.requireChannel(power.ChannelMBus); err != nil {
		return err
	}
	var msg mbus.Message
	if err := msg.UnmarshalBinary(payload); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !msg.Dest.IsBroadcast() && !s.ackAll {
		if !s.hasMask || !s.mask.Matches(byte(msg.Dest)) {
			return fmt.Errorf("board: address 0x%02X not acknowledged", byte(msg.Dest))
		}
	}

	assembled, err := s.reasm.Add(msg)
	if err == mbus.ErrIncomplete {
		// Echo in-line so snooped fragments keep their wire order; the
		// host reader always drains, so this cannot stall the link.
		if s.snoop {
			s.send(transport.TagMbusSnoop, payload)
		}
		return nil
	}
	if err != nil {
		return err
	}
	s.inbox = append(s.inbox, mbus.Message{
		Source:  msg.Source,
		Dest:    msg.Dest,
		MsgID:   msg.MsgID,
		Last:    true,
		Payload: assembled,
	})
	if s.snoop {
		s.send(transport.TagMbusSnoop, payload)
	}
	return nil
}

// requireChannel rejects channel traffic whose governing rail is off
// or whose chip has not finished booting.
func (s *Simulator) requireChannel(ch power.Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == PoweredOff || s.state == Booting {
		return fmt.Errorf("board: chip is %s", s.state)
	}
	return s.rails.Require(ch)
}

// generate is the live driver's synthetic chatter loop. It emits one
// snooped bus message per interval while snooping is on and the chip
// is up.
func (s *Simulator) generate(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GenInterval)
	defer ticker.Stop()
	var n uint8
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		live := s.snoop && (s.state == Idle || s.state == Running)
		s.mu.Unlock()
		if !live {
			continue
		}

		n++
		msg := mbus.Message{
			Source:  0xA5,
			Dest:    0x72,
			MsgID:   n,
			Last:    true,
			Payload: []byte{0xC0, 0xFF, 0xEE, n},
		}
		wire, err := msg.MarshalBinary()
		if err != nil {
			continue
		}
		s.send(transport.TagMbusSnoop, wire)
	}
}

// replay feeds a captured trace back onto the link: every inbound
// record except link acknowledgements is re-emitted with its original
// relative timing.
func (s *Simulator) replay(ctx context.Context) {
	var records []trace.Record
	for _, rec := range s.cfg.Replay {
		if rec.Dir != transport.DirIn {
			continue
		}
		if rec.Tag == transport.TagAck || rec.Tag == transport.TagNak {
			continue
		}
		records = append(records, rec)
	}

	speed := s.cfg.ReplaySpeed
	if speed == 0 {
		speed = 1.0
	}
	r := trace.NewReplayer(records, trace.WithSpeed(speed))
	err := r.Run(ctx, func(rec trace.Record) error {
		s.send(rec.Tag, rec.Payload)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		s.logDebug("replay stopped", "err", err)
	}
}

// reply writes a bare ACK or NAK echoing the packet counter it
// answers.
func (s *Simulator) reply(tag byte, seq uint8) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.Write([]byte{tag, seq, 0})
}

// send writes an asynchronous packet, fragmenting oversized payloads.
func (s *Simulator) send(tag byte, payload []byte) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	for len(payload) >= transport.MaxFragmentSize {
		s.writePacket(tag, payload[:transport.MaxFragmentSize])
		payload = payload[transport.MaxFragmentSize:]
	}
	s.writePacket(tag, payload)
}

func (s *Simulator) writePacket(tag byte, chunk []byte) {
	buf := make([]byte, 3+len(chunk))
	buf[0] = tag
	buf[1] = s.outSeq
	buf[2] = byte(len(chunk))
	copy(buf[3:], chunk)
	s.outSeq++
	s.conn.Write(buf)
}

func (s *Simulator) logDebug(msg string, keysAndValues ...interface{}) {
	if s.cfg.Logger != nil {
		s.cfg.Logger.Debug(msg, keysAndValues...)
	}
}
