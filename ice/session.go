package ice

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
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

// Session drives one interposer board. It owns the link multiplexer,
// a local mirror of the board's power rails, and the snoop recorder.
//
// Session is safe for concurrent use after Connect.
type Session struct {
	device   io.ReadWriter
	mux      *transport.Mux
	rails    *power.Controller
	recorder *trace.Recorder
	config   Options

	mu        sync.Mutex
	connected bool
	resetting bool
	version   [2]byte
	caps      []byte
	timing    goc.Timing
	msgID     uint8
}

// New creates a new Session on the given device and options. The
// device must implement io.ReadWriter for communication with the
// board; transport.OpenSerial returns a suitable one for real
// hardware, transport.Pipe for a simulated rig.
//
// Example:
//
//	device, _ := transport.OpenSerial("/dev/ttyUSB0", transport.BaudDefault)
//	sess := ice.New(device, ice.WithTimeout(10*time.Second))
func New(device io.ReadWriter, opts ...Option) *Session {
	if device == nil {
		panic("device cannot be nil")
	}

	cfg := defaultOptions()
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Session{
		device:   device,
		config:   cfg,
		recorder: trace.NewRecorder(trace.WithLimit(cfg.SnoopLimit)),
	}
	s.mux = transport.NewMux(device,
		transport.WithAckTimeout(cfg.Timeout),
		transport.WithResponseTimeout(cfg.Timeout),
		transport.WithObserver(s.recorder),
		transport.WithLogger(cfg.Logger),
	)
	s.rails = power.NewController(
		power.WithSettleDelay(cfg.SettleDelay),
		power.WithGateListener(s),
	)
	return s
}

// RailDown implements power.GateListener: when a rail drops, queued
// traffic and partial fragments on its channels are invalidated so
// nothing decoded before the power cycle leaks past it.
func (s *Session) RailDown(ch power.Channel) {
	switch ch {
	case power.ChannelGOC:
		s.mux.Flush(transport.TagFlow)
	case power.ChannelEIN:
		s.mux.Flush(transport.TagEin)
	case power.ChannelMBus:
		s.mux.Flush(transport.TagMbus)
		s.mux.Flush(transport.TagMbusSnoop)
	}
	s.logDebug("channel flushed after rail drop", "channel", ch.String())
}

// Connect negotiates a protocol version and capability set with the
// board. Until it succeeds every other operation fails with
// NotConnectedError. Timed-out exchanges are retried per WithRetries.
func (s *Session) Connect(ctx context.Context) error {
	var offered [][2]byte
	err := s.withRetry(ctx, "version enumeration", func() error {
		pkt, err := s.mux.SendAndWait(ctx, transport.TagVersion, nil, transport.TagVersion)
		if err != nil {
			return err
		}
		if len(pkt.Payload) == 0 || len(pkt.Payload)%2 != 0 {
			return &NegotiationError{Reason: fmt.Sprintf("malformed version list of %d bytes", len(pkt.Payload))}
		}
		offered = offered[:0]
		for i := 0; i < len(pkt.Payload); i += 2 {
			offered = append(offered, [2]byte{pkt.Payload[i], pkt.Payload[i+1]})
		}
		return nil
	})
	if err != nil {
		return err
	}

	want := s.config.Version
	if want == [2]byte{} {
		// The board lists versions oldest first.
		want = offered[len(offered)-1]
	} else {
		found := false
		for _, v := range offered {
			if v == want {
				found = true
				break
			}
		}
		if !found {
			return &NegotiationError{Requested: want, Offered: offered, Reason: "not offered"}
		}
	}

	err = s.withRetry(ctx, "version select", func() error {
		return s.mux.Send(ctx, transport.TagVersionSet, []byte{want[0], want[1]})
	})
	if err != nil {
		var nakErr *transport.NakError
		if errors.As(err, &nakErr) {
			return &NegotiationError{Requested: want, Offered: offered, Reason: "board rejected selection"}
		}
		return err
	}

	var caps []byte
	err = s.withRetry(ctx, "capability query", func() error {
		pkt, err := s.mux.SendAndWait(ctx, transport.TagCapability, []byte{want[0], want[1]}, transport.TagCapability)
		if err != nil {
			return err
		}
		caps = pkt.Payload
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.connected = true
	s.version = want
	s.caps = caps
	s.timing = goc.TimingForVersion(int(want[1]))
	s.mu.Unlock()

	s.logInfo("session connected",
		"version", fmt.Sprintf("%d.%d", want[0], want[1]),
		"capabilities", string(caps))
	return nil
}

// Close shuts the link down and stops the snoop recorder.
func (s *Session) Close() error {
	err := s.mux.Close()
	if rerr := s.recorder.Close(); err == nil {
		err = rerr
	}
	return err
}

// Version reports the negotiated protocol version.
func (s *Session) Version() ([2]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version, s.connected
}

// Capabilities reports the channel tags the negotiated version
// serves.
func (s *Session) Capabilities() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.caps...)
}

// Power switches a rail and mirrors the new state locally. Dropping a
// rail invalidates queued traffic on its channels.
func (s *Session) Power(ctx context.Context, rail power.Rail, level power.RailState) error {
	if err := s.requireConnected("Power"); err != nil {
		return err
	}
	err := s.withRetry(ctx, "power set", func() error {
		return s.mux.Send(ctx, transport.TagPowerSet, []byte{byte(rail), byte(level)})
	})
	if err != nil {
		return err
	}
	return s.rails.SetRail(rail, level)
}

// PowerQuery asks the board for a rail's level and refreshes the
// local mirror with the answer.
func (s *Session) PowerQuery(ctx context.Context, rail power.Rail) (power.RailState, error) {
	if err := s.requireConnected("PowerQuery"); err != nil {
		return power.StateOff, err
	}
	var level power.RailState
	err := s.withRetry(ctx, "power query", func() error {
		pkt, err := s.mux.SendAndWait(ctx, transport.TagPowerQuery, []byte{byte(rail)}, transport.TagPowerQuery)
		if err != nil {
			return err
		}
		if len(pkt.Payload) != 2 || pkt.Payload[0] != byte(rail) {
			return fmt.Errorf("ice: malformed power query reply % X", pkt.Payload)
		}
		level = power.RailState(pkt.Payload[1])
		return nil
	})
	if err != nil {
		return power.StateOff, err
	}
	if err := s.rails.SetRail(rail, level); err != nil {
		return power.StateOff, err
	}
	return level, nil
}

// RailState reports the locally mirrored level of a rail.
func (s *Session) RailState(rail power.Rail) power.RailState {
	return s.rails.State(rail)
}

// Reset power-cycles one rail (ResetSoft) or every rail (ResetHard),
// waiting the settle delay with the rails down and restoring the
// prior levels afterwards. Rails that were off stay off. A concurrent
// reset fails with power.ResetInProgressError.
func (s *Session) Reset(ctx context.Context, kind power.ResetKind, rail power.Rail) error {
	if err := s.requireConnected("Reset"); err != nil {
		return err
	}

	s.mu.Lock()
	if s.resetting {
		s.mu.Unlock()
		return &power.ResetInProgressError{}
	}
	s.resetting = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.resetting = false
		s.mu.Unlock()
	}()

	var targets []power.Rail
	if kind == power.ResetHard {
		targets = []power.Rail{power.Rail0P6, power.Rail1P2, power.RailVBatt, power.RailGOC}
	} else {
		targets = []power.Rail{rail}
	}

	prior := make(map[power.Rail]power.RailState, len(targets))
	for _, r := range targets {
		prior[r] = s.rails.State(r)
		if prior[r] == power.StateOff {
			continue
		}
		if err := s.Power(ctx, r, power.StateOff); err != nil {
			return err
		}
	}

	time.Sleep(s.config.SettleDelay)

	for _, r := range targets {
		if prior[r] == power.StateOff {
			continue
		}
		if err := s.Power(ctx, r, prior[r]); err != nil {
			return err
		}
	}
	return nil
}

// GocSend encodes data into a pulse train with the negotiated timing
// and sends it on the flow channel. It reports the number of pulse
// events written. The GOC rail must be energized; a send on a dark
// rail fails with zero bytes written to the link.
func (s *Session) GocSend(ctx context.Context, data []byte) (int, error) {
	if err := s.requireConnected("GocSend"); err != nil {
		return 0, err
	}
	if err := s.rails.Require(power.ChannelGOC); err != nil {
		return 0, err
	}

	s.mu.Lock()
	codec := goc.NewCodec(s.timing)
	s.mu.Unlock()

	pulses := codec.EncodeBytes(data)
	err := s.withRetry(ctx, "goc send", func() error {
		return s.mux.Send(ctx, transport.TagFlow, goc.MarshalPulses(pulses))
	})
	if err != nil {
		return 0, err
	}
	return len(pulses), nil
}

// EinSend frames payload for dest, sends it and waits for the
// matching response frame. The EIN rail must be energized.
func (s *Session) EinSend(ctx context.Context, dest, opcode byte, payload []byte) (*ein.Frame, error) {
	if err := s.requireConnected("EinSend"); err != nil {
		return nil, err
	}
	if err := s.rails.Require(power.ChannelEIN); err != nil {
		return nil, err
	}

	raw, err := ein.BuildFrame(dest, opcode, payload)
	if err != nil {
		return nil, err
	}
	var resp *ein.Frame
	err = s.withRetry(ctx, "ein exchange", func() error {
		pkt, err := s.mux.SendAndWait(ctx, transport.TagEin, raw, transport.TagEin)
		if err != nil {
			return err
		}
		resp, err = ein.ParseFrame(pkt.Payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Ping asks the chip behind dest for its identity.
func (s *Session) Ping(ctx context.Context, dest byte) ([]byte, error) {
	resp, err := s.EinSend(ctx, dest, ein.OpPing, nil)
	if err != nil {
		return nil, err
	}
	if resp.Opcode != ein.OpPong {
		return nil, fmt.Errorf("ice: ping answered with opcode 0x%02X, want pong", resp.Opcode)
	}
	return resp.Payload, nil
}

// Program transfers image to the chip behind dest in ChunkSize
// pieces and commits it. Progress is reported through the configured
// callback.
func (s *Session) Program(ctx context.Context, dest byte, image []byte) error {
	if err := s.requireConnected("Program"); err != nil {
		return err
	}
	if err := s.rails.Require(power.ChannelEIN); err != nil {
		return err
	}
	if len(image) == 0 {
		return fmt.Errorf("ice: image cannot be empty")
	}

	chunkSize := s.config.ChunkSize
	if chunkSize <= 0 || chunkSize > ein.MaxPayloadSize {
		chunkSize = ein.MaxPayloadSize
	}
	total := (len(image) + chunkSize - 1) / chunkSize
	start := time.Now()

	written := 0
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lo, hi := i*chunkSize, (i+1)*chunkSize
		if hi > len(image) {
			hi = len(image)
		}
		raw, err := ein.BuildFrame(dest, ein.OpProgram, image[lo:hi])
		if err != nil {
			return err
		}
		err = s.withRetry(ctx, "program chunk", func() error {
			return s.mux.Send(ctx, transport.TagEin, raw)
		})
		if err != nil {
			return err
		}
		written = hi
		s.reportProgress("programming", i, total, written, start)
	}

	s.reportProgress("finalizing", total, total, written, start)
	raw, err := ein.BuildFrame(dest, ein.OpProgramDone, nil)
	if err != nil {
		return err
	}
	err = s.withRetry(ctx, "program commit", func() error {
		return s.mux.Send(ctx, transport.TagEin, raw)
	})
	if err != nil {
		return err
	}
	s.reportProgress("complete", total, total, written, start)
	return nil
}

// Start tells the chip behind dest to begin executing.
func (s *Session) Start(ctx context.Context, dest byte) error {
	if err := s.requireConnected("Start"); err != nil {
		return err
	}
	if err := s.rails.Require(power.ChannelEIN); err != nil {
		return err
	}
	raw, err := ein.BuildFrame(dest, ein.OpStart, nil)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, "start", func() error {
		return s.mux.Send(ctx, transport.TagEin, raw)
	})
}

// MbusSend fragments payload toward dest and sends every fragment. It
// reports the number of fragments written. The bus rail must be
// energized.
func (s *Session) MbusSend(ctx context.Context, dest mbus.Address, payload []byte) (int, error) {
	if err := s.requireConnected("MbusSend"); err != nil {
		return 0, err
	}
	if err := s.rails.Require(power.ChannelMBus); err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.msgID++
	id := s.msgID
	s.mu.Unlock()

	frags, err := mbus.Fragment(s.config.Source, dest, id, payload)
	if err != nil {
		return 0, err
	}
	for i := range frags {
		wire, err := frags[i].MarshalBinary()
		if err != nil {
			return i, err
		}
		err = s.withRetry(ctx, "mbus fragment", func() error {
			return s.mux.Send(ctx, transport.TagMbus, wire)
		})
		if err != nil {
			return i, err
		}
	}
	return len(frags), nil
}

// SnoopStart turns on the board's bus snooping; snooped traffic lands
// in the session's trace and is also readable live via SnoopNext.
func (s *Session) SnoopStart(ctx context.Context) error {
	return s.busSet(ctx, "snoop start", transport.BusParamSnoop, 1)
}

// SnoopStop turns snooping off. The captured trace survives.
func (s *Session) SnoopStop(ctx context.Context) error {
	return s.busSet(ctx, "snoop stop", transport.BusParamSnoop, 0)
}

// SetAckAll makes the board acknowledge every bus message regardless
// of address.
func (s *Session) SetAckAll(ctx context.Context, on bool) error {
	var v byte
	if on {
		v = 1
	}
	return s.busSet(ctx, "ack-all", transport.BusParamAckAll, v)
}

// SetAddressMask installs the board's bus address filter.
func (s *Session) SetAddressMask(ctx context.Context, mask mbus.AddressMask) error {
	if err := s.requireConnected("SetAddressMask"); err != nil {
		return err
	}
	return s.withRetry(ctx, "address mask", func() error {
		return s.mux.Send(ctx, transport.TagBusSet,
			[]byte{transport.BusParamMask, mask.Ones, mask.Zeros})
	})
}

// SnoopNext blocks until the next snooped bus message arrives.
func (s *Session) SnoopNext(ctx context.Context) (mbus.Message, error) {
	if err := s.requireConnected("SnoopNext"); err != nil {
		return mbus.Message{}, err
	}
	pkt, err := s.mux.Receive(ctx, transport.TagMbusSnoop)
	if err != nil {
		return mbus.Message{}, err
	}
	var msg mbus.Message
	if err := msg.UnmarshalBinary(pkt.Payload); err != nil {
		return mbus.Message{}, err
	}
	return msg, nil
}

// SnoopExport returns everything the trace captured so far, in both
// directions, ACK/NAK and unrecognized traffic included.
func (s *Session) SnoopExport() []trace.Record {
	return s.recorder.Export()
}

// SnoopWrite serializes the captured trace to w in the replayable
// text format.
func (s *Session) SnoopWrite(w io.Writer) error {
	return trace.WriteRecords(w, s.recorder.Export())
}

// SnoopStatus reports a recorder sink failure, if any, and how many
// records were dropped.
func (s *Session) SnoopStatus() (dropped uint64, err error) {
	return s.recorder.Dropped(), s.recorder.Status()
}

// SetBaud asks the board to switch the link rate. Only protocol
// versions whose capability set includes the baud channel accept it;
// the caller still owns reconfiguring the serial port afterwards.
func (s *Session) SetBaud(ctx context.Context, rate int) error {
	if err := s.requireConnected("SetBaud"); err != nil {
		return err
	}
	s.mu.Lock()
	supported := bytes.IndexByte(s.caps, transport.TagBaud) >= 0
	version := s.version
	s.mu.Unlock()
	if !supported {
		return &NotSupportedError{Tag: transport.TagBaud, Version: version}
	}

	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(rate))
	return s.withRetry(ctx, "baud switch", func() error {
		return s.mux.Send(ctx, transport.TagBaud, payload)
	})
}

func (s *Session) busSet(ctx context.Context, what string, param, value byte) error {
	if err := s.requireConnected(what); err != nil {
		return err
	}
	return s.withRetry(ctx, what, func() error {
		return s.mux.Send(ctx, transport.TagBusSet, []byte{param, value})
	})
}

func (s *Session) requireConnected(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return &NotConnectedError{Op: op}
	}
	return nil
}

// withRetry reruns op after acknowledgement or response timeouts, up
// to the configured attempt count. Any other failure returns
// immediately; the transport itself never retries.
func (s *Session) withRetry(ctx context.Context, what string, op func() error) error {
	var err error
	for attempt := 0; attempt <= s.config.Retries; attempt++ {
		if attempt > 0 {
			s.logDebug("retrying", "op", what, "attempt", attempt)
		}
		err = op()
		if err == nil {
			return nil
		}
		var ackTimeout *transport.AckTimeoutError
		var respTimeout *transport.ResponseTimeoutError
		if !errors.As(err, &ackTimeout) && !errors.As(err, &respTimeout) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Session) reportProgress(phase string, chunk, total, written int, start time.Time) {
	if s.config.ProgressCallback == nil {
		return
	}
	pct := 100.0
	if total > 0 && phase == "programming" {
		pct = float64(chunk+1) / float64(total) * 100.0
	}
	s.config.ProgressCallback(Progress{
		Phase:        phase,
		CurrentChunk: chunk,
		TotalChunks:  total,
		Percentage:   pct,
		BytesWritten: written,
		ElapsedTime:  time.Since(start),
	})
}

func (s *Session) logDebug(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, keysAndValues...)
	}
}

func (s *Session) logInfo(msg string, keysAndValues ...interface{}) {
	if s.config.Logger != nil {
		s.config.Logger.Info(msg, keysAndValues...)
	}
}
