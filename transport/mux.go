package transport

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Default windows for synchronous and asynchronous replies.
const (
	DefaultAckTimeout      = 2 * time.Second
	DefaultResponseTimeout = 2 * time.Second
	DefaultQueueDepth      = 32
)

// Config holds the tunable parameters of a Mux.
type Config struct {
	AckTimeout      time.Duration
	ResponseTimeout time.Duration
	QueueDepth      int
	Observer        Observer
	Logger          Logger
}

// Option customizes a Mux.
type Option func(*Config)

// WithAckTimeout bounds how long a write waits for its ACK.
func WithAckTimeout(d time.Duration) Option {
	return func(c *Config) { c.AckTimeout = d }
}

// WithResponseTimeout bounds how long SendAndWait waits for the
// asynchronous response after the write was acknowledged.
func WithResponseTimeout(d time.Duration) Option {
	return func(c *Config) { c.ResponseTimeout = d }
}

// WithQueueDepth sets the per-channel inbound queue depth.
func WithQueueDepth(n int) Option {
	return func(c *Config) { c.QueueDepth = n }
}

// WithObserver attaches an observer that sees every packet in both
// directions, ACK/NAK and unrecognized traffic included.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}

// WithLogger attaches an optional structured logger.
func WithLogger(l Logger) Option {
	return func(c *Config) { c.Logger = l }
}

func defaultConfig() Config {
	return Config{
		AckTimeout:      DefaultAckTimeout,
		ResponseTimeout: DefaultResponseTimeout,
		QueueDepth:      DefaultQueueDepth,
	}
}

type ackReply struct {
	nak bool
	seq uint8
}

// Mux multiplexes every protocol channel over one io.ReadWriter. All
// methods are safe for concurrent use; writes are serialized so that
// at most one packet is awaiting its ACK at any time.
type Mux struct {
	dev io.ReadWriter
	cfg Config

	writeMu sync.Mutex
	seq     uint8
	acks    chan ackReply

	mu      sync.Mutex
	queues  map[byte]chan Packet
	frags   map[byte][]byte
	lastIn  uint8
	haveIn  bool
	closed  bool
	readErr error

	unrecognized atomic.Uint64

	done      chan struct{}
	closeOnce sync.Once
}

// NewMux wraps dev and starts the reader goroutine. The Mux assumes
// exclusive ownership of dev; Close closes it when it is an io.Closer.
func NewMux(dev io.ReadWriter, opts ...Option) *Mux {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	m := &Mux{
		dev:    dev,
		cfg:    cfg,
		acks:   make(chan ackReply, 1),
		queues: make(map[byte]chan Packet),
		frags:  make(map[byte][]byte),
		done:   make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Send writes payload on the channel named by tag, fragmenting into
// link packets of at most MaxFragmentSize bytes and waiting for the
// board's ACK after each one. A payload that is an exact multiple of
// MaxFragmentSize is terminated by an empty final packet so the
// receiver can tell the message ended.
func (m *Mux) Send(ctx context.Context, tag byte, payload []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	for len(payload) >= MaxFragmentSize {
		if err := m.sendPacket(ctx, tag, payload[:MaxFragmentSize]); err != nil {
			return err
		}
		payload = payload[MaxFragmentSize:]
	}
	return m.sendPacket(ctx, tag, payload)
}

// sendPacket writes one link packet and blocks until it is
// acknowledged. Callers hold writeMu.
func (m *Mux) sendPacket(ctx context.Context, tag byte, chunk []byte) error {
	select {
	case <-m.done:
		return m.closeErr()
	default:
	}

	seq := m.seq
	m.seq++

	buf := make([]byte, headerSize+len(chunk))
	buf[0] = tag
	buf[1] = seq
	buf[2] = byte(len(chunk))
	copy(buf[headerSize:], chunk)

	// Drain a stale ACK left over from an earlier timed-out write so
	// it cannot satisfy this packet.
	select {
	case <-m.acks:
	default:
	}

	if _, err := m.dev.Write(buf); err != nil {
		return fmt.Errorf("transport: write tag %q: %w", tag, err)
	}
	m.observe(DirOut, tag, chunk)

	timer := time.NewTimer(m.cfg.AckTimeout)
	defer timer.Stop()
	select {
	case reply := <-m.acks:
		if reply.nak {
			return &NakError{Tag: tag, Seq: seq}
		}
		return nil
	case <-timer.C:
		return &AckTimeoutError{Tag: tag, Seq: seq, Timeout: m.cfg.AckTimeout}
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return m.closeErr()
	}
}

// Receive blocks until a reassembled packet arrives on tag.
func (m *Mux) Receive(ctx context.Context, tag byte) (Packet, error) {
	q := m.queue(tag)
	select {
	case pkt := <-q:
		return pkt, nil
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-m.done:
		// Drain anything queued before shutdown.
		select {
		case pkt := <-q:
			return pkt, nil
		default:
		}
		return Packet{}, m.closeErr()
	}
}

// SendAndWait writes payload on tag, then waits for the next packet on
// respTag. The wait is bounded by the configured response timeout.
func (m *Mux) SendAndWait(ctx context.Context, tag byte, payload []byte, respTag byte) (Packet, error) {
	if err := m.Send(ctx, tag, payload); err != nil {
		return Packet{}, err
	}

	q := m.queue(respTag)
	timer := time.NewTimer(m.cfg.ResponseTimeout)
	defer timer.Stop()
	select {
	case pkt := <-q:
		return pkt, nil
	case <-timer.C:
		return Packet{}, &ResponseTimeoutError{Tag: respTag, Timeout: m.cfg.ResponseTimeout}
	case <-ctx.Done():
		return Packet{}, ctx.Err()
	case <-m.done:
		return Packet{}, m.closeErr()
	}
}

// Flush discards queued packets and the partial fragment buffer for
// tag. The power controller calls it when the rail feeding a channel
// drops, so half-received traffic never survives a power cycle.
func (m *Mux) Flush(tag byte) {
	m.mu.Lock()
	delete(m.frags, tag)
	q := m.queues[tag]
	m.mu.Unlock()
	if q == nil {
		return
	}
	for {
		select {
		case <-q:
		default:
			return
		}
	}
}

// Unrecognized reports how many packets carried a tag outside the
// recognized channel set. Such packets reach the observer only.
func (m *Mux) Unrecognized() uint64 {
	return m.unrecognized.Load()
}

// Err reports the error that stopped the reader, if any.
func (m *Mux) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readErr
}

// Close stops the reader and closes the underlying device when it
// implements io.Closer.
func (m *Mux) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.done)
		if c, ok := m.dev.(io.Closer); ok {
			err = c.Close()
		}
	})
	return err
}

func (m *Mux) closeErr() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return m.readErr
	}
	return ErrClosed
}

func (m *Mux) queue(tag byte) chan Packet {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.queues[tag]
	if !ok {
		q = make(chan Packet, m.cfg.QueueDepth)
		m.queues[tag] = q
	}
	return q
}

func (m *Mux) readLoop() {
	hdr := make([]byte, headerSize)
	for {
		if _, err := io.ReadFull(m.dev, hdr); err != nil {
			m.stopReader(err)
			return
		}
		tag, seq, n := hdr[0], hdr[1], int(hdr[2])
		payload := make([]byte, n)
		if _, err := io.ReadFull(m.dev, payload); err != nil {
			m.stopReader(err)
			return
		}

		m.observe(DirIn, tag, payload)

		switch tag {
		case TagAck, TagNak:
			select {
			case m.acks <- ackReply{nak: tag == TagNak, seq: seq}:
			default:
				m.logDebug("unsolicited acknowledgement dropped", "tag", tag, "seq", seq)
			}
			continue
		}

		if !Recognized(tag) {
			m.unrecognized.Add(1)
			m.logDebug("unrecognized traffic",
				"err", &UnrecognizedTrafficError{Tag: tag, Len: n})
			continue
		}

		if m.duplicate(seq) {
			m.logDebug("duplicate packet dropped", "tag", tag, "seq", seq)
			continue
		}

		m.deliver(tag, seq, payload)
	}
}

// duplicate tracks the board's packet counter and flags a repeated
// value, which the link produces when a retransmission crossed an ACK.
func (m *Mux) duplicate(seq uint8) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.haveIn && seq == m.lastIn {
		return true
	}
	m.haveIn = true
	m.lastIn = seq
	return false
}

// deliver reassembles link fragments and hands complete packets to the
// per-tag queue. A full-size payload is a continuation; anything
// shorter terminates the message.
func (m *Mux) deliver(tag byte, seq uint8, payload []byte) {
	m.mu.Lock()
	if len(payload) == MaxFragmentSize {
		m.frags[tag] = append(m.frags[tag], payload...)
		m.mu.Unlock()
		return
	}
	full := payload
	if pending, ok := m.frags[tag]; ok {
		full = append(pending, payload...)
		delete(m.frags, tag)
	}
	m.mu.Unlock()

	q := m.queue(tag)
	select {
	case q <- Packet{Tag: tag, Seq: seq, Payload: full}:
	default:
		m.logDebug("inbound queue full, packet dropped", "tag", tag, "seq", seq)
	}
}

func (m *Mux) stopReader(err error) {
	m.mu.Lock()
	if !m.closed {
		m.readErr = err
	}
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		m.closeOnce.Do(func() {
			close(m.done)
			if c, ok := m.dev.(io.Closer); ok {
				c.Close()
			}
		})
	}
}

func (m *Mux) observe(dir Direction, tag byte, payload []byte) {
	if m.cfg.Observer != nil {
		m.cfg.Observer.Observe(dir, tag, payload)
	}
}

func (m *Mux) logDebug(msg string, keysAndValues ...interface{}) {
	if m.cfg.Logger != nil {
		m.cfg.Logger.Debug(msg, keysAndValues...)
	}
}
