package mbus

import (
	"sync"
	"time"
)

// DefaultReassemblyTimeout is how long a partial message may sit idle
// before it is discarded.
const DefaultReassemblyTimeout = 2 * time.Second

// key identifies one in-flight message.
type key struct {
	src   Address
	dst   Address
	msgID uint8
}

// partial is the buffered state of one in-flight message.
type partial struct {
	frags    map[uint8][]byte
	total    int // fragment count, known once the Last fragment arrives
	lastSeen time.Time
}

// ReassemblerOption configures a Reassembler.
type ReassemblerOption func(*Reassembler)

// WithTimeout sets the idle timeout after which a partial message is
// discarded. Default is DefaultReassemblyTimeout.
func WithTimeout(d time.Duration) ReassemblerOption {
	return func(r *Reassembler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// Reassembler reconstructs complete payloads from fragments.
//
// State is keyed by (source, destination, message identity); fragments
// may arrive in any order and are assembled in index order. Safe for
// concurrent use.
type Reassembler struct {
	mu      sync.Mutex
	pending map[key]*partial
	timeout time.Duration
	now     func() time.Time
}

// NewReassembler creates an empty reassembler.
func NewReassembler(opts ...ReassemblerOption) *Reassembler {
	r := &Reassembler{
		pending: make(map[key]*partial),
		timeout: DefaultReassemblyTimeout,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add accepts one fragment.
//
// When the fragment completes its message, the payload is returned
// reassembled in index order. While fragments are outstanding, Add
// returns ErrIncomplete. If the message's partial buffer had exceeded
// the idle timeout before this fragment arrived, the buffer is
// discarded and a ReassemblyTimeoutError returned; the new fragment
// then starts a fresh buffer.
func (r *Reassembler) Add(m Message) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{src: m.Source, dst: m.Dest, msgID: m.MsgID}
	now := r.now()

	p, ok := r.pending[k]
	if ok && now.Sub(p.lastSeen) > r.timeout {
		age := now.Sub(p.lastSeen)
		received := len(p.frags)
		delete(r.pending, k)
		// The stale buffer is gone; report it. The caller re-adds the
		// triggering fragment if it wants to start over.
		return nil, &ReassemblyTimeoutError{
			Source: m.Source, Dest: m.Dest, MsgID: m.MsgID,
			Received: received, Age: age,
		}
	}
	if !ok {
		p = &partial{frags: make(map[uint8][]byte)}
		r.pending[k] = p
	}

	chunk := make([]byte, len(m.Payload))
	copy(chunk, m.Payload)
	p.frags[m.FragIndex] = chunk
	p.lastSeen = now
	if m.Last {
		p.total = int(m.FragIndex) + 1
	}

	if p.total == 0 || len(p.frags) < p.total {
		return nil, ErrIncomplete
	}

	// All indices 0..total-1 must be present; a missing index with a
	// matching count means duplicate or out-of-range fragments.
	payload := make([]byte, 0)
	for i := 0; i < p.total; i++ {
		chunk, ok := p.frags[uint8(i)]
		if !ok {
			return nil, ErrIncomplete
		}
		payload = append(payload, chunk...)
	}
	delete(r.pending, k)
	return payload, nil
}

// Sweep discards every partial message whose idle time exceeds the
// timeout and returns one error per discarded message.
func (r *Reassembler) Sweep() []error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var errs []error
	for k, p := range r.pending {
		if age := now.Sub(p.lastSeen); age > r.timeout {
			errs = append(errs, &ReassemblyTimeoutError{
				Source: k.src, Dest: k.dst, MsgID: k.msgID,
				Received: len(p.frags), Age: age,
			})
			delete(r.pending, k)
		}
	}
	return errs
}

// Reset discards all partial messages, complete or not. Used when the
// bus rail powers down and in-flight traffic becomes invalid.
func (r *Reassembler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = make(map[key]*partial)
}

// Pending returns the number of in-flight messages.
func (r *Reassembler) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
