package trace

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moffa90/go-ice/transport"
)

// DefaultLimit bounds how many records a Recorder holds in memory.
const DefaultLimit = 1 << 16

// Config holds the tunable parameters of a Recorder.
type Config struct {
	Limit int
	Sink  io.Writer
}

// Option customizes a Recorder.
type Option func(*Config)

// WithLimit caps the in-memory record buffer. Records past the cap
// are dropped and counted, never blocked on.
func WithLimit(n int) Option {
	return func(c *Config) { c.Limit = n }
}

// WithSink streams records to w as they are captured, from a
// background goroutine so a slow writer never stalls the link.
func WithSink(w io.Writer) Option {
	return func(c *Config) { c.Sink = w }
}

// Recorder captures link traffic as an observer on a transport.Mux.
// The zero value is not usable; call NewRecorder.
type Recorder struct {
	start time.Time
	limit int

	mu      sync.Mutex
	records []Record
	status  error
	closed  bool

	dropped atomic.Uint64

	sinkCh chan Record
	wg     sync.WaitGroup
}

// NewRecorder returns a recorder whose timestamps start at zero now.
func NewRecorder(opts ...Option) *Recorder {
	cfg := Config{Limit: DefaultLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	r := &Recorder{
		start: time.Now(),
		limit: cfg.Limit,
	}
	if cfg.Sink != nil {
		r.sinkCh = make(chan Record, 256)
		r.wg.Add(1)
		go r.drainSink(cfg.Sink)
	}
	return r
}

// Observe implements transport.Observer. It never blocks: over-limit
// records and records a slow sink cannot absorb are dropped and
// counted.
func (r *Recorder) Observe(dir transport.Direction, tag byte, payload []byte) {
	rec := Record{
		At:      time.Since(r.start),
		Dir:     dir,
		Tag:     tag,
		Payload: append([]byte(nil), payload...),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if len(r.records) < r.limit {
		r.records = append(r.records, rec)
	} else {
		r.dropped.Add(1)
	}

	if r.sinkCh != nil {
		select {
		case r.sinkCh <- rec:
		default:
			r.dropped.Add(1)
		}
	}
}

func (r *Recorder) drainSink(w io.Writer) {
	defer r.wg.Done()
	for rec := range r.sinkCh {
		r.mu.Lock()
		failed := r.status != nil
		r.mu.Unlock()
		if failed {
			continue
		}
		if _, err := fmt.Fprintln(w, rec.String()); err != nil {
			r.mu.Lock()
			r.status = &WriteFailureError{Err: err}
			r.mu.Unlock()
		}
	}
}

// Export returns a copy of everything captured so far, in order.
func (r *Recorder) Export() []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out
}

// Len reports how many records are buffered.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Dropped reports how many records were lost to the buffer cap or a
// saturated sink.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Status reports a sink failure, if one occurred. Capture continues in
// memory after a sink failure.
func (r *Recorder) Status() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Reset discards captured records and restarts the clock.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
	r.start = time.Now()
}

// Close stops the sink goroutine, flushing anything it still holds.
// The recorder ignores Observe calls after Close.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return r.Status()
	}
	r.closed = true
	r.mu.Unlock()

	if r.sinkCh != nil {
		close(r.sinkCh)
		r.wg.Wait()
	}
	return r.Status()
}
