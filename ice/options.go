package ice

import (
	"time"

	"github.com/moffa90/go-ice/mbus"
	"github.com/moffa90/go-ice/power"
	"github.com/moffa90/go-ice/trace"
)

// Options holds the session configuration.
type Options struct {
	// ProgressCallback is called during program transfers (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// Timeout bounds both the per-packet acknowledgement wait and the
	// response wait of query operations
	Timeout time.Duration

	// Retries is the number of retry attempts for timed-out commands
	Retries int

	// Version pins the protocol version to negotiate. The zero value
	// selects the newest version the board offers.
	Version [2]byte

	// ChunkSize is the maximum image bytes per program frame
	ChunkSize int

	// Source is the bus address this session sends from
	Source mbus.Address

	// SettleDelay is the wait after a rail drops during a reset
	SettleDelay time.Duration

	// SnoopLimit caps the in-memory snoop trace
	SnoopLimit int
}

// defaultOptions returns the default configuration.
func defaultOptions() Options {
	return Options{
		Timeout:     2 * time.Second,
		Retries:     3,
		ChunkSize:   128,
		Source:      0x15,
		SettleDelay: power.DefaultSettleDelay,
		SnoopLimit:  trace.DefaultLimit,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Options)

// WithProgressCallback sets a callback function to track program
// transfers.
//
// Example:
//
//	sess := ice.New(device,
//	    ice.WithProgressCallback(func(p ice.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(o *Options) {
		o.ProgressCallback = callback
	}
}

// WithLogger sets a logger for session operations.
//
// Example:
//
//	sess := ice.New(device, ice.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithTimeout sets the acknowledgement and response timeouts.
//
// Example:
//
//	sess := ice.New(device, ice.WithTimeout(10*time.Second))
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.Timeout = timeout
	}
}

// WithRetries sets the number of retry attempts for commands that
// time out waiting for the board.
func WithRetries(retries int) Option {
	return func(o *Options) {
		o.Retries = retries
	}
}

// WithVersion pins the protocol version to negotiate instead of
// taking the newest the board offers.
//
// Example:
//
//	sess := ice.New(device, ice.WithVersion(0, 3))
func WithVersion(major, minor byte) Option {
	return func(o *Options) {
		o.Version = [2]byte{major, minor}
	}
}

// WithChunkSize sets the maximum image bytes per program frame.
func WithChunkSize(size int) Option {
	return func(o *Options) {
		o.ChunkSize = size
	}
}

// WithSource sets the bus address the session sends from.
func WithSource(addr mbus.Address) Option {
	return func(o *Options) {
		o.Source = addr
	}
}

// WithSettleDelay sets the wait after a rail drops during a reset.
func WithSettleDelay(d time.Duration) Option {
	return func(o *Options) {
		o.SettleDelay = d
	}
}

// WithSnoopLimit caps how many records the snoop trace holds before
// dropping.
func WithSnoopLimit(n int) Option {
	return func(o *Options) {
		o.SnoopLimit = n
	}
}
