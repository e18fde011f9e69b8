package trace

import (
	"context"
	"time"
)

// ReplayerOption customizes a Replayer.
type ReplayerOption func(*Replayer)

// WithSpeed scales the pacing of a replay. 2.0 plays twice as fast;
// values at or below zero replay with no delay at all.
func WithSpeed(factor float64) ReplayerOption {
	return func(r *Replayer) { r.speed = factor }
}

// Replayer re-emits recorded traffic with the original relative
// timing. The board simulator uses it to stand in for live bus
// activity.
type Replayer struct {
	records []Record
	speed   float64
}

// NewReplayer prepares records for playback. Records are replayed in
// slice order regardless of their timestamps; the gap slept between
// two records is the difference of their offsets, never negative.
func NewReplayer(records []Record, opts ...ReplayerOption) *Replayer {
	r := &Replayer{records: records, speed: 1.0}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Len reports how many records the replay will emit.
func (r *Replayer) Len() int { return len(r.records) }

// Run plays every record through emit, sleeping the recorded gap
// before each one. It stops early when ctx is cancelled or emit
// returns an error.
func (r *Replayer) Run(ctx context.Context, emit func(Record) error) error {
	prev := time.Duration(-1)
	for _, rec := range r.records {
		if prev >= 0 {
			if err := r.pause(ctx, rec.At-prev); err != nil {
				return err
			}
		}
		prev = rec.At
		if err := emit(rec); err != nil {
			return err
		}
	}
	return nil
}

func (r *Replayer) pause(ctx context.Context, gap time.Duration) error {
	if r.speed <= 0 || gap <= 0 {
		return ctx.Err()
	}
	scaled := time.Duration(float64(gap) / r.speed)
	timer := time.NewTimer(scaled)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
