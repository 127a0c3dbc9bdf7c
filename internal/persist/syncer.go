package persist

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"

	"smartattend/internal/store"
)

// Source captures the current state to save.
type Source func(ctx context.Context) (State, error)

// Syncer writes snapshots in the background whenever it is notified. Failed
// saves are retried; a failure that outlasts the retry budget keeps the state
// dirty so the next round saves it again.
type Syncer struct {
	kv        store.KV
	source    Source
	base      time.Duration
	cap       time.Duration
	attempts  uint64
	dirty     chan struct{}
	OnFailure func(error)
}

// NewSyncer builds a syncer saving snapshots taken from source into kv.
func NewSyncer(kv store.KV, source Source) *Syncer {
	return &Syncer{
		kv:       kv,
		source:   source,
		base:     100 * time.Millisecond,
		cap:      5 * time.Second,
		attempts: 5,
		dirty:    make(chan struct{}, 1),
	}
}

// Notify marks the state dirty. It never blocks.
func (s *Syncer) Notify() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// Reset drops every saved snapshot.
func (s *Syncer) Reset(ctx context.Context) error {
	return Reset(ctx, s.kv)
}

// Flush saves the current state now, retrying transient failures.
func (s *Syncer) Flush(ctx context.Context) error {
	backoff := retry.WithMaxRetries(s.attempts, retry.WithCappedDuration(s.cap, retry.NewExponential(s.base)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		st, err := s.source(ctx)
		if err != nil {
			return err
		}
		if err := Save(ctx, s.kv, st); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	return nil
}

// Run saves after every notification until ctx is done, then makes a final
// attempt with a fresh context if state is still dirty.
func (s *Syncer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return s.drain()
		case <-s.dirty:
		}
		if err := s.Flush(ctx); err != nil {
			if ctx.Err() != nil {
				s.Notify()
				return s.drain()
			}
			s.fail(err)
			s.Notify()
			select {
			case <-ctx.Done():
				return s.drain()
			case <-time.After(s.cap):
			}
		}
	}
}

func (s *Syncer) drain() error {
	select {
	case <-s.dirty:
	default:
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Flush(ctx); err != nil {
		s.fail(err)
		return err
	}
	return nil
}

func (s *Syncer) fail(err error) {
	log.WithField("component", "persist").Errorf("snapshot save failed, state kept in memory: %v", err)
	if s.OnFailure != nil {
		s.OnFailure(err)
	}
}
