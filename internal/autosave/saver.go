// Package autosave writes the tracker state after a quiet period following the last change.
package autosave

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/deckelo/internal/persistence"
	"github.com/MarcoPoloResearchLab/deckelo/internal/tracker"
	"go.uber.org/zap"
)

// DefaultDelay is the quiet period used when Config.Delay is not positive.
const DefaultDelay = 500 * time.Millisecond

var (
	// ErrClosed indicates that the saver no longer accepts work.
	ErrClosed = errors.New("autosave: saver closed")

	errMissingSnapshot = errors.New("autosave: snapshot source is required")
	errMissingGateway  = errors.New("autosave: gateway is required")
)

// Config describes the dependencies of a Saver.
type Config struct {
	Delay    time.Duration
	Snapshot func() tracker.Dataset
	Gateway  persistence.Gateway
	Logger   *zap.Logger
	// OnError receives every failed write. It runs on the writing goroutine.
	OnError func(error)
}

// Saver coalesces bursts of changes into a single write.
type Saver struct {
	delay    time.Duration
	snapshot func() tracker.Dataset
	gateway  persistence.Gateway
	logger   *zap.Logger
	onError  func(error)

	mu      sync.Mutex
	timer   *time.Timer
	dirty   bool
	closed  bool
	lastErr error

	writeMu sync.Mutex
}

// New constructs a Saver.
func New(cfg Config) (*Saver, error) {
	if cfg.Snapshot == nil {
		return nil, errMissingSnapshot
	}
	if cfg.Gateway == nil {
		return nil, errMissingGateway
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saver{
		delay:    delay,
		snapshot: cfg.Snapshot,
		gateway:  cfg.Gateway,
		logger:   logger,
		onError:  cfg.OnError,
	}, nil
}

// MarkDirty schedules a write once no further change arrives within the delay.
func (s *Saver) MarkDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.dirty = true
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.delay, s.fire)
}

// Pending reports whether a change is waiting to be written.
func (s *Saver) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// LastError returns the outcome of the most recent write.
func (s *Saver) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Flush writes pending changes immediately.
func (s *Saver) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	dirty := s.dirty
	s.mu.Unlock()
	if !dirty {
		return nil
	}
	return s.write(ctx)
}

// SaveNow cancels any pending schedule and writes the current state.
func (s *Saver) SaveNow(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.dirty = true
	s.mu.Unlock()
	return s.write(ctx)
}

// Close flushes pending changes and stops accepting new ones.
func (s *Saver) Close(ctx context.Context) error {
	err := s.Flush(ctx)
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return err
}

func (s *Saver) fire() {
	if err := s.write(context.Background()); err != nil {
		s.logger.Debug("scheduled save failed", zap.Error(err))
	}
}

// write takes the snapshot while holding the write lock so that the stored state is
// never older than a write that finished before it.
func (s *Saver) write(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return nil
	}
	s.dirty = false
	s.mu.Unlock()

	dataset := s.snapshot()
	err := s.gateway.SaveAll(ctx, dataset.Decks, dataset.Matches)

	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("autosave failed",
			zap.String("operation", "autosave.write"),
			zap.String("reason", "save_failed"),
			zap.Int("decks", len(dataset.Decks)),
			zap.Int("matches", len(dataset.Matches)),
			zap.Error(err))
		if s.onError != nil {
			s.onError(err)
		}
		return err
	}
	s.logger.Debug("autosave completed",
		zap.Int("decks", len(dataset.Decks)),
		zap.Int("matches", len(dataset.Matches)))
	return nil
}
