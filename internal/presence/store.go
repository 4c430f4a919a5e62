package presence

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

const cleanupTimeout = 5 * time.Second

// Store applies the presence policy on top of a Backend: records are live
// for one window after their last upsert, and stale records are removed by
// whichever reader finds them. No background sweeper runs.
type Store struct {
	logger   *zap.Logger
	backend  Backend
	window   time.Duration
	blocking bool
	now      func() time.Time
	onExpire func(n int)
	cleanups sync.WaitGroup
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithBlockingCleanup makes List remove stale records before returning
// instead of in the background.
func WithBlockingCleanup(blocking bool) Option {
	return func(s *Store) { s.blocking = blocking }
}

// WithExpireObserver is called with the number of stale records removed by each cleanup.
func WithExpireObserver(fn func(n int)) Option {
	return func(s *Store) { s.onExpire = fn }
}

// NewStore creates a presence store. A non-positive window falls back to DefaultWindow.
func NewStore(logger *zap.Logger, backend Backend, window time.Duration, opts ...Option) *Store {
	if window <= 0 {
		window = DefaultWindow
	}
	s := &Store{
		logger:  logger.Named("presence.store"),
		backend: backend,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Window returns the expiry window
func (s *Store) Window() time.Duration {
	return s.window
}

// Upsert records that connectionID is alive now. Failures are logged and
// dropped: the next heartbeat repairs a missed write.
func (s *Store) Upsert(ctx context.Context, connectionID string, meta Meta) {
	data, err := json.Marshal(entry{Meta: meta, When: s.now().UnixMilli()})
	if err != nil {
		s.logger.Error("failed to encode presence", zap.String("connection", connectionID), zap.Error(err))
		return
	}
	if err := s.backend.Put(ctx, connectionID, data); err != nil {
		s.logger.Warn("failed to upsert presence", zap.String("connection", connectionID), zap.Error(err))
	}
}

// Remove deletes the record of connectionID. Removing an absent record is a no-op.
func (s *Store) Remove(ctx context.Context, connectionID string) {
	if err := s.backend.Delete(ctx, connectionID); err != nil {
		s.logger.Warn("failed to remove presence", zap.String("connection", connectionID), zap.Error(err))
	}
}

// List returns the live records. The clock is read once so every record is
// judged against the same instant. Stale and undecodable records are
// removed, in the background unless blocking cleanup is enabled.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	now := s.now()

	all, err := s.backend.All(ctx)
	if err != nil {
		return nil, err
	}

	live := make([]Record, 0, len(all))
	stale := make(map[string]string)
	for id, raw := range all {
		var e entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			s.logger.Warn("dropping undecodable presence", zap.String("connection", id), zap.Error(err))
			stale[id] = raw
			continue
		}
		seen := time.UnixMilli(e.When)
		if now.Sub(seen) > s.window {
			stale[id] = raw
			continue
		}
		live = append(live, Record{ConnectionID: id, Meta: e.Meta, LastSeen: seen})
	}
	sort.Slice(live, func(i, j int) bool { return live[i].ConnectionID < live[j].ConnectionID })

	if len(stale) > 0 {
		if s.blocking {
			s.clean(ctx, stale)
		} else {
			s.cleanups.Add(1)
			go func() {
				defer s.cleanups.Done()
				cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
				defer cancel()
				s.clean(cctx, stale)
			}()
		}
	}

	return live, nil
}

// Count returns the number of live records, or 0 when the backend cannot be read.
func (s *Store) Count(ctx context.Context) int {
	live, err := s.List(ctx)
	if err != nil {
		s.logger.Warn("failed to list presence", zap.Error(err))
		return 0
	}
	return len(live)
}

func (s *Store) clean(ctx context.Context, stale map[string]string) {
	s.logger.Info("cleaning expired presences", zap.Int("count", len(stale)))
	removed, err := s.backend.Expire(ctx, stale)
	if err != nil {
		s.logger.Warn("failed to clean expired presences", zap.Error(err))
		return
	}
	if s.onExpire != nil && removed > 0 {
		s.onExpire(removed)
	}
}

// Close waits for in-flight cleanups and closes the backend
func (s *Store) Close() error {
	s.cleanups.Wait()
	return s.backend.Close()
}
