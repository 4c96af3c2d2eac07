package formstate

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/conneroisu/brokerage/internal/logging"
)

// Sessions hands out one Store per visitor session. Stores are created on
// first use and dropped from memory after ttl without activity; their
// persisted state stays in storage and is rehydrated on the next visit.
type Sessions struct {
	storage   Storage
	namespace string
	ttl       time.Duration
	logger    logging.Logger

	mu     sync.Mutex
	stores map[string]*Store
}

// NewSessions returns a registry over storage.
func NewSessions(storage Storage, namespace string, ttl time.Duration, logger logging.Logger) *Sessions {
	if logger == nil {
		logger = logging.NewNop()
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	return &Sessions{
		storage:   storage,
		namespace: namespace,
		ttl:       ttl,
		logger:    logger,
		stores:    make(map[string]*Store),
	}
}

// NewSessionID returns a fresh session id.
func NewSessionID() string {
	return xid.New().String()
}

// ValidSessionID reports whether id looks like an id from NewSessionID.
func ValidSessionID(id string) bool {
	_, err := xid.FromString(id)
	return err == nil
}

// Get returns the store for sessionID, creating it if needed.
func (s *Sessions) Get(sessionID string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()

	if store, ok := s.stores[sessionID]; ok {
		return store
	}

	store := New(s.storage, Key(s.namespace, sessionID), s.logger)
	s.stores[sessionID] = store
	return store
}

// Len returns the number of stores held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.stores)
}

// Evict drops stores idle since before now-ttl and returns how many went.
// Degraded stores are only dropped once their state has been written.
func (s *Sessions) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	cutoff := now.Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, store := range s.stores {
		if !store.lastUsed().Before(cutoff) {
			continue
		}
		// A degraded store holds the only copy of its state. Keep it
		// until a write goes through.
		if store.Degraded() && s.storage != nil {
			if err := store.flush(); err != nil {
				s.logger.Debug(context.Background(), "keeping idle degraded session", "key", store.Key(), "error", err.Error())
				continue
			}
		}
		delete(s.stores, id)
		evicted++
	}

	return evicted
}

// Run evicts idle stores every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = s.ttl / 2
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.Evict(now); n > 0 {
				s.logger.Debug(ctx, "evicted idle form state sessions", "count", n)
			}
		}
	}
}
