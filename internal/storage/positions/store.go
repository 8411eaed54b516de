// Package positions persists DCA position state in a write-ahead log.
package positions

import (
	"encoding/json"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/avgdown/dcabot/internal/domain"
)

const (
	// DefaultDir is the default WAL location for position state.
	DefaultDir = "./wal/positions"

	segmentThreshold = 1000
	maxSegments      = 100
)

// WALStore is a WAL-backed position repository. The latest record per key
// wins on recovery; every mutation appends a full state snapshot. All
// mutations go through a per-store mutex so read-modify-write sequences are
// atomic per key and overlapping fills cannot lose updates.
type WALStore struct {
	wal   *gowal.Wal
	mu    sync.Mutex
	cache map[string]*domain.PositionState
}

// NewWALStore opens (or creates) the WAL in dir and recovers the latest
// position state for every key.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "pos_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init position WAL")
	}

	cache := make(map[string]*domain.PositionState)
	for msg := range wal.Iterator() {
		state := domain.NewPositionState()
		if err := json.Unmarshal(msg.Value, state); err != nil {
			return nil, errors.Wrapf(err, "corrupt position record for key %s", msg.Key)
		}
		if state.ProcessedFillIDs == nil {
			state.ProcessedFillIDs = make(map[string]bool)
		}
		cache[msg.Key] = state
	}

	return &WALStore{wal: wal, cache: cache}, nil
}

// Load returns a point-in-time snapshot of the state for key, or a fresh
// empty state when none was persisted yet. The caller owns the returned copy.
func (s *WALStore) Load(key domain.PositionKey) (*domain.PositionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.cache[key.String()]
	if !ok {
		return domain.NewPositionState(), nil
	}
	return cloneState(state), nil
}

// Save persists the given state as the new latest snapshot for key.
func (s *WALStore) Save(key domain.PositionKey, state *domain.PositionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(key, cloneState(state))
}

// Update applies fn to the current state of key atomically: the state is
// copied, mutated and persisted under the store lock. When fn returns an
// error nothing is persisted.
func (s *WALStore) Update(key domain.PositionKey, fn func(state *domain.PositionState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.cache[key.String()]
	if !ok {
		current = domain.NewPositionState()
	}

	next := cloneState(current)
	if err := fn(next); err != nil {
		return err
	}

	return s.persist(key, next)
}

// persist writes state to the WAL and replaces the cache entry. Caller must
// hold the lock.
func (s *WALStore) persist(key domain.PositionKey, state *domain.PositionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal position state")
	}

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key.String(), data); err != nil {
		return errors.Wrap(err, "write position state")
	}

	s.cache[key.String()] = state
	return nil
}

// Close releases the underlying WAL.
func (s *WALStore) Close() error {
	return s.wal.Close()
}

func cloneState(state *domain.PositionState) *domain.PositionState {
	clone := *state
	clone.ProcessedFillIDs = make(map[string]bool, len(state.ProcessedFillIDs))
	for id, done := range state.ProcessedFillIDs {
		clone.ProcessedFillIDs[id] = done
	}
	return &clone
}
