package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"druktour/internal/itinerary"
	"druktour/internal/models"
)

// MemoryStateRepository is the in-process fallback for Redis. Sessions are
// stored encoded so callers never share a record with the store.
type MemoryStateRepository struct {
	mu         sync.Mutex
	sessions   map[string]memoryEntry
	states     map[int64]memoryEntry
	rateLimits map[int64]*rateLimitEntry
	sessionTTL time.Duration
	stateTTL   time.Duration
	now        func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func NewMemoryStateRepository(sessionTTL, stateTTL time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		sessions:   make(map[string]memoryEntry),
		states:     make(map[int64]memoryEntry),
		rateLimits: make(map[int64]*rateLimitEntry),
		sessionTTL: sessionTTL,
		stateTTL:   stateTTL,
		now:        time.Now,
	}
}

func (r *MemoryStateRepository) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return r.now().Add(ttl)
}

func (r *MemoryStateRepository) live(e memoryEntry) bool {
	return e.expiresAt.IsZero() || r.now().Before(e.expiresAt)
}

func (r *MemoryStateRepository) GetSession(_ context.Context, key itinerary.SessionKey) (*itinerary.Record, error) {
	r.mu.Lock()
	entry, ok := r.sessions[key.String()]
	if ok && !r.live(entry) {
		delete(r.sessions, key.String())
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var rec itinerary.Record
	if err := json.Unmarshal(entry.data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &rec, nil
}

func (r *MemoryStateRepository) SaveSession(_ context.Context, rec *itinerary.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[rec.Key.String()] = memoryEntry{data: data, expiresAt: r.expiry(r.sessionTTL)}
	return nil
}

func (r *MemoryStateRepository) DeleteSession(_ context.Context, key itinerary.SessionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key.String())
	return nil
}

func (r *MemoryStateRepository) GetState(_ context.Context, userID int64) (*models.UserState, error) {
	r.mu.Lock()
	entry, ok := r.states[userID]
	if ok && !r.live(entry) {
		delete(r.states, userID)
		ok = false
	}
	r.mu.Unlock()
	if !ok {
		return nil, nil
	}

	var state models.UserState
	if err := json.Unmarshal(entry.data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	return &state, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.UserState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.UserID] = memoryEntry{data: data, expiresAt: r.expiry(r.stateTTL)}
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, userID)
	return nil
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	entry, ok := r.rateLimits[userID]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 0, expiresAt: now.Add(window)}
		r.rateLimits[userID] = entry
	}
	entry.count++
	return entry.count <= limit, nil
}
