package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/persistence"
)

// Persistor is the storage contract a Vault writes sessions through.
type Persistor = persistence.Persistor[Data, Meta]

// Config holds Vault configuration.
type Config struct {
	// MaxSessions bounds the number of sessions kept, in cache and in the
	// backing store. Default: 20.
	MaxSessions int `koanf:"max_sessions"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.MaxSessions == 0 {
		c.MaxSessions = 20
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.MaxSessions < 1 {
		return errs.New(errs.IDInvalidConfig, errs.DomainConfiguration, errs.CategoryUser,
			"max sessions must be at least 1")
	}
	return nil
}

// Vault caches live sessions and writes them through to an optional
// persistence backend. When the session count exceeds MaxSessions the
// least-recently-updated sessions are evicted, from the cache and from the
// store, so the bound holds across restarts.
//
// A nil persistor yields a purely in-memory vault; every operation still
// behaves the same, minus durability.
type Vault struct {
	config Config
	store  Persistor
	logger *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewVault creates a Vault. The persistor and logger may be nil.
func NewVault(config Config, store Persistor, logger *zap.Logger) (*Vault, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Vault{
		config:   config,
		store:    store,
		logger:   logger,
		sessions: make(map[string]*Session),
	}, nil
}

// Create starts a new empty session, caches it, writes it through, and
// evicts the least-recently-updated sessions beyond the configured bound.
func (v *Vault) Create(ctx context.Context) (*Session, error) {
	s := New()

	v.mu.Lock()
	v.sessions[s.id] = s
	v.mu.Unlock()

	if v.store != nil {
		meta, data := s.snapshot()
		if err := v.store.Insert(ctx, s.id, meta, data); err != nil {
			v.mu.Lock()
			delete(v.sessions, s.id)
			v.mu.Unlock()
			return nil, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"persisting new session", err).WithDetail("session", s.id)
		}
	}

	if err := v.evict(ctx); err != nil {
		return nil, err
	}

	v.logger.Debug("session created", zap.String("session", s.id))
	return s, nil
}

// Get returns the cached session, falling back to the backing store and
// rehydrating into the cache on a miss. Absence is (nil, false, nil), not
// an error.
func (v *Vault) Get(ctx context.Context, id string) (*Session, bool, error) {
	v.mu.RLock()
	s, ok := v.sessions[id]
	v.mu.RUnlock()
	if ok {
		return s, true, nil
	}
	if v.store == nil {
		return nil, false, nil
	}

	item, found, err := v.store.Find(ctx, id)
	if err != nil {
		return nil, false, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
			"loading session", err).WithDetail("session", id)
	}
	if !found {
		return nil, false, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	// A concurrent Get may have rehydrated already; keep the first one so
	// callers share a single instance.
	if existing, ok := v.sessions[id]; ok {
		return existing, true, nil
	}
	s = restore(id, item.Meta, item.Data)
	v.sessions[id] = s
	return s, true, nil
}

// Update stamps the session's modification time and writes it through.
// Write-through failures are returned to the caller.
func (v *Vault) Update(ctx context.Context, s *Session) error {
	if s == nil {
		return errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"session must not be nil")
	}
	s.touch(time.Now().UTC())

	v.mu.Lock()
	v.sessions[s.id] = s
	v.mu.Unlock()

	if v.store != nil {
		meta, data := s.snapshot()
		if err := v.store.Update(ctx, s.id, meta, data); err != nil {
			return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"persisting session update", err).WithDetail("session", s.id)
		}
	}

	return v.evict(ctx)
}

// List enumerates persisted sessions as (id, meta) entries. Without a
// backing store nothing is persisted, so the result is empty regardless of
// what the cache holds.
func (v *Vault) List(ctx context.Context) ([]persistence.Entry[Meta], error) {
	if v.store == nil {
		return []persistence.Entry[Meta]{}, nil
	}

	entries, err := v.store.List(ctx)
	if err != nil {
		return nil, errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
			"listing sessions", err)
	}
	return entries, nil
}

// Delete removes the session from cache and store. Deleting an unknown id
// is a no-op.
func (v *Vault) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	delete(v.sessions, id)
	v.mu.Unlock()

	if v.store != nil {
		if err := v.store.Remove(ctx, id); err != nil {
			return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"removing session", err).WithDetail("session", id)
		}
	}
	return nil
}

// Clear deletes every session, cached or only persisted.
func (v *Vault) Clear(ctx context.Context) error {
	v.mu.Lock()
	ids := make([]string, 0, len(v.sessions))
	for id := range v.sessions {
		ids = append(ids, id)
	}
	v.mu.Unlock()

	for _, id := range ids {
		if err := v.Delete(ctx, id); err != nil {
			return err
		}
	}

	if v.store != nil {
		entries, err := v.store.List(ctx)
		if err != nil {
			return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"listing sessions for clear", err)
		}
		for _, e := range entries {
			if err := v.Delete(ctx, e.ID); err != nil {
				return err
			}
		}
	}

	v.logger.Debug("vault cleared", zap.Int("removed", len(ids)))
	return nil
}

// Len returns the number of cached sessions.
func (v *Vault) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.sessions)
}

// evict deletes sessions ranked beyond MaxSessions, ordered by UpdatedAt
// descending with ties broken by id ascending. Candidates come from the
// cache and, when present, the backing store, so the bound also covers
// records no vault instance currently caches.
func (v *Vault) evict(ctx context.Context) error {
	type candidate struct {
		id      string
		updated time.Time
	}

	seen := make(map[string]bool)
	var candidates []candidate

	v.mu.RLock()
	for id, s := range v.sessions {
		candidates = append(candidates, candidate{id: id, updated: s.UpdatedAt()})
		seen[id] = true
	}
	v.mu.RUnlock()

	if v.store != nil {
		entries, err := v.store.List(ctx)
		if err != nil {
			return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"listing sessions for eviction", err)
		}
		for _, e := range entries {
			if !seen[e.ID] {
				candidates = append(candidates, candidate{id: e.ID, updated: e.Meta.UpdatedAt})
			}
		}
	}

	if len(candidates) <= v.config.MaxSessions {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if !candidates[i].updated.Equal(candidates[j].updated) {
			return candidates[i].updated.After(candidates[j].updated)
		}
		return candidates[i].id < candidates[j].id
	})

	for _, c := range candidates[v.config.MaxSessions:] {
		if err := v.Delete(ctx, c.id); err != nil {
			return err
		}
		v.logger.Debug("session evicted", zap.String("session", c.id))
	}
	return nil
}
