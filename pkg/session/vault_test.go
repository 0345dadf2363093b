package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentstore/pkg/persistence"
	"github.com/fyrsmithlabs/agentstore/pkg/persistence/sqlite"
)

func newMemoryVault(t *testing.T, max int) *Vault {
	t.Helper()
	v, err := NewVault(Config{MaxSessions: max}, persistence.NewMemoryPersistor[Data, Meta](), nil)
	require.NoError(t, err)
	return v
}

func openSessionStore(t *testing.T, dir string) Persistor {
	t.Helper()
	store, err := sqlite.Open[Data, Meta](sqlite.Config{Dir: dir, Name: "vault"}, "sessions")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestVaultCreateAndGet(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 20)

	s, err := v.Create(ctx)
	require.NoError(t, err)

	got, found, err := v.Get(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, s, got)

	_, found, err = v.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVaultEviction(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 2)

	a, err := v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	c, err := v.Create(ctx)
	require.NoError(t, err)

	// The least recently updated session is gone, in cache and store.
	_, found, err := v.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.False(t, found)

	for _, s := range []*Session{b, c} {
		_, found, err := v.Get(ctx, s.ID())
		require.NoError(t, err)
		assert.True(t, found, "session %s should survive", s.ID())
	}
	assert.Equal(t, 2, v.Len())
}

func TestVaultUpdateProtectsFromEviction(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 2)

	a, err := v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)

	// Touching A makes B the eviction candidate.
	a.Append(Message{Role: RoleUser, Content: "keep me"})
	require.NoError(t, v.Update(ctx, a))
	time.Sleep(2 * time.Millisecond)

	_, err = v.Create(ctx)
	require.NoError(t, err)

	_, found, err := v.Get(ctx, a.ID())
	require.NoError(t, err)
	assert.True(t, found)
	_, found, err = v.Get(ctx, b.ID())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVaultUpdateStampsUpdatedAt(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 20)

	s, err := v.Create(ctx)
	require.NoError(t, err)
	before := s.UpdatedAt()
	time.Sleep(2 * time.Millisecond)

	require.NoError(t, v.Update(ctx, s))
	assert.True(t, s.UpdatedAt().After(before))
}

func TestVaultCacheMissFallback(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewVault(Config{}, openSessionStore(t, dir), nil)
	require.NoError(t, err)
	s, err := first.Create(ctx)
	require.NoError(t, err)
	s.SetTitle("from first")
	s.Append(Message{Role: RoleUser, Content: "payload"})
	require.NoError(t, first.Update(ctx, s))

	// A second vault over the same backend resolves the session without
	// ever having cached it.
	second, err := NewVault(Config{}, openSessionStore(t, dir), nil)
	require.NoError(t, err)
	got, found, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "from first", got.Title())
	require.Len(t, got.Messages(), 1)
	assert.Equal(t, "payload", got.Messages()[0].Content)

	// Rehydration caches the instance.
	again, found, err := second.Get(ctx, s.ID())
	require.NoError(t, err)
	require.True(t, found)
	assert.Same(t, got, again)
}

func TestVaultList(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 20)

	a, err := v.Create(ctx)
	require.NoError(t, err)
	a.SetTitle("first")
	require.NoError(t, v.Update(ctx, a))
	_, err = v.Create(ctx)
	require.NoError(t, err)

	entries, err := v.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	titles := make(map[string]string)
	for _, e := range entries {
		titles[e.ID] = e.Meta.Title
	}
	assert.Equal(t, "first", titles[a.ID()])
}

func TestVaultDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	v := newMemoryVault(t, 20)

	s, err := v.Create(ctx)
	require.NoError(t, err)
	require.NoError(t, v.Delete(ctx, s.ID()))
	require.NoError(t, v.Delete(ctx, s.ID()))

	_, found, err := v.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, found)
}

func TestVaultClearCoversUncachedRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewVault(Config{}, openSessionStore(t, dir), nil)
	require.NoError(t, err)
	s, err := first.Create(ctx)
	require.NoError(t, err)

	// The second vault never caches the session, but Clear must still
	// remove the persisted record.
	second, err := NewVault(Config{}, openSessionStore(t, dir), nil)
	require.NoError(t, err)
	require.NoError(t, second.Clear(ctx))

	_, found, err := first.Get(ctx, s.ID())
	require.NoError(t, err)
	assert.False(t, found)

	entries, err := second.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestVaultInMemoryOnly(t *testing.T) {
	ctx := context.Background()
	v, err := NewVault(Config{MaxSessions: 2}, nil, nil)
	require.NoError(t, err)

	_, err = v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := v.Create(ctx)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = v.Create(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, v.Len())

	// Listing reflects the store only; with no store configured it is
	// empty even while sessions sit in the cache.
	entries, err := v.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)

	_, found, err := v.Get(ctx, b.ID())
	require.NoError(t, err)
	assert.True(t, found)
}

func TestVaultConfigValidation(t *testing.T) {
	_, err := NewVault(Config{MaxSessions: -1}, nil, nil)
	require.Error(t, err)
}

// failingStore returns a fixed error from every write.
type failingStore struct {
	Persistor
	err error
}

func (f *failingStore) Insert(ctx context.Context, id string, meta Meta, data Data) error {
	return f.err
}

func (f *failingStore) Update(ctx context.Context, id string, meta Meta, data Data) error {
	return f.err
}

func TestVaultWriteThroughErrorsPropagate(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("disk full")
	v, err := NewVault(Config{}, &failingStore{
		Persistor: persistence.NewMemoryPersistor[Data, Meta](),
		err:       boom,
	}, nil)
	require.NoError(t, err)

	_, err = v.Create(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, v.Len())

	s := New()
	err = v.Update(ctx, s)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}
