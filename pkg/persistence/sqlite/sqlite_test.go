package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/agentstore/pkg/errs"
)

type testMeta struct {
	Title string `json:"title"`
}

type testData struct {
	Lines []string `json:"lines"`
}

func openTestStore(t *testing.T) *Store[testData, testMeta] {
	t.Helper()
	store, err := Open[testData, testMeta](Config{Dir: t.TempDir()}, "records")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestInsertFind(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, "r1", testMeta{Title: "first"}, testData{Lines: []string{"a", "b"}}))

	item, found, err := store.Find(ctx, "r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", item.Meta.Title)
	assert.Equal(t, []string{"a", "b"}, item.Data.Lines)
}

func TestFindMissingIsNotAnError(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	_, found, err := store.Find(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestInsertIsIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, "r1", testMeta{Title: "v1"}, testData{Lines: []string{"a"}}))
	require.NoError(t, store.Insert(ctx, "r1", testMeta{Title: "v2"}, testData{Lines: []string{"b"}}))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	item, found, err := store.Find(ctx, "r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", item.Meta.Title)
	assert.Equal(t, []string{"b"}, item.Data.Lines)
}

func TestUpdateUnknownIDBehavesLikeInsert(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Update(ctx, "fresh", testMeta{Title: "t"}, testData{}))

	_, found, err := store.Find(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestRemoveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, "r1", testMeta{}, testData{}))
	require.NoError(t, store.Remove(ctx, "r1"))
	require.NoError(t, store.Remove(ctx, "r1"))
	require.NoError(t, store.Remove(ctx, "never-existed"))
}

func TestListReturnsMetaOnly(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, "a", testMeta{Title: "A"}, testData{Lines: []string{"x"}}))
	require.NoError(t, store.Insert(ctx, "b", testMeta{Title: "B"}, testData{Lines: []string{"y"}}))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	titles := map[string]string{}
	for _, e := range entries {
		titles[e.ID] = e.Meta.Title
	}
	assert.Equal(t, map[string]string{"a": "A", "b": "B"}, titles)
}

func TestListOrdersByUpdatedAtDescending(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	require.NoError(t, store.Insert(ctx, "old", testMeta{}, testData{}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Insert(ctx, "mid", testMeta{}, testData{}))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Insert(ctx, "new", testMeta{}, testData{}))

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "new", entries[0].ID)
	assert.Equal(t, "mid", entries[1].ID)
	assert.Equal(t, "old", entries[2].ID)

	// Touching the oldest record moves it to the front.
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Update(ctx, "old", testMeta{Title: "touched"}, testData{}))

	entries, err = store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "old", entries[0].ID)
}

func TestCollectionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := Open[testData, testMeta](Config{Dir: dir}, "first")
	require.NoError(t, err)
	defer first.Close()

	second, err := Open[testData, testMeta](Config{Dir: dir}, "second")
	require.NoError(t, err)
	defer second.Close()

	require.NoError(t, first.Insert(ctx, "only-in-first", testMeta{}, testData{}))

	_, found, err := second.Find(ctx, "only-in-first")
	require.NoError(t, err)
	assert.False(t, found)

	entries, err := second.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInvalidCollectionName(t *testing.T) {
	tests := []string{"", "UPPER", "has space", "a;drop table", "dash-ed"}
	for _, name := range tests {
		_, err := Open[testData, testMeta](Config{Dir: t.TempDir()}, name)
		require.Error(t, err, "name %q", name)
		assert.True(t, errs.IsValidation(err))
	}
}
