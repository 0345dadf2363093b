package persistence

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testMeta struct {
	Title string
}

type testData struct {
	Body string
}

func TestMemoryInsertFind(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersistor[testData, testMeta]()

	require.NoError(t, p.Insert(ctx, "a", testMeta{Title: "first"}, testData{Body: "hello"}))

	item, found, err := p.Find(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "first", item.Meta.Title)
	assert.Equal(t, "hello", item.Data.Body)
}

func TestMemoryFindMissing(t *testing.T) {
	p := NewMemoryPersistor[testData, testMeta]()

	_, found, err := p.Find(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryInsertOverwrites(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersistor[testData, testMeta]()

	require.NoError(t, p.Insert(ctx, "a", testMeta{Title: "v1"}, testData{Body: "one"}))
	require.NoError(t, p.Insert(ctx, "a", testMeta{Title: "v2"}, testData{Body: "two"}))

	item, found, err := p.Find(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "v2", item.Meta.Title)
	assert.Equal(t, "two", item.Data.Body)

	entries, err := p.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryUpdateUnknownInserts(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersistor[testData, testMeta]()

	require.NoError(t, p.Update(ctx, "fresh", testMeta{Title: "t"}, testData{Body: "b"}))

	_, found, err := p.Find(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestMemoryRemoveIdempotent(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersistor[testData, testMeta]()

	require.NoError(t, p.Insert(ctx, "a", testMeta{}, testData{}))
	require.NoError(t, p.Remove(ctx, "a"))
	require.NoError(t, p.Remove(ctx, "a"))

	_, found, err := p.Find(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryList(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersistor[testData, testMeta]()

	require.NoError(t, p.Insert(ctx, "a", testMeta{Title: "A"}, testData{}))
	require.NoError(t, p.Insert(ctx, "b", testMeta{Title: "B"}, testData{}))

	entries, err := p.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	titles := map[string]string{}
	for _, e := range entries {
		titles[e.ID] = e.Meta.Title
	}
	assert.Equal(t, map[string]string{"a": "A", "b": "B"}, titles)
}
