package knowledge

import (
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderFilter(t *testing.T) {
	conds, err := ParseWhere(map[string]any{
		"lang":    "en",
		"stars":   map[string]any{"$gte": 100},
		"tier":    []any{"free", "pro"},
		"deleted": nil,
		"state":   map[string]any{"$ne": "archived"},
	})
	require.NoError(t, err)

	filter, err := renderFilter(conds)
	require.NoError(t, err)
	require.NotNil(t, filter)
	assert.Len(t, filter.Must, 4)
	require.Len(t, filter.MustNot, 1)

	byKey := map[string]*qdrant.FieldCondition{}
	for _, c := range filter.Must {
		if f, ok := c.ConditionOneOf.(*qdrant.Condition_Field); ok {
			byKey[f.Field.Key] = f.Field
		}
	}

	lang := byKey["meta.lang"]
	require.NotNil(t, lang)
	assert.Equal(t, "en", lang.Match.GetKeyword())

	stars := byKey["meta.stars"]
	require.NotNil(t, stars)
	require.NotNil(t, stars.Range.Gte)
	assert.Equal(t, 100.0, *stars.Range.Gte)

	tier := byKey["meta.tier"]
	require.NotNil(t, tier)
	assert.Equal(t, []string{"free", "pro"}, tier.Match.GetKeywords().GetStrings())

	var sawNull bool
	for _, c := range filter.Must {
		if n, ok := c.ConditionOneOf.(*qdrant.Condition_IsNull); ok {
			sawNull = true
			assert.Equal(t, "meta.deleted", n.IsNull.Key)
		}
	}
	assert.True(t, sawNull)

	ne := filter.MustNot[0].ConditionOneOf.(*qdrant.Condition_Field).Field
	assert.Equal(t, "meta.state", ne.Key)
	assert.Equal(t, "archived", ne.Match.GetKeyword())
}

func TestRenderFilterEmpty(t *testing.T) {
	filter, err := renderFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, filter)
}

func TestRenderFilterDoubleEquality(t *testing.T) {
	conds, err := ParseWhere(map[string]any{"score": 0.5})
	require.NoError(t, err)
	filter, err := renderFilter(conds)
	require.NoError(t, err)

	field := filter.Must[0].ConditionOneOf.(*qdrant.Condition_Field).Field
	require.NotNil(t, field.Range)
	assert.Equal(t, 0.5, *field.Range.Gte)
	assert.Equal(t, 0.5, *field.Range.Lte)
}

func TestRenderFilterRejectsMixedMembership(t *testing.T) {
	conds, err := ParseWhere(map[string]any{"x": []any{"a", 1}})
	require.NoError(t, err)
	_, err = renderFilter(conds)
	require.Error(t, err)
}

func TestPointID(t *testing.T) {
	// UUIDs pass through unchanged.
	id := "a2b7f3a0-9c1d-4f6e-8a2b-123456789abc"
	assert.Equal(t, id, pointID(id).GetUuid())

	// Non-UUID ids map deterministically.
	first := pointID("external-key").GetUuid()
	second := pointID("external-key").GetUuid()
	assert.Equal(t, first, second)
	assert.NotEqual(t, first, pointID("other-key").GetUuid())
}

func TestPayloadValueRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"string", "hi", "hi"},
		{"int", 7, int64(7)},
		{"float", 1.5, 1.5},
		{"bool", true, true},
		{"nil", nil, nil},
		{"list", []any{"a", "b"}, []any{"a", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, payloadToAny(payloadValue(tt.in)))
		})
	}
}
