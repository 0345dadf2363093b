package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	err := New(IDInvalidArgs, DomainValidation, CategoryUser, "content must not be empty").
		WithDetail("volume", "notes")

	msg := err.Error()
	assert.Contains(t, msg, "[validation:user]")
	assert.Contains(t, msg, "INVALID_ARGS")
	assert.Contains(t, msg, "content must not be empty")
	assert.Contains(t, msg, "volume=notes")
}

func TestWrapPreservesChain(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(IDStoreConnection, DomainStorage, CategoryThirdParty, "opening vector store", cause)

	require.ErrorIs(t, err, cause)

	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, IDStoreConnection, e.ID)
	assert.Equal(t, DomainStorage, e.Domain)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWrapThroughFmtErrorf(t *testing.T) {
	inner := Wrap(IDDimensionConflict, DomainConfiguration, CategoryUser, "dimension mismatch", nil)
	outer := fmt.Errorf("opening volume %q: %w", "facts", inner)

	assert.True(t, HasID(outer, IDDimensionConflict))
	assert.True(t, IsConfiguration(outer))
	assert.False(t, IsValidation(outer))
}

func TestIsMatchesByID(t *testing.T) {
	a := New(IDSearchFailed, DomainStorage, CategoryThirdParty, "search failed")
	b := New(IDSearchFailed, DomainStorage, CategoryThirdParty, "different message")
	c := New(IDInsertFailed, DomainStorage, CategoryThirdParty, "insert failed")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestHasIDOnForeignError(t *testing.T) {
	assert.False(t, HasID(errors.New("plain"), IDInvalidArgs))
	assert.False(t, IsValidation(errors.New("plain")))
}
