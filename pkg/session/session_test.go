package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionNew(t *testing.T) {
	s := New()
	assert.NotEmpty(t, s.ID())
	assert.Empty(t, s.Title())
	assert.Zero(t, s.Len())
	assert.False(t, s.CreatedAt().IsZero())
	assert.Equal(t, s.CreatedAt(), s.UpdatedAt())
}

func TestSessionAppend(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleUser, Content: "hello"})
	s.Append(
		Message{Role: RoleAssistant, Content: "hi"},
		Message{Role: RoleUser, Content: "bye"},
	)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "hello", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "bye", msgs[2].Content)

	// The returned slice is a copy; mutating it must not affect the log.
	msgs[0].Content = "mutated"
	assert.Equal(t, "hello", s.Messages()[0].Content)
}

func TestSessionAppendStampsUpdatedAt(t *testing.T) {
	s := New()
	before := s.UpdatedAt()
	s.Append(Message{Role: RoleUser, Content: "x"})
	assert.False(t, s.UpdatedAt().Before(before))

	s.SetTitle("named")
	assert.Equal(t, "named", s.Title())
}

func TestSessionConcurrentAppend(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Append(Message{Role: RoleUser, Content: "m"})
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestSessionRestoreRoundTrip(t *testing.T) {
	s := New()
	s.SetTitle("trip")
	s.Append(Message{Role: RoleUser, Content: "a"}, Message{Role: RoleAssistant, Content: "b"})

	meta, data := s.snapshot()
	r := restore(s.ID(), meta, data)

	assert.Equal(t, s.ID(), r.ID())
	assert.Equal(t, "trip", r.Title())
	assert.Equal(t, s.Messages(), r.Messages())
	assert.Equal(t, meta.CreatedAt, r.CreatedAt())
	assert.Equal(t, meta.UpdatedAt, r.UpdatedAt())
}
