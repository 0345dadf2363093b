// Package session manages conversation sessions: an ordered, append-only
// message log with identity and timestamps, cached by a Vault that bounds
// memory and writes through to an optional persistence backend.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Message is one entry of a session's conversation log.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Meta is the listing projection of a session: everything but the messages.
type Meta struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Data is the payload projection of a session.
type Data struct {
	Messages []Message `json:"messages"`
}

// Session is one conversation with an immutable id and an append-only
// message log. All mutating methods hold the session's own mutex, so a
// session may be shared across goroutines.
type Session struct {
	id string

	mu        sync.Mutex
	title     string
	createdAt time.Time
	updatedAt time.Time
	messages  []Message
}

// New creates an empty session with a generated uuid.
func New() *Session {
	now := time.Now().UTC()
	return &Session{
		id:        uuid.NewString(),
		createdAt: now,
		updatedAt: now,
	}
}

// restore rebuilds a session from its persisted projections.
func restore(id string, meta Meta, data Data) *Session {
	return &Session{
		id:        id,
		title:     meta.Title,
		createdAt: meta.CreatedAt,
		updatedAt: meta.UpdatedAt,
		messages:  append([]Message(nil), data.Messages...),
	}
}

// ID returns the session's immutable identifier.
func (s *Session) ID() string { return s.id }

// Title returns the session title.
func (s *Session) Title() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.title
}

// SetTitle replaces the session title.
func (s *Session) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.title = title
	s.updatedAt = time.Now().UTC()
}

// CreatedAt returns the creation time.
func (s *Session) CreatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createdAt
}

// UpdatedAt returns the last modification time.
func (s *Session) UpdatedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatedAt
}

// Append adds messages to the end of the log. Existing messages are never
// modified or removed.
func (s *Session) Append(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.updatedAt = time.Now().UTC()
}

// Messages returns a copy of the message log in append order.
func (s *Session) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Len returns the number of messages.
func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// snapshot captures both projections under one lock acquisition.
func (s *Session) snapshot() (Meta, Data) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta := Meta{Title: s.title, CreatedAt: s.createdAt, UpdatedAt: s.updatedAt}
	data := Data{Messages: append([]Message(nil), s.messages...)}
	return meta, data
}

// touch stamps the modification time.
func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updatedAt = now
}
