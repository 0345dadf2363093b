// Package persistence defines the storage contract shared by the session
// vault and the knowledge store's volume catalog.
//
// A Persistor manages one named collection of (id, meta, data) records.
// Meta is a small, frequently-listed projection (titles, timestamps); Data
// is the full payload. List returns meta only, so enumerating a large
// collection never deserializes full payloads.
//
// Contract semantics, which every implementation must honor:
//   - Insert is an upsert: a second insert with the same id wins, no error.
//   - Update on an unknown id behaves like Insert.
//   - Remove of an absent id is a no-op.
//   - Find signals absence with found == false, never with an error.
package persistence

import "context"

// Item is a full record as returned by Find.
type Item[D, M any] struct {
	Meta M
	Data D
}

// Entry is the meta-only projection returned by List.
type Entry[M any] struct {
	ID   string
	Meta M
}

// Persistor is the storage-agnostic contract. D is the payload type, M the
// lightweight metadata type; both must be JSON-serializable for backends
// that encode to text.
type Persistor[D, M any] interface {
	// Insert creates or overwrites the record keyed by id.
	Insert(ctx context.Context, id string, meta M, data D) error

	// Find returns the record for id, or found == false when absent.
	Find(ctx context.Context, id string) (item Item[D, M], found bool, err error)

	// Update overwrites the record's meta and data. Unknown ids are
	// inserted rather than rejected.
	Update(ctx context.Context, id string, meta M, data D) error

	// Remove deletes the record if present.
	Remove(ctx context.Context, id string) error

	// List returns every known id with its meta projection.
	List(ctx context.Context) ([]Entry[M], error)

	// Close releases backend resources.
	Close() error
}
