// Package errs defines the uniform error representation shared by the
// persistence and knowledge layers.
//
// Every failure surfaced by a storage or vector operation is wrapped into an
// *Error carrying a machine-readable ID, a Domain (which subsystem failed),
// a Category (who is responsible), and free-form details. Callers match on
// IDs or sentinel causes with errors.Is/errors.As; the chain is never broken.
//
// Absence is not a failure: lookups for missing records return an explicit
// "not found" signal at the call site, never an *Error.
package errs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Domain identifies the subsystem an error originated in.
type Domain string

const (
	DomainStorage       Domain = "storage"
	DomainValidation    Domain = "validation"
	DomainNetwork       Domain = "network"
	DomainConfiguration Domain = "configuration"
)

// Category identifies who is responsible for an error.
type Category string

const (
	// CategoryUser marks errors caused by caller input (bad arguments,
	// empty content, malformed batches). Never retried.
	CategoryUser Category = "user"

	// CategoryThirdParty marks errors propagated from an external backend
	// (vector index, relational engine, embedding service).
	CategoryThirdParty Category = "third_party"

	// CategorySystem marks internal invariant violations.
	CategorySystem Category = "system"
)

// Predefined error IDs. These are stable machine-readable identifiers;
// log pipelines and tests match on them.
const (
	IDInvalidArgs       = "INVALID_ARGS"
	IDInvalidConfig     = "INVALID_CONFIG"
	IDStoreConnection   = "STORE_CONNECTION_FAILED"
	IDStoreClosed       = "STORE_CLOSED"
	IDCollectionCreate  = "COLLECTION_CREATE_FAILED"
	IDCollectionOpen    = "COLLECTION_OPEN_FAILED"
	IDCollectionDelete  = "COLLECTION_DELETE_FAILED"
	IDCollectionList    = "COLLECTION_LIST_FAILED"
	IDDimensionConflict = "DIMENSION_CONFLICT"
	IDEmbeddingFailed   = "EMBEDDING_FAILED"
	IDInsertFailed      = "INSERT_FAILED"
	IDBatchFailed       = "BATCH_FAILED"
	IDSearchFailed      = "SEARCH_FAILED"
	IDPersistFailed     = "PERSIST_FAILED"
	IDSerializeFailed   = "SERIALIZE_FAILED"
)

// Error is the wrapped error type for storage and vector operations.
type Error struct {
	// ID is a stable machine-readable identifier (see the ID constants).
	ID string

	// Domain is the subsystem the error originated in.
	Domain Domain

	// Category identifies responsibility (user, third_party, system).
	Category Category

	// Message is a human-readable description.
	Message string

	// Details carries free-form context (collection name, record id, ...).
	Details map[string]any

	// Err is the wrapped cause, nil for errors raised at this layer.
	Err error
}

// New creates an *Error without a wrapped cause.
func New(id string, domain Domain, category Category, msg string) *Error {
	return &Error{ID: id, Domain: domain, Category: category, Message: msg}
}

// Wrap creates an *Error wrapping cause. A nil cause is permitted and
// equivalent to New.
func Wrap(id string, domain Domain, category Category, msg string, cause error) *Error {
	return &Error{ID: id, Domain: domain, Category: category, Message: msg, Err: cause}
}

// WithDetail returns e with an added detail entry. The receiver is mutated
// and returned for chaining during construction.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any, 1)
	}
	e.Details[key] = value
	return e
}

// Error implements the error interface.
// Format: [domain:category] ID: message | details: k=v | cause: ...
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s: %s", e.Domain, e.Category, e.ID, e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" | details:")
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%v", k, e.Details[k])
		}
	}
	if e.Err != nil {
		fmt.Fprintf(&b, " | cause: %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches two *Error values by ID, so errors.Is(err, errs.New(id, ...))
// and direct comparisons against sentinel *Error values both work.
func (e *Error) Is(target error) bool {
	var te *Error
	if !errors.As(target, &te) {
		return false
	}
	return e.ID == te.ID
}

// HasID reports whether err or any error in its chain is an *Error with
// the given ID.
func HasID(err error, id string) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.ID == id
}

// IsValidation reports whether err belongs to the validation domain.
// Validation errors are surfaced before any I/O and must not be retried.
func IsValidation(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Domain == DomainValidation
}

// IsConfiguration reports whether err belongs to the configuration domain.
// Configuration errors are fatal and require caller intervention.
func IsConfiguration(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Domain == DomainConfiguration
}
