// Package knowledge provides dimension-locked vector collections for
// embedding-backed retrieval.
//
// A Store owns named volumes. Each volume is bound to one embedding model
// and one fixed vector dimension, learned from a probe embedding on first
// provisioning (or taken from config) and permanently associated with the
// volume name. Reopening a volume with a model of a different output
// dimension is a fatal configuration error; the caller must rename the
// volume or change models.
//
// Volumes store (content, metadata, vector) records. Metadata is flattened
// into dot-qualified keys before storage and unflattened on every returned
// result. Search translates Where filters into the backend's predicate
// language and applies DistanceThreshold as a post-filter over the
// backend's top-k.
//
// Two backends ship: ChromemStore (embedded, chromem-go) and QdrantStore
// (external, gRPC).
package knowledge

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/persistence"
)

// Sentinel errors for knowledge store operations.
var (
	// ErrInvalidConfig indicates invalid configuration.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrVolumeNotFound is returned when a named volume does not exist.
	ErrVolumeNotFound = errors.New("volume not found")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// DefaultSearchLimit bounds a search when SearchOptions.Limit is unset.
const DefaultSearchLimit = 5

// dimensionProbeText is the fixed sample embedded once per volume to learn
// the model's output dimension.
const dimensionProbeText = "dimension probe"

var volumeNameRe = regexp.MustCompile(`^[a-z0-9_]{1,64}$`)

// ValidateVolumeName enforces the volume naming rules shared by all
// backends: lowercase alphanumerics and underscores, at most 64 bytes.
func ValidateVolumeName(name string) error {
	if !volumeNameRe.MatchString(name) {
		return errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"volume name must match ^[a-z0-9_]{1,64}$").
			WithDetail("name", name)
	}
	return nil
}

// BatchItem is one entry of a batch insert.
type BatchItem struct {
	// ID is optional; a UUID is generated when empty. Caller-supplied ids
	// make retried batches idempotent.
	ID string

	// Content is the text to embed and store. Must be non-empty.
	Content string

	// Metadata is nested metadata, flattened before storage.
	Metadata map[string]any
}

// SearchOptions refine a similarity search.
type SearchOptions struct {
	// Limit bounds the number of results. Default: DefaultSearchLimit.
	Limit int

	// Where filters on metadata. Keys may be nested paths; values follow
	// the mapping documented on ParseWhere.
	Where map[string]any

	// DistanceThreshold drops results whose distance exceeds it. Applied
	// after the backend returns its top-k, not pushed into the query.
	DistanceThreshold *float64
}

// SearchResult is one similarity search hit.
type SearchResult struct {
	// ID is the record identifier.
	ID string

	// Content is the stored text.
	Content string

	// Metadata is the record's metadata, unflattened back to nested form.
	Metadata map[string]any

	// Distance to the query vector; lower is more similar. The metric is
	// backend-defined (cosine distance for both shipped backends).
	Distance float64
}

// Volume is one named, dimension-locked collection of knowledge records.
type Volume interface {
	// Name returns the volume name, unique per store.
	Name() string

	// Dimension returns the locked vector dimension.
	Dimension() int

	// Insert embeds content and stores it with flattened metadata.
	// Returns the generated record id.
	Insert(ctx context.Context, content string, meta map[string]any) (string, error)

	// BatchInsert validates every item before any write, then embeds each
	// item's content individually and stores all of them. Returns ids in
	// input order.
	BatchInsert(ctx context.Context, items []BatchItem) ([]string, error)

	// Search embeds query and returns the nearest records, filtered per
	// opts. Results are ordered by non-decreasing distance.
	Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error)

	// Count returns the number of records in the volume.
	Count(ctx context.Context) (int, error)
}

// Store owns named volumes bound to one embedding model.
type Store interface {
	// Volume returns the named volume, lazily provisioning it on first
	// reference. Reopening a volume whose locked dimension differs from
	// the current model's output is a configuration error.
	Volume(ctx context.Context, name string) (Volume, error)

	// HasVolume reports whether a volume with the given name exists.
	HasVolume(ctx context.Context, name string) (bool, error)

	// DropVolume deletes the volume and all its records.
	DropVolume(ctx context.Context, name string) error

	// ListVolumes returns all volume names.
	ListVolumes(ctx context.Context) ([]string, error)

	// Close releases backend resources.
	Close() error
}

// VolumeMeta is the catalog projection for one volume: the model that
// provisioned it and the locked dimension. Backends without native
// per-collection dimension metadata (chromem-go) persist this through a
// persistence.Persistor so the lock survives reopen.
type VolumeMeta struct {
	Model     string    `json:"model"`
	Dimension int       `json:"dimension"`
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog records volume provisioning state keyed by volume name.
type Catalog = persistence.Persistor[struct{}, VolumeMeta]
