package knowledge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/agentstore/pkg/embeddings"
	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/metadata"
)

var chromemTracer = otel.Tracer("agentstore.knowledge.chromem")

// ChromemConfig holds configuration for the embedded chromem-go backend.
type ChromemConfig struct {
	// Path is the directory for persistent storage. Empty means in-memory
	// only; records do not survive the process.
	Path string `koanf:"path"`

	// Compress enables gzip compression for stored data.
	Compress bool `koanf:"compress"`

	// Model names the embedding model for catalog records. Informational;
	// the dimension lock is what is enforced.
	Model string `koanf:"model"`
}

// ApplyDefaults sets default values for unset fields.
func (c *ChromemConfig) ApplyDefaults() {
	if c.Model == "" {
		c.Model = "default"
	}
}

// ChromemStore implements Store over chromem-go, an embeddable pure-Go
// vector database with gob-file persistence and exact (brute-force) search.
//
// chromem-go keeps no per-collection dimension metadata, so the dimension
// lock is held in an external Catalog. Without a catalog the lock only
// covers the lifetime of the process.
type ChromemStore struct {
	db       *chromem.DB
	embedder embeddings.Provider
	catalog  Catalog
	config   ChromemConfig
	logger   *zap.Logger

	mu      sync.Mutex
	volumes map[string]*chromemVolume
	dims    map[string]int
	closed  bool
}

// NewChromemStore creates a ChromemStore. The embedder is required; catalog
// and logger may be nil.
func NewChromemStore(config ChromemConfig, embedder embeddings.Provider, catalog Catalog, logger *zap.Logger) (*ChromemStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()

	var (
		db  *chromem.DB
		err error
	)
	if config.Path == "" {
		db = chromem.NewDB()
	} else {
		path, perr := expandHomePath(config.Path)
		if perr != nil {
			return nil, fmt.Errorf("expanding path: %w", perr)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory %s: %w", path, err)
		}
		db, err = chromem.NewPersistentDB(path, config.Compress)
		if err != nil {
			return nil, errs.Wrap(errs.IDStoreConnection, errs.DomainStorage, errs.CategoryThirdParty,
				"opening chromem database", err).WithDetail("path", path)
		}
		config.Path = path
	}

	store := &ChromemStore{
		db:       db,
		embedder: embedder,
		catalog:  catalog,
		config:   config,
		logger:   logger,
		volumes:  make(map[string]*chromemVolume),
		dims:     make(map[string]int),
	}

	if config.Path != "" && catalog == nil {
		logger.Warn("persistent chromem store has no catalog; dimension locks will not survive reopen",
			zap.String("path", config.Path),
		)
	}

	logger.Info("chromem store initialized",
		zap.String("path", config.Path),
		zap.Bool("compress", config.Compress),
		zap.Bool("catalog", catalog != nil),
	)

	return store, nil
}

// expandHomePath expands a leading ~ to the user's home directory.
func expandHomePath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}

func (s *ChromemStore) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return s.embedder.EmbedQuery(ctx, text)
	}
}

// probeDimension resolves the embedder's output dimension, embedding a
// fixed sample when the embedder does not know it up front.
func (s *ChromemStore) probeDimension(ctx context.Context) (int, error) {
	if dim := s.embedder.Dimension(); dim > 0 {
		return dim, nil
	}
	vec, err := s.embedder.EmbedQuery(ctx, dimensionProbeText)
	if err != nil {
		return 0, errs.Wrap(errs.IDEmbeddingFailed, errs.DomainNetwork, errs.CategoryThirdParty,
			"probing embedding dimension", err)
	}
	return len(vec), nil
}

// lockDimension checks the volume's recorded dimension against dim,
// recording dim on first provisioning. The catalog is authoritative when
// present; otherwise the in-process map is used.
func (s *ChromemStore) lockDimension(ctx context.Context, name string, dim int) error {
	if s.catalog == nil {
		if locked, ok := s.dims[name]; ok {
			if locked != dim {
				return dimensionConflict(name, locked, dim)
			}
			return nil
		}
		s.dims[name] = dim
		return nil
	}

	item, found, err := s.catalog.Find(ctx, name)
	if err != nil {
		return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
			"reading volume catalog", err).WithDetail("volume", name)
	}
	if found {
		if item.Meta.Dimension != dim {
			return dimensionConflict(name, item.Meta.Dimension, dim)
		}
		return nil
	}
	meta := VolumeMeta{
		Model:     s.config.Model,
		Dimension: dim,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.catalog.Insert(ctx, name, meta, struct{}{}); err != nil {
		return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
			"recording volume provisioning", err).WithDetail("volume", name)
	}
	return nil
}

func dimensionConflict(name string, locked, actual int) *errs.Error {
	return errs.New(errs.IDDimensionConflict, errs.DomainConfiguration, errs.CategoryUser,
		"embedding dimension does not match the volume's locked dimension; rename the volume or restore the original model").
		WithDetail("volume", name).
		WithDetail("locked", fmt.Sprintf("%d", locked)).
		WithDetail("actual", fmt.Sprintf("%d", actual))
}

// Volume returns the named volume, provisioning it on first reference.
func (s *ChromemStore) Volume(ctx context.Context, name string) (Volume, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Volume")
	defer span.End()
	span.SetAttributes(attribute.String("volume", name))

	if err := ValidateVolumeName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	if v, ok := s.volumes[name]; ok {
		return v, nil
	}

	dim, err := s.probeDimension(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := s.lockDimension(ctx, name, dim); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	col, err := s.db.GetOrCreateCollection(name, nil, s.embeddingFunc())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDCollectionOpen, errs.DomainStorage, errs.CategoryThirdParty,
			"opening chromem collection", err).WithDetail("volume", name)
	}

	v := &chromemVolume{store: s, name: name, dim: dim, col: col}
	s.volumes[name] = v

	s.logger.Debug("volume opened",
		zap.String("volume", name),
		zap.Int("dimension", dim),
	)

	return v, nil
}

// HasVolume reports whether the named volume exists.
func (s *ChromemStore) HasVolume(ctx context.Context, name string) (bool, error) {
	if err := ValidateVolumeName(name); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrStoreClosed
	}
	return s.db.GetCollection(name, s.embeddingFunc()) != nil, nil
}

// DropVolume deletes the volume, its records, and its catalog entry.
func (s *ChromemStore) DropVolume(ctx context.Context, name string) error {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.DropVolume")
	defer span.End()
	span.SetAttributes(attribute.String("volume", name))

	if err := ValidateVolumeName(name); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if err := s.db.DeleteCollection(name); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errs.Wrap(errs.IDCollectionDelete, errs.DomainStorage, errs.CategoryThirdParty,
			"deleting chromem collection", err).WithDetail("volume", name)
	}
	delete(s.volumes, name)
	delete(s.dims, name)
	if s.catalog != nil {
		if err := s.catalog.Remove(ctx, name); err != nil {
			return errs.Wrap(errs.IDPersistFailed, errs.DomainStorage, errs.CategorySystem,
				"removing volume catalog entry", err).WithDetail("volume", name)
		}
	}

	s.logger.Info("volume dropped", zap.String("volume", name))
	return nil
}

// ListVolumes returns all volume names in lexical order.
func (s *ChromemStore) ListVolumes(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	cols := s.db.ListCollections()
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close marks the store closed. chromem-go persists on every write, so no
// flush is needed.
func (s *ChromemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.volumes = nil
	s.logger.Info("chromem store closed")
	return nil
}

// chromemVolume is one dimension-locked chromem collection.
type chromemVolume struct {
	store *ChromemStore
	name  string
	dim   int
	col   *chromem.Collection
}

func (v *chromemVolume) Name() string   { return v.name }
func (v *chromemVolume) Dimension() int { return v.dim }

func (v *chromemVolume) Insert(ctx context.Context, content string, meta map[string]any) (string, error) {
	ids, err := v.BatchInsert(ctx, []BatchItem{{Content: content, Metadata: meta}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (v *chromemVolume) BatchInsert(ctx context.Context, items []BatchItem) ([]string, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.BatchInsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("volume", v.name),
		attribute.Int("item_count", len(items)),
	)

	if len(items) == 0 {
		return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"batch must contain at least one item")
	}
	// Validate the whole batch before any embedding or write.
	for i, item := range items {
		if item.Content == "" {
			return nil, errs.New(errs.IDBatchFailed, errs.DomainValidation, errs.CategoryUser,
				"batch item has empty content").WithDetail("index", fmt.Sprintf("%d", i))
		}
	}

	texts := make([]string, len(items))
	ids := make([]string, len(items))
	for i, item := range items {
		texts[i] = item.Content
		ids[i] = item.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
	}

	vectors, err := v.store.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDEmbeddingFailed, errs.DomainNetwork, errs.CategoryThirdParty,
			"embedding batch contents", err).WithDetail("volume", v.name)
	}
	for i, vec := range vectors {
		if len(vec) != v.dim {
			return nil, dimensionConflict(v.name, v.dim, len(vec)).
				WithDetail("index", fmt.Sprintf("%d", i))
		}
	}

	docs := make([]chromem.Document, len(items))
	for i, item := range items {
		docs[i] = chromem.Document{
			ID:        ids[i],
			Content:   item.Content,
			Metadata:  metadata.FlattenToStrings(item.Metadata),
			Embedding: vectors[i],
		}
	}

	// Concurrency of 1 since the embeddings are already computed.
	if err := v.col.AddDocuments(ctx, docs, 1); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDInsertFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"adding documents", err).WithDetail("volume", v.name)
	}

	span.SetStatus(codes.Ok, "success")
	v.store.logger.Debug("inserted documents",
		zap.String("volume", v.name),
		zap.Int("count", len(items)),
	)
	return ids, nil
}

func (v *chromemVolume) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	ctx, span := chromemTracer.Start(ctx, "ChromemStore.Search")
	defer span.End()
	span.SetAttributes(attribute.String("volume", v.name))

	if query == "" {
		return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"query cannot be empty")
	}
	if opts == nil {
		opts = &SearchOptions{}
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	conds, err := ParseWhere(opts.Where)
	if err != nil {
		return nil, err
	}

	count := v.col.Count()
	if count == 0 {
		return []SearchResult{}, nil
	}

	// chromem scans every record anyway, so when a filter or threshold
	// must be applied locally we retrieve the full ranking and trim after.
	n := limit
	if len(conds) > 0 || opts.DistanceThreshold != nil || n > count {
		n = count
	}

	qvec, err := v.store.embedder.EmbedQuery(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDEmbeddingFailed, errs.DomainNetwork, errs.CategoryThirdParty,
			"embedding query", err).WithDetail("volume", v.name)
	}
	if len(qvec) != v.dim {
		return nil, dimensionConflict(v.name, v.dim, len(qvec))
	}

	raw, err := v.col.QueryEmbedding(ctx, qvec, n, nil, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDSearchFailed, errs.DomainStorage, errs.CategoryThirdParty,
			"querying collection", err).WithDetail("volume", v.name)
	}

	results := make([]SearchResult, 0, limit)
	for _, r := range raw {
		meta := metadata.UnflattenStrings(r.Metadata)
		if len(conds) > 0 && !MatchesAll(conds, meta) {
			continue
		}
		dist := 1 - float64(r.Similarity)
		if opts.DistanceThreshold != nil && dist > *opts.DistanceThreshold {
			continue
		}
		results = append(results, SearchResult{
			ID:       r.ID,
			Content:  r.Content,
			Metadata: meta,
			Distance: dist,
		})
		if len(results) == limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (v *chromemVolume) Count(ctx context.Context) (int, error) {
	return v.col.Count(), nil
}

var _ Store = (*ChromemStore)(nil)
