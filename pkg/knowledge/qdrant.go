package knowledge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/agentstore/pkg/embeddings"
	"github.com/fyrsmithlabs/agentstore/pkg/errs"
	"github.com/fyrsmithlabs/agentstore/pkg/metadata"
)

var qdrantTracer = otel.Tracer("agentstore.knowledge.qdrant")

// payloadMetaPrefix namespaces metadata keys in the point payload so they
// cannot collide with the reserved content and id fields.
const payloadMetaPrefix = "meta."

// QdrantConfig holds configuration for the Qdrant gRPC backend.
type QdrantConfig struct {
	// Host of the Qdrant gRPC endpoint.
	Host string `koanf:"host"`

	// Port of the gRPC endpoint. Default: 6334.
	Port int `koanf:"port"`

	// APIKey authenticates requests when set.
	APIKey string `koanf:"api_key"`

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool `koanf:"use_tls"`

	// Model names the embedding model, recorded for diagnostics.
	Model string `koanf:"model"`

	// MaxRetries for transient failures. Default: 3.
	MaxRetries int `koanf:"max_retries"`

	// RetryBackoff is the initial backoff, doubling per retry. Default: 1s.
	RetryBackoff time.Duration `koanf:"retry_backoff"`

	// MaxMessageSize is the gRPC message cap in bytes. Default: 50MB.
	MaxMessageSize int `koanf:"max_message_size"`

	// CircuitBreakerThreshold is the failure count that opens the circuit.
	// Default: 5.
	CircuitBreakerThreshold int `koanf:"circuit_breaker_threshold"`
}

// ApplyDefaults sets default values for unset fields.
func (c *QdrantConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 6334
	}
	if c.Model == "" {
		c.Model = "default"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = 50 * 1024 * 1024
	}
	if c.CircuitBreakerThreshold == 0 {
		c.CircuitBreakerThreshold = 5
	}
}

// Validate validates the configuration.
func (c QdrantConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("%w: host required", ErrInvalidConfig)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: invalid port: %d", ErrInvalidConfig, c.Port)
	}
	return nil
}

// IsTransientError reports whether a gRPC error is worth retrying.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// QdrantStore implements Store over Qdrant's native gRPC client. Each
// volume is one Qdrant collection created with cosine distance; the
// dimension lock is the collection's own vector size, so no external
// catalog is needed.
type QdrantStore struct {
	client   *qdrant.Client
	embedder embeddings.Provider
	config   QdrantConfig
	logger   *zap.Logger

	mu      sync.Mutex
	volumes map[string]*qdrantVolume
	closed  bool

	circuitBreaker struct {
		failures int
		lastFail time.Time
		mu       sync.Mutex
	}
}

// NewQdrantStore creates a QdrantStore and verifies the connection with a
// health check.
func NewQdrantStore(config QdrantConfig, embedder embeddings.Provider, logger *zap.Logger) (*QdrantStore, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   config.Host,
		Port:   config.Port,
		APIKey: config.APIKey,
		UseTLS: config.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(config.MaxMessageSize),
				grpc.MaxCallSendMsgSize(config.MaxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, errs.Wrap(errs.IDStoreConnection, errs.DomainNetwork, errs.CategoryThirdParty,
			"creating qdrant client", err).WithDetail("host", config.Host)
	}

	store := &QdrantStore{
		client:   client,
		embedder: embedder,
		config:   config,
		logger:   logger,
		volumes:  make(map[string]*qdrantVolume),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, errs.Wrap(errs.IDStoreConnection, errs.DomainNetwork, errs.CategoryThirdParty,
			"qdrant health check", err).WithDetail("host", config.Host)
	}

	logger.Info("qdrant store initialized",
		zap.String("host", config.Host),
		zap.Int("port", config.Port),
		zap.Bool("tls", config.UseTLS),
	)

	return store, nil
}

// retryOperation retries an operation with exponential backoff, gated by a
// circuit breaker.
func (s *QdrantStore) retryOperation(ctx context.Context, operationName string, operation func() error) error {
	backoff := s.config.RetryBackoff

	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		err := operation()
		if err == nil {
			s.resetCircuitBreaker()
			return nil
		}

		if s.isCircuitOpen() {
			return fmt.Errorf("%s: circuit breaker open", operationName)
		}
		if !IsTransientError(err) {
			return fmt.Errorf("%s failed (permanent): %w", operationName, err)
		}
		s.recordFailure()

		if attempt == s.config.MaxRetries {
			return fmt.Errorf("%s failed after %d retries: %w", operationName, s.config.MaxRetries, err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s canceled: %w", operationName, ctx.Err())
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

func (s *QdrantStore) recordFailure() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures++
	s.circuitBreaker.lastFail = time.Now()
}

func (s *QdrantStore) resetCircuitBreaker() {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	s.circuitBreaker.failures = 0
}

func (s *QdrantStore) isCircuitOpen() bool {
	s.circuitBreaker.mu.Lock()
	defer s.circuitBreaker.mu.Unlock()
	if s.circuitBreaker.failures >= s.config.CircuitBreakerThreshold {
		// Half-open after a cooldown.
		if time.Since(s.circuitBreaker.lastFail) > 30*time.Second {
			s.circuitBreaker.failures = 0
			return false
		}
		return true
	}
	return false
}

func (s *QdrantStore) probeDimension(ctx context.Context) (int, error) {
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

// collectionDimension returns the vector size of an existing collection, or
// found=false when the collection does not exist.
func (s *QdrantStore) collectionDimension(ctx context.Context, name string) (int, bool, error) {
	var (
		dim   int
		found bool
	)
	err := s.retryOperation(ctx, "get_collection_info", func() error {
		info, err := s.client.GetCollectionInfo(ctx, name)
		if err != nil {
			st, ok := status.FromError(err)
			if ok && st.Code() == grpccodes.NotFound {
				found = false
				return nil
			}
			return err
		}
		found = true
		dim = int(info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize())
		return nil
	})
	if err != nil {
		return 0, false, errs.Wrap(errs.IDCollectionOpen, errs.DomainNetwork, errs.CategoryThirdParty,
			"reading collection info", err).WithDetail("volume", name)
	}
	return dim, found, nil
}

// Volume returns the named volume, creating the backing collection on
// first reference.
func (s *QdrantStore) Volume(ctx context.Context, name string) (Volume, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Volume")
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

	stored, exists, err := s.collectionDimension(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if exists {
		if stored != dim {
			err := dimensionConflict(name, stored, dim)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
	} else {
		err := s.retryOperation(ctx, "create_collection", func() error {
			return s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: name,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				}),
			})
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, errs.Wrap(errs.IDCollectionCreate, errs.DomainNetwork, errs.CategoryThirdParty,
				"creating qdrant collection", err).WithDetail("volume", name)
		}
		s.logger.Info("volume provisioned",
			zap.String("volume", name),
			zap.Int("dimension", dim),
			zap.String("model", s.config.Model),
		)
	}

	v := &qdrantVolume{store: s, name: name, dim: dim}
	s.volumes[name] = v
	return v, nil
}

// HasVolume reports whether the named volume exists in Qdrant.
func (s *QdrantStore) HasVolume(ctx context.Context, name string) (bool, error) {
	if err := ValidateVolumeName(name); err != nil {
		return false, err
	}
	_, exists, err := s.collectionDimension(ctx, name)
	return exists, err
}

// DropVolume deletes the backing collection and all its points.
func (s *QdrantStore) DropVolume(ctx context.Context, name string) error {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.DropVolume")
	defer span.End()
	span.SetAttributes(attribute.String("volume", name))

	if err := ValidateVolumeName(name); err != nil {
		return err
	}

	err := s.retryOperation(ctx, "delete_collection", func() error {
		return s.client.DeleteCollection(ctx, name)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errs.Wrap(errs.IDCollectionDelete, errs.DomainNetwork, errs.CategoryThirdParty,
			"deleting qdrant collection", err).WithDetail("volume", name)
	}

	s.mu.Lock()
	delete(s.volumes, name)
	s.mu.Unlock()

	s.logger.Info("volume dropped", zap.String("volume", name))
	return nil
}

// ListVolumes returns all collection names.
func (s *QdrantStore) ListVolumes(ctx context.Context) ([]string, error) {
	var names []string
	err := s.retryOperation(ctx, "list_collections", func() error {
		result, err := s.client.ListCollections(ctx)
		if err != nil {
			return err
		}
		names = result
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(errs.IDCollectionList, errs.DomainNetwork, errs.CategoryThirdParty,
			"listing qdrant collections", err)
	}
	return names, nil
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.volumes = nil
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// qdrantVolume is one dimension-locked Qdrant collection.
type qdrantVolume struct {
	store *QdrantStore
	name  string
	dim   int
}

func (v *qdrantVolume) Name() string   { return v.name }
func (v *qdrantVolume) Dimension() int { return v.dim }

func (v *qdrantVolume) Insert(ctx context.Context, content string, meta map[string]any) (string, error) {
	ids, err := v.BatchInsert(ctx, []BatchItem{{Content: content, Metadata: meta}})
	if err != nil {
		return "", err
	}
	return ids[0], nil
}

func (v *qdrantVolume) BatchInsert(ctx context.Context, items []BatchItem) ([]string, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.BatchInsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("volume", v.name),
		attribute.Int("item_count", len(items)),
	)

	if len(items) == 0 {
		return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"batch must contain at least one item")
	}
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

	points := make([]*qdrant.PointStruct, len(items))
	for i, item := range items {
		payload := map[string]*qdrant.Value{
			"content": {Kind: &qdrant.Value_StringValue{StringValue: item.Content}},
			"id":      {Kind: &qdrant.Value_StringValue{StringValue: ids[i]}},
		}
		for k, value := range metadata.Flatten(item.Metadata) {
			payload[payloadMetaPrefix+k] = payloadValue(value)
		}
		points[i] = &qdrant.PointStruct{
			Id:      pointID(ids[i]),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: payload,
		}
	}

	err = v.store.retryOperation(ctx, "upsert_points", func() error {
		_, err := v.store.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: v.name,
			Points:         points,
			Wait:           qdrant.PtrOf(true),
		})
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDInsertFailed, errs.DomainNetwork, errs.CategoryThirdParty,
			"upserting points", err).WithDetail("volume", v.name)
	}

	span.SetStatus(codes.Ok, "success")
	v.store.logger.Debug("inserted points",
		zap.String("volume", v.name),
		zap.Int("count", len(items)),
	)
	return ids, nil
}

func (v *qdrantVolume) Search(ctx context.Context, query string, opts *SearchOptions) ([]SearchResult, error) {
	ctx, span := qdrantTracer.Start(ctx, "QdrantStore.Search")
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
	filter, err := renderFilter(conds)
	if err != nil {
		return nil, err
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

	var scored []*qdrant.ScoredPoint
	err = v.store.retryOperation(ctx, "query_points", func() error {
		res, err := v.store.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: v.name,
			Query:          qdrant.NewQuery(qvec...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
			Filter:         filter,
		})
		if err != nil {
			return err
		}
		scored = res
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, errs.Wrap(errs.IDSearchFailed, errs.DomainNetwork, errs.CategoryThirdParty,
			"querying points", err).WithDetail("volume", v.name)
	}

	results := make([]SearchResult, 0, len(scored))
	for _, p := range scored {
		// Scores are cosine similarity; expose cosine distance.
		dist := 1 - float64(p.GetScore())
		if opts.DistanceThreshold != nil && dist > *opts.DistanceThreshold {
			continue
		}
		results = append(results, resultFromPoint(p, dist))
	}

	span.SetAttributes(attribute.Int("result_count", len(results)))
	span.SetStatus(codes.Ok, "success")
	return results, nil
}

func (v *qdrantVolume) Count(ctx context.Context) (int, error) {
	var count int
	err := v.store.retryOperation(ctx, "get_collection_info", func() error {
		info, err := v.store.client.GetCollectionInfo(ctx, v.name)
		if err != nil {
			return err
		}
		if info.PointsCount != nil {
			count = int(*info.PointsCount)
		}
		return nil
	})
	if err != nil {
		return 0, errs.Wrap(errs.IDCollectionOpen, errs.DomainNetwork, errs.CategoryThirdParty,
			"counting points", err).WithDetail("volume", v.name)
	}
	return count, nil
}

// pointID maps an external id to a Qdrant point id. Qdrant only accepts
// UUIDs or integers, so non-UUID ids map to a deterministic name-based
// UUID and the external id travels in the payload.
func pointID(id string) *qdrant.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qdrant.NewIDUUID(id)
	}
	return qdrant.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func resultFromPoint(p *qdrant.ScoredPoint, dist float64) SearchResult {
	payload := p.GetPayload()
	flatMeta := make(map[string]any)
	var content, id string
	for k, val := range payload {
		switch k {
		case "content":
			content = val.GetStringValue()
		case "id":
			id = val.GetStringValue()
		default:
			if len(k) > len(payloadMetaPrefix) && k[:len(payloadMetaPrefix)] == payloadMetaPrefix {
				flatMeta[k[len(payloadMetaPrefix):]] = payloadToAny(val)
			}
		}
	}
	if id == "" {
		id = p.GetId().GetUuid()
	}
	return SearchResult{
		ID:       id,
		Content:  content,
		Metadata: metadata.Unflatten(flatMeta),
		Distance: dist,
	}
}

// payloadValue renders a metadata leaf as a typed Qdrant value.
func payloadValue(v any) *qdrant.Value {
	switch val := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: val}}
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: val}}
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int32:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(val)}}
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: val}}
	case float32:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: float64(val)}}
	case float64:
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: val}}
	case []any:
		list := make([]*qdrant.Value, len(val))
		for i, e := range val {
			list[i] = payloadValue(e)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
	case []string:
		list := make([]*qdrant.Value, len(val))
		for i, e := range val {
			list[i] = payloadValue(e)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: list}}}
	default:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: fmt.Sprintf("%v", val)}}
	}
}

func payloadToAny(v *qdrant.Value) any {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return kind.StringValue
	case *qdrant.Value_IntegerValue:
		return kind.IntegerValue
	case *qdrant.Value_DoubleValue:
		return kind.DoubleValue
	case *qdrant.Value_BoolValue:
		return kind.BoolValue
	case *qdrant.Value_ListValue:
		vals := kind.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, e := range vals {
			out[i] = payloadToAny(e)
		}
		return out
	case *qdrant.Value_NullValue:
		return nil
	default:
		return nil
	}
}

// renderFilter translates parsed conditions into a native Qdrant filter.
// Equality and membership use keyword or integer matches, ranges map to
// qdrant.Range, $ne becomes a must_not match, and $null uses the is_null
// condition.
func renderFilter(conds []Condition) (*qdrant.Filter, error) {
	if len(conds) == 0 {
		return nil, nil
	}
	var must, mustNot []*qdrant.Condition
	for _, c := range conds {
		key := payloadMetaPrefix + c.Key
		switch c.Op {
		case OpEq:
			cond, err := matchCondition(key, c.Value)
			if err != nil {
				return nil, err
			}
			must = append(must, cond)
		case OpNe:
			cond, err := matchCondition(key, c.Value)
			if err != nil {
				return nil, err
			}
			mustNot = append(mustNot, cond)
		case OpIn:
			cond, err := membershipCondition(key, c.Values)
			if err != nil {
				return nil, err
			}
			must = append(must, cond)
		case OpGt, OpGte, OpLt, OpLte:
			n, _ := asNumber(c.Value)
			r := &qdrant.Range{}
			switch c.Op {
			case OpGt:
				r.Gt = qdrant.PtrOf(n)
			case OpGte:
				r.Gte = qdrant.PtrOf(n)
			case OpLt:
				r.Lt = qdrant.PtrOf(n)
			default:
				r.Lte = qdrant.PtrOf(n)
			}
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_Field{
					Field: &qdrant.FieldCondition{Key: key, Range: r},
				},
			})
		case OpIsNull:
			must = append(must, &qdrant.Condition{
				ConditionOneOf: &qdrant.Condition_IsNull{
					IsNull: &qdrant.IsNullCondition{Key: key},
				},
			})
		}
	}
	return &qdrant.Filter{Must: must, MustNot: mustNot}, nil
}

func matchCondition(key string, value any) (*qdrant.Condition, error) {
	var match *qdrant.Match
	switch v := value.(type) {
	case string:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: v}}
	case bool:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Boolean{Boolean: v}}
	case int:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: int64(v)}}
	case int64:
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integer{Integer: v}}
	case float64:
		// Doubles have no exact match in Qdrant; a closed range is the
		// equivalent predicate.
		return &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   key,
					Range: &qdrant.Range{Gte: qdrant.PtrOf(v), Lte: qdrant.PtrOf(v)},
				},
			},
		}, nil
	default:
		return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"unsupported equality operand type").
			WithDetail("key", key).
			WithDetail("type", fmt.Sprintf("%T", value))
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: match},
		},
	}, nil
}

func membershipCondition(key string, values []any) (*qdrant.Condition, error) {
	var (
		strs []string
		ints []int64
	)
	for _, v := range values {
		switch e := v.(type) {
		case string:
			strs = append(strs, e)
		case int:
			ints = append(ints, int64(e))
		case int64:
			ints = append(ints, e)
		default:
			return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
				"$in members must all be strings or all integers").
				WithDetail("key", key).
				WithDetail("type", fmt.Sprintf("%T", v))
		}
	}
	if len(strs) > 0 && len(ints) > 0 {
		return nil, errs.New(errs.IDInvalidArgs, errs.DomainValidation, errs.CategoryUser,
			"$in members must all be strings or all integers").WithDetail("key", key)
	}
	var match *qdrant.Match
	if len(ints) > 0 {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Integers{
			Integers: &qdrant.RepeatedIntegers{Integers: ints},
		}}
	} else {
		match = &qdrant.Match{MatchValue: &qdrant.Match_Keywords{
			Keywords: &qdrant.RepeatedStrings{Strings: strs},
		}}
	}
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{Key: key, Match: match},
		},
	}, nil
}

var _ Store = (*QdrantStore)(nil)
