package embeddings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// stubEmbedder satisfies langchaingo's Embedder interface with canned
// responses.
type stubEmbedder struct {
	vectors [][]float32
	err     error
}

func (s *stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	return s.vectors, s.err
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vectors[0], nil
}

func newMeteredProvider(t *testing.T, stub *stubEmbedder) (*OpenAIProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	return &OpenAIProvider{
		embedder: stub,
		config:   OpenAIConfig{BaseURL: "http://localhost:11434/v1", Model: "test-model"},
		metrics:  NewMetrics(nil),
	}, reader
}

func errorCount(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "agentstore.embedding.errors_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	return total
}

func TestOpenAIProviderConfigValidation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Model: "m"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost:11434/v1"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestOpenAIProviderEmbeds(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}
	p, reader := newMeteredProvider(t, stub)

	vectors, err := p.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, 2, p.Dimension())
	assert.Zero(t, errorCount(t, reader))
}

func TestOpenAIProviderCountMismatchRecordsError(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{vectors: [][]float32{{1, 0}}}
	p, reader := newMeteredProvider(t, stub)

	// One vector back for two texts must fail and hit the error counter.
	_, err := p.EmbedDocuments(ctx, []string{"a", "b"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)
	assert.Equal(t, int64(1), errorCount(t, reader))
}

func TestOpenAIProviderUpstreamErrorRecordsError(t *testing.T) {
	ctx := context.Background()
	stub := &stubEmbedder{err: errors.New("connection refused")}
	p, reader := newMeteredProvider(t, stub)

	_, err := p.EmbedDocuments(ctx, []string{"a"})
	require.ErrorIs(t, err, ErrEmbeddingFailed)

	_, err = p.EmbedQuery(ctx, "a")
	require.ErrorIs(t, err, ErrEmbeddingFailed)

	assert.Equal(t, int64(2), errorCount(t, reader))
}

func TestOpenAIProviderEmptyInputRecordsError(t *testing.T) {
	ctx := context.Background()
	p, reader := newMeteredProvider(t, &stubEmbedder{vectors: [][]float32{{1}}})

	_, err := p.EmbedDocuments(ctx, nil)
	require.ErrorIs(t, err, ErrEmptyInput)

	_, err = p.EmbedQuery(ctx, "")
	require.ErrorIs(t, err, ErrEmptyInput)

	assert.Equal(t, int64(2), errorCount(t, reader))
}
