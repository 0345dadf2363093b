package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
)

// HashProvider generates deterministic embeddings from a text hash. Equal
// inputs always produce equal vectors, so tests can assert on similarity
// behavior without a model. The vectors carry no semantic meaning.
type HashProvider struct {
	dimension int
}

// NewHashProvider creates a hash-based provider. A non-positive dimension
// defaults to 384 to match common small embedding models.
func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 384
	}
	return &HashProvider{dimension: dimension}
}

// EmbedDocuments generates one deterministic unit vector per text.
func (p *HashProvider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("%w: texts cannot be empty", ErrEmptyInput)
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embed(text)
	}
	return vectors, nil
}

// EmbedQuery generates a deterministic unit vector for text.
func (p *HashProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return p.embed(text), nil
}

func (p *HashProvider) embed(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, p.dimension)
	for i := range vec {
		// LCG stepped from the text hash keeps output stable across runs.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	return normalize(vec)
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

// Dimension returns the configured vector size.
func (p *HashProvider) Dimension() int { return p.dimension }

// Close is a no-op.
func (p *HashProvider) Close() error { return nil }

var _ Provider = (*HashProvider)(nil)
