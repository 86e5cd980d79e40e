package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// MockProvider is a deterministic in-process Provider for tests and seeding.
// Vectors are derived from an FNV hash of the text, normalized to unit
// length, so identical texts always embed identically.
type MockProvider struct {
	Dim   int
	Model string

	// Calls records the batch sizes seen, in order.
	Calls []int

	// Fn overrides vector generation when set.
	Fn func(text string) []float32
}

// NewMockProvider creates a mock provider with the given dimensionality.
func NewMockProvider(dim int) *MockProvider {
	return &MockProvider{Dim: dim, Model: "mock-embed"}
}

// Embed generates a deterministic vector for the text.
func (m *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates deterministic vectors for the texts.
func (m *MockProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.Calls = append(m.Calls, len(texts))

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if m.Fn != nil {
			vectors[i] = m.Fn(text)
			continue
		}
		vectors[i] = m.hashVector(text)
	}
	return vectors, nil
}

// hashVector derives a unit-length vector from the text.
func (m *MockProvider) hashVector(text string) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, m.Dim)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		v := float64(int64(seed)) / float64(math.MaxInt64)
		vec[i] = float32(v)
		norm += v * v
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

// ModelName returns the mock model name.
func (m *MockProvider) ModelName() string {
	return m.Model
}

// Dimensions returns the configured dimensionality.
func (m *MockProvider) Dimensions() int {
	return m.Dim
}
