package embedding

import (
	"context"
	"fmt"
)

// DefaultMaxBatch is the default batch-size ceiling for embedding calls.
const DefaultMaxBatch = 64

// Bridge converts batches of text fields into vectors via a Provider,
// splitting input that exceeds the batch-size ceiling while preserving
// input order.
type Bridge struct {
	provider Provider
	maxBatch int
}

// NewBridge creates a bridge over the given provider. A non-positive
// maxBatch falls back to DefaultMaxBatch.
func NewBridge(provider Provider, maxBatch int) *Bridge {
	if maxBatch <= 0 {
		maxBatch = DefaultMaxBatch
	}
	return &Bridge{
		provider: provider,
		maxBatch: maxBatch,
	}
}

// EmbedTexts embeds all texts, one vector per input in input order. Inputs
// larger than the batch ceiling are split into consecutive provider calls.
func (b *Bridge) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.maxBatch {
		end := start + b.maxBatch
		if end > len(texts) {
			end = len(texts)
		}

		chunk, err := b.provider.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}
		if len(chunk) != end-start {
			return nil, fmt.Errorf("provider returned %d vectors for %d texts", len(chunk), end-start)
		}

		vectors = append(vectors, chunk...)
	}

	return vectors, nil
}

// ModelName returns the underlying provider's model name.
func (b *Bridge) ModelName() string {
	return b.provider.ModelName()
}

// Dimensions returns the underlying provider's vector dimensionality,
// or 0 before the first embedding call.
func (b *Bridge) Dimensions() int {
	return b.provider.Dimensions()
}
