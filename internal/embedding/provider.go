// Package embedding provides vector embedding generation for text.
package embedding

import "context"

// Provider generates embeddings from text. The model is treated as an
// opaque, deterministic function; its dimensionality is discovered at the
// first successful call when not preconfigured.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for a batch of texts, one vector per
	// input in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the vector dimensionality, or 0 if it has not been
	// discovered yet.
	Dimensions() int
}
