// Package embedding provides vector embeddings for images and text in a
// shared similarity space.
package embedding

import "errors"

// ErrDimensionMismatch is returned when the server answers with a vector of
// the wrong length for the configured model.
var ErrDimensionMismatch = errors.New("unexpected embedding dimensions")

// Embedding represents a feature vector produced by the embedding model.
type Embedding struct {
	Vector []float32 // e.g. 512 dimensions for clip-vit-base-patch32
}

// Dimensions returns the dimensionality of the embedding.
func (e Embedding) Dimensions() int {
	return len(e.Vector)
}
