package embedding

import (
	"context"
	"image"
)

// Provider maps images and text into the same feature space. Vectors are
// returned as produced by the model; they are not normalized here.
type Provider interface {
	// EmbedText generates an embedding for a text prompt. An empty prompt
	// still yields the model's neutral encoding.
	EmbedText(ctx context.Context, text string) (Embedding, error)

	// EmbedImage generates an embedding for a decoded image.
	EmbedImage(ctx context.Context, img image.Image) (Embedding, error)

	// EmbedImages embeds a batch of images in one call. The result has the
	// same length and order as imgs.
	EmbedImages(ctx context.Context, imgs []image.Image) ([]Embedding, error)

	// ModelName returns the name of the embedding model.
	ModelName() string

	// Dimensions returns the expected vector dimensions.
	Dimensions() int
}
