// Package embeddingtest provides a deterministic embedding.Provider for tests.
package embeddingtest

import (
	"context"
	"hash/fnv"
	"image"
	"sync"

	"github.com/matsen/mediasearch/internal/embedding"
)

// Provider is an in-memory embedding.Provider. Text vectors come from Texts
// when present, otherwise from a hash of the prompt. Image vectors are the
// mean RGB of the image in the first three components, so tests can steer
// similarity with solid-color images.
type Provider struct {
	Dims  int
	Texts map[string][]float32

	// TextErr and ImageErr, when set, are returned by every matching call.
	TextErr  error
	ImageErr error

	mu          sync.Mutex
	textCalls   int
	imageCalls  int
	imagesTotal int
	prompts     []string
}

// New returns a fake provider producing dims-long vectors.
func New(dims int) *Provider {
	if dims < 3 {
		dims = 3
	}
	return &Provider{Dims: dims, Texts: make(map[string][]float32)}
}

// EmbedText implements embedding.Provider.
func (p *Provider) EmbedText(ctx context.Context, text string) (embedding.Embedding, error) {
	p.mu.Lock()
	p.textCalls++
	p.prompts = append(p.prompts, text)
	p.mu.Unlock()

	if p.TextErr != nil {
		return embedding.Embedding{}, p.TextErr
	}
	if v, ok := p.Texts[text]; ok {
		return embedding.Embedding{Vector: append([]float32(nil), v...)}, nil
	}
	return embedding.Embedding{Vector: p.hashVector(text)}, nil
}

// EmbedImage implements embedding.Provider.
func (p *Provider) EmbedImage(ctx context.Context, img image.Image) (embedding.Embedding, error) {
	embs, err := p.EmbedImages(ctx, []image.Image{img})
	if err != nil {
		return embedding.Embedding{}, err
	}
	return embs[0], nil
}

// EmbedImages implements embedding.Provider.
func (p *Provider) EmbedImages(ctx context.Context, imgs []image.Image) ([]embedding.Embedding, error) {
	p.mu.Lock()
	p.imageCalls++
	p.imagesTotal += len(imgs)
	p.mu.Unlock()

	if p.ImageErr != nil {
		return nil, p.ImageErr
	}
	out := make([]embedding.Embedding, len(imgs))
	for i, img := range imgs {
		out[i] = embedding.Embedding{Vector: p.ImageVector(img)}
	}
	return out, nil
}

// ImageVector returns the vector this provider assigns to img.
func (p *Provider) ImageVector(img image.Image) []float32 {
	v := make([]float32, p.Dims)
	b := img.Bounds()
	var r, g, bl, n float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			r += float64(cr)
			g += float64(cg)
			bl += float64(cb)
			n++
		}
	}
	if n > 0 {
		v[0] = float32(r / n / 0xffff)
		v[1] = float32(g / n / 0xffff)
		v[2] = float32(bl / n / 0xffff)
	}
	return v
}

func (p *Provider) hashVector(text string) []float32 {
	v := make([]float32, p.Dims)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(seed>>40)/float32(1<<24) - 0.5
	}
	return v
}

// ModelName implements embedding.Provider.
func (p *Provider) ModelName() string { return "fake" }

// Dimensions implements embedding.Provider.
func (p *Provider) Dimensions() int { return p.Dims }

// TextCalls returns how many times EmbedText was called.
func (p *Provider) TextCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.textCalls
}

// ImageCalls returns how many EmbedImage/EmbedImages calls were made.
func (p *Provider) ImageCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imageCalls
}

// ImagesEmbedded returns the total number of images embedded across all calls.
func (p *Provider) ImagesEmbedded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.imagesTotal
}

// Prompts returns every prompt passed to EmbedText, in call order.
func (p *Provider) Prompts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.prompts...)
}

// Reset zeroes the call counters.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.textCalls, p.imageCalls, p.imagesTotal = 0, 0, 0
	p.prompts = nil
}

var _ embedding.Provider = (*Provider)(nil)
