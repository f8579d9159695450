package embedding

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/time/rate"
)

const (
	// DefaultURL is the default CLIP server endpoint.
	DefaultURL = "http://localhost:8000"

	// DefaultModel is the default CLIP model.
	DefaultModel = "openai/clip-vit-base-patch32"

	// DefaultDimensions is the output dimension of clip-vit-base-patch32.
	DefaultDimensions = 512

	// DefaultInputSize is the model's square input resolution. Images are
	// downscaled to fit before upload; the server does the final crop.
	DefaultInputSize = 224

	// DefaultTimeout is the timeout for embedding requests.
	DefaultTimeout = 30 * time.Second

	apiPathHealth = "/health"
	apiPathText   = "/embed/text"
	apiPathImage  = "/embed/image"

	uploadJPEGQuality = 90
)

// ClipProvider generates embeddings by calling a CLIP inference server over HTTP.
type ClipProvider struct {
	baseURL    string
	model      string
	dimensions int
	inputSize  int
	client     *http.Client
	limiter    *rate.Limiter
}

// ClipOption configures a ClipProvider.
type ClipOption func(*ClipProvider)

// WithBaseURL sets the server base URL.
func WithBaseURL(url string) ClipOption {
	return func(p *ClipProvider) {
		p.baseURL = url
	}
}

// WithModel sets the model name sent with every request.
func WithModel(model string) ClipOption {
	return func(p *ClipProvider) {
		p.model = model
	}
}

// WithDimensions sets the expected vector dimensions.
func WithDimensions(dims int) ClipOption {
	return func(p *ClipProvider) {
		p.dimensions = dims
	}
}

// WithInputSize sets the bounding box images are downscaled to before upload.
// Zero uploads images at full resolution.
func WithInputSize(size int) ClipOption {
	return func(p *ClipProvider) {
		p.inputSize = size
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) ClipOption {
	return func(p *ClipProvider) {
		p.client.Timeout = timeout
	}
}

// WithRateLimit caps requests per second. Zero or negative disables the limit.
func WithRateLimit(perSecond float64) ClipOption {
	return func(p *ClipProvider) {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewClipProvider creates a new CLIP server embedding provider.
func NewClipProvider(opts ...ClipOption) *ClipProvider {
	p := &ClipProvider{
		baseURL:    DefaultURL,
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		inputSize:  DefaultInputSize,
		client:     &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// EmbedText generates an embedding for the given prompt.
func (p *ClipProvider) EmbedText(ctx context.Context, text string) (Embedding, error) {
	embs, err := p.post(ctx, apiPathText, embedRequest{Model: p.model, Texts: []string{text}}, 1)
	if err != nil {
		return Embedding{}, err
	}
	return embs[0], nil
}

// EmbedImage generates an embedding for a single image.
func (p *ClipProvider) EmbedImage(ctx context.Context, img image.Image) (Embedding, error) {
	embs, err := p.EmbedImages(ctx, []image.Image{img})
	if err != nil {
		return Embedding{}, err
	}
	return embs[0], nil
}

// EmbedImages embeds a batch of images with one request.
func (p *ClipProvider) EmbedImages(ctx context.Context, imgs []image.Image) ([]Embedding, error) {
	if len(imgs) == 0 {
		return nil, nil
	}
	encoded := make([]string, len(imgs))
	for i, img := range imgs {
		s, err := p.encodeImage(img)
		if err != nil {
			return nil, fmt.Errorf("encoding image %d: %w", i, err)
		}
		encoded[i] = s
	}
	return p.post(ctx, apiPathImage, embedRequest{Model: p.model, Images: encoded}, len(imgs))
}

// encodeImage shrinks img to fit the model input box and returns it as base64 JPEG.
func (p *ClipProvider) encodeImage(img image.Image) (string, error) {
	if p.inputSize > 0 {
		b := img.Bounds()
		if b.Dx() > p.inputSize || b.Dy() > p.inputSize {
			img = imaging.Fit(img, p.inputSize, p.inputSize, imaging.Lanczos)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: uploadJPEGQuality}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (p *ClipProvider) post(ctx context.Context, path string, reqBody embedRequest, want int) ([]Embedding, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d: %s", resp.StatusCode, formatErrorBody(resp.Body))
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(result.Embeddings) != want {
		return nil, fmt.Errorf("embedding server returned %d vectors for %d inputs", len(result.Embeddings), want)
	}

	embs := make([]Embedding, len(result.Embeddings))
	for i, v := range result.Embeddings {
		if len(v) != p.dimensions {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(v), p.dimensions)
		}
		embs[i] = Embedding{Vector: v}
	}
	return embs, nil
}

// formatErrorBody reads and formats the response body for error messages.
func formatErrorBody(body io.Reader) string {
	respBody, err := io.ReadAll(body)
	if err != nil {
		return fmt.Sprintf("(failed to read response body: %v)", err)
	}
	return string(respBody)
}

// ModelName returns the name of the embedding model.
func (p *ClipProvider) ModelName() string {
	return p.model
}

// Dimensions returns the expected vector dimensions.
func (p *ClipProvider) Dimensions() int {
	return p.dimensions
}

// IsAvailable checks if the embedding server is running and accessible.
func (p *ClipProvider) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+apiPathHealth, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding server is not running: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}
	return nil
}

// embedRequest is the request body for both embedding endpoints; exactly one
// of Texts or Images is set.
type embedRequest struct {
	Model  string   `json:"model"`
	Texts  []string `json:"texts,omitempty"`
	Images []string `json:"images,omitempty"` // base64 JPEG
}

// embedResponse is the response from both embedding endpoints.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}
