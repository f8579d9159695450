// Package search answers similarity and path queries over the asset store.
package search

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/matsen/mediasearch/internal/cache"
	"github.com/matsen/mediasearch/internal/embedding"
	"github.com/matsen/mediasearch/internal/media"
	"github.com/matsen/mediasearch/internal/storage"
)

// Kind identifies what a result points at.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindMatch Kind = "match"
)

// TimeWindow is the playback range of a video result, in seconds.
type TimeWindow struct {
	StartTime int `json:"start_time"`
	EndTime   int `json:"end_time"`
}

// Result is one ranked search hit. Path searches leave the scores zero and
// omit them from JSON; video similarity results carry a TimeWindow.
type Result struct {
	Kind         Kind    `json:"kind"`
	URL          string  `json:"url,omitempty"`
	Path         string  `json:"path"`
	Score        float64 `json:"score"`
	SoftmaxScore float64 `json:"softmax_score,omitempty"`
	*TimeWindow

	scored bool
}

// MarshalJSON writes score for every scored result, including a score of
// zero, and leaves it out for path results.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Score *float64 `json:"score,omitempty"`
	}{plain: plain(r)}
	if r.scored {
		out.Score = &r.Score
	}
	return json.Marshal(out)
}

// ImageRef names a query image: either an indexed image id or a file path.
type ImageRef struct {
	ID   int64
	Path string
}

// ByID refers to an indexed image.
func ByID(id int64) ImageRef { return ImageRef{ID: id} }

// ByPath refers to an image file.
func ByPath(path string) ImageRef { return ImageRef{Path: path} }

func (r ImageRef) String() string {
	if r.ID > 0 {
		return fmt.Sprintf("id:%d", r.ID)
	}
	return r.Path
}

// Options configures an Engine.
type Options struct {
	CacheSize int
	Limits    media.Limits
}

// Engine runs queries. It is safe for concurrent use.
type Engine struct {
	store    storage.AssetStore
	provider embedding.Provider
	limits   media.Limits
	cache    *cache.LRU[cacheKey, []Result]
	logger   *slog.Logger

	// mu orders cache stores against CleanCache; gen counts clears.
	mu  sync.Mutex
	gen uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates a search engine over store.
func NewEngine(store storage.AssetStore, provider embedding.Provider, opts Options, options ...Option) *Engine {
	e := &Engine{
		store:    store,
		provider: provider,
		limits:   opts.Limits,
		cache:    cache.New[cacheKey, []Result](opts.CacheSize),
		logger:   slog.Default(),
	}
	for _, o := range options {
		o(e)
	}
	return e
}

// CleanCache drops every memoized query result. Queries already running
// when it is called do not store their results.
func (e *Engine) CleanCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gen++
	e.cache.InvalidateAll()
}

// imageFeature resolves ref to a feature vector. A nil vector with a nil
// error means the image is unknown or unusable.
func (e *Engine) imageFeature(ctx context.Context, ref ImageRef) ([]float32, error) {
	if ref.ID > 0 {
		return e.store.ImageFeature(ctx, ref.ID)
	}
	if ref.Path == "" {
		return nil, nil
	}

	// An indexed, unmodified file reuses its stored feature.
	if info, err := os.Stat(ref.Path); err == nil {
		rec, err := e.store.ImageByPath(ctx, ref.Path)
		if err != nil {
			return nil, err
		}
		if rec != nil && rec.ModifyTime == info.ModTime().Unix() {
			return rec.Feature, nil
		}
	}

	img, err := media.LoadImage(ref.Path, e.limits)
	if err != nil {
		e.logger.Warn("query image unusable", "path", ref.Path, "error", err)
		return nil, nil
	}
	emb, err := e.provider.EmbedImage(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("embedding query image: %w", err)
	}
	return emb.Vector, nil
}

// textFeatures embeds the prompts. An empty negative prompt yields no
// negative vector.
func (e *Engine) textFeatures(ctx context.Context, positive, negative string) ([]float32, []float32, error) {
	pos, err := e.provider.EmbedText(ctx, positive)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding positive prompt: %w", err)
	}
	if negative == "" {
		return pos.Vector, nil, nil
	}
	neg, err := e.provider.EmbedText(ctx, negative)
	if err != nil {
		return nil, nil, fmt.Errorf("embedding negative prompt: %w", err)
	}
	return pos.Vector, neg.Vector, nil
}

func imageURL(id int64) string {
	return fmt.Sprintf("api/get_image/%d", id)
}

func videoURL(path string) string {
	return "api/get_video/" + base64.URLEncoding.EncodeToString([]byte(path))
}

func videoSegmentURL(path string, w TimeWindow) string {
	return fmt.Sprintf("%s#t=%.1f,%.1f", videoURL(path), float64(w.StartTime), float64(w.EndTime))
}
