package search

import (
	"context"
	"fmt"

	"github.com/matsen/mediasearch/internal/semantic"
)

type op uint8

const (
	opImageByText op = iota
	opVideoByText
	opImageByImage
	opVideoByImage
	opImageByPath
	opVideoByPath
)

// cacheKey identifies a memoized query.
type cacheKey struct {
	op                op
	positive          string
	negative          string
	image             ImageRef
	positiveThreshold float64
	negativeThreshold float64
}

// cached returns the memoized result for key, computing and storing it on a
// miss. Errors are not cached, and neither is a result computed across a
// CleanCache. Callers always get their own copy.
func (e *Engine) cached(key cacheKey, compute func() ([]Result, error)) ([]Result, error) {
	if results, ok := e.cache.Get(key); ok {
		return cloneResults(results), nil
	}

	e.mu.Lock()
	gen := e.gen
	e.mu.Unlock()

	results, err := compute()
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.gen == gen {
		e.cache.Put(key, cloneResults(results))
	}
	e.mu.Unlock()
	return results, nil
}

// cloneResults copies results deeply enough that edits to the copy, time
// windows included, never reach the original.
func cloneResults(results []Result) []Result {
	if results == nil {
		return nil
	}
	out := make([]Result, len(results))
	copy(out, results)
	for i := range out {
		if out[i].TimeWindow != nil {
			tw := *out[i].TimeWindow
			out[i].TimeWindow = &tw
		}
	}
	return out
}

// SearchImageByText finds images matching positive and not matching negative.
func (e *Engine) SearchImageByText(ctx context.Context, positive, negative string, positiveThreshold, negativeThreshold float64) ([]Result, error) {
	key := cacheKey{op: opImageByText, positive: positive, negative: negative, positiveThreshold: positiveThreshold, negativeThreshold: negativeThreshold}
	return e.cached(key, func() ([]Result, error) {
		pos, neg, err := e.textFeatures(ctx, positive, negative)
		if err != nil {
			return nil, err
		}
		return e.SearchImageByFeature(ctx, pos, neg, positiveThreshold, negativeThreshold)
	})
}

// SearchVideoByText finds video segments matching positive and not matching negative.
func (e *Engine) SearchVideoByText(ctx context.Context, positive, negative string, positiveThreshold, negativeThreshold float64) ([]Result, error) {
	key := cacheKey{op: opVideoByText, positive: positive, negative: negative, positiveThreshold: positiveThreshold, negativeThreshold: negativeThreshold}
	return e.cached(key, func() ([]Result, error) {
		pos, neg, err := e.textFeatures(ctx, positive, negative)
		if err != nil {
			return nil, err
		}
		return e.SearchVideoByFeature(ctx, pos, neg, positiveThreshold, negativeThreshold)
	})
}

// SearchImageByImage finds images similar to ref. An unknown or unusable
// reference yields no results.
func (e *Engine) SearchImageByImage(ctx context.Context, ref ImageRef, threshold float64) ([]Result, error) {
	key := cacheKey{op: opImageByImage, image: ref, positiveThreshold: threshold}
	return e.cached(key, func() ([]Result, error) {
		feature, err := e.imageFeature(ctx, ref)
		if err != nil || feature == nil {
			return nil, err
		}
		return e.SearchImageByFeature(ctx, feature, nil, threshold, 0)
	})
}

// SearchVideoByImage finds video segments similar to ref.
func (e *Engine) SearchVideoByImage(ctx context.Context, ref ImageRef, threshold float64) ([]Result, error) {
	key := cacheKey{op: opVideoByImage, image: ref, positiveThreshold: threshold}
	return e.cached(key, func() ([]Result, error) {
		feature, err := e.imageFeature(ctx, ref)
		if err != nil || feature == nil {
			return nil, err
		}
		return e.SearchVideoByFeature(ctx, feature, nil, threshold, 0)
	})
}

// SearchImageByPath lists indexed images whose path contains substr.
func (e *Engine) SearchImageByPath(ctx context.Context, substr string) ([]Result, error) {
	return e.cached(cacheKey{op: opImageByPath, positive: substr}, func() ([]Result, error) {
		recs, err := e.store.SearchImagesByPath(ctx, substr)
		if err != nil {
			return nil, fmt.Errorf("searching image paths: %w", err)
		}
		results := make([]Result, 0, len(recs))
		for _, r := range recs {
			results = append(results, Result{Kind: KindImage, URL: imageURL(r.ID), Path: r.Path})
		}
		return results, nil
	})
}

// SearchVideoByPath lists indexed videos whose path contains substr.
func (e *Engine) SearchVideoByPath(ctx context.Context, substr string) ([]Result, error) {
	return e.cached(cacheKey{op: opVideoByPath, positive: substr}, func() ([]Result, error) {
		paths, err := e.store.SearchVideosByPath(ctx, substr)
		if err != nil {
			return nil, fmt.Errorf("searching video paths: %w", err)
		}
		results := make([]Result, 0, len(paths))
		for _, p := range paths {
			results = append(results, Result{Kind: KindVideo, URL: videoURL(p), Path: p})
		}
		return results, nil
	})
}

// MatchTextAndImage scores how well text describes the image. ok is false
// when the image is unknown or unusable.
func (e *Engine) MatchTextAndImage(ctx context.Context, text string, ref ImageRef) (score float64, ok bool, err error) {
	feature, err := e.imageFeature(ctx, ref)
	if err != nil || feature == nil {
		return 0, false, err
	}
	emb, err := e.provider.EmbedText(ctx, text)
	if err != nil {
		return 0, false, fmt.Errorf("embedding text: %w", err)
	}
	return semantic.Score(emb.Vector, feature), true, nil
}
