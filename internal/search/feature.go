package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/matsen/mediasearch/internal/semantic"
)

// SearchImageByFeature ranks every indexed image against positive (and
// negative, when non-nil). Only kept images are returned, best first.
func (e *Engine) SearchImageByFeature(ctx context.Context, positive, negative []float32, positiveThreshold, negativeThreshold float64) ([]Result, error) {
	start := time.Now()

	images, err := e.store.ListImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading images: %w", err)
	}
	if len(images) == 0 {
		return nil, nil
	}

	candidates := make([][]float32, len(images))
	for i, img := range images {
		candidates[i] = img.Feature
	}
	matches := semantic.MatchBatch(positive, negative, candidates, positiveThreshold, negativeThreshold)

	var results []Result
	for i, m := range matches {
		if !m.Kept {
			continue
		}
		results = append(results, Result{
			Kind:   KindImage,
			URL:    imageURL(images[i].ID),
			Path:   images[i].Path,
			Score:  m.Score,
			scored: true,
		})
	}
	rank(results)

	e.logger.Debug("image search", "candidates", len(images), "results", len(results), "elapsed", time.Since(start))
	return results, nil
}

// SearchVideoByFeature scores every frame of every video, merges matching
// frames into segments, and ranks the segments across all videos.
func (e *Engine) SearchVideoByFeature(ctx context.Context, positive, negative []float32, positiveThreshold, negativeThreshold float64) ([]Result, error) {
	start := time.Now()

	paths, err := e.store.ListVideoPaths(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading videos: %w", err)
	}

	var results []Result
	for _, path := range paths {
		frames, err := e.store.VideoFrames(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("loading frames of %s: %w", path, err)
		}
		if len(frames) == 0 {
			continue
		}

		candidates := make([][]float32, len(frames))
		times := make([]int, len(frames))
		for i, f := range frames {
			candidates[i] = f.Feature
			times[i] = f.Time
		}
		matches := semantic.MatchBatch(positive, negative, candidates, positiveThreshold, negativeThreshold)

		for _, run := range semantic.MergeRuns(matches) {
			w := semantic.RunWindow(run, times)
			tw := TimeWindow{StartTime: w.Start, EndTime: w.End}
			results = append(results, Result{
				Kind:       KindVideo,
				URL:        videoSegmentURL(path, tw),
				Path:       path,
				Score:      semantic.RunScore(matches, run),
				TimeWindow: &tw,
				scored:     true,
			})
		}
	}
	rank(results)

	e.logger.Debug("video search", "videos", len(paths), "results", len(results), "elapsed", time.Since(start))
	return results, nil
}

// rank fills in softmax confidences, computed in discovery order, then sorts
// by raw score descending. Equal scores keep discovery order.
func rank(results []Result) {
	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}
	for i, p := range semantic.Softmax(scores) {
		results[i].SoftmaxScore = p
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}
