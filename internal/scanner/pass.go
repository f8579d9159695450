package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/matsen/mediasearch/internal/media"
	"github.com/matsen/mediasearch/internal/storage"
)

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeAdded
	outcomeUpdated
	outcomeSkipped
	outcomeFailed
)

func (st *Stats) record(o outcome) {
	switch o {
	case outcomeUnchanged:
		st.Unchanged++
	case outcomeAdded:
		st.Added++
	case outcomeUpdated:
		st.Updated++
	case outcomeSkipped:
		st.Skipped++
	case outcomeFailed:
		st.Failed++
	}
}

// pass runs one full scan. The caller must have won begin().
func (s *Scanner) pass(ctx context.Context) (stats Stats, err error) {
	var counts *storage.Counts
	defer func() {
		stats.Duration = s.now().Sub(s.started)
		done := s.finish(counts)
		if err == nil && s.onComplete != nil {
			s.onComplete(stats)
		}
		close(done)
	}()

	candidates := s.enumerate()
	stats.Candidates = len(candidates)
	s.setTotal(len(candidates))
	s.logger.Info("scan started", "candidates", len(candidates), "roots", len(s.opts.Roots))

	keep := make(map[string]struct{}, len(candidates))
	for i, c := range candidates {
		keep[c.path] = struct{}{}
		if err := ctx.Err(); err != nil {
			s.logger.Warn("scan cancelled", "processed", i)
			return stats, err
		}

		s.beginFile(c.path)
		var o outcome
		if c.kind == kindImage {
			o = s.scanImage(ctx, c.path)
		} else {
			o = s.scanVideo(ctx, c.path)
		}
		if err := ctx.Err(); err != nil {
			s.logger.Warn("scan cancelled", "processed", i)
			return stats, err
		}
		stats.record(o)

		if s.opts.LogInterval > 0 && (i+1)%s.opts.LogInterval == 0 {
			st := s.Status()
			s.logger.Info("scan progress",
				"done", i+1,
				"total", len(candidates),
				"added", stats.Added,
				"updated", stats.Updated,
				"progress", fmt.Sprintf("%.1f%%", st.Progress*100))
		}
	}

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	removed, err := s.store.Reconcile(ctx, keep)
	if err != nil {
		s.logger.Error("removing deleted files failed", "error", err)
		return stats, fmt.Errorf("reconciling store: %w", err)
	}
	stats.Deleted = removed.Images + removed.Videos
	if stats.Deleted > 0 {
		s.logger.Info("removed deleted files", "images", removed.Images, "videos", removed.Videos)
	}

	c, err := s.store.Counts(ctx)
	if err != nil {
		return stats, fmt.Errorf("counting assets: %w", err)
	}
	counts = &c

	s.logger.Info("scan finished",
		"added", stats.Added,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"skipped", stats.Skipped,
		"failed", stats.Failed,
		"deleted", stats.Deleted,
		"duration", s.now().Sub(s.started).Round(time.Millisecond))
	return stats, nil
}

// scanImage brings the record for one image file up to date.
func (s *Scanner) scanImage(ctx context.Context, path string) outcome {
	modTime, err := fileModTime(path)
	if err != nil {
		s.logger.Warn("cannot stat image", "path", path, "error", err)
		return outcomeFailed
	}

	stored, ok, err := s.store.ImageModifyTime(ctx, path)
	if err != nil {
		s.logger.Warn("reading image record failed", "path", path, "error", err)
		return outcomeFailed
	}
	if ok && stored == modTime {
		return outcomeUnchanged
	}
	result := outcomeAdded
	if ok {
		s.logger.Debug("image changed", "path", path)
		if err := s.store.DeleteImage(ctx, path); err != nil {
			s.logger.Warn("deleting outdated image failed", "path", path, "error", err)
			return outcomeFailed
		}
		result = outcomeUpdated
	}

	img, err := media.LoadImage(path, s.opts.Limits)
	if err != nil {
		if errors.Is(err, media.ErrImageTooSmall) || errors.Is(err, media.ErrImageTooLarge) {
			s.logger.Info("skipping image", "path", path, "reason", err)
			return outcomeSkipped
		}
		s.logger.Warn("cannot decode image", "path", path, "error", err)
		return outcomeFailed
	}

	emb, err := s.provider.EmbedImage(ctx, img)
	if err != nil {
		s.logger.Warn("embedding image failed", "path", path, "error", err)
		return outcomeFailed
	}
	if _, err := s.store.InsertImage(ctx, path, modTime, emb.Vector); err != nil {
		s.logger.Warn("storing image failed", "path", path, "error", err)
		return outcomeFailed
	}
	return result
}

// scanVideo re-samples and re-embeds a new or changed video. Frames are
// persisted only when every batch succeeds.
func (s *Scanner) scanVideo(ctx context.Context, path string) outcome {
	modTime, err := fileModTime(path)
	if err != nil {
		s.logger.Warn("cannot stat video", "path", path, "error", err)
		return outcomeFailed
	}

	stored, ok, err := s.store.VideoModifyTime(ctx, path)
	if err != nil {
		s.logger.Warn("reading video record failed", "path", path, "error", err)
		return outcomeFailed
	}
	if ok && stored == modTime {
		return outcomeUnchanged
	}
	result := outcomeAdded
	if ok {
		s.logger.Debug("video changed", "path", path)
		if err := s.store.DeleteVideo(ctx, path); err != nil {
			s.logger.Warn("deleting outdated video failed", "path", path, "error", err)
			return outcomeFailed
		}
		result = outcomeUpdated
	}

	frames, err := s.embedFrames(ctx, path)
	if err != nil {
		s.logger.Warn("processing video failed", "path", path, "error", err)
		return outcomeFailed
	}
	if len(frames) == 0 {
		s.logger.Warn("processing video failed", "path", path, "error", media.ErrNoFrames)
		return outcomeFailed
	}

	if err := s.store.InsertVideoFrames(ctx, path, modTime, frames); err != nil {
		s.logger.Warn("storing video frames failed", "path", path, "error", err)
		return outcomeFailed
	}
	s.logger.Debug("video indexed", "path", path, "frames", len(frames))
	return result
}

// embedFrames samples path and embeds the frames in batches.
func (s *Scanner) embedFrames(ctx context.Context, path string) ([]storage.Frame, error) {
	var out []storage.Frame
	batch := make([]media.Frame, 0, s.opts.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		imgs := make([]image.Image, len(batch))
		for i, f := range batch {
			imgs[i] = f.Image
		}
		embs, err := s.provider.EmbedImages(ctx, imgs)
		if err != nil {
			return fmt.Errorf("embedding frames: %w", err)
		}
		for i, e := range embs {
			out = append(out, storage.Frame{Time: batch[i].Time, Feature: e.Vector})
		}
		batch = batch[:0]
		return nil
	}

	err := s.frames.ExtractFrames(ctx, path, s.opts.FrameInterval, func(f media.Frame) error {
		batch = append(batch, f)
		if len(batch) >= s.opts.BatchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func fileModTime(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}
