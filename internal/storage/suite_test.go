package storage

import (
	"context"
	"reflect"
	"testing"
)

// runStoreSuite exercises the AssetStore contract against a fresh store.
func runStoreSuite(t *testing.T, open func(t *testing.T) AssetStore) {
	ctx := context.Background()

	t.Run("image lifecycle", func(t *testing.T) {
		s := open(t)

		if rec, err := s.ImageByPath(ctx, "/a.jpg"); err != nil || rec != nil {
			t.Fatalf("ImageByPath(missing) = %v, %v; want nil, nil", rec, err)
		}
		if _, ok, err := s.ImageModifyTime(ctx, "/a.jpg"); err != nil || ok {
			t.Fatalf("ImageModifyTime(missing) ok = %v, err = %v", ok, err)
		}

		feature := []float32{0.25, -1, 3.5}
		id, err := s.InsertImage(ctx, "/a.jpg", 1700000000, feature)
		if err != nil {
			t.Fatalf("InsertImage() error = %v", err)
		}

		rec, err := s.ImageByPath(ctx, "/a.jpg")
		if err != nil || rec == nil {
			t.Fatalf("ImageByPath() = %v, %v", rec, err)
		}
		if rec.ID != id || rec.ModifyTime != 1700000000 || !reflect.DeepEqual(rec.Feature, feature) {
			t.Errorf("ImageByPath() = %+v", rec)
		}

		mt, ok, err := s.ImageModifyTime(ctx, "/a.jpg")
		if err != nil || !ok || mt != 1700000000 {
			t.Errorf("ImageModifyTime() = %d, %v, %v", mt, ok, err)
		}

		got, err := s.ImageFeature(ctx, id)
		if err != nil || !reflect.DeepEqual(got, feature) {
			t.Errorf("ImageFeature() = %v, %v", got, err)
		}
		if path, err := s.ImagePath(ctx, id); err != nil || path != "/a.jpg" {
			t.Errorf("ImagePath() = %q, %v", path, err)
		}

		if err := s.DeleteImage(ctx, "/a.jpg"); err != nil {
			t.Fatalf("DeleteImage() error = %v", err)
		}
		if got, err := s.ImageFeature(ctx, id); err != nil || got != nil {
			t.Errorf("ImageFeature(deleted) = %v, %v; want nil, nil", got, err)
		}
		if path, err := s.ImagePath(ctx, id); err != nil || path != "" {
			t.Errorf("ImagePath(deleted) = %q, %v", path, err)
		}
	})

	t.Run("list images ordered by id", func(t *testing.T) {
		s := open(t)
		paths := []string{"/z.png", "/a.png", "/m.png"}
		for i, p := range paths {
			if _, err := s.InsertImage(ctx, p, int64(i), []float32{float32(i), 0, 0}); err != nil {
				t.Fatal(err)
			}
		}

		recs, err := s.ListImages(ctx)
		if err != nil {
			t.Fatalf("ListImages() error = %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("ListImages() returned %d, want 3", len(recs))
		}
		for i, rec := range recs {
			if rec.Path != paths[i] || rec.Feature[0] != float32(i) {
				t.Errorf("recs[%d] = %+v, want path %s", i, rec, paths[i])
			}
			if i > 0 && rec.ID <= recs[i-1].ID {
				t.Errorf("ids not increasing: %d after %d", rec.ID, recs[i-1].ID)
			}
		}
	})

	t.Run("duplicate image path rejected", func(t *testing.T) {
		s := open(t)
		if _, err := s.InsertImage(ctx, "/dup.jpg", 1, []float32{1, 0, 0}); err != nil {
			t.Fatal(err)
		}
		if _, err := s.InsertImage(ctx, "/dup.jpg", 2, []float32{1, 0, 0}); err == nil {
			t.Error("second InsertImage() for the same path should fail")
		}
	})

	t.Run("video frames", func(t *testing.T) {
		s := open(t)

		if ok, err := s.VideoExists(ctx, "/v.mp4"); err != nil || ok {
			t.Fatalf("VideoExists(missing) = %v, %v", ok, err)
		}

		// Inserted out of order; reads must come back by frame time.
		frames := []Frame{
			{Time: 4, Feature: []float32{0, 0, 1}},
			{Time: 0, Feature: []float32{1, 0, 0}},
			{Time: 2, Feature: []float32{0, 1, 0}},
		}
		if err := s.InsertVideoFrames(ctx, "/v.mp4", 42, frames); err != nil {
			t.Fatalf("InsertVideoFrames() error = %v", err)
		}

		got, err := s.VideoFrames(ctx, "/v.mp4")
		if err != nil {
			t.Fatalf("VideoFrames() error = %v", err)
		}
		wantTimes := []int{0, 2, 4}
		if len(got) != 3 {
			t.Fatalf("VideoFrames() returned %d, want 3", len(got))
		}
		for i, f := range got {
			if f.Time != wantTimes[i] {
				t.Errorf("frame %d time = %d, want %d", i, f.Time, wantTimes[i])
			}
		}
		if !reflect.DeepEqual(got[1].Feature, []float32{0, 1, 0}) {
			t.Errorf("frame 1 feature = %v", got[1].Feature)
		}

		mt, ok, err := s.VideoModifyTime(ctx, "/v.mp4")
		if err != nil || !ok || mt != 42 {
			t.Errorf("VideoModifyTime() = %d, %v, %v", mt, ok, err)
		}
		if ok, _ := s.VideoExists(ctx, "/v.mp4"); !ok {
			t.Error("VideoExists() = false after insert")
		}

		// Re-inserting replaces the old frames.
		if err := s.InsertVideoFrames(ctx, "/v.mp4", 43, frames[:1]); err != nil {
			t.Fatal(err)
		}
		got, _ = s.VideoFrames(ctx, "/v.mp4")
		if len(got) != 1 || got[0].Time != 4 {
			t.Errorf("after replace VideoFrames() = %+v", got)
		}

		if err := s.DeleteVideo(ctx, "/v.mp4"); err != nil {
			t.Fatalf("DeleteVideo() error = %v", err)
		}
		if got, err := s.VideoFrames(ctx, "/v.mp4"); err != nil || len(got) != 0 {
			t.Errorf("VideoFrames(deleted) = %v, %v", got, err)
		}
	})

	t.Run("search by path", func(t *testing.T) {
		s := open(t)
		for _, p := range []string{"/photos/cat_1.jpg", "/photos/dog.jpg", "/misc/100%.png", "/photos/catalog.png"} {
			if _, err := s.InsertImage(ctx, p, 0, []float32{1, 0, 0}); err != nil {
				t.Fatal(err)
			}
		}
		for _, p := range []string{"/videos/b_cat.mp4", "/videos/a_cat.mp4", "/videos/dog.mp4"} {
			if err := s.InsertVideoFrames(ctx, p, 0, []Frame{{Time: 0, Feature: []float32{1, 0, 0}}, {Time: 2, Feature: []float32{1, 0, 0}}}); err != nil {
				t.Fatal(err)
			}
		}

		tests := []struct {
			substr string
			want   []string
		}{
			{"cat", []string{"/photos/cat_1.jpg", "/photos/catalog.png"}},
			{"CAT", []string{"/photos/cat_1.jpg", "/photos/catalog.png"}},
			{"cat_", []string{"/photos/cat_1.jpg"}},
			{"%", []string{"/misc/100%.png"}},
			{"nothing", nil},
		}
		for _, tt := range tests {
			recs, err := s.SearchImagesByPath(ctx, tt.substr)
			if err != nil {
				t.Fatalf("SearchImagesByPath(%q) error = %v", tt.substr, err)
			}
			var got []string
			for _, r := range recs {
				got = append(got, r.Path)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SearchImagesByPath(%q) = %v, want %v", tt.substr, got, tt.want)
			}
		}

		videos, err := s.SearchVideosByPath(ctx, "cat")
		if err != nil {
			t.Fatalf("SearchVideosByPath() error = %v", err)
		}
		if want := []string{"/videos/a_cat.mp4", "/videos/b_cat.mp4"}; !reflect.DeepEqual(videos, want) {
			t.Errorf("SearchVideosByPath() = %v, want %v", videos, want)
		}
	})

	t.Run("reconcile and counts", func(t *testing.T) {
		s := open(t)
		for _, p := range []string{"/keep.jpg", "/gone.jpg"} {
			if _, err := s.InsertImage(ctx, p, 0, []float32{1, 0, 0}); err != nil {
				t.Fatal(err)
			}
		}
		for _, p := range []string{"/keep.mp4", "/gone.mp4"} {
			if err := s.InsertVideoFrames(ctx, p, 0, []Frame{{Time: 0, Feature: []float32{1, 0, 0}}, {Time: 2, Feature: []float32{0, 1, 0}}}); err != nil {
				t.Fatal(err)
			}
		}

		c, err := s.Counts(ctx)
		if err != nil {
			t.Fatalf("Counts() error = %v", err)
		}
		if c != (Counts{Images: 2, Videos: 2, VideoFrames: 4}) {
			t.Errorf("Counts() = %+v", c)
		}

		keep := map[string]struct{}{"/keep.jpg": {}, "/keep.mp4": {}}
		r, err := s.Reconcile(ctx, keep)
		if err != nil {
			t.Fatalf("Reconcile() error = %v", err)
		}
		if r != (Reconciled{Images: 1, Videos: 1}) {
			t.Errorf("Reconcile() = %+v", r)
		}

		c, _ = s.Counts(ctx)
		if c != (Counts{Images: 1, Videos: 1, VideoFrames: 2}) {
			t.Errorf("Counts() after reconcile = %+v", c)
		}
		if rec, _ := s.ImageByPath(ctx, "/gone.jpg"); rec != nil {
			t.Error("/gone.jpg survived reconcile")
		}

		// Nothing left to remove.
		if r, err := s.Reconcile(ctx, keep); err != nil || r != (Reconciled{}) {
			t.Errorf("second Reconcile() = %+v, %v", r, err)
		}
	})
}
