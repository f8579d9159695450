// Package semantic provides the scoring primitives behind similarity search:
// cosine scoring with thresholds, softmax confidence, and the merging of
// per-frame video matches into playable segments.
package semantic

// ScoreScale converts a cosine similarity into the user-facing score.
const ScoreScale = 100

// Match is the outcome of scoring one candidate. Dropped candidates have
// Kept == false and carry no score.
type Match struct {
	Score float64
	Kept  bool
}

// Run is an inclusive range of frame indices that matched a query.
type Run struct {
	Start int
	End   int
}

// Window is a playback time range in seconds.
type Window struct {
	Start int
	End   int
}
