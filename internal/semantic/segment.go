package semantic

import "math"

// MaxRunGap is the largest index distance between two matched frames that
// still belong to the same run. A gap of 2 bridges one missed frame.
const MaxRunGap = 2

// MergeRuns groups the indices of kept matches into runs, starting a new run
// whenever consecutive matched indices are more than MaxRunGap apart.
func MergeRuns(matches []Match) []Run {
	var runs []Run
	start, prev := -1, -1
	for i, m := range matches {
		if !m.Kept {
			continue
		}
		switch {
		case start == -1:
			start = i
		case i-prev > MaxRunGap:
			runs = append(runs, Run{Start: start, End: prev})
			start = i
		}
		prev = i
	}
	if start != -1 {
		runs = append(runs, Run{Start: start, End: prev})
	}
	return runs
}

// RunScore returns the best score among the run's kept frames.
func RunScore(matches []Match, r Run) float64 {
	best := math.Inf(-1)
	for _, m := range matches[r.Start : r.End+1] {
		if m.Kept && m.Score > best {
			best = m.Score
		}
	}
	return best
}

// RunWindow converts a run into a playback window. Each edge is extended to
// the midpoint with the neighbouring sampled frame: the start truncated, the
// end rounded up. An edge with no neighbour stays on its own frame time.
func RunWindow(r Run, frameTimes []int) Window {
	w := Window{Start: frameTimes[r.Start], End: frameTimes[r.End]}
	if r.Start > 0 {
		w.Start = int(float64(frameTimes[r.Start]+frameTimes[r.Start-1]) / 2)
	}
	if r.End < len(frameTimes)-1 {
		w.End = int(float64(frameTimes[r.End]+frameTimes[r.End+1])/2 + 0.5)
	}
	return w
}
