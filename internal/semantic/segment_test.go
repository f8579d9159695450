package semantic

import (
	"reflect"
	"testing"
)

// flags builds matches from 0/1 flags, scoring kept frames by their index.
func flags(bits ...int) []Match {
	m := make([]Match, len(bits))
	for i, b := range bits {
		if b == 1 {
			m[i] = Match{Score: float64(50 + i), Kept: true}
		}
	}
	return m
}

func TestMergeRuns(t *testing.T) {
	tests := []struct {
		name    string
		matches []Match
		want    []Run
	}{
		{
			name:    "gap of three splits runs",
			matches: flags(1, 1, 0, 0, 1, 1, 0, 0, 0, 1),
			want:    []Run{{0, 1}, {4, 5}, {9, 9}},
		},
		{
			name:    "single missed frame is bridged",
			matches: flags(1, 0, 1, 0, 1),
			want:    []Run{{0, 4}},
		},
		{
			name:    "no matches",
			matches: flags(0, 0, 0),
			want:    nil,
		},
		{
			name:    "all match",
			matches: flags(1, 1, 1, 1),
			want:    []Run{{0, 3}},
		},
		{
			name:    "lone match at end",
			matches: flags(0, 0, 0, 1),
			want:    []Run{{3, 3}},
		},
		{
			name:    "empty",
			matches: nil,
			want:    nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeRuns(tt.matches)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("MergeRuns() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRunScore(t *testing.T) {
	matches := []Match{
		{Score: 40, Kept: true},
		{},
		{Score: 55, Kept: true},
		{Score: 47, Kept: true},
	}
	if got := RunScore(matches, Run{0, 3}); got != 55 {
		t.Errorf("RunScore() = %v, want 55", got)
	}
	if got := RunScore(matches, Run{3, 3}); got != 47 {
		t.Errorf("RunScore() = %v, want 47", got)
	}
}

func TestRunWindow(t *testing.T) {
	times := []int{0, 2, 4, 6, 8, 10}

	tests := []struct {
		name string
		run  Run
		want Window
	}{
		{"first frame has no predecessor", Run{0, 1}, Window{0, 3}},
		{"middle run extends both sides", Run{2, 3}, Window{3, 7}},
		{"last frame has no successor", Run{4, 5}, Window{7, 10}},
		{"whole video", Run{0, 5}, Window{0, 10}},
		{"single frame", Run{2, 2}, Window{3, 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RunWindow(tt.run, times); got != tt.want {
				t.Errorf("RunWindow(%v) = %v, want %v", tt.run, got, tt.want)
			}
		})
	}
}

func TestRunWindow_OddInterval(t *testing.T) {
	// With a 3s interval the midpoints fall on half seconds: start truncates,
	// end rounds up.
	times := []int{0, 3, 6, 9}
	if got := RunWindow(Run{1, 1}, times); got != (Window{1, 5}) {
		t.Errorf("RunWindow() = %v, want {1 5}", got)
	}
}
