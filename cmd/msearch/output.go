package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/matsen/mediasearch/internal/search"
)

// PathDisplayMaxLen bounds paths in human-readable result lists.
const PathDisplayMaxLen = 70

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// exitWithError outputs an error in the appropriate format (human or JSON) and exits.
func exitWithError(code int, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if humanOutput {
		fmt.Fprintf(os.Stderr, "error: %s\n", msg)
	} else {
		outputJSON(ErrorResponse{Error: msg})
	}
	os.Exit(code)
}

// ErrorResponse is a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse is a generic response for commands that return status.
type StatusResponse struct {
	Status string `json:"status"`
	Path   string `json:"path,omitempty"`
}

// formatResult renders one search result as a single line, numbered from 1.
func formatResult(i int, r search.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d. [%.2f", i+1, r.Score)
	if r.SoftmaxScore > 0 {
		fmt.Fprintf(&b, " %.0f%%", r.SoftmaxScore*100)
	}
	b.WriteString("] ")
	b.WriteString(truncateLeft(r.Path, PathDisplayMaxLen))
	if r.TimeWindow != nil {
		fmt.Fprintf(&b, " @ %s-%s", formatClock(r.StartTime), formatClock(r.EndTime))
	}
	return b.String()
}

// printResultsHuman prints search results in human-readable format.
func printResultsHuman(results []search.Result) {
	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for i, r := range results {
		fmt.Println(formatResult(i, r))
	}
}

// truncateLeft keeps the end of s, which is the informative part of a path.
// The result is at most maxLen bytes and never splits a UTF-8 sequence.
func truncateLeft(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := len(s) - maxLen + 3
	for cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut++
	}
	return "..." + s[cut:]
}

// formatClock formats whole seconds as m:ss or h:mm:ss.
func formatClock(seconds int) string {
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}

// progressBar renders a 30-column bar for fraction done in [0, 1].
func progressBar(done float64) string {
	const barWidth = 30
	filled := int(float64(barWidth) * done)
	var b strings.Builder
	for i := 0; i < barWidth; i++ {
		switch {
		case i < filled:
			b.WriteByte('=')
		case i == filled:
			b.WriteByte('>')
		default:
			b.WriteByte(' ')
		}
	}
	return b.String()
}
