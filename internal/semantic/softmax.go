package semantic

import "math"

// Softmax normalizes scores into confidences in (0, 1) that sum to 1.
// The maximum is subtracted before exponentiation; the result is the same
// but cannot overflow. An empty input returns nil.
func Softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	max := scores[0]
	for _, s := range scores[1:] {
		if s > max {
			max = s
		}
	}
	out := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		out[i] = math.Exp(s - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
