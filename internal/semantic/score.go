package semantic

import "math"

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical direction.
// Mismatched, empty or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	denominator := math.Sqrt(normA) * math.Sqrt(normB)
	if denominator == 0 {
		return 0
	}

	return dot / denominator
}

// Score returns the user-facing score of a candidate against a query.
func Score(query, candidate []float32) float64 {
	return CosineSimilarity(query, candidate) * ScoreScale
}

// MatchBatch scores every candidate against positive, and against negative
// when it is non-nil. A candidate is kept with its positive score when that
// score reaches positiveThreshold and, if a negative vector is given, its
// negative score does not exceed negativeThreshold.
func MatchBatch(positive, negative []float32, candidates [][]float32, positiveThreshold, negativeThreshold float64) []Match {
	matches := make([]Match, len(candidates))
	for i, c := range candidates {
		pos := Score(positive, c)
		if pos < positiveThreshold {
			continue
		}
		if negative != nil && Score(negative, c) > negativeThreshold {
			continue
		}
		matches[i] = Match{Score: pos, Kept: true}
	}
	return matches
}

// Kept returns the scores of kept matches in candidate order.
func Kept(matches []Match) []float64 {
	var scores []float64
	for _, m := range matches {
		if m.Kept {
			scores = append(scores, m.Score)
		}
	}
	return scores
}
