package postprocess

import (
	"math"
	"sort"
)

// clamp restricts the value x to be within the range min and max
func clamp(val, min, max float64) float64 {

	if val > min {

		if val < max {
			return val
		}

		return max
	}

	return min
}

// sortByConfidence orders candidates by descending confidence, equal scores
// keep decoder emission order
func sortByConfidence(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Confidence == cands[j].Confidence {
			return cands[i].Index < cands[j].Index
		}

		return cands[i].Confidence > cands[j].Confidence
	})
}

// NMS implements a greedy class agnostic Non-Maximum Suppression.  The highest
// scoring remaining candidate is kept and every other candidate overlapping it
// with an IoU of threshold or more is removed, until none remain or
// maxResults have been kept.  A maxResults of zero or less means no limit.
// The input slice is not modified.
func NMS(cands []Candidate, threshold float64, maxResults int) []Candidate {

	remaining := make([]Candidate, len(cands))
	copy(remaining, cands)
	sortByConfidence(remaining)

	kept := make([]Candidate, 0)

	for len(remaining) > 0 {
		if maxResults > 0 && len(kept) >= maxResults {
			break
		}

		first := remaining[0]
		kept = append(kept, first)

		next := remaining[:0]

		for _, c := range remaining[1:] {
			if IoU(first, c) < threshold {
				next = append(next, c)
			}
		}

		remaining = next
	}

	return kept
}

// IoU works out the Intersection over Union of two candidates.  Box areas
// are taken from the decoded W*H rather than the corners.
func IoU(a, b Candidate) float64 {

	w := math.Max(0, math.Min(a.X2, b.X2)-math.Max(a.X1, b.X1))
	h := math.Max(0, math.Min(a.Y2, b.Y2)-math.Max(a.Y1, b.Y1))
	intersection := w * h

	union := a.W*a.H + b.W*b.H - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}
