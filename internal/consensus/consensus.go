// Package consensus decides whether a set of independent reports agrees
// closely enough to settle a market.
package consensus

import "sort"

// DefaultThreshold is the relative spread within which reports are considered
// to agree: 1%.
const DefaultThreshold = 0.01

// MinReports is the smallest report set that can reach consensus.
const MinReports = 3

// Resolve decides the outcome for a set of reported values. It returns the
// arithmetic mean and true when at least MinReports values lie within the
// threshold of relative spread, (max-min)/min. Fewer values, a wider spread,
// or a non-positive minimum (which leaves relative spread undefined) all
// yield false; none of these are errors, just a market that is not ready.
func Resolve(values []float64, threshold float64) (float64, bool) {
	if len(values) < MinReports {
		return 0, false
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	min := sorted[0]
	max := sorted[len(sorted)-1]

	if min <= 0 {
		return 0, false
	}

	if (max-min)/min > threshold {
		return 0, false
	}

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return sum / float64(len(sorted)), true
}
