package heatmap

import (
	"errors"
	"math"
	"sort"
)

// ErrEmptyDomain is returned when a ColorScale is built from no values.
var ErrEmptyDomain = errors.New("color scale domain is empty")

// ColorScale is a quantile classifier: the sorted training values are split into
// len(colors) equal-population buckets. Boundaries are computed once in
// NewColorScale and never change.
type ColorScale struct {
	thresholds []float64
	colors     []string
	min, max   float64
}

// NewColorScale builds the scale from every absolute temperature of a dataset.
// values is not modified.
func NewColorScale(values []float64, colors []string) (*ColorScale, error) {
	if len(values) == 0 {
		return nil, ErrEmptyDomain
	}
	if len(colors) == 0 {
		return nil, errors.New("color scale needs at least one color")
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(colors)
	thresholds := make([]float64, n-1)
	for i := 1; i < n; i++ {
		thresholds[i-1] = quantileSorted(sorted, float64(i)/float64(n))
	}
	return &ColorScale{
		thresholds: thresholds,
		colors:     append([]string(nil), colors...),
		min:        sorted[0],
		max:        sorted[len(sorted)-1],
	}, nil
}

// quantileSorted returns the p-quantile of sorted values using linear
// interpolation between closest ranks, h = (n-1)p.
func quantileSorted(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 1 {
		return sorted[0]
	}
	h := float64(n-1) * p
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	return sorted[lo] + (h-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// Classify returns the bucket index of v. A value equal to a boundary belongs to
// the lower bucket; values outside the training domain clamp to the edge buckets.
func (s *ColorScale) Classify(v float64) int {
	return sort.SearchFloat64s(s.thresholds, v)
}

// Color returns the bucket color of v.
func (s *ColorScale) Color(v float64) string {
	return s.colors[s.Classify(v)]
}

// Quantiles returns a copy of the bucket boundaries (len = Buckets()-1).
func (s *ColorScale) Quantiles() []float64 {
	return append([]float64(nil), s.thresholds...)
}

// Buckets is the number of color classes.
func (s *ColorScale) Buckets() int {
	return len(s.colors)
}

// Colors returns a copy of the bucket colors, coldest first.
func (s *ColorScale) Colors() []string {
	return append([]string(nil), s.colors...)
}

// Domain returns the smallest and largest training values.
func (s *ColorScale) Domain() (min, max float64) {
	return s.min, s.max
}
