package ml

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// MDLP is an entropy-based discretizer (Fayyad & Irani's minimum description
// length procedure). Fit picks cut points per continuous feature by
// recursively splitting at the boundary that minimizes class entropy,
// stopping when the MDL criterion rejects the split. Categories are bin
// indices over the sorted cut points, half-open on the right.
type MDLP struct {
	// Cuts holds the accepted cut points per feature, ascending. A feature
	// with no cuts maps every value to category 0.
	Cuts [][]float64 `json:"cuts"`
	// Categorical marks features that are passed through untouched.
	Categorical []bool `json:"categorical"`

	declared map[int]bool
}

// NewMDLP declares which feature columns are inherently categorical; those
// are passed through Transform as integer codes and never given intervals.
func NewMDLP(categoricalFeatures ...int) *MDLP {
	m := &MDLP{declared: map[int]bool{}}
	for _, f := range categoricalFeatures {
		m.declared[f] = true
	}
	return m
}

// Fit learns cut points from a raw matrix and its labels.
func (m *MDLP) Fit(x [][]float64, y []int) error {
	if len(x) == 0 {
		return errors.New("empty training matrix")
	}
	if len(y) != len(x) {
		return fmt.Errorf("%d labels for %d instances", len(y), len(x))
	}

	nFeatures := len(x[0])
	m.Cuts = make([][]float64, nFeatures)
	m.Categorical = make([]bool, nFeatures)
	for f := 0; f < nFeatures; f++ {
		if m.declared[f] {
			m.Categorical[f] = true
			continue
		}
		values := make([]float64, len(x))
		for i, row := range x {
			if len(row) != nFeatures {
				return fmt.Errorf("instance %d has %d features, expected %d", i, len(row), nFeatures)
			}
			values[i] = row[f]
		}
		m.Cuts[f] = mdlpCuts(values, y)
	}
	return nil
}

// Transform maps a raw matrix into categorical codes using the fitted cuts.
func (m *MDLP) Transform(raw [][]float64) ([][]int, error) {
	if m.Cuts == nil {
		return nil, errors.New("discretizer not fitted")
	}
	out := make([][]int, len(raw))
	for i, row := range raw {
		if len(row) != len(m.Cuts) {
			return nil, fmt.Errorf("instance %d has %d features, expected %d", i, len(row), len(m.Cuts))
		}
		cats := make([]int, len(row))
		for f, v := range row {
			if m.Categorical[f] {
				cats[f] = int(v)
				continue
			}
			bin := 0
			for _, cut := range m.Cuts[f] {
				if v >= cut {
					bin++
				}
			}
			cats[f] = bin
		}
		out[i] = cats
	}
	return out, nil
}

// FitTransform fits the cuts and transforms the training matrix in one call.
func (m *MDLP) FitTransform(x [][]float64, y []int) ([][]int, error) {
	if err := m.Fit(x, y); err != nil {
		return nil, err
	}
	return m.Transform(x)
}

// CatToInterval returns the numeric range a category covers, or ok=false
// for declared-categorical features.
func (m *MDLP) CatToInterval(feature, category int) (*Interval, bool) {
	if feature < 0 || feature >= len(m.Cuts) || m.Categorical[feature] {
		return nil, false
	}
	cuts := m.Cuts[feature]
	if category < 0 || category > len(cuts) {
		return nil, false
	}
	iv := &Interval{Lo: math.Inf(-1), Hi: math.Inf(1)}
	if category > 0 {
		iv.Lo = cuts[category-1]
	}
	if category < len(cuts) {
		iv.Hi = cuts[category]
	}
	return iv, true
}

// NBins returns the number of categories a feature can take.
func (m *MDLP) NBins(feature int) int {
	if feature < 0 || feature >= len(m.Cuts) || m.Categorical[feature] {
		return 0
	}
	return len(m.Cuts[feature]) + 1
}

var _ Discretizer = (*MDLP)(nil)

type mdlpSample struct {
	value float64
	label int
}

func mdlpCuts(values []float64, labels []int) []float64 {
	samples := make([]mdlpSample, len(values))
	for i := range values {
		samples[i] = mdlpSample{values[i], labels[i]}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i].value < samples[j].value })

	var cuts []float64
	var split func(lo, hi int)
	split = func(lo, hi int) {
		cut, at, ok := bestCut(samples[lo:hi])
		if !ok {
			return
		}
		cuts = append(cuts, cut)
		split(lo, lo+at)
		split(lo+at, hi)
	}
	split(0, len(samples))

	sort.Float64s(cuts)
	return cuts
}

// bestCut finds the boundary minimizing weighted entropy and applies the MDL
// acceptance test. at is the index of the first sample of the right part.
func bestCut(s []mdlpSample) (cut float64, at int, ok bool) {
	n := len(s)
	if n < 2 {
		return 0, 0, false
	}

	total := classCounts(s)
	entTotal := entropy(total, n)
	k := nonZero(total)

	bestAt := -1
	bestEnt := math.MaxFloat64
	for i := 1; i < n; i++ {
		if s[i].value == s[i-1].value {
			continue
		}
		left := classCounts(s[:i])
		right := classCounts(s[i:])
		e := float64(i)/float64(n)*entropy(left, i) +
			float64(n-i)/float64(n)*entropy(right, n-i)
		if e < bestEnt {
			bestEnt = e
			bestAt = i
		}
	}
	if bestAt < 0 {
		return 0, 0, false
	}

	left := classCounts(s[:bestAt])
	right := classCounts(s[bestAt:])
	entLeft := entropy(left, bestAt)
	entRight := entropy(right, n-bestAt)
	k1 := nonZero(left)
	k2 := nonZero(right)

	gain := entTotal - bestEnt
	delta := math.Log2(math.Pow(3, float64(k))-2) -
		(float64(k)*entTotal - float64(k1)*entLeft - float64(k2)*entRight)
	threshold := (math.Log2(float64(n-1)) + delta) / float64(n)
	if gain <= threshold {
		return 0, 0, false
	}

	return (s[bestAt-1].value + s[bestAt].value) / 2, bestAt, true
}

func classCounts(s []mdlpSample) map[int]int {
	counts := make(map[int]int)
	for _, sm := range s {
		counts[sm.label]++
	}
	return counts
}

func nonZero(counts map[int]int) int { return len(counts) }

func entropy(counts map[int]int, n int) float64 {
	if n == 0 {
		return 0
	}
	e := 0.0
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(n)
		e -= p * math.Log2(p)
	}
	return e
}
