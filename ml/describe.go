package ml

import (
	"fmt"
	"strings"
)

// Discretizer maps raw continuous columns to categorical codes and can map
// a (feature, category) pair back to the numeric interval it stands for.
// Implementations are shared read-only between training and evaluation.
type Discretizer interface {
	Transform(raw [][]float64) ([][]int, error)
	// CatToInterval returns the half-open interval behind a category, or
	// ok=false when the feature is inherently categorical.
	CatToInterval(feature, category int) (*Interval, bool)
}

// Describe renders the full decision list as a text report. disc may be nil;
// when present, conditions on discretized features render as numeric
// intervals instead of category codes.
func (l *RuleList) Describe(featureNames []string, disc Discretizer, mode LabelMode) (string, error) {
	lines := make([]string, 0, len(l.Rules))
	for _, r := range l.Rules {
		var intervals []*Interval
		if disc != nil && !r.IsDefault() {
			intervals = make([]*Interval, len(r.FeatureIndices))
			for k, idx := range r.FeatureIndices {
				if iv, ok := disc.CatToInterval(idx, r.Categories[k]); ok {
					intervals[k] = iv
				}
			}
		}
		line, err := r.Describe(featureNames, intervals, mode)
		if err != nil {
			return "", err
		}
		lines = append(lines, line)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The rule list has %d of rules:\n\n     ", len(l.Rules))
	b.WriteString(strings.Join(lines, "\n\nELSE "))
	b.WriteString("\n")
	return b.String(), nil
}
