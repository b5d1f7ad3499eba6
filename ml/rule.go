package ml

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// LabelMode selects how a rule's output distribution is rendered.
type LabelMode int

const (
	// LabelArgMax renders only the winning class and its probability.
	LabelArgMax LabelMode = iota
	// LabelFull renders the full probability vector.
	LabelFull
)

// Rule is one clause of a decision list: a conjunction of
// feature==category conditions and the class distribution emitted when the
// conditions hold. A rule is either conditional or the catch-all default;
// the default carries no conditions. Rules are immutable after construction
// except for the Support counts attached after training.
type Rule struct {
	Default        bool      `json:"default,omitempty"`
	FeatureIndices []int     `json:"feature_indices,omitempty"`
	Categories     []int     `json:"categories,omitempty"`
	Output         []float64 `json:"output"`
	Support        []int     `json:"support,omitempty"`
}

// NewRule builds a conditional rule and checks the condition lists line up.
func NewRule(featureIndices, categories []int, output []float64) (*Rule, error) {
	if len(featureIndices) == 0 {
		return nil, errors.New("rule has no conditions")
	}
	if len(featureIndices) != len(categories) {
		return nil, fmt.Errorf("condition mismatch: %d feature indices, %d categories",
			len(featureIndices), len(categories))
	}
	return &Rule{FeatureIndices: featureIndices, Categories: categories, Output: output}, nil
}

// NewDefaultRule builds the catch-all rule that terminates a list.
func NewDefaultRule(output []float64) *Rule {
	return &Rule{Default: true, Output: output}
}

// IsDefault reports whether this is the unconditional default rule.
func (r *Rule) IsDefault() bool {
	return r.Default
}

// Satisfy returns one boolean per instance: true when every condition of the
// rule holds on that instance. The default rule matches everything.
func (r *Rule) Satisfy(batch [][]int) []bool {
	mask := make([]bool, len(batch))
	if r.IsDefault() {
		for i := range mask {
			mask[i] = true
		}
		return mask
	}
	for i, row := range batch {
		ok := true
		for k, idx := range r.FeatureIndices {
			if row[idx] != r.Categories[k] {
				ok = false
				break
			}
		}
		mask[i] = ok
	}
	return mask
}

// SatisfyEach returns the unreduced per-condition masks, one per condition.
// ANDing them together reproduces Satisfy. The default rule has no
// decomposable conditions, so it yields a single all-true mask.
func (r *Rule) SatisfyEach(batch [][]int) [][]bool {
	if r.IsDefault() {
		return [][]bool{r.Satisfy(batch)}
	}
	masks := make([][]bool, len(r.FeatureIndices))
	for k, idx := range r.FeatureIndices {
		mask := make([]bool, len(batch))
		for i, row := range batch {
			mask[i] = row[idx] == r.Categories[k]
		}
		masks[k] = mask
	}
	return masks
}

// ArgMax returns the winning class of the rule's output distribution.
func (r *Rule) ArgMax() int {
	best := 0
	for c, p := range r.Output {
		if p > r.Output[best] {
			best = c
		}
	}
	return best
}

// Describe renders the rule as text. featureNames may be nil, in which case
// synthetic X<index> names are used. intervals may be nil or hold one entry
// per condition; a non-nil entry renders "<feature> in <interval>" instead of
// the raw category equality.
func (r *Rule) Describe(featureNames []string, intervals []*Interval, mode LabelMode) (string, error) {
	label, err := r.labelText(mode)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if r.IsDefault() {
		b.WriteString("DEFAULT ")
		b.WriteString(label)
	} else {
		b.WriteString("IF ")
		clauses := make([]string, len(r.FeatureIndices))
		for k, idx := range r.FeatureIndices {
			name := fmt.Sprintf("X%d", idx)
			if featureNames != nil {
				name = featureNames[idx]
			}
			if intervals != nil && intervals[k] != nil {
				clauses[k] = fmt.Sprintf("(%s in %s)", name, intervals[k])
			} else {
				clauses[k] = fmt.Sprintf("(%s = %d)", name, r.Categories[k])
			}
		}
		b.WriteString(strings.Join(clauses, " and "))
		b.WriteString(" THEN ")
		b.WriteString(label)
	}

	if len(r.Support) > 0 {
		predicted := r.ArgMax()
		parts := make([]string, len(r.Support))
		for c, n := range r.Support {
			sign := "-"
			if c == predicted {
				sign = "+"
			}
			parts[c] = fmt.Sprintf("%s%d", sign, n)
		}
		b.WriteString(" [")
		b.WriteString(strings.Join(parts, "/"))
		b.WriteString("]")
	}

	return b.String(), nil
}

func (r *Rule) labelText(mode LabelMode) (string, error) {
	switch mode {
	case LabelArgMax:
		c := r.ArgMax()
		return fmt.Sprintf("label %d prob: %.4f", c, r.Output[c]), nil
	case LabelFull:
		parts := make([]string, len(r.Output))
		for c, p := range r.Output {
			parts[c] = fmt.Sprintf("%.4f", p)
		}
		return "probs: [" + strings.Join(parts, ", ") + "]", nil
	default:
		return "", fmt.Errorf("unknown label mode %d", mode)
	}
}

// Interval is the half-open numeric range [Lo, Hi) a categorical bin stands
// for. Either bound may be infinite.
type Interval struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

func (iv *Interval) String() string {
	return fmt.Sprintf("[%s, %s)", bound(iv.Lo), bound(iv.Hi))
}

func bound(v float64) string {
	if math.IsInf(v, -1) {
		return "-inf"
	}
	if math.IsInf(v, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.4g", v)
}
