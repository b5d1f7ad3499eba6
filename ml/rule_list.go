package ml

import (
	"errors"
	"fmt"
)

// RuleList is an ordered decision list. Order is load-bearing: earlier rules
// take precedence, and by convention the last rule is the default rule, so
// every instance receives exactly one prediction. A RuleList is read-only
// after construction; retraining builds and publishes a fresh list.
type RuleList struct {
	Rules     []*Rule `json:"rules"`
	NClasses  int     `json:"n_classes"`
	NFeatures int     `json:"n_features"`
}

// NewRuleList validates rule shapes against the class and feature counts.
func NewRuleList(rules []*Rule, nClasses, nFeatures int) (*RuleList, error) {
	if len(rules) == 0 {
		return nil, errors.New("rule list is empty")
	}
	if nClasses < 2 {
		return nil, fmt.Errorf("need at least 2 classes, got %d", nClasses)
	}
	for i, r := range rules {
		if len(r.Output) != nClasses {
			return nil, fmt.Errorf("rule %d: output has %d classes, expected %d", i, len(r.Output), nClasses)
		}
		if r.IsDefault() {
			continue
		}
		if len(r.FeatureIndices) != len(r.Categories) {
			return nil, fmt.Errorf("rule %d: condition mismatch", i)
		}
		for _, idx := range r.FeatureIndices {
			if idx < 0 || idx >= nFeatures {
				return nil, fmt.Errorf("rule %d: feature index %d outside [0, %d)", i, idx, nFeatures)
			}
		}
	}
	if !rules[len(rules)-1].IsDefault() {
		return nil, errors.New("rule list must end with a default rule")
	}
	return &RuleList{Rules: rules, NClasses: nClasses, NFeatures: nFeatures}, nil
}

// NRules returns the list length including the default rule.
func (l *RuleList) NRules() int { return len(l.Rules) }

func (l *RuleList) checkBatch(batch [][]int) error {
	for i, row := range batch {
		if len(row) != l.NFeatures {
			return fmt.Errorf("instance %d has %d features, expected %d", i, len(row), l.NFeatures)
		}
	}
	return nil
}

// DecisionSupport walks the list in order and returns an
// (n_rules x n_instances) matrix: cell [i][j] is true when rule i is the
// first rule whose conditions instance j satisfies. With a terminal default
// rule every column has exactly one true cell.
func (l *RuleList) DecisionSupport(batch [][]int) ([][]bool, error) {
	if err := l.checkBatch(batch); err != nil {
		return nil, err
	}

	unclaimed := allTrue(len(batch))
	support := make([][]bool, len(l.Rules))
	for i, r := range l.Rules {
		claimed := andMask(r.Satisfy(batch), unclaimed)
		support[i] = claimed
		// claimed is a subset of unclaimed, so XOR removes exactly it.
		unclaimed = xorMask(unclaimed, claimed)
	}
	return support, nil
}

// DecisionSupportEach is the per-condition variant of DecisionSupport: for
// each rule it returns one mask per condition, each already restricted to
// the instances that were still unclaimed when the rule was reached.
func (l *RuleList) DecisionSupportEach(batch [][]int) ([][][]bool, error) {
	if err := l.checkBatch(batch); err != nil {
		return nil, err
	}

	unclaimed := allTrue(len(batch))
	support := make([][][]bool, len(l.Rules))
	for i, r := range l.Rules {
		masks := r.SatisfyEach(batch)
		rows := make([][]bool, len(masks))
		for k, m := range masks {
			rows[k] = andMask(m, unclaimed)
		}
		support[i] = rows

		claimed := andMask(r.Satisfy(batch), unclaimed)
		unclaimed = xorMask(unclaimed, claimed)
	}
	return support, nil
}

// DecisionPath records, per rule, which instances reached that rule without
// being claimed earlier. Unlike DecisionSupport the stored row does not
// require the rule itself to match; it answers "why did this instance get
// this far", independent of where it was ultimately captured.
func (l *RuleList) DecisionPath(batch [][]int) ([][]bool, error) {
	if err := l.checkBatch(batch); err != nil {
		return nil, err
	}

	unclaimed := allTrue(len(batch))
	path := make([][]bool, len(l.Rules))
	for i, r := range l.Rules {
		row := make([]bool, len(unclaimed))
		copy(row, unclaimed)
		path[i] = row

		claimed := andMask(r.Satisfy(batch), unclaimed)
		unclaimed = xorMask(unclaimed, claimed)
	}
	return path, nil
}

// PredictProb assigns every instance the output distribution of the first
// rule it satisfies, returning an (n_instances x n_classes) matrix.
func (l *RuleList) PredictProb(batch [][]int) ([][]float64, error) {
	if err := l.checkBatch(batch); err != nil {
		return nil, err
	}

	probs := make([][]float64, len(batch))
	unclaimed := allTrue(len(batch))
	for _, r := range l.Rules {
		claimed := andMask(r.Satisfy(batch), unclaimed)
		for j, ok := range claimed {
			if ok {
				row := make([]float64, l.NClasses)
				copy(row, r.Output)
				probs[j] = row
			}
		}
		unclaimed = xorMask(unclaimed, claimed)
	}
	return probs, nil
}

// Predict returns the arg-max class per instance.
func (l *RuleList) Predict(batch [][]int) ([]int, error) {
	probs, err := l.PredictProb(batch)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for j, row := range probs {
		best := 0
		for c, p := range row {
			if p > row[best] {
				best = c
			}
		}
		labels[j] = best
	}
	return labels, nil
}

// ComputeSupport tallies, per rule, how many captured instances carry each
// true label. Summing the rows over all rules reproduces the label
// histogram of the batch.
func (l *RuleList) ComputeSupport(batch [][]int, labels []int) ([][]int, error) {
	if len(labels) != len(batch) {
		return nil, fmt.Errorf("%d labels for %d instances", len(labels), len(batch))
	}
	support, err := l.DecisionSupport(batch)
	if err != nil {
		return nil, err
	}

	counts := make([][]int, len(l.Rules))
	for i := range l.Rules {
		row := make([]int, l.NClasses)
		for j, captured := range support[i] {
			if !captured {
				continue
			}
			y := labels[j]
			if y < 0 || y >= l.NClasses {
				return nil, fmt.Errorf("label %d out of range for %d classes", y, l.NClasses)
			}
			row[y]++
		}
		counts[i] = row
	}
	return counts, nil
}

// AttachSupport runs ComputeSupport and stores each count vector on its
// rule, for describe-time reporting.
func (l *RuleList) AttachSupport(batch [][]int, labels []int) error {
	counts, err := l.ComputeSupport(batch, labels)
	if err != nil {
		return err
	}
	for i, r := range l.Rules {
		r.Support = counts[i]
	}
	return nil
}

func allTrue(n int) []bool {
	mask := make([]bool, n)
	for i := range mask {
		mask[i] = true
	}
	return mask
}

func andMask(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] && b[i]
	}
	return out
}

func xorMask(a, b []bool) []bool {
	out := make([]bool, len(a))
	for i := range a {
		out[i] = a[i] != b[i]
	}
	return out
}
