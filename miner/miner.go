// Package miner is the boundary to the external Bayesian rule-mining
// engine. The engine receives a prepared categorical dataset plus
// hyperparameters and returns an ordering of rule identifiers, a per-rule
// class-probability matrix aligned to that order, and a table mapping rule
// identifier to its textual encoding.
package miner

import (
	"context"
	"fmt"

	"github.com/xh3b4sd/tracer"

	"rulelens/ml"
)

// Options are the mining hyperparameters handed to the engine.
type Options struct {
	// RuleMinLen and RuleMaxLen bound the number of conditions per mined rule.
	RuleMinLen int `json:"rule_minlen" yaml:"rule_minlen"`
	RuleMaxLen int `json:"rule_maxlen" yaml:"rule_maxlen"`
	// MinSupport is the minimum fraction of instances a candidate rule must
	// capture to enter the mining pool.
	MinSupport float64 `json:"min_support" yaml:"min_support"`
	// Lambda is the prior on the expected list length, Eta on rule cardinality.
	Lambda float64 `json:"lambda" yaml:"lambda"`
	Eta    float64 `json:"eta" yaml:"eta"`
	// Chains and Iterations budget the MCMC search.
	Chains     int `json:"chains" yaml:"chains"`
	Iterations int `json:"iterations" yaml:"iterations"`
	// Alpha holds the per-class Dirichlet prior weights; length must equal
	// the class count when set.
	Alpha []float64 `json:"alpha,omitempty" yaml:"alpha,omitempty"`
}

// DefaultOptions mirrors the engine's own defaults.
func DefaultOptions() Options {
	return Options{
		RuleMinLen: 1,
		RuleMaxLen: 2,
		MinSupport: 0.02,
		Lambda:     50,
		Eta:        1,
		Chains:     30,
		Iterations: 5000,
	}
}

// Result is the engine's raw answer; Build turns it into a model.
type Result struct {
	// Order lists rule identifiers in decision-list order.
	Order []int `json:"order"`
	// Probs holds one class distribution per position in Order.
	Probs [][]float64 `json:"probs"`
	// Names maps rule identifier to textual rule encoding.
	Names []string `json:"names"`
}

// Miner discovers a rule list from categorical training data. The engine is
// an injected collaborator so callers can swap the child-process
// implementation for a static double.
type Miner interface {
	Mine(ctx context.Context, batch [][]int, labels []int, opts Options) (*Result, error)
}

// Build decodes a mining result into an executable rule list.
func Build(res *Result, nClasses, nFeatures int) (*ml.RuleList, error) {
	if len(res.Order) == 0 {
		return nil, tracer.Mask(fmt.Errorf("mining result holds no rules"))
	}
	if len(res.Probs) != len(res.Order) {
		return nil, tracer.Mask(fmt.Errorf("%d probability rows for %d rules", len(res.Probs), len(res.Order)))
	}

	rules := make([]*ml.Rule, 0, len(res.Order))
	for i, id := range res.Order {
		if id < 0 || id >= len(res.Names) {
			return nil, tracer.Mask(fmt.Errorf("rule identifier %d outside name table of %d", id, len(res.Names)))
		}
		rule, err := ml.ParseRuleName(res.Names[id], res.Probs[i])
		if err != nil {
			return nil, tracer.Mask(err)
		}
		rules = append(rules, rule)
	}

	list, err := ml.NewRuleList(rules, nClasses, nFeatures)
	if err != nil {
		return nil, tracer.Mask(err)
	}
	return list, nil
}
