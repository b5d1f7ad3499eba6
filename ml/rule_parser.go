package ml

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultRuleName is the literal marker the mining engine uses for the
// catch-all rule in its rule-name table.
const DefaultRuleName = "default"

// ParseRuleName decodes the mining engine's compact rule encoding, either
// the default marker or "{feature=category,feature=category,...}". Clause
// order is preserved exactly as given; it does not affect evaluation but
// keeps rendering faithful to the engine's output.
func ParseRuleName(name string, output []float64) (*Rule, error) {
	if name == DefaultRuleName {
		return NewDefaultRule(output), nil
	}

	body := strings.TrimSuffix(strings.TrimPrefix(name, "{"), "}")
	if body == "" {
		return nil, fmt.Errorf("empty rule name %q", name)
	}

	clauses := strings.Split(body, ",")
	featureIndices := make([]int, 0, len(clauses))
	categories := make([]int, 0, len(clauses))
	for _, clause := range clauses {
		eq := strings.Index(clause, "=")
		if eq < 0 {
			return nil, fmt.Errorf("no '=' in rule clause %q", clause)
		}
		idx, err := strconv.Atoi(clause[:eq])
		if err != nil {
			return nil, fmt.Errorf("bad feature index in clause %q: %w", clause, err)
		}
		cat, err := strconv.Atoi(clause[eq+1:])
		if err != nil {
			return nil, fmt.Errorf("bad category in clause %q: %w", clause, err)
		}
		featureIndices = append(featureIndices, idx)
		categories = append(categories, cat)
	}

	return NewRule(featureIndices, categories, output)
}

// FormatRuleName is the inverse of ParseRuleName.
func FormatRuleName(r *Rule) string {
	if r.IsDefault() {
		return DefaultRuleName
	}
	clauses := make([]string, len(r.FeatureIndices))
	for k, idx := range r.FeatureIndices {
		clauses[k] = fmt.Sprintf("%d=%d", idx, r.Categories[k])
	}
	return "{" + strings.Join(clauses, ",") + "}"
}
