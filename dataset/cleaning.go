package dataset

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// CleaningRule inspects one labelled row and either passes it through
// (possibly corrected) or rejects it with an error.
type CleaningRule interface {
	Apply(features []float64, label int) error
	Name() string
}

// CleaningStats summarizes a cleaning pass.
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// Cleaner applies a rule set to a dataset and keeps running statistics.
type Cleaner struct {
	rules []CleaningRule

	stats     CleaningStats
	statsLock sync.RWMutex
}

// NewCleaner builds a cleaner with the default rule set for nClasses.
func NewCleaner(nClasses int) *Cleaner {
	c := &Cleaner{stats: CleaningStats{Issues: make(map[string]int64)}}
	c.AddRule(FiniteValuesRule{})
	c.AddRule(LabelDomainRule{NClasses: nClasses})
	return c
}

// AddRule appends a rule to the chain.
func (c *Cleaner) AddRule(rule CleaningRule) {
	c.rules = append(c.rules, rule)
}

// Clean filters the dataset in place of a copy: rows rejected by any rule
// are dropped, everything else is kept in order.
func (c *Cleaner) Clean(ds *Dataset) (*Dataset, []string) {
	c.statsLock.Lock()
	defer c.statsLock.Unlock()

	out := &Dataset{FeatureNames: ds.FeatureNames}
	var issues []string
	seen := make(map[string]bool)

	for i := range ds.X {
		c.stats.TotalProcessed++

		key := rowKey(ds.X[i], ds.Labels[i])
		if seen[key] {
			c.stats.Rejected++
			c.stats.Issues["duplicate"]++
			issues = append(issues, fmt.Sprintf("row %d: duplicate", i))
			continue
		}

		rejected := false
		for _, rule := range c.rules {
			if err := rule.Apply(ds.X[i], ds.Labels[i]); err != nil {
				c.stats.Rejected++
				c.stats.Issues[rule.Name()]++
				issues = append(issues, fmt.Sprintf("row %d: %v", i, err))
				rejected = true
				break
			}
		}
		if rejected {
			continue
		}

		seen[key] = true
		c.stats.Passed++
		out.X = append(out.X, ds.X[i])
		out.Labels = append(out.Labels, ds.Labels[i])
	}

	c.stats.LastClean = time.Now()
	return out, issues
}

// Stats returns a copy of the running statistics.
func (c *Cleaner) Stats() CleaningStats {
	c.statsLock.RLock()
	defer c.statsLock.RUnlock()

	stats := c.stats
	stats.Issues = make(map[string]int64, len(c.stats.Issues))
	for k, v := range c.stats.Issues {
		stats.Issues[k] = v
	}
	return stats
}

func rowKey(features []float64, label int) string {
	var b strings.Builder
	for _, v := range features {
		fmt.Fprintf(&b, "%v|", v)
	}
	fmt.Fprintf(&b, "y%d", label)
	return b.String()
}

// FiniteValuesRule rejects rows containing NaN or infinite values.
type FiniteValuesRule struct{}

func (FiniteValuesRule) Name() string { return "finite_values" }

func (FiniteValuesRule) Apply(features []float64, label int) error {
	for i, v := range features {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("feature %d is not finite", i)
		}
	}
	return nil
}

// LabelDomainRule rejects labels outside [0, NClasses).
type LabelDomainRule struct {
	NClasses int
}

func (LabelDomainRule) Name() string { return "label_domain" }

func (r LabelDomainRule) Apply(features []float64, label int) error {
	if label < 0 || label >= r.NClasses {
		return fmt.Errorf("label %d outside [0, %d)", label, r.NClasses)
	}
	return nil
}
