package ml

import (
	"strings"
	"testing"
)

func TestParseRuleName(t *testing.T) {
	rule, err := ParseRuleName("{0=1,3=2}", []float64{0.4, 0.6})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rule.FeatureIndices) != 2 || rule.FeatureIndices[0] != 0 || rule.FeatureIndices[1] != 3 {
		t.Fatalf("unexpected feature indices: %v", rule.FeatureIndices)
	}
	if rule.Categories[0] != 1 || rule.Categories[1] != 2 {
		t.Fatalf("unexpected categories: %v", rule.Categories)
	}
	if rule.IsDefault() {
		t.Fatal("parsed rule should not be the default rule")
	}
}

func TestParseRuleNameDefault(t *testing.T) {
	rule, err := ParseRuleName(DefaultRuleName, []float64{0.7, 0.3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rule.IsDefault() {
		t.Fatal("expected default rule")
	}
}

func TestParseRuleNameMissingDelimiter(t *testing.T) {
	_, err := ParseRuleName("{0=1,32}", []float64{0.5, 0.5})
	if err == nil {
		t.Fatal("expected parse error")
	}
	if !strings.Contains(err.Error(), "32") {
		t.Fatalf("error should name the offending clause: %v", err)
	}
}

func TestRuleNameRoundTrip(t *testing.T) {
	names := []string{"{0=1,3=2,7=0}", "{5=4}", DefaultRuleName}
	for _, name := range names {
		rule, err := ParseRuleName(name, []float64{0.5, 0.5})
		if err != nil {
			t.Fatalf("parse %q: %v", name, err)
		}
		if got := FormatRuleName(rule); got != name {
			t.Fatalf("round trip of %q produced %q", name, got)
		}
	}
}
