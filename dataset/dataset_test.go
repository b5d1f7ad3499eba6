package dataset

import (
	"math"
	"strings"
	"testing"
)

func TestReadCSVWithHeader(t *testing.T) {
	input := "glucose,bmi,outcome\n148,33.6,1\n85,26.6,0\n"
	ds, err := ReadCSV(strings.NewReader(input), LoadOptions{HasHeader: true, LabelColumn: "outcome"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ds.X) != 2 || len(ds.X[0]) != 2 {
		t.Fatalf("unexpected shape: %v", ds.X)
	}
	if ds.Labels[0] != 1 || ds.Labels[1] != 0 {
		t.Fatalf("unexpected labels: %v", ds.Labels)
	}
	if len(ds.FeatureNames) != 2 || ds.FeatureNames[0] != "glucose" {
		t.Fatalf("unexpected feature names: %v", ds.FeatureNames)
	}
	if ds.NClasses() != 2 {
		t.Fatalf("expected 2 classes, got %d", ds.NClasses())
	}
}

func TestReadCSVLabelFirstColumn(t *testing.T) {
	input := "1,148,33.6\n0,85,26.6\n"
	ds, err := ReadCSV(strings.NewReader(input), LoadOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ds.Labels[0] != 1 || ds.X[0][0] != 148 {
		t.Fatalf("unexpected parse: labels=%v x=%v", ds.Labels, ds.X)
	}
}

func TestReadCSVMissingLabelColumn(t *testing.T) {
	input := "a,b\n1,2\n"
	if _, err := ReadCSV(strings.NewReader(input), LoadOptions{HasHeader: true, LabelColumn: "outcome"}); err == nil {
		t.Fatal("expected error for missing label column")
	}
}

func TestReadCSVBadValue(t *testing.T) {
	input := "1,x\n"
	if _, err := ReadCSV(strings.NewReader(input), LoadOptions{}); err == nil {
		t.Fatal("expected error for non-numeric value")
	}
}

func TestReadCSVUnsupportedEncoding(t *testing.T) {
	if _, err := ReadCSV(strings.NewReader("1,2\n"), LoadOptions{Encoding: "latin9"}); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestCleanerDropsBadRows(t *testing.T) {
	ds := &Dataset{
		X: [][]float64{
			{1, 2},
			{math.NaN(), 2},
			{1, 2},
			{3, 4},
			{5, 6},
		},
		Labels: []int{0, 0, 0, 7, 1},
	}

	cleaner := NewCleaner(2)
	cleaned, issues := cleaner.Clean(ds)
	if len(cleaned.X) != 2 {
		t.Fatalf("expected 2 surviving rows, got %d", len(cleaned.X))
	}
	// NaN row, duplicate row, out-of-domain label.
	if len(issues) != 3 {
		t.Fatalf("expected 3 issues, got %d: %v", len(issues), issues)
	}

	stats := cleaner.Stats()
	if stats.TotalProcessed != 5 || stats.Passed != 2 || stats.Rejected != 3 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Issues["duplicate"] != 1 || stats.Issues["finite_values"] != 1 || stats.Issues["label_domain"] != 1 {
		t.Fatalf("unexpected issue breakdown: %v", stats.Issues)
	}
}
