// Package dataset loads and cleans labelled training data for the rule
// miner.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// Dataset is a raw labelled feature matrix.
type Dataset struct {
	FeatureNames []string
	X            [][]float64
	Labels       []int
}

// LoadOptions controls CSV parsing.
type LoadOptions struct {
	// HasHeader treats the first row as feature names.
	HasHeader bool
	// LabelColumn names the label column; the first column when empty.
	LabelColumn string
	// Encoding may be "gbk" for legacy exports; UTF-8 otherwise.
	Encoding string
}

// LoadCSV reads a labelled dataset from a CSV file.
func LoadCSV(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f, opts)
}

// ReadCSV parses a labelled dataset from a reader.
func ReadCSV(r io.Reader, opts LoadOptions) (*Dataset, error) {
	switch opts.Encoding {
	case "", "utf-8", "utf8":
	case "gbk":
		r = transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding %q", opts.Encoding)
	}

	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, errors.New("empty dataset")
	}

	labelIdx := 0
	var names []string
	if opts.HasHeader {
		header := records[0]
		records = records[1:]
		if opts.LabelColumn != "" {
			labelIdx = -1
			for i, name := range header {
				if name == opts.LabelColumn {
					labelIdx = i
					break
				}
			}
			if labelIdx < 0 {
				return nil, fmt.Errorf("label column %q not found", opts.LabelColumn)
			}
		}
		for i, name := range header {
			if i != labelIdx {
				names = append(names, name)
			}
		}
	} else if opts.LabelColumn != "" {
		return nil, errors.New("label column requires a header row")
	}
	if len(records) == 0 {
		return nil, errors.New("dataset has a header but no rows")
	}

	ds := &Dataset{FeatureNames: names}
	for n, record := range records {
		if labelIdx >= len(record) {
			return nil, fmt.Errorf("row %d has %d columns, label column is %d", n, len(record), labelIdx)
		}
		label, err := strconv.Atoi(record[labelIdx])
		if err != nil {
			return nil, fmt.Errorf("row %d: bad label %q: %w", n, record[labelIdx], err)
		}
		row := make([]float64, 0, len(record)-1)
		for i, cell := range record {
			if i == labelIdx {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d column %d: bad value %q: %w", n, i, cell, err)
			}
			row = append(row, v)
		}
		ds.X = append(ds.X, row)
		ds.Labels = append(ds.Labels, label)
	}

	for i, row := range ds.X {
		if len(row) != len(ds.X[0]) {
			return nil, fmt.Errorf("row %d has %d features, expected %d", i, len(row), len(ds.X[0]))
		}
	}
	return ds, nil
}

// NClasses returns 1 + the maximum label value.
func (d *Dataset) NClasses() int {
	max := 0
	for _, y := range d.Labels {
		if y > max {
			max = y
		}
	}
	return max + 1
}
