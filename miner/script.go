package miner

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/xh3b4sd/tracer"
)

// Script runs the mining engine as a child process: the categorical matrix
// and labels are written to a CSV file, a script rendered from Tem is
// executed against it, and the engine's answer is read back as JSON.
type Script struct {
	// Bin is the interpreter, "Rscript" when empty.
	Bin string
	// Dir is where data, script and result files are put; a temp dir when
	// empty. The files are removed after a successful run.
	Dir string
	// Tem is the script template, deftem when empty.
	Tem string
	// Deb pipes the child's output through for debugging.
	Deb bool
}

type scriptData struct {
	DataPath   string
	ResultPath string
	Opts       Options
	AlphaCSV   string
}

// Execute renders the script template without running anything, mainly for
// inspection and tests.
func (s *Script) Execute(dataPath, resultPath string, opts Options) ([]byte, error) {
	tem := s.Tem
	if tem == "" {
		tem = deftem
	}

	t, err := template.New("miner").Parse(tem)
	if err != nil {
		return nil, tracer.Mask(err)
	}

	alpha := make([]string, len(opts.Alpha))
	for i, a := range opts.Alpha {
		alpha[i] = strconv.FormatFloat(a, 'g', -1, 64)
	}

	var buf bytes.Buffer
	err = t.Execute(&buf, scriptData{
		DataPath:   dataPath,
		ResultPath: resultPath,
		Opts:       opts,
		AlphaCSV:   strings.Join(alpha, ","),
	})
	if err != nil {
		return nil, tracer.Mask(err)
	}
	return buf.Bytes(), nil
}

// Mine implements Miner.
func (s *Script) Mine(ctx context.Context, batch [][]int, labels []int, opts Options) (*Result, error) {
	if len(batch) == 0 {
		return nil, tracer.Mask(fmt.Errorf("empty training batch"))
	}
	if len(labels) != len(batch) {
		return nil, tracer.Mask(fmt.Errorf("%d labels for %d instances", len(labels), len(batch)))
	}

	dir := s.Dir
	if dir == "" {
		var err error
		dir, err = os.MkdirTemp("", "rulelens-miner-*")
		if err != nil {
			return nil, tracer.Mask(err)
		}
	}

	dataPath := filepath.Join(dir, "data.csv")
	scriptPath := filepath.Join(dir, "mine.R")
	resultPath := filepath.Join(dir, "result.json")

	if err := writeCSV(dataPath, batch, labels); err != nil {
		return nil, tracer.Mask(err)
	}

	byt, err := s.Execute(dataPath, resultPath, opts)
	if err != nil {
		return nil, tracer.Mask(err)
	}
	if err := os.WriteFile(scriptPath, byt, 0o644); err != nil {
		return nil, tracer.Mask(err)
	}

	bin := s.Bin
	if bin == "" {
		bin = "Rscript"
	}
	cmd := exec.CommandContext(ctx, bin, scriptPath)
	if s.Deb {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return nil, tracer.Mask(err)
	}

	payload, err := os.ReadFile(resultPath)
	if err != nil {
		return nil, tracer.Mask(err)
	}
	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, tracer.Mask(err)
	}

	for _, p := range []string{dataPath, scriptPath, resultPath} {
		os.Remove(p)
	}

	return &res, nil
}

// writeCSV emits the label as the first column followed by the categorical
// feature columns, header "label,f0,f1,...".
func writeCSV(path string, batch [][]int, labels []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	header := make([]string, 1+len(batch[0]))
	header[0] = "label"
	for i := range batch[0] {
		header[i+1] = fmt.Sprintf("f%d", i)
	}
	if err := w.Write(header); err != nil {
		return err
	}
	for i, row := range batch {
		record := make([]string, 1+len(row))
		record[0] = strconv.Itoa(labels[i])
		for j, v := range row {
			record[j+1] = strconv.Itoa(v)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
