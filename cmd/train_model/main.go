package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"rulelens/dataset"
	"rulelens/miner"
	"rulelens/ml"
)

func main() {
	dataPath := flag.String("data", "", "training dataset (CSV, label in the first column unless -label names one)")
	modelName := flag.String("model", "", "model name")
	modelPath := flag.String("model_path", "./models/rules.model", "model output path")
	labelColumn := flag.String("label", "", "label column name (requires -header)")
	hasHeader := flag.Bool("header", true, "dataset has a header row")
	encoding := flag.String("encoding", "", "dataset encoding (gbk or empty for utf-8)")
	discretize := flag.Bool("discretize", true, "discretize continuous features")
	categorical := flag.String("categorical", "", "comma-separated indices of categorical features")
	testRatio := flag.Float64("test_ratio", 0.2, "test ratio")

	bin := flag.String("bin", "Rscript", "mining engine binary")
	dir := flag.String("dir", "", "working directory for engine runs (empty for temp)")
	debug := flag.Bool("debug", false, "keep engine working files")
	minSupport := flag.Float64("min_support", 0.02, "minimum rule support")
	lambda := flag.Float64("lambda", 50, "prior on list length")
	chains := flag.Int("chains", 30, "MCMC chains")
	iterations := flag.Int("iterations", 5000, "MCMC iterations per chain")
	flag.Parse()

	if *dataPath == "" {
		log.Fatal("data is required")
	}
	if *modelName == "" {
		log.Fatal("model is required")
	}

	ds, err := dataset.LoadCSV(*dataPath, dataset.LoadOptions{
		HasHeader:   *hasHeader,
		LabelColumn: *labelColumn,
		Encoding:    *encoding,
	})
	if err != nil {
		log.Fatalf("failed to load dataset: %v", err)
	}

	nClasses := ds.NClasses()
	cleaner := dataset.NewCleaner(nClasses)
	cleaned, issues := cleaner.Clean(ds)
	if len(issues) > 0 {
		log.Printf("dropped %d rows during cleaning", len(issues))
	}
	if len(cleaned.X) == 0 {
		log.Fatal("no rows survived cleaning")
	}

	trainX, trainY, testX, testY := splitDataset(cleaned.X, cleaned.Labels, *testRatio)

	var disc *ml.MDLP
	var batch [][]int
	if *discretize {
		disc = ml.NewMDLP(parseIndices(*categorical)...)
		batch, err = disc.FitTransform(trainX, trainY)
		if err != nil {
			log.Fatalf("failed to discretize: %v", err)
		}
	} else {
		batch = ml.ToCategories(trainX)
	}

	opts := miner.DefaultOptions()
	opts.MinSupport = *minSupport
	opts.Lambda = *lambda
	opts.Chains = *chains
	opts.Iterations = *iterations

	engine := &miner.Script{Bin: *bin, Dir: *dir, Deb: *debug}
	res, err := engine.Mine(context.Background(), batch, trainY, opts)
	if err != nil {
		log.Fatalf("failed to mine rules: %v", err)
	}

	list, err := miner.Build(res, nClasses, len(cleaned.X[0]))
	if err != nil {
		log.Fatalf("failed to build rule list: %v", err)
	}
	if err := list.AttachSupport(batch, trainY); err != nil {
		log.Fatalf("failed to attach support: %v", err)
	}

	model := &ml.RuleListModel{
		Name:         *modelName,
		List:         list,
		Disc:         disc,
		FeatureNames: cleaned.FeatureNames,
	}

	if len(testX) > 0 {
		accuracy, loss, _, err := model.Evaluate(testX, testY)
		if err != nil {
			log.Fatalf("failed to evaluate: %v", err)
		}
		log.Printf("test accuracy=%.4f loss=%.4f rules=%d", accuracy, loss, list.NRules())
	}

	report, err := model.Describe(ml.LabelArgMax)
	if err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	fmt.Println(report)

	if err := os.MkdirAll(filepath.Dir(*modelPath), 0o755); err != nil {
		log.Fatalf("failed to create model dir: %v", err)
	}
	if err := model.Save(*modelPath); err != nil {
		log.Fatalf("failed to save model: %v", err)
	}

	fmt.Printf("model saved to %s\n", *modelPath)
}

func splitDataset(features [][]float64, labels []int, testRatio float64) (trainX [][]float64, trainY []int, testX [][]float64, testY []int) {
	if testRatio <= 0 || testRatio >= 1 {
		testRatio = 0.2
	}

	split := int(float64(len(features)) * (1 - testRatio))
	for i := range features {
		if i < split {
			trainX = append(trainX, features[i])
			trainY = append(trainY, labels[i])
		} else {
			testX = append(testX, features[i])
			testY = append(testY, labels[i])
		}
	}
	return trainX, trainY, testX, testY
}

func parseIndices(csv string) []int {
	if csv == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(csv, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			log.Fatalf("bad categorical index %q", part)
		}
		out = append(out, idx)
	}
	return out
}
