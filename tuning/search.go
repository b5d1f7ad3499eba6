// Package tuning grid-searches the mining hyperparameters. Each candidate
// option set is mined on a training split and scored on a held-out
// validation split, and the best-scoring candidate wins.
package tuning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"rulelens/miner"
	"rulelens/ml"
)

// SearchConfig spans the candidate grid. Empty dimensions fall back to the
// engine default for that option.
type SearchConfig struct {
	MinSupport []float64 `json:"min_support" yaml:"min_support"`
	Lambda     []float64 `json:"lambda" yaml:"lambda"`
	RuleMaxLen []int     `json:"rule_maxlen" yaml:"rule_maxlen"`
	// Metric picks the score: "accuracy" (higher wins) or "loss" (lower wins).
	Metric string `json:"metric" yaml:"metric"`
	// ValidationSplit is the fraction of rows held out for scoring.
	ValidationSplit float64 `json:"validation_split" yaml:"validation_split"`
}

// Candidate is one scored option set.
type Candidate struct {
	Options  miner.Options `json:"options"`
	Accuracy float64       `json:"accuracy"`
	Loss     float64       `json:"loss"`
	NRules   int           `json:"n_rules"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Search runs one optimization over a fixed dataset.
type Search struct {
	config SearchConfig
	engine miner.Miner
	log    *zap.Logger

	// OnCandidate, when set, is called after each candidate is scored.
	// Set it before Optimize.
	OnCandidate func(c Candidate, progress float64)

	mu       sync.RWMutex
	results  []Candidate
	progress float64
	running  bool
}

func NewSearch(config SearchConfig, engine miner.Miner, log *zap.Logger) *Search {
	if config.Metric == "" {
		config.Metric = "accuracy"
	}
	if config.ValidationSplit <= 0 || config.ValidationSplit >= 1 {
		config.ValidationSplit = 0.2
	}
	return &Search{config: config, engine: engine, log: log}
}

// Optimize mines every candidate and returns the best one. The batch is
// split in order: early rows train, late rows validate.
func (s *Search) Optimize(ctx context.Context, batch [][]int, labels []int, nClasses int) (*Candidate, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, fmt.Errorf("search already running")
	}
	s.running = true
	s.results = nil
	s.progress = 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if len(batch) < 2 {
		return nil, fmt.Errorf("need at least 2 rows, got %d", len(batch))
	}

	split := int(float64(len(batch)) * (1 - s.config.ValidationSplit))
	if split < 1 {
		split = 1
	}
	if split >= len(batch) {
		split = len(batch) - 1
	}
	trainX, trainY := batch[:split], labels[:split]
	valX, valY := batch[split:], labels[split:]

	grid := s.buildGrid()
	s.log.Info("hyperparameter search",
		zap.Int("candidates", len(grid)),
		zap.String("metric", s.config.Metric),
		zap.Int("train_rows", len(trainX)),
		zap.Int("validation_rows", len(valX)))

	var best *Candidate
	for i, opts := range grid {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("search cancelled: %w", ctx.Err())
		default:
		}

		candidate := s.evaluate(ctx, opts, trainX, trainY, valX, valY, nClasses)

		progress := float64(i+1) / float64(len(grid)) * 100
		s.mu.Lock()
		s.results = append(s.results, candidate)
		s.progress = progress
		s.mu.Unlock()

		if s.OnCandidate != nil {
			s.OnCandidate(candidate, progress)
		}

		if candidate.Err != "" {
			s.log.Warn("candidate failed",
				zap.Float64("min_support", opts.MinSupport),
				zap.Float64("lambda", opts.Lambda),
				zap.String("error", candidate.Err))
			continue
		}
		if best == nil || s.better(&candidate, best) {
			c := candidate
			best = &c
		}
	}

	if best == nil {
		return nil, fmt.Errorf("no candidate succeeded")
	}
	return best, nil
}

func (s *Search) evaluate(ctx context.Context, opts miner.Options, trainX [][]int, trainY []int, valX [][]int, valY []int, nClasses int) Candidate {
	start := time.Now()
	candidate := Candidate{Options: opts}

	res, err := s.engine.Mine(ctx, trainX, trainY, opts)
	if err != nil {
		candidate.Err = err.Error()
		candidate.Duration = time.Since(start)
		return candidate
	}

	list, err := miner.Build(res, nClasses, len(trainX[0]))
	if err != nil {
		candidate.Err = err.Error()
		candidate.Duration = time.Since(start)
		return candidate
	}

	pred, err := list.Predict(valX)
	if err != nil {
		candidate.Err = err.Error()
		candidate.Duration = time.Since(start)
		return candidate
	}
	probs, err := list.PredictProb(valX)
	if err != nil {
		candidate.Err = err.Error()
		candidate.Duration = time.Since(start)
		return candidate
	}

	candidate.Accuracy = ml.Accuracy(valY, pred)
	if loss, err := ml.LogLoss(valY, probs); err == nil {
		candidate.Loss = loss
	}
	candidate.NRules = list.NRules()
	candidate.Duration = time.Since(start)
	return candidate
}

func (s *Search) buildGrid() []miner.Options {
	base := miner.DefaultOptions()

	minSupport := s.config.MinSupport
	if len(minSupport) == 0 {
		minSupport = []float64{base.MinSupport}
	}
	lambda := s.config.Lambda
	if len(lambda) == 0 {
		lambda = []float64{base.Lambda}
	}
	maxLen := s.config.RuleMaxLen
	if len(maxLen) == 0 {
		maxLen = []int{base.RuleMaxLen}
	}

	var grid []miner.Options
	for _, ms := range minSupport {
		for _, l := range lambda {
			for _, n := range maxLen {
				opts := base
				opts.MinSupport = ms
				opts.Lambda = l
				opts.RuleMaxLen = n
				grid = append(grid, opts)
			}
		}
	}
	return grid
}

func (s *Search) better(a, b *Candidate) bool {
	if s.config.Metric == "loss" {
		return a.Loss < b.Loss
	}
	return a.Accuracy > b.Accuracy
}

// Results returns a copy of the scored candidates so far.
func (s *Search) Results() []Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Candidate, len(s.results))
	copy(out, s.results)
	return out
}

// Progress returns completion in percent.
func (s *Search) Progress() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// IsRunning reports whether Optimize is in flight.
func (s *Search) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}
