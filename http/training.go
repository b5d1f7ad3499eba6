package http

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"rulelens/dataset"
	"rulelens/miner"
	"rulelens/ml"
	"rulelens/monitoring"
)

// TrainingConfig describes one training run.
type TrainingConfig struct {
	Model       string        `json:"model"`
	DatasetPath string        `json:"dataset_path"`
	HasHeader   bool          `json:"has_header"`
	LabelColumn string        `json:"label_column"`
	Encoding    string        `json:"encoding"`
	Discretize  bool          `json:"discretize"`
	Categorical []int         `json:"categorical_features"`
	Options     miner.Options `json:"options"`
}

// TrainReport summarizes a finished run.
type TrainReport struct {
	Accuracy   float64 `json:"accuracy"`
	Loss       float64 `json:"loss"`
	DataPoints int     `json:"data_points"`
	NRules     int     `json:"n_rules"`
	Dropped    int     `json:"dropped_rows"`
}

// prepareDataset loads, cleans and encodes the training data: raw CSV in,
// categorical matrix out, plus the fitted discretizer when one was asked
// for.
func prepareDataset(config TrainingConfig) (cleaned *dataset.Dataset, batch [][]int, disc *ml.MDLP, nClasses, dropped int, err error) {
	if config.DatasetPath == "" {
		return nil, nil, nil, 0, 0, errors.New("dataset path is required")
	}

	ds, err := dataset.LoadCSV(config.DatasetPath, dataset.LoadOptions{
		HasHeader:   config.HasHeader,
		LabelColumn: config.LabelColumn,
		Encoding:    config.Encoding,
	})
	if err != nil {
		return nil, nil, nil, 0, 0, fmt.Errorf("load dataset: %w", err)
	}

	nClasses = ds.NClasses()
	cleaner := dataset.NewCleaner(nClasses)
	cleaned, issues := cleaner.Clean(ds)
	if len(cleaned.X) == 0 {
		return nil, nil, nil, 0, 0, errors.New("no rows survived cleaning")
	}
	dropped = len(issues)

	if config.Discretize {
		disc = ml.NewMDLP(config.Categorical...)
		batch, err = disc.FitTransform(cleaned.X, cleaned.Labels)
		if err != nil {
			return nil, nil, nil, 0, 0, fmt.Errorf("discretize: %w", err)
		}
	} else {
		batch = ml.ToCategories(cleaned.X)
	}
	return cleaned, batch, disc, nClasses, dropped, nil
}

// trainModel runs the whole pipeline: load and clean the dataset,
// discretize, hand the categorical matrix to the mining engine, decode the
// mined rules into a list, attach training support, and evaluate. The
// returned model is complete and ready to publish.
func trainModel(ctx context.Context, config TrainingConfig, m miner.Miner, hub *monitoring.Hub, log *zap.Logger) (*ml.RuleListModel, TrainReport, error) {
	var report TrainReport

	if config.Model == "" {
		return nil, report, errors.New("model name is required")
	}
	if m == nil {
		return nil, report, errors.New("miner is required")
	}

	cleaned, batch, disc, nClasses, dropped, err := prepareDataset(config)
	if err != nil {
		return nil, report, err
	}
	report.Dropped = dropped
	report.DataPoints = len(cleaned.X)

	if hub != nil {
		hub.Publish(monitoring.Event{
			Type:  monitoring.TrainingStarted,
			Model: config.Model,
			Data: map[string]interface{}{
				"data_points": len(cleaned.X),
				"n_classes":   nClasses,
			},
		})
	}

	res, err := m.Mine(ctx, batch, cleaned.Labels, config.Options)
	if err != nil {
		if hub != nil {
			hub.Publish(monitoring.Event{
				Type:  monitoring.TrainingFailed,
				Model: config.Model,
				Data:  map[string]interface{}{"error": err.Error()},
			})
		}
		return nil, report, fmt.Errorf("mine rules: %w", err)
	}

	list, err := miner.Build(res, nClasses, len(cleaned.X[0]))
	if err != nil {
		return nil, report, fmt.Errorf("build rule list: %w", err)
	}
	if err := list.AttachSupport(batch, cleaned.Labels); err != nil {
		return nil, report, fmt.Errorf("attach support: %w", err)
	}
	report.NRules = list.NRules()

	model := &ml.RuleListModel{
		Name:         config.Model,
		List:         list,
		Disc:         disc,
		FeatureNames: cleaned.FeatureNames,
	}

	accuracy, loss, _, err := model.Evaluate(cleaned.X, cleaned.Labels)
	if err != nil {
		return nil, report, fmt.Errorf("evaluate: %w", err)
	}
	report.Accuracy = accuracy
	report.Loss = loss

	log.Info("training finished",
		zap.String("model", config.Model),
		zap.Float64("accuracy", accuracy),
		zap.Float64("loss", loss),
		zap.Int("n_rules", list.NRules()),
		zap.Int("data_points", report.DataPoints))

	if hub != nil {
		hub.Publish(monitoring.Event{
			Type:  monitoring.TrainingCompleted,
			Model: config.Model,
			Data: map[string]interface{}{
				"accuracy": accuracy,
				"loss":     loss,
				"n_rules":  list.NRules(),
			},
		})
	}

	return model, report, nil
}
