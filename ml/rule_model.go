package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// RuleListModel is a trained decision-list classifier: the rule list, the
// discretizer it was trained through (nil when the training data was already
// categorical), and reporting metadata. The model applies or withholds the
// categorical transform consistently across predict, explain and describe.
type RuleListModel struct {
	Name         string    `json:"name"`
	List         *RuleList `json:"list"`
	Disc         *MDLP     `json:"discretizer,omitempty"`
	FeatureNames []string  `json:"feature_names,omitempty"`
	TrainedAt    time.Time `json:"trained_at"`
}

var _ Classifier = (*RuleListModel)(nil)

// transform runs the discretizer when present, otherwise truncates raw
// values to the integer codes they already are.
func (m *RuleListModel) transform(x [][]float64) ([][]int, error) {
	if m.Disc != nil {
		return m.Disc.Transform(x)
	}
	return ToCategories(x), nil
}

// ToCategories truncates raw values to integer category codes, for data
// that is categorical already and needs no discretizer.
func ToCategories(x [][]float64) [][]int {
	out := make([][]int, len(x))
	for i, row := range x {
		cats := make([]int, len(row))
		for f, v := range row {
			cats[f] = int(v)
		}
		out[i] = cats
	}
	return out
}

// PredictProb returns the per-class distribution for each raw instance.
func (m *RuleListModel) PredictProb(x [][]float64) ([][]float64, error) {
	batch, err := m.transform(x)
	if err != nil {
		return nil, err
	}
	return m.List.PredictProb(batch)
}

// Predict returns the arg-max label for each raw instance.
func (m *RuleListModel) Predict(x [][]float64) ([]int, error) {
	batch, err := m.transform(x)
	if err != nil {
		return nil, err
	}
	return m.List.Predict(batch)
}

// Explain returns which rule captured each instance and which rules each
// instance reached, for per-instance diagnostics.
func (m *RuleListModel) Explain(x [][]float64) (support, path [][]bool, err error) {
	batch, err := m.transform(x)
	if err != nil {
		return nil, nil, err
	}
	support, err = m.List.DecisionSupport(batch)
	if err != nil {
		return nil, nil, err
	}
	path, err = m.List.DecisionPath(batch)
	if err != nil {
		return nil, nil, err
	}
	return support, path, nil
}

// Evaluate scores the model on labelled raw data and returns the per-rule
// support counts alongside accuracy and log-loss.
func (m *RuleListModel) Evaluate(x [][]float64, y []int) (accuracy, loss float64, support [][]int, err error) {
	batch, err := m.transform(x)
	if err != nil {
		return 0, 0, nil, err
	}
	pred, err := m.List.Predict(batch)
	if err != nil {
		return 0, 0, nil, err
	}
	probs, err := m.List.PredictProb(batch)
	if err != nil {
		return 0, 0, nil, err
	}
	support, err = m.List.ComputeSupport(batch, y)
	if err != nil {
		return 0, 0, nil, err
	}
	accuracy = Accuracy(y, pred)
	loss, err = LogLoss(y, probs)
	if err != nil {
		return 0, 0, nil, err
	}
	return accuracy, loss, support, nil
}

// Describe renders the model's text report through its own discretizer.
func (m *RuleListModel) Describe(mode LabelMode) (string, error) {
	var disc Discretizer
	if m.Disc != nil {
		disc = m.Disc
	}
	return m.List.Describe(m.FeatureNames, disc, mode)
}

// Save writes the model as JSON.
func (m *RuleListModel) Save(path string) error {
	if m.List == nil {
		return errors.New("model not trained")
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadModel reads a model saved by Save.
func LoadModel(path string) (*RuleListModel, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m RuleListModel
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, err
	}
	if m.List == nil || len(m.List.Rules) == 0 {
		return nil, fmt.Errorf("model file %s holds no rules", path)
	}
	return &m, nil
}
