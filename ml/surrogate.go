package ml

import "errors"

// Surrogate ties a rule-list model to the black-box model it imitates. The
// reference model is an injected collaborator, never a process-wide handle,
// so tests can swap in doubles.
type Surrogate struct {
	Reference ReferenceModel
}

// NewSurrogate wraps a reference model.
func NewSurrogate(ref ReferenceModel) (*Surrogate, error) {
	if ref == nil {
		return nil, errors.New("reference model is required")
	}
	return &Surrogate{Reference: ref}, nil
}

// Labels queries the reference model for every instance, producing the
// training labels a surrogate rule list is fitted against.
func (s *Surrogate) Labels(x [][]float64) ([]int, error) {
	labels := make([]int, len(x))
	for i, row := range x {
		label, _, err := s.Reference.Predict(row)
		if err != nil {
			return nil, err
		}
		labels[i] = label
	}
	return labels, nil
}

// Fidelity is the fraction of instances on which the surrogate agrees with
// the reference model; it measures how faithful the interpretable model is,
// not how accurate either model is.
func (s *Surrogate) Fidelity(model Classifier, x [][]float64) (float64, error) {
	if len(x) == 0 {
		return 0, errors.New("empty batch")
	}
	ref, err := s.Labels(x)
	if err != nil {
		return 0, err
	}
	pred, err := model.Predict(x)
	if err != nil {
		return 0, err
	}
	return Accuracy(ref, pred), nil
}
