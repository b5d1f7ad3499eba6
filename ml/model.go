package ml

// Classifier scores raw feature matrices.
type Classifier interface {
	Predict(x [][]float64) ([]int, error)
	PredictProb(x [][]float64) ([][]float64, error)
}

// ReferenceModel is the black-box model a surrogate rule list imitates.
// Predict takes a single raw feature vector and returns the predicted label
// with a confidence score.
type ReferenceModel interface {
	Predict(features []float64) (int, float64, error)
}
