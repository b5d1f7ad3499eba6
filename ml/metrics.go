package ml

import (
	"fmt"
	"math"
)

const logLossEps = 1e-15

// Accuracy is the fraction of matching labels.
func Accuracy(yTrue, yPred []int) float64 {
	if len(yTrue) == 0 {
		return 0
	}
	hits := 0
	for i, y := range yTrue {
		if i < len(yPred) && yPred[i] == y {
			hits++
		}
	}
	return float64(hits) / float64(len(yTrue))
}

// LogLoss is the mean negative log probability assigned to the true label,
// with probabilities clipped away from zero.
func LogLoss(yTrue []int, probs [][]float64) (float64, error) {
	if len(yTrue) != len(probs) {
		return 0, fmt.Errorf("%d labels for %d probability rows", len(yTrue), len(probs))
	}
	if len(yTrue) == 0 {
		return 0, nil
	}
	sum := 0.0
	for i, y := range yTrue {
		if y < 0 || y >= len(probs[i]) {
			return 0, fmt.Errorf("label %d out of range for %d classes", y, len(probs[i]))
		}
		p := probs[i][y]
		if p < logLossEps {
			p = logLossEps
		}
		sum -= math.Log(p)
	}
	return sum / float64(len(yTrue)), nil
}
