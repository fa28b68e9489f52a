package mlmodel

import "fmt"

// LinearEstimator is an ordinary least-squares style linear predictor:
// yhat = intercept + sum(weights[j] * row[j]).
type LinearEstimator struct {
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Predict applies the linear form to every row.
func (l *LinearEstimator) Predict(rows [][]float64) ([]float64, error) {
	if len(l.Weights) == 0 {
		return nil, fmt.Errorf("linear estimator has no weights")
	}
	out := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(l.Weights) {
			return nil, dimensionError(i, len(row), len(l.Weights))
		}
		y := l.Intercept
		for j, w := range l.Weights {
			y += w * row[j]
		}
		out[i] = y
	}
	return out, nil
}
