// Package mlmodel decodes trained model artifacts and runs inference over
// feature matrices.
//
// Artifacts arrive from the model manager as opaque bytes. The joblib, pkl
// and pickle file types carry a portable JSON estimator envelope; the zip
// file type bundles an envelope together with a compiled Go plugin that
// provides the estimator implementation.
package mlmodel

import (
	"fmt"

	"github.com/solarops/sunforecast/pkg/modelmanager"
)

// Estimator produces one prediction per feature row. Implementations must be
// safe for concurrent use: a decoded model is shared across forecast cycles.
type Estimator interface {
	// Predict returns one value per row. Every row must have the same
	// number of columns the estimator was trained with.
	Predict(rows [][]float64) ([]float64, error)
}

// Model is a decoded artifact bound to its registry metadata. The metadata's
// feature list defines the column order of matrices passed to Predict.
type Model struct {
	Meta modelmanager.ModelMetadata

	est Estimator
}

// Predict runs inference over the feature matrix.
func (m *Model) Predict(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("model %d: empty feature matrix", m.Meta.ID)
	}
	out, err := m.est.Predict(rows)
	if err != nil {
		return nil, fmt.Errorf("model %d: %w", m.Meta.ID, err)
	}
	return out, nil
}

// dimensionError reports a row whose width does not match the estimator.
func dimensionError(row, got, want int) error {
	return fmt.Errorf("row %d has %d features, estimator expects %d", row, got, want)
}
