package store

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// floatArray adapts a slice for use with ANY($n).
func floatArray(v []float64) pq.Float64Array {
	return pq.Float64Array(v)
}

const insertPrediction = `
INSERT INTO power_predictions (prediction_time, model_id, created_at, predicted_power, horizon)
VALUES (:prediction_time, :model_id, :created_at, :predicted_power, :horizon)
ON CONFLICT (prediction_time, model_id, created_at) DO NOTHING`

// SavePredictionsBatch inserts prediction rows, ignoring rows whose key
// already exists. Predictions are write-once per (prediction_time, model_id,
// created_at).
func (s *Store) SavePredictionsBatch(ctx context.Context, rows []PredictionRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, insertPrediction, rows); err != nil {
		return fmt.Errorf("insert %d prediction rows: %w", len(rows), err)
	}
	return nil
}

// LatestPredictions returns, for each prediction_time in the range, the
// prediction from the newest cycle. Successive cycles overlap: a 72-hour
// window refreshed every 6 hours predicts most instants twelve times.
func (s *Store) LatestPredictions(ctx context.Context, modelID int, from, to time.Time) ([]PredictionRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []PredictionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (prediction_time)
		       prediction_time, model_id, created_at, predicted_power, horizon
		FROM power_predictions
		WHERE model_id = $1 AND prediction_time BETWEEN $2 AND $3
		ORDER BY prediction_time, created_at DESC`, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select latest predictions for model %d: %w", modelID, err)
	}
	return rows, nil
}

// PredictionsByCycle returns every prediction one cycle produced for a
// model, ordered by target time.
func (s *Store) PredictionsByCycle(ctx context.Context, modelID int, cycle time.Time) ([]PredictionRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []PredictionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT prediction_time, model_id, created_at, predicted_power, horizon
		FROM power_predictions
		WHERE model_id = $1 AND created_at = $2
		ORDER BY prediction_time`, modelID, cycle)
	if err != nil {
		return nil, fmt.Errorf("select cycle predictions for model %d: %w", modelID, err)
	}
	return rows, nil
}

// PredictionCycles returns the distinct cycle identifiers a model has
// predictions for, newest first.
func (s *Store) PredictionCycles(ctx context.Context, modelID int) ([]time.Time, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var cycles []time.Time
	err := s.db.SelectContext(ctx, &cycles, `
		SELECT DISTINCT created_at
		FROM power_predictions
		WHERE model_id = $1
		ORDER BY created_at DESC`, modelID)
	if err != nil {
		return nil, fmt.Errorf("select prediction cycles for model %d: %w", modelID, err)
	}
	return cycles, nil
}

// PairedByHorizon joins a model's predictions to the plant's readings on
// equal timestamps, restricted to the given horizon buckets.
func (s *Store) PairedByHorizon(ctx context.Context, modelID, plantID int, horizons []float64) ([]PairedRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []PairedRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.prediction_time, p.created_at, p.horizon, p.predicted_power, r.power_w
		FROM power_predictions p
		JOIN power_readings r
		  ON r."timestamp" = p.prediction_time AND r.plant_id = $2
		WHERE p.model_id = $1 AND p.horizon = ANY($3)
		ORDER BY p.horizon, p.prediction_time`, modelID, plantID, floatArray(horizons))
	if err != nil {
		return nil, fmt.Errorf("join predictions and readings for model %d: %w", modelID, err)
	}
	return rows, nil
}

// PairedByCycle joins all of a model's predictions to the plant's readings
// on equal timestamps, across every horizon, ordered by cycle.
func (s *Store) PairedByCycle(ctx context.Context, modelID, plantID int) ([]PairedRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []PairedRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT p.prediction_time, p.created_at, p.horizon, p.predicted_power, r.power_w
		FROM power_predictions p
		JOIN power_readings r
		  ON r."timestamp" = p.prediction_time AND r.plant_id = $2
		WHERE p.model_id = $1
		ORDER BY p.created_at, p.prediction_time`, modelID, plantID)
	if err != nil {
		return nil, fmt.Errorf("join cycle predictions and readings for model %d: %w", modelID, err)
	}
	return rows, nil
}
