package store

import (
	"context"
	"fmt"
	"time"
)

const upsertHorizonMetric = `
INSERT INTO horizon_metrics (model_id, metric_type, horizon, value)
VALUES (:model_id, :metric_type, :horizon, :value)
ON CONFLICT (model_id, metric_type, horizon) DO UPDATE SET value = EXCLUDED.value`

const upsertCycleMetric = `
INSERT INTO cycle_metrics (time_of_forecast, model_id, metric_type, value)
VALUES (:time_of_forecast, :model_id, :metric_type, :value)
ON CONFLICT (time_of_forecast, model_id, metric_type) DO UPDATE SET value = EXCLUDED.value`

// UpsertHorizonMetrics writes recomputed horizon metrics, overwriting any
// existing value per (model_id, metric_type, horizon).
func (s *Store) UpsertHorizonMetrics(ctx context.Context, rows []HorizonMetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, upsertHorizonMetric, rows); err != nil {
		return fmt.Errorf("upsert %d horizon metrics: %w", len(rows), err)
	}
	return nil
}

// UpsertCycleMetrics writes recomputed cycle metrics, overwriting any
// existing value per (time_of_forecast, model_id, metric_type).
func (s *Store) UpsertCycleMetrics(ctx context.Context, rows []CycleMetricRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, upsertCycleMetric, rows); err != nil {
		return fmt.Errorf("upsert %d cycle metrics: %w", len(rows), err)
	}
	return nil
}

// HorizonMetrics returns the stored horizon metrics for a model.
func (s *Store) HorizonMetrics(ctx context.Context, modelID int) ([]HorizonMetricRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []HorizonMetricRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT model_id, metric_type, horizon, value
		FROM horizon_metrics
		WHERE model_id = $1
		ORDER BY metric_type, horizon`, modelID)
	if err != nil {
		return nil, fmt.Errorf("select horizon metrics for model %d: %w", modelID, err)
	}
	return rows, nil
}

// CycleMetrics returns the stored cycle metrics for a model within a cycle
// range.
func (s *Store) CycleMetrics(ctx context.Context, modelID int, from, to time.Time) ([]CycleMetricRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []CycleMetricRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT time_of_forecast, model_id, metric_type, value
		FROM cycle_metrics
		WHERE model_id = $1 AND time_of_forecast BETWEEN $2 AND $3
		ORDER BY time_of_forecast, metric_type`, modelID, from, to)
	if err != nil {
		return nil, fmt.Errorf("select cycle metrics for model %d: %w", modelID, err)
	}
	return rows, nil
}

// HorizonMetricTypes lists the values of the horizon_metric_type enum as the
// database knows them.
func (s *Store) HorizonMetricTypes(ctx context.Context) ([]string, error) {
	return s.enumValues(ctx, "horizon_metric_type")
}

// CycleMetricTypes lists the values of the cycle_metric_type enum.
func (s *Store) CycleMetricTypes(ctx context.Context) ([]string, error) {
	return s.enumValues(ctx, "cycle_metric_type")
}

func (s *Store) enumValues(ctx context.Context, typeName string) ([]string, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var values []string
	query := fmt.Sprintf(`SELECT unnest(enum_range(NULL::%s))::text`, typeName)
	if err := s.db.SelectContext(ctx, &values, query); err != nil {
		return nil, fmt.Errorf("select %s values: %w", typeName, err)
	}
	return values, nil
}
