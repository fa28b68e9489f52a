package evaluation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/solarops/sunforecast/pkg/store"
)

// HorizonBuckets are the lead times metrics are aggregated over, in hours.
var HorizonBuckets = []float64{0.25, 1, 6, 24, 48, 72}

// PairStore is the slice of the persistence layer the engine reads from and
// writes to.
type PairStore interface {
	PairedByHorizon(ctx context.Context, modelID, plantID int, horizons []float64) ([]store.PairedRow, error)
	PairedByCycle(ctx context.Context, modelID, plantID int) ([]store.PairedRow, error)
	UpsertHorizonMetrics(ctx context.Context, rows []store.HorizonMetricRow) error
	UpsertCycleMetrics(ctx context.Context, rows []store.CycleMetricRow) error
}

// Engine recomputes and persists error metrics for one model at a time.
// Metric writes are synchronous; callers decide when recomputation runs
// (after readings ingest, or on explicit request).
type Engine struct {
	store  PairStore
	logger *slog.Logger
}

// NewEngine creates a metrics engine.
func NewEngine(s PairStore, logger *slog.Logger) *Engine {
	return &Engine{store: s, logger: logger}
}

// CalculateHorizonMetrics joins the model's predictions to its plant's
// readings, groups by horizon bucket, computes MAE, RMSE and MBE per bucket
// and upserts one row per (model, metric type, horizon). Buckets with no
// paired points produce no row; existing rows for them are left untouched.
//
// The computation is idempotent: unchanged underlying data yields identical
// metric rows.
func (e *Engine) CalculateHorizonMetrics(ctx context.Context, modelID, plantID int) error {
	paired, err := e.store.PairedByHorizon(ctx, modelID, plantID, HorizonBuckets)
	if err != nil {
		return fmt.Errorf("horizon metrics for model %d: %w", modelID, err)
	}
	if len(paired) == 0 {
		e.logger.Info("no paired points for horizon metrics", "model_id", modelID)
		return nil
	}

	byHorizon := map[float64][]store.PairedRow{}
	for _, row := range paired {
		byHorizon[row.Horizon] = append(byHorizon[row.Horizon], row)
	}

	var out []store.HorizonMetricRow
	for _, horizon := range HorizonBuckets {
		rows := byHorizon[horizon]
		if len(rows) == 0 {
			continue
		}
		predicted, actual := split(rows)
		for _, mt := range Types {
			value, err := Calculate(mt, predicted, actual)
			if err != nil {
				return fmt.Errorf("horizon %.2f for model %d: %w", horizon, modelID, err)
			}
			out = append(out, store.HorizonMetricRow{
				ModelID:    modelID,
				MetricType: string(mt),
				Horizon:    horizon,
				Value:      value,
			})
		}
	}

	if err := e.store.UpsertHorizonMetrics(ctx, out); err != nil {
		return fmt.Errorf("persist horizon metrics for model %d: %w", modelID, err)
	}
	e.logger.Info("horizon metrics recomputed",
		"model_id", modelID, "rows", len(out), "paired_points", len(paired))
	return nil
}

// CalculateCycleMetrics joins predictions to readings across every horizon,
// groups by cycle (created_at) and computes one MAE, RMSE and MBE value per
// cycle over all paired points in it.
func (e *Engine) CalculateCycleMetrics(ctx context.Context, modelID, plantID int) error {
	paired, err := e.store.PairedByCycle(ctx, modelID, plantID)
	if err != nil {
		return fmt.Errorf("cycle metrics for model %d: %w", modelID, err)
	}
	if len(paired) == 0 {
		e.logger.Info("no paired points for cycle metrics", "model_id", modelID)
		return nil
	}

	// Preserve cycle order as returned (ordered by created_at).
	var cycles []int
	byCycle := map[int64]int{}
	grouped := [][]store.PairedRow{}
	for _, row := range paired {
		key := row.CreatedAt.UnixNano()
		idx, ok := byCycle[key]
		if !ok {
			idx = len(grouped)
			byCycle[key] = idx
			grouped = append(grouped, nil)
			cycles = append(cycles, idx)
		}
		grouped[idx] = append(grouped[idx], row)
	}

	var out []store.CycleMetricRow
	for _, idx := range cycles {
		rows := grouped[idx]
		predicted, actual := split(rows)
		for _, mt := range Types {
			value, err := Calculate(mt, predicted, actual)
			if err != nil {
				return fmt.Errorf("cycle %v for model %d: %w", rows[0].CreatedAt, modelID, err)
			}
			out = append(out, store.CycleMetricRow{
				TimeOfForecast: rows[0].CreatedAt,
				ModelID:        modelID,
				MetricType:     string(mt),
				Value:          value,
			})
		}
	}

	if err := e.store.UpsertCycleMetrics(ctx, out); err != nil {
		return fmt.Errorf("persist cycle metrics for model %d: %w", modelID, err)
	}
	e.logger.Info("cycle metrics recomputed",
		"model_id", modelID, "rows", len(out), "paired_points", len(paired))
	return nil
}

func split(rows []store.PairedRow) (predicted, actual []float64) {
	predicted = make([]float64, len(rows))
	actual = make([]float64, len(rows))
	for i, r := range rows {
		predicted[i] = r.Predicted
		actual[i] = r.Actual
	}
	return predicted, actual
}
