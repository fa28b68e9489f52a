// Package readings ingests measured production CSVs and triggers metric
// recomputation for the plant's models.
package readings

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/solarops/sunforecast/pkg/modelmanager"
	"github.com/solarops/sunforecast/pkg/store"
)

// Result is the ingest response envelope.
type Result struct {
	Success          bool     `json:"success"`
	Message          string   `json:"message"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// ReadingStore persists validated reading batches.
type ReadingStore interface {
	SaveReadingsBatch(ctx context.Context, rows []store.ReadingRow) error
}

// MetricEngine recomputes stored metrics after new ground truth arrives.
type MetricEngine interface {
	CalculateHorizonMetrics(ctx context.Context, modelID, plantID int) error
	CalculateCycleMetrics(ctx context.Context, modelID, plantID int) error
}

// ModelLister resolves the models bound to a plant.
type ModelLister interface {
	PlantModels(ctx context.Context, plantID int) ([]modelmanager.ModelMetadata, error)
}

// Ingester validates and stores reading uploads. Validation is
// all-or-nothing: any bad row rejects the whole file.
type Ingester struct {
	store  ReadingStore
	engine MetricEngine
	models ModelLister
	loc    *time.Location
	logger *slog.Logger
}

// NewIngester creates a readings ingester. Zone-less timestamps in uploads
// are interpreted in loc; nil means UTC.
func NewIngester(s ReadingStore, engine MetricEngine, models ModelLister, loc *time.Location, logger *slog.Logger) *Ingester {
	if loc == nil {
		loc = time.UTC
	}
	return &Ingester{store: s, engine: engine, models: models, loc: loc, logger: logger}
}

// Ingest parses a headerless two-column CSV (timestamp, power in watts),
// validates every row, and on a fully clean file batch-inserts the readings
// and recomputes metrics for every model of the plant. Metric recomputation
// failures are logged but never fail the upload.
//
// Any row error rejects the entire upload: the result carries the collected
// row-numbered errors and nothing is persisted.
func (ing *Ingester) Ingest(ctx context.Context, plantID int, r io.Reader) (*Result, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if !utf8.Valid(raw) {
		return &Result{Success: false, Message: "upload rejected: file is not valid UTF-8"}, nil
	}

	rows, validationErrs, err := parse(plantID, bytes.NewReader(raw), ing.loc)
	if err != nil {
		return nil, err
	}
	if len(validationErrs) > 0 {
		return &Result{
			Success:          false,
			Message:          fmt.Sprintf("upload rejected: %d invalid rows", len(validationErrs)),
			ValidationErrors: validationErrs,
		}, nil
	}
	if len(rows) == 0 {
		return &Result{Success: false, Message: "upload is empty"}, nil
	}

	if err := ing.store.SaveReadingsBatch(ctx, rows); err != nil {
		return nil, fmt.Errorf("persist readings for plant %d: %w", plantID, err)
	}
	ing.logger.Info("readings ingested", "plant_id", plantID, "rows", len(rows))

	ing.recomputeMetrics(ctx, plantID)

	return &Result{
		Success: true,
		Message: fmt.Sprintf("inserted %d readings", len(rows)),
	}, nil
}

// parse reads and validates the whole file, collecting row-numbered errors.
func parse(plantID int, r io.Reader, loc *time.Location) ([]store.ReadingRow, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var (
		rows []store.ReadingRow
		errs []string
		seen = map[time.Time]int{}
	)
	for rowNum := 1; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv: %w", err)
		}

		if len(record) != 2 {
			errs = append(errs, fmt.Sprintf("row %d: expected 2 columns, got %d", rowNum, len(record)))
			continue
		}

		ts, err := parseTimestamp(record[0], loc)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: invalid timestamp %q", rowNum, record[0]))
			continue
		}
		if prev, dup := seen[ts]; dup {
			errs = append(errs, fmt.Sprintf("row %d: duplicate timestamp %q (first at row %d)", rowNum, record[0], prev))
			continue
		}
		seen[ts] = rowNum

		power, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			errs = append(errs, fmt.Sprintf("row %d: invalid power value %q", rowNum, record[1]))
			continue
		}

		rows = append(rows, store.ReadingRow{Timestamp: ts, PlantID: plantID, PowerW: power})
	}
	return rows, errs, nil
}

// parseTimestamp accepts RFC3339 values as well as zone-less ISO-8601 ones,
// which exported local-time CSVs carry; the latter are interpreted in loc.
func parseTimestamp(raw string, loc *time.Location) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts, nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", raw, loc)
}

// recomputeMetrics refreshes horizon and cycle metrics for every model of
// the plant. Advisory: failures are logged, the upload already succeeded.
func (ing *Ingester) recomputeMetrics(ctx context.Context, plantID int) {
	metas, err := ing.models.PlantModels(ctx, plantID)
	if err != nil {
		ing.logger.Error("metric recompute: model listing failed",
			"plant_id", plantID, "error", err)
		return
	}
	for _, meta := range metas {
		if err := ing.engine.CalculateHorizonMetrics(ctx, meta.ID, plantID); err != nil {
			ing.logger.Error("metric recompute: horizon metrics failed",
				"model_id", meta.ID, "plant_id", plantID, "error", err)
		}
		if err := ing.engine.CalculateCycleMetrics(ctx, meta.ID, plantID); err != nil {
			ing.logger.Error("metric recompute: cycle metrics failed",
				"model_id", meta.ID, "plant_id", plantID, "error", err)
		}
	}
}
