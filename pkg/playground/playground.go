// Package playground serves ad-hoc inference: a caller uploads a CSV of
// feature values and gets model output back without touching the stored
// prediction tables.
package playground

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/solarops/sunforecast/pkg/evaluation"
	"github.com/solarops/sunforecast/pkg/mlmodel"
	"github.com/solarops/sunforecast/pkg/store"
)

// MaxUploadBytes caps a playground CSV at 100 MiB.
const MaxUploadBytes = 100 << 20

// FeatureInfo describes the upload contract for one model.
type FeatureInfo struct {
	ModelID   int      `json:"model_id"`
	ModelName string   `json:"model_name"`
	Features  []string `json:"features"`
	PlantID   int      `json:"plant_id"`
	PlantName string   `json:"plant_name"`
}

// Prediction is one scored row of an upload.
type Prediction struct {
	Timestamp      time.Time `json:"timestamp"`
	PredictedPower float64   `json:"predicted_power"`
}

// Scores holds the error metrics computed against stored readings, present
// only when readings cover at least one uploaded timestamp.
type Scores struct {
	MAE           float64 `json:"mae"`
	RMSE          float64 `json:"rmse"`
	MBE           float64 `json:"mbe"`
	MatchedPoints int     `json:"matched_points"`
}

// Result is the playground inference response.
type Result struct {
	ModelID     int          `json:"model_id"`
	Predictions []Prediction `json:"predictions"`
	Metrics     *Scores      `json:"metrics,omitempty"`
}

// ValidationError rejects an upload with the collected problems. Handlers
// map it to a 400 response.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return e.Problems[0]
	}
	return fmt.Sprintf("%d validation errors, first: %s", len(e.Problems), e.Problems[0])
}

// ModelSource resolves decoded models from the state snapshot.
type ModelSource interface {
	Model(modelID int) (*mlmodel.Model, bool)
}

// ReadingSource fetches ground truth matching exact timestamps.
type ReadingSource interface {
	ReadingsAt(ctx context.Context, plantID int, timestamps []time.Time) ([]store.ReadingRow, error)
}

// Playground runs one-shot inference over uploaded feature matrices.
type Playground struct {
	models   ModelSource
	readings ReadingSource
	logger   *slog.Logger
}

// New creates a playground.
func New(models ModelSource, readings ReadingSource, logger *slog.Logger) *Playground {
	return &Playground{models: models, readings: readings, logger: logger}
}

// ModelFeatures returns the upload contract for a model, or false when the
// model is not in the current snapshot.
func (p *Playground) ModelFeatures(modelID int) (*FeatureInfo, bool) {
	model, ok := p.models.Model(modelID)
	if !ok {
		return nil, false
	}
	return &FeatureInfo{
		ModelID:   model.Meta.ID,
		ModelName: model.Meta.Name,
		Features:  model.Meta.Features,
		PlantID:   model.Meta.PlantID,
		PlantName: model.Meta.PlantName,
	}, true
}

// PredictFromCSV validates the upload against the model's exact feature
// order, runs inference, and scores the output against stored readings when
// any uploaded timestamps have ground truth.
//
// The CSV header must be "timestamp" followed by the model's features, in
// order; missing, extra or reordered columns are rejected. The body is
// capped at MaxUploadBytes.
func (p *Playground) PredictFromCSV(ctx context.Context, modelID int, r io.Reader) (*Result, error) {
	model, ok := p.models.Model(modelID)
	if !ok {
		return nil, fmt.Errorf("model %d not found in active state", modelID)
	}

	timestamps, matrix, err := parseUpload(io.LimitReader(r, MaxUploadBytes+1), model.Meta.Features)
	if err != nil {
		return nil, err
	}

	predictions, err := model.Predict(matrix)
	if err != nil {
		return nil, fmt.Errorf("playground inference: %w", err)
	}

	result := &Result{ModelID: modelID, Predictions: make([]Prediction, len(predictions))}
	for i, v := range predictions {
		result.Predictions[i] = Prediction{Timestamp: timestamps[i], PredictedPower: v}
	}

	p.score(ctx, model, result, timestamps, predictions)
	return result, nil
}

// score attaches error metrics when stored readings match uploaded
// timestamps. Failures here are logged and leave Metrics nil; the inference
// result is still valid.
func (p *Playground) score(ctx context.Context, model *mlmodel.Model, result *Result, timestamps []time.Time, predicted []float64) {
	readings, err := p.readings.ReadingsAt(ctx, model.Meta.PlantID, timestamps)
	if err != nil {
		p.logger.Warn("playground: reading lookup failed, skipping metrics",
			"model_id", model.Meta.ID, "error", err)
		return
	}
	if len(readings) == 0 {
		return
	}

	actualByTS := make(map[time.Time]float64, len(readings))
	for _, r := range readings {
		actualByTS[r.Timestamp.UTC()] = r.PowerW
	}

	var pv, av []float64
	for i, ts := range timestamps {
		if actual, ok := actualByTS[ts.UTC()]; ok {
			pv = append(pv, predicted[i])
			av = append(av, actual)
		}
	}
	if len(pv) == 0 {
		return
	}

	mae, err1 := evaluation.Calculate(evaluation.MAE, pv, av)
	rmse, err2 := evaluation.Calculate(evaluation.RMSE, pv, av)
	mbe, err3 := evaluation.Calculate(evaluation.MBE, pv, av)
	if err1 != nil || err2 != nil || err3 != nil {
		p.logger.Warn("playground: metric computation failed",
			"model_id", model.Meta.ID, "errors", []error{err1, err2, err3})
		return
	}
	result.Metrics = &Scores{MAE: mae, RMSE: rmse, MBE: mbe, MatchedPoints: len(pv)}
}

// parseUpload validates the header and rows and builds the feature matrix.
func parseUpload(r io.Reader, featureNames []string) ([]time.Time, [][]float64, error) {
	reader := csv.NewReader(r)

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, &ValidationError{Problems: []string{"upload is empty"}}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read csv header: %w", err)
	}
	if problems := validateHeader(header, featureNames); len(problems) > 0 {
		return nil, nil, &ValidationError{Problems: problems}
	}

	var (
		timestamps []time.Time
		matrix     [][]float64
		problems   []string
	)
	for rowNum := 2; ; rowNum++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if errors.Is(err, csv.ErrFieldCount) {
			problems = append(problems, fmt.Sprintf("row %d: wrong number of columns", rowNum))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read csv row %d: %w", rowNum, err)
		}

		ts, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			problems = append(problems, fmt.Sprintf("row %d: invalid timestamp %q", rowNum, record[0]))
			continue
		}
		row := make([]float64, len(featureNames))
		rowOK := true
		for i := 1; i < len(record); i++ {
			v, err := strconv.ParseFloat(record[i], 64)
			if err != nil {
				problems = append(problems, fmt.Sprintf("row %d: non-numeric value %q in column %q", rowNum, record[i], featureNames[i-1]))
				rowOK = false
				break
			}
			row[i-1] = v
		}
		if !rowOK {
			continue
		}
		timestamps = append(timestamps, ts)
		matrix = append(matrix, row)
	}
	if len(problems) > 0 {
		return nil, nil, &ValidationError{Problems: problems}
	}
	if len(matrix) == 0 {
		return nil, nil, &ValidationError{Problems: []string{"upload has no data rows"}}
	}
	return timestamps, matrix, nil
}

// validateHeader checks the exact expected header: "timestamp" then the
// model's features, in order.
func validateHeader(header, featureNames []string) []string {
	var problems []string

	if len(header) == 0 || header[0] != "timestamp" {
		problems = append(problems, `first column must be "timestamp"`)
		return problems
	}
	got := header[1:]

	for i, want := range featureNames {
		switch {
		case i >= len(got):
			problems = append(problems, fmt.Sprintf("missing column %q at position %d", want, i+2))
		case got[i] != want:
			problems = append(problems, fmt.Sprintf("column %d is %q, expected %q", i+2, got[i], want))
		}
	}
	for i := len(featureNames); i < len(got); i++ {
		problems = append(problems, fmt.Sprintf("unexpected extra column %q", got[i]))
	}
	return problems
}
