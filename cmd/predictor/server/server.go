// Package server implements the predictor's HTTP handlers: forecast and
// reading retrieval, manual cycle triggering, metric recomputation, readings
// ingest and the model playground.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/solarops/sunforecast/pkg/httpx"
	"github.com/solarops/sunforecast/pkg/playground"
	"github.com/solarops/sunforecast/pkg/readings"
	"github.com/solarops/sunforecast/pkg/schedule"
	"github.com/solarops/sunforecast/pkg/store"
)

// Store is the slice of the persistence layer the handlers read from.
type Store interface {
	LatestPredictions(ctx context.Context, modelID int, from, to time.Time) ([]store.PredictionRow, error)
	PredictionsByCycle(ctx context.Context, modelID int, cycle time.Time) ([]store.PredictionRow, error)
	PredictionCycles(ctx context.Context, modelID int) ([]time.Time, error)
	ReadingsInRange(ctx context.Context, plantID int, from, to time.Time) ([]store.ReadingRow, error)
	HorizonMetrics(ctx context.Context, modelID int) ([]store.HorizonMetricRow, error)
	CycleMetrics(ctx context.Context, modelID int, from, to time.Time) ([]store.CycleMetricRow, error)
	HorizonMetricTypes(ctx context.Context) ([]string, error)
	CycleMetricTypes(ctx context.Context) ([]string, error)
}

// Trigger starts pipeline runs on demand and reports scheduler state.
type Trigger interface {
	RunNow(ctx context.Context, cycle time.Time) error
	Status() schedule.Status
}

// StateView is the read side of the active plant/model snapshot, plus the
// explicit refresh used by the admin endpoint.
type StateView interface {
	Refresh(ctx context.Context) error
	Counts() (plants, models int)
	ModelPlant(modelID int) (plantID int, ok bool)
}

// MetricCalculator recomputes stored error metrics for one model.
type MetricCalculator interface {
	CalculateHorizonMetrics(ctx context.Context, modelID, plantID int) error
	CalculateCycleMetrics(ctx context.Context, modelID, plantID int) error
}

// Ingester accepts reading uploads.
type Ingester interface {
	Ingest(ctx context.Context, plantID int, r io.Reader) (*readings.Result, error)
}

// PlaygroundAPI runs ad-hoc inference over uploaded feature matrices.
type PlaygroundAPI interface {
	ModelFeatures(modelID int) (*playground.FeatureInfo, bool)
	PredictFromCSV(ctx context.Context, modelID int, r io.Reader) (*playground.Result, error)
}

// Handlers bundles the handler dependencies.
type Handlers struct {
	store      Store
	trigger    Trigger
	state      StateView
	engine     MetricCalculator
	ingester   Ingester
	playground PlaygroundAPI
	logger     *slog.Logger
}

// New creates the handler set.
func New(s Store, trigger Trigger, state StateView, engine MetricCalculator, ingester Ingester, pg PlaygroundAPI, logger *slog.Logger) *Handlers {
	return &Handlers{
		store:      s,
		trigger:    trigger,
		state:      state,
		engine:     engine,
		ingester:   ingester,
		playground: pg,
		logger:     logger,
	}
}

// Health handles GET /.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "solar power prediction service is running",
	})
}

// Status handles GET /internal/status: snapshot sizes and scheduler state.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	plants, models := h.state.Counts()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"service":              "predictor",
		"power_plants":         plants,
		"models":               models,
		"prediction_scheduler": h.trigger.Status(),
	})
}

// Generate handles POST /generate?start_date=<RFC3339>. It runs one full
// prediction cycle synchronously; an omitted start_date means "now". An
// overlapping run answers 409.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	cycle := time.Now()
	if raw := r.URL.Query().Get("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest,
				fmt.Sprintf("invalid start_date %q, expected RFC3339", raw))
			return
		}
		cycle = parsed
	}

	if err := h.trigger.RunNow(r.Context(), cycle); err != nil {
		if errors.Is(err, schedule.ErrRunInProgress) {
			httpx.WriteError(w, http.StatusConflict, err)
			return
		}
		h.logger.Error("manual generation failed", "cycle", cycle, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "prediction generation failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "prediction generation completed",
	})
}

// LatestForecast handles GET /forecast/{model_id}?start_date=&end_date=.
// For each instant in the range it returns the prediction from the newest
// cycle covering it.
func (h *Handlers) LatestForecast(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	rows, err := h.store.LatestPredictions(r.Context(), modelID, from, to)
	if err != nil {
		h.logger.Error("latest forecast query failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

// ForecastByCycle handles GET /forecast/time_of_forecast/{model_id}?tof=.
// It returns every prediction one cycle produced.
func (h *Handlers) ForecastByCycle(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	cycle, err := time.Parse(time.RFC3339, r.URL.Query().Get("tof"))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid or missing tof, expected RFC3339")
		return
	}

	rows, err := h.store.PredictionsByCycle(r.Context(), modelID, cycle)
	if err != nil {
		h.logger.Error("cycle forecast query failed", "model_id", modelID, "cycle", cycle, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

// ForecastCycles handles GET /forecast/{model_id}/timestamps: the distinct
// cycle identifiers a model has predictions for, newest first.
func (h *Handlers) ForecastCycles(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}

	cycles, err := h.store.PredictionCycles(r.Context(), modelID)
	if err != nil {
		h.logger.Error("forecast cycles query failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, cycles)
}

// Readings handles GET /reading/{id}?start_date=&end_date=.
func (h *Handlers) Readings(w http.ResponseWriter, r *http.Request) {
	plantID, ok := h.pathInt(w, r, "id")
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ReadingsInRange(r.Context(), plantID, from, to)
	if err != nil {
		h.logger.Error("readings query failed", "plant_id", plantID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

// UploadReadings handles POST /reading/{plant_id} with a multipart CSV under
// the "file" field. The whole file is validated before anything is stored; a
// single bad row rejects the upload with the collected row errors.
func (h *Handlers) UploadReadings(w http.ResponseWriter, r *http.Request) {
	plantID, ok := h.pathInt(w, r, "plant_id")
	if !ok {
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, `multipart upload with a "file" field required`)
		return
	}
	defer file.Close()

	result, err := h.ingester.Ingest(r.Context(), plantID, file)
	if err != nil {
		h.logger.Error("readings upload failed", "plant_id", plantID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	httpx.WriteJSON(w, status, result)
}

// HorizonMetrics handles GET /metric/horizon/{model_id}.
func (h *Handlers) HorizonMetrics(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}

	rows, err := h.store.HorizonMetrics(r.Context(), modelID)
	if err != nil {
		h.logger.Error("horizon metrics query failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

// CycleMetrics handles GET /metric/cycle/{model_id}?start_date=&end_date=.
func (h *Handlers) CycleMetrics(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	from, to, ok := h.timeRange(w, r)
	if !ok {
		return
	}

	rows, err := h.store.CycleMetrics(r.Context(), modelID, from, to)
	if err != nil {
		h.logger.Error("cycle metrics query failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

// CalculateMetrics handles POST /metric/calculate/{model_id}: recomputes
// both horizon and cycle metrics for the model synchronously.
func (h *Handlers) CalculateMetrics(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	plantID, ok := h.state.ModelPlant(modelID)
	if !ok {
		httpx.WriteErrorMessage(w, http.StatusNotFound,
			fmt.Sprintf("model %d not found in active state", modelID))
		return
	}

	if err := h.engine.CalculateHorizonMetrics(r.Context(), modelID, plantID); err != nil {
		h.logger.Error("horizon metric recompute failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "metric calculation failed")
		return
	}
	if err := h.engine.CalculateCycleMetrics(r.Context(), modelID, plantID); err != nil {
		h.logger.Error("cycle metric recompute failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "metric calculation failed")
		return
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("metrics recalculated for model %d", modelID),
	})
}

// HorizonMetricTypes handles GET /metric/horizon/types.
func (h *Handlers) HorizonMetricTypes(w http.ResponseWriter, r *http.Request) {
	h.metricTypes(w, r, h.store.HorizonMetricTypes)
}

// CycleMetricTypes handles GET /metric/cycle/types.
func (h *Handlers) CycleMetricTypes(w http.ResponseWriter, r *http.Request) {
	h.metricTypes(w, r, h.store.CycleMetricTypes)
}

func (h *Handlers) metricTypes(w http.ResponseWriter, r *http.Request, fetch func(context.Context) ([]string, error)) {
	types, err := fetch(r.Context())
	if err != nil {
		h.logger.Error("metric types query failed", "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, types)
}

// RefreshState handles POST /state/refresh: re-pulls active plants and
// models from the model manager outside the cron cadence.
func (h *Handlers) RefreshState(w http.ResponseWriter, r *http.Request) {
	if err := h.state.Refresh(r.Context()); err != nil {
		h.logger.Error("state refresh failed", "error", err)
		httpx.WriteErrorMessage(w, http.StatusBadGateway, "state refresh failed")
		return
	}
	plants, models := h.state.Counts()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"power_plants": plants,
		"models":       models,
	})
}

// PlaygroundFeatures handles GET /playground/model/{model_id}/features.
func (h *Handlers) PlaygroundFeatures(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	info, ok := h.playground.ModelFeatures(modelID)
	if !ok {
		httpx.WriteErrorMessage(w, http.StatusNotFound,
			fmt.Sprintf("model %d not found in active state", modelID))
		return
	}
	httpx.WriteJSON(w, http.StatusOK, info)
}

// PlaygroundPredict handles POST /playground/predict/{model_id} with a
// multipart CSV under the "file" field. The body is capped at the playground
// upload limit.
func (h *Handlers) PlaygroundPredict(w http.ResponseWriter, r *http.Request) {
	modelID, ok := h.pathInt(w, r, "model_id")
	if !ok {
		return
	}
	if _, found := h.playground.ModelFeatures(modelID); !found {
		httpx.WriteErrorMessage(w, http.StatusNotFound,
			fmt.Sprintf("model %d not found in active state", modelID))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, playground.MaxUploadBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, `multipart upload with a "file" field required`)
		return
	}
	defer file.Close()

	result, err := h.playground.PredictFromCSV(r.Context(), modelID, file)
	if err != nil {
		var vErr *playground.ValidationError
		if errors.As(err, &vErr) {
			httpx.WriteJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "upload validation failed",
				"validation_errors": vErr.Problems,
			})
			return
		}
		h.logger.Error("playground inference failed", "model_id", modelID, "error", err)
		httpx.WriteErrorMessage(w, http.StatusInternalServerError, "inference failed")
		return
	}
	httpx.WriteJSON(w, http.StatusOK, result)
}

// pathInt extracts an integer path variable, answering 400 on garbage.
func (h *Handlers) pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := mux.Vars(r)[name]
	v, err := strconv.Atoi(raw)
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest,
			fmt.Sprintf("invalid %s %q", name, raw))
		return 0, false
	}
	return v, true
}

// timeRange extracts the required start_date/end_date query pair, answering
// 400 on missing or malformed values or an inverted range.
func (h *Handlers) timeRange(w http.ResponseWriter, r *http.Request) (from, to time.Time, ok bool) {
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("start_date"))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid or missing start_date, expected RFC3339")
		return from, to, false
	}
	to, err = time.Parse(time.RFC3339, r.URL.Query().Get("end_date"))
	if err != nil {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid or missing end_date, expected RFC3339")
		return from, to, false
	}
	if to.Before(from) {
		httpx.WriteErrorMessage(w, http.StatusBadRequest, "end_date is before start_date")
		return from, to, false
	}
	return from, to, true
}
