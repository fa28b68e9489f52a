// Package router wires the predictor's HTTP routes.
//
// Routes configured:
//   - GET  /                                        - Health check
//   - GET  /internal/status                         - Snapshot sizes and scheduler state
//   - POST /generate                                - Run one prediction cycle now
//   - POST /state/refresh                           - Re-pull active plants and models
//   - GET  /forecast/{model_id}                     - Latest prediction per instant in a range
//   - GET  /forecast/{model_id}/timestamps          - Cycle identifiers a model predicted for
//   - GET  /forecast/time_of_forecast/{model_id}    - All predictions of one cycle
//   - GET  /reading/{id}                            - Stored readings in a range
//   - POST /reading/{plant_id}                      - CSV readings upload
//   - GET  /metric/horizon/types                    - Horizon metric type names
//   - GET  /metric/horizon/{model_id}               - Stored per-horizon metrics
//   - GET  /metric/cycle/types                      - Cycle metric type names
//   - GET  /metric/cycle/{model_id}                 - Stored per-cycle metrics in a range
//   - POST /metric/calculate/{model_id}             - Recompute both metric families
//   - GET  /playground/model/{model_id}/features    - Upload contract for a model
//   - POST /playground/predict/{model_id}           - Ad-hoc inference over a CSV
//   - GET  /metrics                                 - Prometheus metrics
package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarops/sunforecast/cmd/predictor/server"
)

// SetupRoutes builds the predictor's router over the handler set.
func SetupRoutes(h *server.Handlers) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", h.Health).Methods(http.MethodGet)
	r.HandleFunc("/internal/status", h.Status).Methods(http.MethodGet)
	r.HandleFunc("/generate", h.Generate).Methods(http.MethodPost)
	r.HandleFunc("/state/refresh", h.RefreshState).Methods(http.MethodPost)

	// The time_of_forecast route must register before the {model_id}
	// wildcard so it is not captured as a model identifier.
	r.HandleFunc("/forecast/time_of_forecast/{model_id}", h.ForecastByCycle).Methods(http.MethodGet)
	r.HandleFunc("/forecast/{model_id}/timestamps", h.ForecastCycles).Methods(http.MethodGet)
	r.HandleFunc("/forecast/{model_id}", h.LatestForecast).Methods(http.MethodGet)

	r.HandleFunc("/reading/{id}", h.Readings).Methods(http.MethodGet)
	r.HandleFunc("/reading/{plant_id}", h.UploadReadings).Methods(http.MethodPost)

	r.HandleFunc("/metric/horizon/types", h.HorizonMetricTypes).Methods(http.MethodGet)
	r.HandleFunc("/metric/horizon/{model_id}", h.HorizonMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metric/cycle/types", h.CycleMetricTypes).Methods(http.MethodGet)
	r.HandleFunc("/metric/cycle/{model_id}", h.CycleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/metric/calculate/{model_id}", h.CalculateMetrics).Methods(http.MethodPost)

	r.HandleFunc("/playground/model/{model_id}/features", h.PlaygroundFeatures).Methods(http.MethodGet)
	r.HandleFunc("/playground/predict/{model_id}", h.PlaygroundPredict).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return r
}
