// Package pipeline orchestrates one prediction cycle: refresh state, fan out
// weather retrieval, build per-model feature matrices, run inference, tag
// horizons and hand batches to the background writer.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solarops/sunforecast/pkg/features"
	"github.com/solarops/sunforecast/pkg/mlmodel"
	"github.com/solarops/sunforecast/pkg/modelmanager"
	"github.com/solarops/sunforecast/pkg/openmeteo"
	"github.com/solarops/sunforecast/pkg/store"
)

// weatherConcurrency caps simultaneous provider requests during fan-out.
const weatherConcurrency = 8

// State is the snapshot the pipeline refreshes and reads.
type State interface {
	Refresh(ctx context.Context) error
	ActivePlants() []modelmanager.PowerPlant
	ActiveModels(plantID int) []*mlmodel.Model
}

// WeatherFetcher retrieves a plant's forecast for a cycle.
type WeatherFetcher interface {
	Fetch(ctx context.Context, plant openmeteo.Plant, cycleStart time.Time) (*openmeteo.Forecast, error)
}

// Persister executes the deferred writes the pipeline enqueues.
type Persister interface {
	SaveForecastsBatch(ctx context.Context, rows []store.ForecastRow) error
	SavePredictionsBatch(ctx context.Context, rows []store.PredictionRow) error
}

// Sink accepts fire-and-forget persistence batches.
type Sink interface {
	Enqueue(batch store.Batch) bool
}

// Observer receives pipeline telemetry. All methods may be called from the
// pipeline goroutine only.
type Observer interface {
	RunCompleted(duration time.Duration, err error)
	WeatherFetchFailed(plantID int)
	PredictionsProduced(modelID, count int)
	ModelSkipped(modelID int)
}

// nopObserver keeps the observer optional.
type nopObserver struct{}

func (nopObserver) RunCompleted(time.Duration, error) {}
func (nopObserver) WeatherFetchFailed(int)            {}
func (nopObserver) PredictionsProduced(int, int)      {}
func (nopObserver) ModelSkipped(int)                  {}

// Pipeline wires the stages of a prediction cycle together.
type Pipeline struct {
	state    State
	weather  WeatherFetcher
	resolver *features.Resolver
	persist  Persister
	sink     Sink
	observer Observer
	logger   *slog.Logger
}

// New creates a pipeline. observer may be nil.
func New(state State, weather WeatherFetcher, resolver *features.Resolver,
	persist Persister, sink Sink, observer Observer, logger *slog.Logger) *Pipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{
		state:    state,
		weather:  weather,
		resolver: resolver,
		persist:  persist,
		sink:     sink,
		observer: observer,
		logger:   logger,
	}
}

// Run executes one cycle identified by cycle (an hour-quantized instant that
// becomes created_at on every row this run produces). Per-plant and
// per-model failures are isolated: they skip the smallest possible unit and
// never abort the run. Run returns once feature building and inference are
// complete; persistence finishes in the background.
func (p *Pipeline) Run(ctx context.Context, cycle time.Time) (err error) {
	started := time.Now()
	defer func() {
		p.observer.RunCompleted(time.Since(started), err)
	}()

	p.logger.Info("pipeline run starting", "cycle", cycle)

	if err := p.state.Refresh(ctx); err != nil {
		// Best-effort: a partial refresh keeps the previous snapshot half.
		p.logger.Error("state refresh incomplete", "error", err)
	}

	plants := p.state.ActivePlants()
	eligible := make([]modelmanager.PowerPlant, 0, len(plants))
	for _, plant := range plants {
		if plant.HasCoordinates() {
			eligible = append(eligible, plant)
		}
	}
	if len(eligible) == 0 {
		p.logger.Info("no plants with coordinates, nothing to do", "cycle", cycle)
		return nil
	}

	forecasts := p.fetchWeather(ctx, eligible, cycle)

	totalPredictions := 0
	for _, fc := range forecasts {
		p.enqueueForecast(fc)
		totalPredictions += p.predictForPlant(fc)
	}

	p.logger.Info("pipeline run complete",
		"cycle", cycle,
		"plants", len(eligible),
		"forecasts", len(forecasts),
		"predictions", totalPredictions,
		"elapsed", time.Since(started))
	return nil
}

// fetchWeather fans out provider requests and collates the successes.
// Failed plants are logged and skipped.
func (p *Pipeline) fetchWeather(ctx context.Context, plants []modelmanager.PowerPlant, cycle time.Time) []*openmeteo.Forecast {
	var (
		mu        sync.Mutex
		forecasts []*openmeteo.Forecast
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(weatherConcurrency)
	for _, plant := range plants {
		g.Go(func() error {
			fc, err := p.weather.Fetch(gctx, openmeteo.Plant{
				ID:        plant.ID,
				Latitude:  *plant.Latitude,
				Longitude: *plant.Longitude,
			}, cycle)
			if err != nil {
				p.logger.Error("weather fetch failed, skipping plant",
					"plant_id", plant.ID, "error", err)
				p.observer.WeatherFetchFailed(plant.ID)
				return nil
			}
			mu.Lock()
			forecasts = append(forecasts, fc)
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return forecasts
}

func (p *Pipeline) enqueueForecast(fc *openmeteo.Forecast) {
	rows := store.ForecastRowsFromWeather(fc)
	p.sink.Enqueue(store.Batch{
		Label: fmt.Sprintf("forecasts plant=%d cycle=%s", fc.PlantID, fc.FetchTime.Format(time.RFC3339)),
		Fn: func(ctx context.Context) error {
			return p.persist.SaveForecastsBatch(ctx, rows)
		},
	})
}

// predictForPlant runs every active model of the forecast's plant and
// enqueues one prediction batch per model. Returns the number of prediction
// rows produced.
func (p *Pipeline) predictForPlant(fc *openmeteo.Forecast) int {
	models := p.state.ActiveModels(fc.PlantID)
	if len(models) == 0 {
		p.logger.Info("plant has no active models, forecast persisted without predictions",
			"plant_id", fc.PlantID)
		return 0
	}

	var capacity *float64
	if plant, ok := p.plantOf(fc.PlantID); ok {
		capacity = plant.Capacity
	}
	fctx := features.ContextFromForecast(fc, capacity)

	total := 0
	for _, model := range models {
		rows, err := p.predictModel(fc, model, fctx)
		if err != nil {
			var ufe *features.UnsupportedFeatureError
			if errors.As(err, &ufe) {
				p.logger.Error("model requests unsupported feature, skipping",
					"model_id", model.Meta.ID, "feature", ufe.Feature)
			} else {
				p.logger.Error("model inference failed, skipping",
					"model_id", model.Meta.ID, "error", err)
			}
			p.observer.ModelSkipped(model.Meta.ID)
			continue
		}
		p.observer.PredictionsProduced(model.Meta.ID, len(rows))
		total += len(rows)

		modelID := model.Meta.ID
		p.sink.Enqueue(store.Batch{
			Label: fmt.Sprintf("predictions model=%d cycle=%s", modelID, fc.FetchTime.Format(time.RFC3339)),
			Fn: func(ctx context.Context) error {
				return p.persist.SavePredictionsBatch(ctx, rows)
			},
		})
	}
	return total
}

// predictModel builds the matrix, runs inference and maps the output to
// prediction rows. Row i targets forecast point i; when the estimator
// returns fewer or more values than there are points, only the overlapping
// prefix is kept.
func (p *Pipeline) predictModel(fc *openmeteo.Forecast, model *mlmodel.Model, fctx features.Context) ([]store.PredictionRow, error) {
	matrix, err := p.resolver.Prepare(fc, model.Meta.Features, fctx)
	if err != nil {
		return nil, err
	}
	predictions, err := model.Predict(matrix)
	if err != nil {
		return nil, err
	}

	n := len(predictions)
	if len(fc.Points) < n {
		n = len(fc.Points)
	}
	rows := make([]store.PredictionRow, n)
	for i := 0; i < n; i++ {
		point := fc.Points[i]
		rows[i] = store.PredictionRow{
			PredictionTime: point.Time,
			ModelID:        model.Meta.ID,
			CreatedAt:      fc.FetchTime,
			PredictedPower: predictions[i],
			Horizon:        point.Time.Sub(fc.FetchTime).Hours(),
		}
	}
	return rows, nil
}

func (p *Pipeline) plantOf(plantID int) (modelmanager.PowerPlant, bool) {
	for _, plant := range p.state.ActivePlants() {
		if plant.ID == plantID {
			return plant, true
		}
	}
	return modelmanager.PowerPlant{}, false
}
