package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/solarops/sunforecast/pkg/store"
)

// TestStorePostgresRoundTrip runs the persistence layer against a real
// PostgreSQL container: migrations, write-once inserts, the latest-prediction
// view, the prediction/reading join and metric upserts.
func TestStorePostgresRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "predictor",
			"POSTGRES_PASSWORD": "predictor",
			"POSTGRES_DB":       "predictor",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	defer container.Terminate(ctx)

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get mapped port: %v", err)
	}

	db, err := store.Open(ctx, store.Config{
		Host:     host,
		Port:     port.Int(),
		User:     "predictor",
		Password: "predictor",
		Name:     "predictor",
		MinConns: 2,
		MaxConns: 5,
	})
	if err != nil {
		t.Fatalf("Failed to open store (migrations included): %v", err)
	}
	defer db.Close()

	if err := db.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	cycle := time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)
	temp := 21.5

	t.Run("ForecastsWriteOnce", func(t *testing.T) {
		rows := []store.ForecastRow{
			{ForecastTime: cycle.Add(15 * time.Minute), PlantID: 1, CreatedAt: cycle, Temperature2m: &temp},
			{ForecastTime: cycle.Add(30 * time.Minute), PlantID: 1, CreatedAt: cycle, Temperature2m: &temp},
		}
		if err := db.SaveForecastsBatch(ctx, rows); err != nil {
			t.Fatalf("SaveForecastsBatch failed: %v", err)
		}
		// Same keys again: conflict-ignore, not an error.
		if err := db.SaveForecastsBatch(ctx, rows); err != nil {
			t.Fatalf("duplicate SaveForecastsBatch failed: %v", err)
		}

		stored, err := db.ForecastsByCycle(ctx, 1, cycle)
		if err != nil {
			t.Fatalf("ForecastsByCycle failed: %v", err)
		}
		if len(stored) != 2 {
			t.Errorf("stored forecasts = %d, want 2", len(stored))
		}
	})

	t.Run("PredictionsLatestView", func(t *testing.T) {
		older := cycle.Add(-6 * time.Hour)
		target := cycle.Add(time.Hour)
		rows := []store.PredictionRow{
			{PredictionTime: target, ModelID: 7, CreatedAt: older, PredictedPower: 900, Horizon: 7},
			{PredictionTime: target, ModelID: 7, CreatedAt: cycle, PredictedPower: 1000, Horizon: 1},
		}
		if err := db.SavePredictionsBatch(ctx, rows); err != nil {
			t.Fatalf("SavePredictionsBatch failed: %v", err)
		}
		// Write-once: re-inserting the same key with a new value must not
		// change the stored row.
		clash := []store.PredictionRow{
			{PredictionTime: target, ModelID: 7, CreatedAt: cycle, PredictedPower: 9999, Horizon: 1},
		}
		if err := db.SavePredictionsBatch(ctx, clash); err != nil {
			t.Fatalf("conflicting SavePredictionsBatch failed: %v", err)
		}

		latest, err := db.LatestPredictions(ctx, 7, cycle, cycle.Add(2*time.Hour))
		if err != nil {
			t.Fatalf("LatestPredictions failed: %v", err)
		}
		if len(latest) != 1 {
			t.Fatalf("latest rows = %d, want 1", len(latest))
		}
		if latest[0].PredictedPower != 1000 {
			t.Errorf("latest prediction = %v, want 1000 (newest cycle, original value)", latest[0].PredictedPower)
		}

		cycles, err := db.PredictionCycles(ctx, 7)
		if err != nil {
			t.Fatalf("PredictionCycles failed: %v", err)
		}
		if len(cycles) != 2 {
			t.Errorf("cycles = %d, want 2", len(cycles))
		}
		if len(cycles) == 2 && !cycles[0].After(cycles[1]) {
			t.Errorf("cycles not newest-first: %v", cycles)
		}
	})

	t.Run("ReadingsAndPairedJoin", func(t *testing.T) {
		target := cycle.Add(time.Hour)
		readings := []store.ReadingRow{
			{Timestamp: target, PlantID: 1, PowerW: 950},
		}
		if err := db.SaveReadingsBatch(ctx, readings); err != nil {
			t.Fatalf("SaveReadingsBatch failed: %v", err)
		}

		paired, err := db.PairedByHorizon(ctx, 7, 1, []float64{1})
		if err != nil {
			t.Fatalf("PairedByHorizon failed: %v", err)
		}
		if len(paired) != 1 {
			t.Fatalf("paired rows = %d, want 1", len(paired))
		}
		if paired[0].Predicted != 1000 || paired[0].Actual != 950 {
			t.Errorf("paired = %v/%v, want 1000/950", paired[0].Predicted, paired[0].Actual)
		}

		at, err := db.ReadingsAt(ctx, 1, []time.Time{target})
		if err != nil {
			t.Fatalf("ReadingsAt failed: %v", err)
		}
		if len(at) != 1 {
			t.Errorf("readings at timestamp = %d, want 1", len(at))
		}
	})

	t.Run("MetricUpsertOverwrites", func(t *testing.T) {
		row := store.HorizonMetricRow{ModelID: 7, MetricType: "mae", Horizon: 1, Value: 50}
		if err := db.UpsertHorizonMetrics(ctx, []store.HorizonMetricRow{row}); err != nil {
			t.Fatalf("UpsertHorizonMetrics failed: %v", err)
		}
		row.Value = 42
		if err := db.UpsertHorizonMetrics(ctx, []store.HorizonMetricRow{row}); err != nil {
			t.Fatalf("second UpsertHorizonMetrics failed: %v", err)
		}

		stored, err := db.HorizonMetrics(ctx, 7)
		if err != nil {
			t.Fatalf("HorizonMetrics failed: %v", err)
		}
		if len(stored) != 1 {
			t.Fatalf("metric rows = %d, want 1 (upsert must overwrite)", len(stored))
		}
		if stored[0].Value != 42 {
			t.Errorf("metric value = %v, want 42", stored[0].Value)
		}
	})

	t.Run("MetricTypeEnums", func(t *testing.T) {
		horizon, err := db.HorizonMetricTypes(ctx)
		if err != nil {
			t.Fatalf("HorizonMetricTypes failed: %v", err)
		}
		cycleTypes, err := db.CycleMetricTypes(ctx)
		if err != nil {
			t.Fatalf("CycleMetricTypes failed: %v", err)
		}
		for _, types := range [][]string{horizon, cycleTypes} {
			if len(types) != 3 {
				t.Errorf("enum values = %v, want mae/rmse/mbe", types)
			}
		}
	})
}
