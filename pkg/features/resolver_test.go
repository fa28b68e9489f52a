package features

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/solarops/sunforecast/pkg/openmeteo"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fp(v float64) *float64 { return &v }

func testForecast(points ...openmeteo.Point) *openmeteo.Forecast {
	return &openmeteo.Forecast{
		PlantID:   1,
		Latitude:  45.8,
		Longitude: 15.9,
		Elevation: 130,
		Points:    points,
	}
}

func TestPrepare_ColumnOrder(t *testing.T) {
	// Wednesday 2026-08-26 14:15 local.
	ts := time.Date(2026, 8, 26, 14, 15, 0, 0, time.UTC)
	forecast := testForecast(openmeteo.Point{
		Time:               ts,
		ShortwaveRadiation: fp(480.5),
		Temperature2m:      fp(27.3),
	})
	ctx := ContextFromForecast(forecast, fp(1000))

	names := []string{"shortwave_radiation", "hour", "capacity", "temperature_2m"}
	matrix, err := NewResolver(discardLogger()).Prepare(forecast, names, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	if len(matrix) != 1 || len(matrix[0]) != 4 {
		t.Fatalf("matrix shape = %dx%d, want 1x4", len(matrix), len(matrix[0]))
	}
	want := []float64{480.5, 14, 1000, 27.3}
	for i, w := range want {
		if matrix[0][i] != w {
			t.Errorf("cell %d = %v, want %v", i, matrix[0][i], w)
		}
	}
}

func TestPrepare_TimeFeatures(t *testing.T) {
	// Wednesday 2026-08-26: day_of_week Monday=0 convention gives 2,
	// day_of_year 238, ISO week 35.
	ts := time.Date(2026, 8, 26, 23, 45, 0, 0, time.UTC)
	forecast := testForecast(openmeteo.Point{Time: ts})
	ctx := ContextFromForecast(forecast, nil)

	names := []string{"hour", "month", "day", "day_of_year", "day_of_week", "week_of_year", "hour_sin", "month_cos"}
	matrix, err := NewResolver(discardLogger()).Prepare(forecast, names, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}

	row := matrix[0]
	want := []float64{23, 8, 26, 238, 2, 35, math.Sin(23), math.Cos(8)}
	for i, w := range want {
		if math.Abs(row[i]-w) > 1e-12 {
			t.Errorf("%s = %v, want %v", names[i], row[i], w)
		}
	}
}

func TestPrepare_MondayIsZero(t *testing.T) {
	// 2026-08-24 is a Monday, 2026-08-30 a Sunday.
	cases := []struct {
		day  int
		want float64
	}{
		{24, 0}, {25, 1}, {26, 2}, {27, 3}, {28, 4}, {29, 5}, {30, 6},
	}
	r := NewResolver(discardLogger())
	for _, tc := range cases {
		forecast := testForecast(openmeteo.Point{Time: time.Date(2026, 8, tc.day, 12, 0, 0, 0, time.UTC)})
		matrix, err := r.Prepare(forecast, []string{"day_of_week"}, Context{})
		if err != nil {
			t.Fatalf("Prepare() error = %v", err)
		}
		if matrix[0][0] != tc.want {
			t.Errorf("day %d: day_of_week = %v, want %v", tc.day, matrix[0][0], tc.want)
		}
	}
}

func TestPrepare_PlantContext(t *testing.T) {
	forecast := testForecast(openmeteo.Point{Time: time.Now()})
	ctx := ContextFromForecast(forecast, fp(2500))

	matrix, err := NewResolver(discardLogger()).Prepare(forecast,
		[]string{"capacity", "latitude", "longitude", "elevation"}, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	want := []float64{2500, 45.8, 15.9, 130}
	for i, w := range want {
		if matrix[0][i] != w {
			t.Errorf("cell %d = %v, want %v", i, matrix[0][i], w)
		}
	}
}

func TestPrepare_MissingValuesSubstituteZero(t *testing.T) {
	// Nil radiation sample and nil capacity both become 0.0; the row is kept.
	forecast := testForecast(openmeteo.Point{
		Time:          time.Now(),
		Temperature2m: fp(20),
	})
	ctx := ContextFromForecast(forecast, nil)

	matrix, err := NewResolver(discardLogger()).Prepare(forecast,
		[]string{"shortwave_radiation", "capacity", "temperature_2m"}, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if len(matrix) != 1 {
		t.Fatalf("len(matrix) = %d, want 1 (rows are never dropped)", len(matrix))
	}
	if matrix[0][0] != 0.0 || matrix[0][1] != 0.0 {
		t.Errorf("missing values = %v, %v, want 0.0, 0.0", matrix[0][0], matrix[0][1])
	}
	if matrix[0][2] != 20 {
		t.Errorf("temperature = %v, want 20", matrix[0][2])
	}
}

func TestPrepare_UnsupportedFeatureAborts(t *testing.T) {
	forecast := testForecast(openmeteo.Point{Time: time.Now()})

	_, err := NewResolver(discardLogger()).Prepare(forecast,
		[]string{"hour", "made_up_feature"}, Context{})
	var ufe *UnsupportedFeatureError
	if !errors.As(err, &ufe) {
		t.Fatalf("error = %v, want *UnsupportedFeatureError", err)
	}
	if ufe.Feature != "made_up_feature" {
		t.Errorf("Feature = %q, want made_up_feature", ufe.Feature)
	}
}

func TestPrepare_DatetimeIsUnsupported(t *testing.T) {
	forecast := testForecast(openmeteo.Point{Time: time.Now()})
	_, err := NewResolver(discardLogger()).Prepare(forecast, []string{"datetime"}, Context{})
	var ufe *UnsupportedFeatureError
	if !errors.As(err, &ufe) {
		t.Fatalf("error = %v, want *UnsupportedFeatureError for datetime", err)
	}
}

func TestPrepare_EmptyFeatureList(t *testing.T) {
	forecast := testForecast(openmeteo.Point{Time: time.Now()})
	if _, err := NewResolver(discardLogger()).Prepare(forecast, nil, Context{}); err == nil {
		t.Fatal("expected error for empty feature list")
	}
}

func TestPrepare_Deterministic(t *testing.T) {
	ts := time.Date(2026, 8, 26, 9, 30, 0, 0, time.UTC)
	forecast := testForecast(
		openmeteo.Point{Time: ts, ShortwaveRadiation: fp(120.25)},
		openmeteo.Point{Time: ts.Add(15 * time.Minute), ShortwaveRadiation: fp(140.75)},
	)
	ctx := ContextFromForecast(forecast, fp(999))
	names := []string{"shortwave_radiation", "hour_sin", "capacity"}

	r := NewResolver(discardLogger())
	a, err := r.Prepare(forecast, names, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	b, err := r.Prepare(forecast, names, ctx)
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	for i := range a {
		for j := range a[i] {
			if a[i][j] != b[i][j] {
				t.Errorf("cell (%d,%d) differs between runs: %v vs %v", i, j, a[i][j], b[i][j])
			}
		}
	}
}

func TestSupported(t *testing.T) {
	if err := Supported([]string{"hour", "capacity", "is_day"}); err != nil {
		t.Errorf("Supported() error = %v", err)
	}
	if err := Supported([]string{"hour", "nope"}); err == nil {
		t.Error("expected error for unknown feature")
	}
}
