// Package features builds per-model feature matrices from weather forecasts.
//
// A model's metadata carries an ordered feature-name list; the resolver maps
// each name to a value per weather point, producing one matrix row per point
// and one column per name, in the requested order.
package features

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/solarops/sunforecast/pkg/openmeteo"
)

// Context carries the plant-level values some features resolve from.
type Context struct {
	PlantID   int
	Capacity  *float64
	Latitude  float64
	Longitude float64
	Elevation float64
}

// ContextFromForecast builds the resolution context for one plant's forecast.
// Coordinates and elevation come from the provider response; capacity comes
// from the plant registry and may be absent.
func ContextFromForecast(f *openmeteo.Forecast, capacity *float64) Context {
	return Context{
		PlantID:   f.PlantID,
		Capacity:  capacity,
		Latitude:  f.Latitude,
		Longitude: f.Longitude,
		Elevation: f.Elevation,
	}
}

// UnsupportedFeatureError aborts matrix preparation: a model requested a
// feature name the resolver cannot map to a number.
type UnsupportedFeatureError struct {
	Feature string
}

func (e *UnsupportedFeatureError) Error() string {
	return fmt.Sprintf("unsupported feature %q", e.Feature)
}

// resolveFunc produces one cell value. A nil result means the source value
// is missing for this point; an error means resolution itself failed. Both
// substitute 0.0 in the matrix.
type resolveFunc func(p openmeteo.Point, ctx Context) (*float64, error)

func weather(get func(p openmeteo.Point) *float64) resolveFunc {
	return func(p openmeteo.Point, _ Context) (*float64, error) {
		return get(p), nil
	}
}

func timeDerived(get func(t time.Time) float64) resolveFunc {
	return func(p openmeteo.Point, _ Context) (*float64, error) {
		if p.Time.IsZero() {
			return nil, fmt.Errorf("point has no timestamp")
		}
		v := get(p.Time)
		return &v, nil
	}
}

// mondayWeekday maps Go's Sunday-based weekday to a Monday=0 convention.
func mondayWeekday(t time.Time) float64 {
	return float64((int(t.Weekday()) + 6) % 7)
}

// resolvers is the static dispatch table covering every supported feature
// name: weather channels, time-derived fields and plant context.
//
// The trigonometric features apply sin/cos to the raw hour (0..23) and month
// (1..12) values, not normalized radians; models were trained against that
// convention.
var resolvers = map[string]resolveFunc{
	"temperature_2m":              weather(func(p openmeteo.Point) *float64 { return p.Temperature2m }),
	"relative_humidity_2m":        weather(func(p openmeteo.Point) *float64 { return p.RelativeHumidity2m }),
	"cloud_cover":                 weather(func(p openmeteo.Point) *float64 { return p.CloudCover }),
	"cloud_cover_low":             weather(func(p openmeteo.Point) *float64 { return p.CloudCoverLow }),
	"cloud_cover_mid":             weather(func(p openmeteo.Point) *float64 { return p.CloudCoverMid }),
	"wind_speed_10m":              weather(func(p openmeteo.Point) *float64 { return p.WindSpeed10m }),
	"wind_direction_10m":          weather(func(p openmeteo.Point) *float64 { return p.WindDirection10m }),
	"shortwave_radiation":         weather(func(p openmeteo.Point) *float64 { return p.ShortwaveRadiation }),
	"shortwave_radiation_instant": weather(func(p openmeteo.Point) *float64 { return p.ShortwaveRadiationInstant }),
	"diffuse_radiation":           weather(func(p openmeteo.Point) *float64 { return p.DiffuseRadiation }),
	"diffuse_radiation_instant":   weather(func(p openmeteo.Point) *float64 { return p.DiffuseRadiationInstant }),
	"direct_normal_irradiance":    weather(func(p openmeteo.Point) *float64 { return p.DirectNormalIrradiance }),
	"direct_radiation_instant":    weather(func(p openmeteo.Point) *float64 { return p.DirectRadiationInstant }),
	"et0_fao_evapotranspiration":  weather(func(p openmeteo.Point) *float64 { return p.ET0FAOEvapotranspiration }),
	"vapour_pressure_deficit":     weather(func(p openmeteo.Point) *float64 { return p.VapourPressureDeficit }),
	"is_day":                      weather(func(p openmeteo.Point) *float64 { return p.IsDay }),
	"sunshine_duration":           weather(func(p openmeteo.Point) *float64 { return p.SunshineDuration }),

	"hour":         timeDerived(func(t time.Time) float64 { return float64(t.Hour()) }),
	"month":        timeDerived(func(t time.Time) float64 { return float64(t.Month()) }),
	"day":          timeDerived(func(t time.Time) float64 { return float64(t.Day()) }),
	"day_of_year":  timeDerived(func(t time.Time) float64 { return float64(t.YearDay()) }),
	"day_of_week":  timeDerived(mondayWeekday),
	"week_of_year": timeDerived(func(t time.Time) float64 { _, w := t.ISOWeek(); return float64(w) }),
	"hour_sin":     timeDerived(func(t time.Time) float64 { return math.Sin(float64(t.Hour())) }),
	"hour_cos":     timeDerived(func(t time.Time) float64 { return math.Cos(float64(t.Hour())) }),
	"month_sin":    timeDerived(func(t time.Time) float64 { return math.Sin(float64(t.Month())) }),
	"month_cos":    timeDerived(func(t time.Time) float64 { return math.Cos(float64(t.Month())) }),

	"capacity": func(_ openmeteo.Point, ctx Context) (*float64, error) {
		return ctx.Capacity, nil
	},
	"latitude": func(_ openmeteo.Point, ctx Context) (*float64, error) {
		return &ctx.Latitude, nil
	},
	"longitude": func(_ openmeteo.Point, ctx Context) (*float64, error) {
		return &ctx.Longitude, nil
	},
	"elevation": func(_ openmeteo.Point, ctx Context) (*float64, error) {
		return &ctx.Elevation, nil
	},
}

// Resolver prepares feature matrices for inference.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver that logs substitutions through logger.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Prepare builds the feature matrix for one model: one row per weather
// point, one column per feature name, in the requested order.
//
// Every requested name is validated against the dispatch table before any
// row is built; an unknown name (or "datetime", which has no numeric
// representation) aborts the whole preparation with UnsupportedFeatureError.
//
// Missing values never drop rows: a nil resolution substitutes 0.0 with a
// debug log, a failed resolution substitutes 0.0 with a warn log.
func (r *Resolver) Prepare(forecast *openmeteo.Forecast, names []string, ctx Context) ([][]float64, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("model has no features")
	}

	fns := make([]resolveFunc, len(names))
	for i, name := range names {
		fn, ok := resolvers[name]
		if !ok {
			return nil, &UnsupportedFeatureError{Feature: name}
		}
		fns[i] = fn
	}

	matrix := make([][]float64, len(forecast.Points))
	for pi, point := range forecast.Points {
		row := make([]float64, len(names))
		for fi, fn := range fns {
			v, err := fn(point, ctx)
			switch {
			case err != nil:
				r.logger.Warn("feature resolution failed, substituting zero",
					"feature", names[fi],
					"plant_id", ctx.PlantID,
					"time", point.Time,
					"error", err)
				row[fi] = 0.0
			case v == nil:
				r.logger.Debug("feature value missing, substituting zero",
					"feature", names[fi],
					"plant_id", ctx.PlantID,
					"time", point.Time)
				row[fi] = 0.0
			default:
				row[fi] = *v
			}
		}
		matrix[pi] = row
	}
	return matrix, nil
}

// Supported reports whether every name in the list resolves to a numeric
// feature. Used by the playground to validate uploads before inference.
func Supported(names []string) error {
	for _, name := range names {
		if _, ok := resolvers[name]; !ok {
			return &UnsupportedFeatureError{Feature: name}
		}
	}
	return nil
}
