package store

import (
	"context"
	"fmt"
	"time"

	"github.com/solarops/sunforecast/pkg/openmeteo"
)

const insertForecast = `
INSERT INTO weather_forecasts (
    forecast_time, plant_id, created_at,
    temperature_2m, relative_humidity_2m,
    cloud_cover, cloud_cover_low, cloud_cover_mid,
    wind_speed_10m, wind_direction_10m,
    shortwave_radiation, shortwave_radiation_instant,
    diffuse_radiation, diffuse_radiation_instant,
    direct_normal_irradiance, direct_radiation_instant,
    et0_fao_evapotranspiration, vapour_pressure_deficit,
    is_day, sunshine_duration
) VALUES (
    :forecast_time, :plant_id, :created_at,
    :temperature_2m, :relative_humidity_2m,
    :cloud_cover, :cloud_cover_low, :cloud_cover_mid,
    :wind_speed_10m, :wind_direction_10m,
    :shortwave_radiation, :shortwave_radiation_instant,
    :diffuse_radiation, :diffuse_radiation_instant,
    :direct_normal_irradiance, :direct_radiation_instant,
    :et0_fao_evapotranspiration, :vapour_pressure_deficit,
    :is_day, :sunshine_duration
)
ON CONFLICT (forecast_time, plant_id, created_at) DO NOTHING`

// ForecastRowsFromWeather converts a fetched forecast into persistable rows.
// Every row carries created_at = the forecast's cycle.
func ForecastRowsFromWeather(f *openmeteo.Forecast) []ForecastRow {
	rows := make([]ForecastRow, len(f.Points))
	for i, p := range f.Points {
		rows[i] = ForecastRow{
			ForecastTime:              p.Time,
			PlantID:                   f.PlantID,
			CreatedAt:                 f.FetchTime,
			Temperature2m:             p.Temperature2m,
			RelativeHumidity2m:        p.RelativeHumidity2m,
			CloudCover:                p.CloudCover,
			CloudCoverLow:             p.CloudCoverLow,
			CloudCoverMid:             p.CloudCoverMid,
			WindSpeed10m:              p.WindSpeed10m,
			WindDirection10m:          p.WindDirection10m,
			ShortwaveRadiation:        p.ShortwaveRadiation,
			ShortwaveRadiationInstant: p.ShortwaveRadiationInstant,
			DiffuseRadiation:          p.DiffuseRadiation,
			DiffuseRadiationInstant:   p.DiffuseRadiationInstant,
			DirectNormalIrradiance:    p.DirectNormalIrradiance,
			DirectRadiationInstant:    p.DirectRadiationInstant,
			ET0FAOEvapotranspiration:  p.ET0FAOEvapotranspiration,
			VapourPressureDeficit:     p.VapourPressureDeficit,
			IsDay:                     p.IsDay,
			SunshineDuration:          p.SunshineDuration,
		}
	}
	return rows
}

// SaveForecastsBatch inserts forecast rows, ignoring rows whose key already
// exists. Returns the number of rows attempted (not inserted).
func (s *Store) SaveForecastsBatch(ctx context.Context, rows []ForecastRow) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	if _, err := s.db.NamedExecContext(ctx, insertForecast, rows); err != nil {
		return fmt.Errorf("insert %d forecast rows: %w", len(rows), err)
	}
	return nil
}

// ForecastsByCycle reads one plant's persisted forecast for one cycle,
// ordered by forecast time.
func (s *Store) ForecastsByCycle(ctx context.Context, plantID int, cycle time.Time) ([]ForecastRow, error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	var rows []ForecastRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM weather_forecasts
		WHERE plant_id = $1 AND created_at = $2
		ORDER BY forecast_time`, plantID, cycle)
	if err != nil {
		return nil, fmt.Errorf("select forecasts for plant %d: %w", plantID, err)
	}
	return rows, nil
}
