package store

import "time"

// ForecastRow is one persisted weather sample. The composite key
// (ForecastTime, PlantID, CreatedAt) makes forecast rows write-once per
// cycle; re-running a cycle is a no-op.
type ForecastRow struct {
	ForecastTime              time.Time `db:"forecast_time" json:"forecast_time"`
	PlantID                   int       `db:"plant_id" json:"plant_id"`
	CreatedAt                 time.Time `db:"created_at" json:"created_at"`
	Temperature2m             *float64  `db:"temperature_2m" json:"temperature_2m,omitempty"`
	RelativeHumidity2m        *float64  `db:"relative_humidity_2m" json:"relative_humidity_2m,omitempty"`
	CloudCover                *float64  `db:"cloud_cover" json:"cloud_cover,omitempty"`
	CloudCoverLow             *float64  `db:"cloud_cover_low" json:"cloud_cover_low,omitempty"`
	CloudCoverMid             *float64  `db:"cloud_cover_mid" json:"cloud_cover_mid,omitempty"`
	WindSpeed10m              *float64  `db:"wind_speed_10m" json:"wind_speed_10m,omitempty"`
	WindDirection10m          *float64  `db:"wind_direction_10m" json:"wind_direction_10m,omitempty"`
	ShortwaveRadiation        *float64  `db:"shortwave_radiation" json:"shortwave_radiation,omitempty"`
	ShortwaveRadiationInstant *float64  `db:"shortwave_radiation_instant" json:"shortwave_radiation_instant,omitempty"`
	DiffuseRadiation          *float64  `db:"diffuse_radiation" json:"diffuse_radiation,omitempty"`
	DiffuseRadiationInstant   *float64  `db:"diffuse_radiation_instant" json:"diffuse_radiation_instant,omitempty"`
	DirectNormalIrradiance    *float64  `db:"direct_normal_irradiance" json:"direct_normal_irradiance,omitempty"`
	DirectRadiationInstant    *float64  `db:"direct_radiation_instant" json:"direct_radiation_instant,omitempty"`
	ET0FAOEvapotranspiration  *float64  `db:"et0_fao_evapotranspiration" json:"et0_fao_evapotranspiration,omitempty"`
	VapourPressureDeficit     *float64  `db:"vapour_pressure_deficit" json:"vapour_pressure_deficit,omitempty"`
	IsDay                     *float64  `db:"is_day" json:"is_day,omitempty"`
	SunshineDuration          *float64  `db:"sunshine_duration" json:"sunshine_duration,omitempty"`
}

// PredictionRow is one model output for one future instant. Horizon is the
// gap from CreatedAt (the cycle) to PredictionTime in fractional hours.
// PredictedPower is in watts.
type PredictionRow struct {
	PredictionTime time.Time `db:"prediction_time" json:"prediction_time"`
	ModelID        int       `db:"model_id" json:"model_id"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	PredictedPower float64   `db:"predicted_power" json:"predicted_power"`
	Horizon        float64   `db:"horizon" json:"horizon"`
}

// ReadingRow is one measured production sample, in watts. Ground truth for
// the metrics engine.
type ReadingRow struct {
	Timestamp time.Time `db:"timestamp" json:"timestamp"`
	PlantID   int       `db:"plant_id" json:"plant_id"`
	PowerW    float64   `db:"power_w" json:"power_w"`
}

// HorizonMetricRow is one aggregated error value per (model, metric type,
// horizon bucket), aggregated across cycles.
type HorizonMetricRow struct {
	ModelID    int     `db:"model_id" json:"model_id"`
	MetricType string  `db:"metric_type" json:"metric_type"`
	Horizon    float64 `db:"horizon" json:"horizon"`
	Value      float64 `db:"value" json:"value"`
}

// CycleMetricRow is one aggregated error value per (cycle, model, metric
// type), aggregated across all horizons of the cycle.
type CycleMetricRow struct {
	TimeOfForecast time.Time `db:"time_of_forecast" json:"time_of_forecast"`
	ModelID        int       `db:"model_id" json:"model_id"`
	MetricType     string    `db:"metric_type" json:"metric_type"`
	Value          float64   `db:"value" json:"value"`
}

// PairedRow is a prediction joined to the matching reading on equal
// timestamps. Input to metric computation.
type PairedRow struct {
	PredictionTime time.Time `db:"prediction_time"`
	CreatedAt      time.Time `db:"created_at"`
	Horizon        float64   `db:"horizon"`
	Predicted      float64   `db:"predicted_power"`
	Actual         float64   `db:"power_w"`
}
