package openmeteo

import "time"

// Point is one 15-minute weather sample. All channels are nullable: the
// provider omits channels it cannot produce for a location, and individual
// samples may be null inside an otherwise present channel.
type Point struct {
	Time                      time.Time
	Temperature2m             *float64
	RelativeHumidity2m        *float64
	CloudCover                *float64
	CloudCoverLow             *float64
	CloudCoverMid             *float64
	WindSpeed10m              *float64
	WindDirection10m          *float64
	ShortwaveRadiation        *float64
	ShortwaveRadiationInstant *float64
	DiffuseRadiation          *float64
	DiffuseRadiationInstant   *float64
	DirectNormalIrradiance    *float64
	DirectRadiationInstant    *float64
	ET0FAOEvapotranspiration  *float64
	VapourPressureDeficit     *float64
	IsDay                     *float64
	SunshineDuration          *float64
}

// Forecast is the converted provider response for one plant and one cycle.
// FetchTime is the hour-quantized instant at which the fetch was initiated
// and serves as the cycle identifier (created_at) for every forecast row and
// prediction derived from it.
type Forecast struct {
	PlantID   int
	Latitude  float64
	Longitude float64
	Timezone  string
	Elevation float64
	FetchTime time.Time
	Points    []Point
}

// apiResponse mirrors the provider's top-level JSON document.
type apiResponse struct {
	Latitude   float64       `json:"latitude"`
	Longitude  float64       `json:"longitude"`
	Timezone   string        `json:"timezone"`
	Elevation  float64       `json:"elevation"`
	Minutely15 minutelyBlock `json:"minutely_15"`
}

// minutelyBlock holds the provider's parallel arrays: one timestamp array
// plus one value array per requested channel, all index-aligned.
type minutelyBlock struct {
	Time                      []string   `json:"time"`
	Temperature2m             []*float64 `json:"temperature_2m"`
	RelativeHumidity2m        []*float64 `json:"relative_humidity_2m"`
	CloudCover                []*float64 `json:"cloud_cover"`
	CloudCoverLow             []*float64 `json:"cloud_cover_low"`
	CloudCoverMid             []*float64 `json:"cloud_cover_mid"`
	WindSpeed10m              []*float64 `json:"wind_speed_10m"`
	WindDirection10m          []*float64 `json:"wind_direction_10m"`
	ShortwaveRadiation        []*float64 `json:"shortwave_radiation"`
	ShortwaveRadiationInstant []*float64 `json:"shortwave_radiation_instant"`
	DiffuseRadiation          []*float64 `json:"diffuse_radiation"`
	DiffuseRadiationInstant   []*float64 `json:"diffuse_radiation_instant"`
	DirectNormalIrradiance    []*float64 `json:"direct_normal_irradiance"`
	DirectRadiationInstant    []*float64 `json:"direct_radiation_instant"`
	ET0FAOEvapotranspiration  []*float64 `json:"et0_fao_evapotranspiration"`
	VapourPressureDeficit     []*float64 `json:"vapour_pressure_deficit"`
	IsDay                     []*float64 `json:"is_day"`
	SunshineDuration          []*float64 `json:"sunshine_duration"`
}

// valueAt safely reads a parallel array at index i; absent channels and
// short arrays yield nil.
func valueAt(arr []*float64, i int) *float64 {
	if arr == nil || i >= len(arr) {
		return nil
	}
	return arr[i]
}
