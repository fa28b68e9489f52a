package openmeteo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the public Open-Meteo forecast endpoint.
	DefaultBaseURL = "https://api.open-meteo.com/v1/forecast"

	// forecastWindow is the length of the requested forecast.
	forecastWindow = 72 * time.Hour

	// timeLayout is the local-time layout Open-Meteo uses for minutely_15
	// bounds and timestamps.
	timeLayout = "2006-01-02T15:04"
)

// channels lists every minutely_15 variable requested from the provider, in
// the order the conversion expects.
var channels = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"cloud_cover",
	"cloud_cover_low",
	"cloud_cover_mid",
	"wind_speed_10m",
	"wind_direction_10m",
	"shortwave_radiation",
	"shortwave_radiation_instant",
	"diffuse_radiation",
	"diffuse_radiation_instant",
	"direct_normal_irradiance",
	"direct_radiation_instant",
	"et0_fao_evapotranspiration",
	"vapour_pressure_deficit",
	"is_day",
	"sunshine_duration",
}

// Client fetches 15-minute weather forecasts from Open-Meteo.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	timezone   *time.Location
	httpClient *http.Client
}

// NewClient creates a client for the Open-Meteo API. An empty baseURL selects
// the public endpoint. Timestamps in requests and responses are interpreted
// in loc.
func NewClient(baseURL string, loc *time.Location) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		timezone: loc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetBaseURL overrides the API endpoint. Used in tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// Plant is the subset of plant registry data the client needs to issue a
// forecast request.
type Plant struct {
	ID        int
	Latitude  float64
	Longitude float64
}

// Fetch requests a 72-hour 15-minute forecast for the plant's coordinates
// starting at cycleStart, which must already be quantized to the hour.
//
// The first raw sample (timestamped exactly at cycleStart) is dropped, so
// the returned points begin 15 minutes into the window.
func (c *Client) Fetch(ctx context.Context, plant Plant, cycleStart time.Time) (*Forecast, error) {
	start := cycleStart.In(c.timezone)
	end := start.Add(forecastWindow)

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(plant.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(plant.Longitude, 'f', -1, 64))
	q.Set("minutely_15", strings.Join(channels, ","))
	q.Set("start_minutely_15", start.Format(timeLayout))
	q.Set("end_minutely_15", end.Format(timeLayout))
	q.Set("timezone", c.timezone.String())

	reqURL := c.baseURL + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch forecast for plant %d: %w", plant.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var raw apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode forecast for plant %d: %w", plant.ID, err)
	}

	points, err := c.convert(raw.Minutely15)
	if err != nil {
		return nil, fmt.Errorf("convert forecast for plant %d: %w", plant.ID, err)
	}

	return &Forecast{
		PlantID:   plant.ID,
		Latitude:  raw.Latitude,
		Longitude: raw.Longitude,
		Timezone:  raw.Timezone,
		Elevation: raw.Elevation,
		FetchTime: cycleStart,
		Points:    points,
	}, nil
}

// convert turns the provider's parallel arrays into typed points and drops
// the sample at the window start.
func (c *Client) convert(block minutelyBlock) ([]Point, error) {
	if len(block.Time) == 0 {
		return nil, ErrEmptyForecast
	}

	points := make([]Point, 0, len(block.Time)-1)
	for i, ts := range block.Time {
		if i == 0 {
			continue
		}
		t, err := time.ParseInLocation(timeLayout, ts, c.timezone)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", ts, err)
		}
		points = append(points, Point{
			Time:                      t,
			Temperature2m:             valueAt(block.Temperature2m, i),
			RelativeHumidity2m:        valueAt(block.RelativeHumidity2m, i),
			CloudCover:                valueAt(block.CloudCover, i),
			CloudCoverLow:             valueAt(block.CloudCoverLow, i),
			CloudCoverMid:             valueAt(block.CloudCoverMid, i),
			WindSpeed10m:              valueAt(block.WindSpeed10m, i),
			WindDirection10m:          valueAt(block.WindDirection10m, i),
			ShortwaveRadiation:        valueAt(block.ShortwaveRadiation, i),
			ShortwaveRadiationInstant: valueAt(block.ShortwaveRadiationInstant, i),
			DiffuseRadiation:          valueAt(block.DiffuseRadiation, i),
			DiffuseRadiationInstant:   valueAt(block.DiffuseRadiationInstant, i),
			DirectNormalIrradiance:    valueAt(block.DirectNormalIrradiance, i),
			DirectRadiationInstant:    valueAt(block.DirectRadiationInstant, i),
			ET0FAOEvapotranspiration:  valueAt(block.ET0FAOEvapotranspiration, i),
			VapourPressureDeficit:     valueAt(block.VapourPressureDeficit, i),
			IsDay:                     valueAt(block.IsDay, i),
			SunshineDuration:          valueAt(block.SunshineDuration, i),
		})
	}
	if len(points) == 0 {
		return nil, ErrEmptyForecast
	}
	return points, nil
}
