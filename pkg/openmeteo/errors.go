package openmeteo

import "fmt"

// APIError represents a non-200 response from the Open-Meteo API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("open-meteo error %d: %s", e.StatusCode, e.Body)
}

// ErrEmptyForecast is returned when the provider responds with 200 but no
// usable samples remain after conversion.
var ErrEmptyForecast = fmt.Errorf("open-meteo: forecast contains no samples")
