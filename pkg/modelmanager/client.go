// Package modelmanager provides a typed read client for the model-manager
// service, which owns the plant registry and model artifact storage.
package modelmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is an HTTP client for the model-manager service.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the model-manager at baseURL.
// The baseURL should include the scheme and host (e.g. "http://model-manager:8000").
// A default timeout of 30 seconds is used for HTTP requests.
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, 30*time.Second)
}

// NewClientWithTimeout creates a client with a custom request timeout.
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: trimTrailingSlash(baseURL),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// APIError represents a non-2xx response from the model manager.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("model manager error %d: %s", e.StatusCode, e.Message)
}

// ActivePlants fetches all plants flagged active in the registry.
func (c *Client) ActivePlants(ctx context.Context) ([]PowerPlant, error) {
	var plants []PowerPlant
	if err := c.getJSON(ctx, "/internal/power-plant/active", &plants); err != nil {
		return nil, fmt.Errorf("fetch active power plants: %w", err)
	}
	return plants, nil
}

// ActiveModels fetches metadata for every active model across all plants.
func (c *Client) ActiveModels(ctx context.Context) ([]ModelMetadata, error) {
	var models []ModelMetadata
	if err := c.getJSON(ctx, "/internal/models/active", &models); err != nil {
		return nil, fmt.Errorf("fetch active models: %w", err)
	}
	return models, nil
}

// PlantModels fetches metadata for all models bound to one plant.
func (c *Client) PlantModels(ctx context.Context, plantID int) ([]ModelMetadata, error) {
	var models []ModelMetadata
	path := fmt.Sprintf("/power_plant/%d/models", plantID)
	if err := c.getJSON(ctx, path, &models); err != nil {
		return nil, fmt.Errorf("fetch models for plant %d: %w", plantID, err)
	}
	return models, nil
}

// Model fetches metadata for a single model.
func (c *Client) Model(ctx context.Context, modelID int) (*ModelMetadata, error) {
	var meta ModelMetadata
	path := fmt.Sprintf("/models/%d", modelID)
	if err := c.getJSON(ctx, path, &meta); err != nil {
		return nil, fmt.Errorf("fetch model %d: %w", modelID, err)
	}
	return &meta, nil
}

// DownloadArtifact fetches the opaque serialized artifact bytes for a model.
// The model manager serves artifacts as application/octet-stream; any other
// content type is tolerated with a warning left to the caller's logging.
func (c *Client) DownloadArtifact(ctx context.Context, modelID int) ([]byte, error) {
	path := fmt.Sprintf("/internal/models/%d/download", modelID)
	resp, err := c.get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("download model %d: %w", modelID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read artifact for model %d: %w", modelID, err)
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, err := c.get(ctx, path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func trimTrailingSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
