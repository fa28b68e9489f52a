// Package state holds the read-mostly snapshot of active plants and decoded
// models. The prediction pipeline is the only writer; HTTP handlers and the
// playground are readers.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/solarops/sunforecast/pkg/mlmodel"
	"github.com/solarops/sunforecast/pkg/modelmanager"
)

// Registry is the slice of the model-manager API the cache depends on.
type Registry interface {
	ActivePlants(ctx context.Context) ([]modelmanager.PowerPlant, error)
	ActiveModels(ctx context.Context) ([]modelmanager.ModelMetadata, error)
	DownloadArtifact(ctx context.Context, modelID int) ([]byte, error)
}

// Cache is the single owner of the current active-plant / active-model view.
// Refresh builds new maps into locals and swaps them under the write lock,
// so readers always see either the whole old snapshot or the whole new one.
type Cache struct {
	registry Registry
	logger   *slog.Logger

	mu     sync.RWMutex
	plants map[int]modelmanager.PowerPlant
	models map[int][]*mlmodel.Model
}

// NewCache creates an empty cache. It holds no state until the first
// Refresh.
func NewCache(registry Registry, logger *slog.Logger) *Cache {
	return &Cache{
		registry: registry,
		logger:   logger,
		plants:   map[int]modelmanager.PowerPlant{},
		models:   map[int][]*mlmodel.Model{},
	}
}

// Refresh repopulates plants and models from the registry. Per-model
// download or decode failures skip that model and keep the rest; a failed
// plant or model listing keeps the previous map for that half of the state.
// Previous decoded models are released by the swap.
func (c *Cache) Refresh(ctx context.Context) error {
	var firstErr error

	newPlants, err := c.fetchPlants(ctx)
	if err != nil {
		firstErr = err
	}
	newModels, err := c.fetchModels(ctx)
	if err != nil && firstErr == nil {
		firstErr = err
	}

	c.mu.Lock()
	if newPlants != nil {
		c.plants = newPlants
	}
	if newModels != nil {
		c.models = newModels
	}
	c.mu.Unlock()

	return firstErr
}

func (c *Cache) fetchPlants(ctx context.Context) (map[int]modelmanager.PowerPlant, error) {
	plants, err := c.registry.ActivePlants(ctx)
	if err != nil {
		c.logger.Error("refresh: active plants fetch failed, keeping previous", "error", err)
		return nil, fmt.Errorf("refresh plants: %w", err)
	}
	m := make(map[int]modelmanager.PowerPlant, len(plants))
	for _, p := range plants {
		m[p.ID] = p
	}
	return m, nil
}

func (c *Cache) fetchModels(ctx context.Context) (map[int][]*mlmodel.Model, error) {
	metas, err := c.registry.ActiveModels(ctx)
	if err != nil {
		c.logger.Error("refresh: active models fetch failed, keeping previous", "error", err)
		return nil, fmt.Errorf("refresh models: %w", err)
	}

	m := make(map[int][]*mlmodel.Model)
	for _, meta := range metas {
		raw, err := c.registry.DownloadArtifact(ctx, meta.ID)
		if err != nil {
			c.logger.Error("refresh: artifact download failed, skipping model",
				"model_id", meta.ID, "plant_id", meta.PlantID, "error", err)
			continue
		}
		model, err := mlmodel.Decode(meta, raw)
		if err != nil {
			c.logger.Error("refresh: artifact decode failed, skipping model",
				"model_id", meta.ID, "plant_id", meta.PlantID, "file_type", meta.FileType, "error", err)
			continue
		}
		m[meta.PlantID] = append(m[meta.PlantID], model)
	}
	return m, nil
}

// ActivePlants returns the current plant snapshot.
func (c *Cache) ActivePlants() []modelmanager.PowerPlant {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]modelmanager.PowerPlant, 0, len(c.plants))
	for _, p := range c.plants {
		out = append(out, p)
	}
	return out
}

// Plant looks up one plant by ID.
func (c *Cache) Plant(id int) (modelmanager.PowerPlant, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.plants[id]
	return p, ok
}

// ActiveModels returns the decoded models bound to a plant.
func (c *Cache) ActiveModels(plantID int) []*mlmodel.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.models[plantID]
}

// Model looks up one decoded model by ID across all plants.
func (c *Cache) Model(modelID int) (*mlmodel.Model, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, list := range c.models {
		for _, m := range list {
			if m.Meta.ID == modelID {
				return m, true
			}
		}
	}
	return nil, false
}

// ModelPlant resolves the plant a model is bound to.
func (c *Cache) ModelPlant(modelID int) (int, bool) {
	m, ok := c.Model(modelID)
	if !ok {
		return 0, false
	}
	return m.Meta.PlantID, true
}

// Counts reports snapshot sizes for the status probe.
func (c *Cache) Counts() (plants, models int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, list := range c.models {
		models += len(list)
	}
	return len(c.plants), models
}
