package state

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/solarops/sunforecast/pkg/modelmanager"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fp(v float64) *float64 { return &v }

// fakeRegistry implements Registry in-memory.
type fakeRegistry struct {
	plants    []modelmanager.PowerPlant
	plantsErr error
	models    []modelmanager.ModelMetadata
	modelsErr error
	artifacts map[int][]byte
}

func (f *fakeRegistry) ActivePlants(ctx context.Context) ([]modelmanager.PowerPlant, error) {
	return f.plants, f.plantsErr
}

func (f *fakeRegistry) ActiveModels(ctx context.Context) ([]modelmanager.ModelMetadata, error) {
	return f.models, f.modelsErr
}

func (f *fakeRegistry) DownloadArtifact(ctx context.Context, modelID int) ([]byte, error) {
	raw, ok := f.artifacts[modelID]
	if !ok {
		return nil, fmt.Errorf("no artifact for model %d", modelID)
	}
	return raw, nil
}

func linearArtifact() []byte {
	return []byte(`{"estimator":"linear","weights":[1,1],"intercept":0}`)
}

func metadata(id, plantID int) modelmanager.ModelMetadata {
	return modelmanager.ModelMetadata{
		ID: id, PlantID: plantID,
		Features: []string{"shortwave_radiation", "hour"},
		FileType: "joblib",
		IsActive: true,
	}
}

func TestCache_Refresh(t *testing.T) {
	reg := &fakeRegistry{
		plants: []modelmanager.PowerPlant{
			{ID: 1, Latitude: fp(45.8), Longitude: fp(15.9), Capacity: fp(1000)},
			{ID: 2},
		},
		models: []modelmanager.ModelMetadata{metadata(7, 1), metadata(8, 1)},
		artifacts: map[int][]byte{
			7: linearArtifact(),
			8: linearArtifact(),
		},
	}
	c := NewCache(reg, discardLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	plants, models := c.Counts()
	if plants != 2 || models != 2 {
		t.Errorf("Counts() = (%d, %d), want (2, 2)", plants, models)
	}
	if got := c.ActiveModels(1); len(got) != 2 {
		t.Errorf("ActiveModels(1) = %d models, want 2", len(got))
	}
	if _, ok := c.Plant(1); !ok {
		t.Error("Plant(1) not found after refresh")
	}
	if _, ok := c.Model(7); !ok {
		t.Error("Model(7) not found after refresh")
	}
	if plantID, ok := c.ModelPlant(7); !ok || plantID != 1 {
		t.Errorf("ModelPlant(7) = (%d, %v), want (1, true)", plantID, ok)
	}
	if _, ok := c.ModelPlant(99); ok {
		t.Error("ModelPlant(99) should not resolve")
	}
}

func TestCache_RefreshSkipsBrokenModels(t *testing.T) {
	reg := &fakeRegistry{
		plants: []modelmanager.PowerPlant{{ID: 1, Latitude: fp(45.8), Longitude: fp(15.9)}},
		models: []modelmanager.ModelMetadata{
			metadata(7, 1),
			metadata(8, 1), // download fails: no artifact entry
			{ID: 9, PlantID: 1, Features: []string{"hour"}, FileType: "onnx"}, // decode fails
		},
		artifacts: map[int][]byte{
			7: linearArtifact(),
			9: linearArtifact(),
		},
	}
	c := NewCache(reg, discardLogger())

	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if got := c.ActiveModels(1); len(got) != 1 || got[0].Meta.ID != 7 {
		t.Errorf("ActiveModels(1) = %+v, want only model 7", got)
	}
}

func TestCache_RefreshKeepsPreviousOnListFailure(t *testing.T) {
	reg := &fakeRegistry{
		plants:    []modelmanager.PowerPlant{{ID: 1}},
		models:    []modelmanager.ModelMetadata{metadata(7, 1)},
		artifacts: map[int][]byte{7: linearArtifact()},
	}
	c := NewCache(reg, discardLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("initial Refresh() error = %v", err)
	}

	reg.plantsErr = errors.New("registry down")
	reg.modelsErr = errors.New("registry down")
	if err := c.Refresh(context.Background()); err == nil {
		t.Fatal("expected error when both listings fail")
	}

	plants, models := c.Counts()
	if plants != 1 || models != 1 {
		t.Errorf("Counts() after failed refresh = (%d, %d), want previous (1, 1)", plants, models)
	}
}

func TestCache_ConcurrentReadersDuringRefresh(t *testing.T) {
	reg := &fakeRegistry{
		plants:    []modelmanager.PowerPlant{{ID: 1}, {ID: 2}},
		models:    []modelmanager.ModelMetadata{metadata(7, 1)},
		artifacts: map[int][]byte{7: linearArtifact()},
	}
	c := NewCache(reg, discardLogger())
	if err := c.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				// A torn snapshot would show plants without their models.
				if plants := c.ActivePlants(); len(plants) != 2 {
					t.Errorf("ActivePlants() = %d plants, want 2", len(plants))
					return
				}
				c.ActiveModels(1)
				c.Counts()
			}
		}()
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if err := c.Refresh(context.Background()); err != nil {
					t.Errorf("Refresh() error = %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
