package modelmanager

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClient_ActivePlants(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/power-plant/active" {
			t.Errorf("path = %q, want /internal/power-plant/active", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id": 1, "latitude": 45.8, "longitude": 15.9, "capacity": 1000},
			{"id": 2}
		]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	plants, err := client.ActivePlants(context.Background())
	if err != nil {
		t.Fatalf("ActivePlants() error = %v", err)
	}

	if len(plants) != 2 {
		t.Fatalf("len(plants) = %d, want 2", len(plants))
	}
	if !plants[0].HasCoordinates() {
		t.Error("plant 1 should have coordinates")
	}
	if plants[1].HasCoordinates() {
		t.Error("plant 2 should not have coordinates")
	}
	if plants[0].Capacity == nil || *plants[0].Capacity != 1000 {
		t.Errorf("plant 1 capacity = %v, want 1000", plants[0].Capacity)
	}
}

func TestClient_ActiveModels(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{
			"id": 7, "plant_id": 1,
			"features": ["shortwave_radiation", "hour", "capacity"],
			"file_type": "joblib", "name": "gbr-v2", "version": "2",
			"plant_name": "Zagreb East", "is_active": true
		}]`))
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	models, err := client.ActiveModels(context.Background())
	if err != nil {
		t.Fatalf("ActiveModels() error = %v", err)
	}

	if len(models) != 1 {
		t.Fatalf("len(models) = %d, want 1", len(models))
	}
	m := models[0]
	if m.ID != 7 || m.PlantID != 1 || m.FileType != "joblib" {
		t.Errorf("unexpected metadata: %+v", m)
	}
	want := []string{"shortwave_radiation", "hour", "capacity"}
	if len(m.Features) != len(want) {
		t.Fatalf("len(features) = %d, want %d", len(m.Features), len(want))
	}
	for i, f := range want {
		if m.Features[i] != f {
			t.Errorf("features[%d] = %q, want %q", i, m.Features[i], f)
		}
	}
}

func TestClient_DownloadArtifact(t *testing.T) {
	payload := []byte(`{"estimator":"linear","weights":[1],"intercept":0}`)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/models/7/download" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(payload)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	raw, err := client.DownloadArtifact(context.Background(), 7)
	if err != nil {
		t.Fatalf("DownloadArtifact() error = %v", err)
	}
	if string(raw) != string(payload) {
		t.Errorf("artifact = %q, want %q", raw, payload)
	}
}

func TestClient_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)
	_, err := client.Model(context.Background(), 99)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", apiErr.StatusCode)
	}
}

func TestClient_UnreachableServer(t *testing.T) {
	client := NewClient("http://127.0.0.1:1")
	if _, err := client.ActivePlants(context.Background()); err == nil {
		t.Fatal("expected error for unreachable server")
	}
}
