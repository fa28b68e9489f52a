package modelmanager

// PowerPlant is a photovoltaic plant as registered in the model manager.
// Coordinates and capacity are nullable in the registry; a plant is only
// eligible for forecasting when both coordinates are present.
type PowerPlant struct {
	ID        int      `json:"id"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Capacity  *float64 `json:"capacity,omitempty"`
}

// HasCoordinates reports whether the plant can be forecast at all.
func (p PowerPlant) HasCoordinates() bool {
	return p.Latitude != nil && p.Longitude != nil
}

// ModelMetadata describes a trained model bound to a plant.
//
// Features is order-significant: it defines the column order of the feature
// matrix passed to inference. FileType selects the artifact decoder
// (joblib, pkl, pickle or zip).
type ModelMetadata struct {
	ID        int      `json:"id"`
	PlantID   int      `json:"plant_id"`
	Features  []string `json:"features"`
	FileType  string   `json:"file_type"`
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	PlantName string   `json:"plant_name"`
	IsActive  bool     `json:"is_active"`
}
