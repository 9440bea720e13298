package export

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestCropHistoryXLSX(t *testing.T) {
	reward := 0.8
	entries := []models.CropHistoryEntry{
		{Timestamp: time.Date(2024, 11, 2, 8, 0, 0, 0, time.UTC), Action: "irrigate", Outcome: "apply", Reward: &reward,
			Sensors: models.SensorReading{Moisture: 28, PH: 6.5, N: 12, P: 8, K: 10, NPK: "12-8-10"}},
		{Timestamp: time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC), Action: "fertilize", Outcome: "delay"},
	}
	var buf bytes.Buffer
	require.NoError(t, CropHistoryXLSX(&buf, models.Crop{Name: "Wheat Field A", CurrentStage: models.StagePlanting}, entries, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{historySheet}, f.GetSheetList())
	title, _ := f.GetCellValue(historySheet, "A1")
	assert.Equal(t, "Wheat Field A (Planting Phase)", title)
	header, _ := f.GetCellValue(historySheet, "B4")
	assert.Equal(t, "Action", header)
	first, _ := f.GetCellValue(historySheet, "B5")
	assert.Equal(t, "irrigate", first)
	npk, _ := f.GetCellValue(historySheet, "K5")
	assert.Equal(t, "12-8-10", npk)
	second, _ := f.GetCellValue(historySheet, "B6")
	assert.Equal(t, "fertilize", second)
}

func TestFarmsGeoJSON(t *testing.T) {
	lat, lon := 30.9, 75.85
	farms := []models.Farm{
		{ID: "f1", Name: "Green Valley Farm", Latitude: &lat, Longitude: &lon, Crops: []string{"c1"}},
		{ID: "f2", Name: "No Coordinates"},
	}
	fc := FarmsGeoJSON(farms, []models.Crop{{ID: "c1", Name: "Wheat Field A"}})
	require.Len(t, fc.Features, 1)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	var out struct {
		Features []struct {
			Geometry struct {
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, []float64{75.85, 30.9}, out.Features[0].Geometry.Coordinates)
	assert.Equal(t, []any{"Wheat Field A"}, out.Features[0].Properties["crops"])
}

func TestLandsGeoJSON(t *testing.T) {
	fc := LandsGeoJSON(models.Farm{ID: "f1", Lands: []models.LandLocation{{ID: "l1", Name: "North Plot", Area: 50, X: 25, Y: 40}}})
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "canvas", fc.Features[0].Properties["coordinateSpace"])
}
