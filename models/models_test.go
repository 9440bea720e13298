package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seqIDs() func() string {
	n := 0
	return func() string {
		n++
		return "land-" + string(rune('0'+n))
	}
}

func TestNewFarm_GreenValley(t *testing.T) {
	in := FarmInput{
		Name:        "Green Valley Farm",
		Location:    "Punjab",
		Area:        "50",
		PrimaryCrop: "wheat",
		Lands:       []LandInput{{Name: "North Plot", Area: 50, X: 25, Y: 40}},
	}
	f, err := NewFarm(in, "owner-1", seqIDs(), time.Now())
	require.NoError(t, err)

	assert.Equal(t, "50 acres", f.Area)
	assert.Equal(t, 50.0, f.AreaValue)
	assert.Equal(t, "wheat", f.PrimaryCrop)
	require.Len(t, f.Lands, 1)
	assert.Equal(t, "North Plot", f.Lands[0].Name)
	assert.Equal(t, "land-1", f.Lands[0].ID)
	assert.Empty(t, f.Crops)
	assert.NotNil(t, f.Crops)
}

func TestFarmInput_Validate(t *testing.T) {
	lat := 30.9
	tests := []struct {
		name  string
		in    FarmInput
		field string
	}{
		{"missing name", FarmInput{Area: "5", Lands: []LandInput{{Name: "a", Area: 1}}}, "name"},
		{"missing area", FarmInput{Name: "x", Lands: []LandInput{{Name: "a", Area: 1}}}, "area"},
		{"non numeric area", FarmInput{Name: "x", Area: "lots", Lands: []LandInput{{Name: "a", Area: 1}}}, "area"},
		{"no lands", FarmInput{Name: "x", Area: "5"}, "lands"},
		{"land off canvas", FarmInput{Name: "x", Area: "5", Lands: []LandInput{{Name: "a", Area: 1, X: 120}}}, "lands[0]"},
		{"land without area", FarmInput{Name: "x", Area: "5", Lands: []LandInput{{Name: "a"}}}, "lands[0].area"},
		{"half coordinates", FarmInput{Name: "x", Area: "5", Lands: []LandInput{{Name: "a", Area: 1}}, Latitude: &lat}, "latitude"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestNewCrop_WheatFieldA(t *testing.T) {
	in := CropInput{
		FarmID:     "farm-1",
		Name:       "Wheat Field A",
		CropType:   "wheat",
		SowingDate: "2024-11-01",
		LandArea:   "12",
	}
	c, err := NewCrop(in, "owner-1", "Punjab", time.Now())
	require.NoError(t, err)

	assert.Equal(t, "Oct – Mar", c.SowingPeriod)
	assert.Equal(t, StagePlanting, c.CurrentStage)
	assert.Equal(t, Profile("wheat").Image, c.Image)
	assert.Equal(t, "12 acres", c.LandArea)
	assert.Equal(t, "Punjab", c.Location)
	assert.Equal(t, "farm-1", c.FarmID)
}

func TestNewCrop_UnknownType(t *testing.T) {
	c, err := NewCrop(CropInput{
		FarmID: "farm-1", Name: "Mystery", CropType: "other", SowingDate: "2024-03-10", LandArea: "2",
	}, "owner-1", "", time.Now())
	require.NoError(t, err)

	assert.Equal(t, DefaultSowingPeriod, c.SowingPeriod)
	assert.Equal(t, "Jan – Dec", c.SowingPeriod)
	assert.Equal(t, DefaultCropImage, c.Image)
}

func TestNewCrop_SingleActiveStage(t *testing.T) {
	for _, kind := range []string{"wheat", "rice", "other", ""} {
		c, err := NewCrop(CropInput{
			FarmID: "f", Name: "n", CropType: kind, SowingDate: "2024-11-01", LandArea: "1",
		}, "o", "", time.Now())
		require.NoError(t, err)
		require.Len(t, c.Stages, 4)
		assert.Equal(t, 1, c.ActiveStages(), kind)
		assert.True(t, c.Stages[0].IsActive)
		assert.Equal(t, "Planting Phase", c.Stages[0].Name)
		assert.Equal(t, "Nov 1, 2024", c.Stages[0].Date)
		assert.Equal(t, []string{StagePlanting, StageVegetative, StageFlowering, StageHarvesting},
			[]string{c.Stages[0].Name, c.Stages[1].Name, c.Stages[2].Name, c.Stages[3].Name})
	}
}

func TestNewCrop_ExplicitImageWins(t *testing.T) {
	c, err := NewCrop(CropInput{
		FarmID: "f", Name: "n", CropType: "wheat", SowingDate: "2024-11-01", LandArea: "1",
		Image: "https://cdn.example/wheat.jpg",
	}, "o", "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/wheat.jpg", c.Image)
}

func TestCropInput_RejectsBadDate(t *testing.T) {
	_, err := NewCrop(CropInput{FarmID: "f", Name: "n", SowingDate: "01/11/2024", LandArea: "1"}, "o", "", time.Now())
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "sowingDate", ve.Field)
}

func TestZeroReading(t *testing.T) {
	z := ZeroReading()
	assert.Equal(t, SensorReading{NPK: "0-0-0"}, z)
	assert.True(t, z.IsZero())
	assert.Equal(t, "12-8-10", SensorReading{N: 12, P: 8, K: 10}.WithNPK().NPK)

	b, err := json.Marshal(z)
	require.NoError(t, err)
	assert.JSONEq(t, `{"moisture":0,"ph":0,"n":0,"p":0,"k":0,"npk":"0-0-0"}`, string(b))
}

func TestCropControls_Set(t *testing.T) {
	var c CropControls
	assert.True(t, c.Set(ControlIrrigation, true))
	assert.True(t, c.Irrigation)
	assert.False(t, c.Set("lights", true))
}

func TestOfflineAnalytics(t *testing.T) {
	a := OfflineAnalytics("dial tcp: connection refused")
	assert.Equal(t, "offline", a.SystemStatus)
	assert.NotEmpty(t, a.Error)
	assert.Equal(t, 0.1, a.Policy.Epsilon)
	assert.Len(t, a.QTable, 3)
}
