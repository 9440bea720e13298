package backend

import (
	"context"
	"testing"
	"time"

	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgres_FarmRowRoundTrip(t *testing.T) {
	lat, lon := 30.9, 75.8
	f := models.Farm{
		ID:          "2f1c7b1e-8a51-4c3e-9d0e-0c6f1a3b5d21",
		OwnerID:     "owner-1",
		Name:        "Green Valley Farm",
		Location:    "Punjab",
		Area:        "50 acres",
		AreaValue:   50,
		Lands:       []models.LandLocation{{ID: "land-1", Name: "North Plot", Area: 50, X: 25, Y: 40}},
		Crops:       []string{"crop-1"},
		PrimaryCrop: "wheat",
		Latitude:    &lat,
		Longitude:   &lon,
		CreatedAt:   time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
	}

	got := rowToFarm(farmToRow(f))
	assert.Empty(t, got.Crops, "crop ids are derived from crop rows")
	assert.NotNil(t, got.Crops)
	got.Crops = f.Crops
	assert.Equal(t, f, got)
}

func TestPostgres_CropRowRoundTrip(t *testing.T) {
	seeds := 1200
	c := models.Crop{
		ID:           "9b0d5f7a-3c2e-4e8f-a1b6-7d4c2e9f0a13",
		OwnerID:      "owner-1",
		FarmID:       "2f1c7b1e-8a51-4c3e-9d0e-0c6f1a3b5d21",
		Name:         "Wheat Field A",
		LandArea:     "12 acres",
		SowingDate:   "2024-11-01",
		CurrentStage: models.StagePlanting,
		Stages:       []models.CropStage{{Name: models.StagePlanting, Date: "Nov 1, 2024", IsActive: true}},
		SeedsPlanted: &seeds,
		CropType:     "wheat",
		CreatedAt:    time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, c, rowToCrop(cropToRow(c)))
}

func TestPostgres_DecodeNotification(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		table   Table
		owner   string
		want    Change
		ok      bool
		wantErr bool
	}{
		{
			name:    "owned insert",
			payload: `{"table":"crops","op":"insert","id":"c1","owner_id":"alice"}`,
			table:   TableCrops,
			owner:   "alice",
			want:    Change{Table: TableCrops, Op: OpInsert, ID: "c1"},
			ok:      true,
		},
		{
			name:    "owned delete",
			payload: `{"table":"farms","op":"delete","id":"f1","owner_id":"alice"}`,
			table:   TableFarms,
			owner:   "alice",
			want:    Change{Table: TableFarms, Op: OpDelete, ID: "f1"},
			ok:      true,
		},
		{
			name:    "other owner",
			payload: `{"table":"crops","op":"update","id":"c2","owner_id":"bob"}`,
			table:   TableCrops,
			owner:   "alice",
		},
		{
			name:    "other table",
			payload: `{"table":"farms","op":"insert","id":"f1","owner_id":"alice"}`,
			table:   TableCrops,
			owner:   "alice",
		},
		{
			name:    "garbage",
			payload: `not json`,
			table:   TableCrops,
			owner:   "alice",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := decodeNotification(tt.payload, tt.table, tt.owner)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// The guards below return before any query, so a zero Postgres is enough.
func TestPostgres_GuardsBeforeQuery(t *testing.T) {
	p := &Postgres{}
	ctx := context.Background()

	for _, id := range []string{"", "user-1", "507f1f77bcf86cd799439011"} {
		_, err := p.GetUser(ctx, id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}
	_, err := p.FindUser(ctx, "", "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = p.ListFarms(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = p.ListCrops(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = p.InsertCrop(ctx, models.Crop{Name: "x"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = p.Subscribe(ctx, TableFarms, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}
