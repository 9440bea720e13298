package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"cropwise/backend"
	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFarm(t *testing.T) models.Farm {
	t.Helper()
	f, err := models.NewFarm(models.FarmInput{
		Name: "Green Valley Farm", Location: "Punjab", Area: "50",
		Lands: []models.LandInput{{Name: "North Plot", Area: 50, X: 25, Y: 40}},
	}, "", func() string { return "l1" }, time.Now())
	require.NoError(t, err)
	return f
}

func newCrop(t *testing.T, farmID string) models.Crop {
	t.Helper()
	c, err := models.NewCrop(models.CropInput{
		FarmID: farmID, Name: "Wheat Field A", CropType: "wheat", SowingDate: "2024-11-01", LandArea: "12",
	}, "", "Punjab", time.Now())
	require.NoError(t, err)
	return c
}

func TestAddFarmAndCrop_Linked(t *testing.T) {
	be := backend.NewMemory()
	s := New(be, "alice", Options{})
	ctx := context.Background()

	farmID, ok := s.AddFarm(ctx, newFarm(t))
	require.True(t, ok)
	require.NotEmpty(t, farmID)

	require.True(t, s.AddCrop(ctx, newCrop(t, farmID), farmID))

	f, ok := s.Farm(farmID)
	require.True(t, ok)
	require.Len(t, f.Crops, 1)
	crops := s.CropsForFarm(farmID)
	require.Len(t, crops, 1)
	assert.Equal(t, f.Crops[0], crops[0].ID)
	assert.Equal(t, "alice", crops[0].OwnerID)
	assert.Equal(t, models.CropControls{}, s.CropControl(crops[0].ID))
	assert.True(t, s.AuthState().Onboarded)
}

func TestMerge_Idempotent(t *testing.T) {
	be := backend.NewMemory()
	s := New(be, "alice", Options{})
	ctx := context.Background()

	farmID, _ := s.AddFarm(ctx, newFarm(t))
	require.True(t, s.AddCrop(ctx, newCrop(t, farmID), farmID))
	crop := s.AllCrops()[0]

	// an echo and a realtime refetch racing each other must not duplicate
	s.mu.Lock()
	s.mergeCropLocked(crop)
	s.mergeCropLocked(crop)
	s.mu.Unlock()
	require.NoError(t, s.Refresh(ctx))
	s.mu.Lock()
	s.mergeCropLocked(crop)
	s.mu.Unlock()

	assert.Len(t, s.AllCrops(), 1)
	assert.Len(t, s.Farms(), 1)
	f, _ := s.Farm(farmID)
	assert.Equal(t, []string{crop.ID}, f.Crops)
}

func TestRefresh_RebuildsLinks(t *testing.T) {
	be := backend.NewMemory()
	ctx := context.Background()
	f, err := be.InsertFarm(ctx, withOwner(newFarm(t), "alice"))
	require.NoError(t, err)
	c := newCrop(t, f.ID)
	c.OwnerID = "alice"
	c, err = be.InsertCrop(ctx, c)
	require.NoError(t, err)

	s := New(be, "alice", Options{})
	require.NoError(t, s.Refresh(ctx))

	got, ok := s.Farm(f.ID)
	require.True(t, ok)
	assert.Equal(t, []string{c.ID}, got.Crops)
	assert.True(t, s.AuthState().Ready)
}

func withOwner(f models.Farm, owner string) models.Farm {
	f.OwnerID = owner
	return f
}

func TestRefresh_FailureKeepsState(t *testing.T) {
	be := backend.NewMemory()
	s := New(be, "alice", Options{})
	ctx := context.Background()
	farmID, _ := s.AddFarm(ctx, newFarm(t))

	be.Fail(errors.New("network down"))
	err := s.Refresh(ctx)
	require.Error(t, err)

	_, ok := s.Farm(farmID)
	assert.True(t, ok)
	assert.True(t, s.AuthState().Ready)
}

func TestAddFarm_FailureReturnsEmptyID(t *testing.T) {
	be := backend.NewMemory()
	be.Fail(errors.New("insert rejected"))
	s := New(be, "alice", Options{})

	id, ok := s.AddFarm(context.Background(), newFarm(t))
	assert.False(t, ok)
	assert.Empty(t, id)
	assert.Empty(t, s.Farms())
	assert.False(t, s.AddCrop(context.Background(), newCrop(t, "f"), "f"))
}

func TestAddFarm_NotAuthenticated(t *testing.T) {
	s := New(backend.NewMemory(), "", Options{})
	id, ok := s.AddFarm(context.Background(), newFarm(t))
	assert.False(t, ok)
	assert.Empty(t, id)
}

func TestCropControls(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{})
	assert.True(t, s.SetCropControl("c1", models.ControlIrrigation, true))
	assert.False(t, s.SetCropControl("c1", "lights", true))
	assert.Equal(t, models.CropControls{Irrigation: true}, s.CropControl("c1"))
}

func TestHistory_NewestFirstAndBounded(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{HistoryLimit: 3})
	base := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		s.AddCropHistory(models.CropHistoryEntry{
			CropID: "c1", Action: "irrigate", Timestamp: base.Add(time.Duration(i) * time.Hour),
		})
	}
	h := s.CropHistory("c1")
	require.Len(t, h, 3)
	assert.Equal(t, base.Add(4*time.Hour), h[0].Timestamp)
	assert.Equal(t, base.Add(2*time.Hour), h[2].Timestamp)
	assert.NotEmpty(t, h[0].ID)
	assert.Empty(t, s.CropHistory("other"))
}

func TestHealthDetections_NewestFirst(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{})
	s.AddHealthDetection(models.HealthDetectionResult{CropID: "c1", Disease: "rust"})
	s.AddHealthDetection(models.HealthDetectionResult{CropID: "c2", Disease: "blight"})
	d := s.HealthDetections()
	require.Len(t, d, 2)
	assert.Equal(t, "blight", d[0].Disease)
}

func TestLogin_Transitions(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{})
	events, cancel := s.Subscribe()
	defer cancel()

	assert.True(t, s.Login("a@b.c", ""))
	assert.False(t, s.Login("a@b.c", ""))
	assert.Equal(t, Event{Kind: EventAuth}, <-events)

	assert.True(t, s.Logout())
	assert.False(t, s.AuthState().LoggedIn)
}

func TestLogout_KeepsCache(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{})
	s.Login("a@b.c", "")
	farmID, _ := s.AddFarm(context.Background(), newFarm(t))
	s.Logout()
	_, ok := s.Farm(farmID)
	assert.True(t, ok)
}

func TestSubscribe_SlowObserverDoesNotBlock(t *testing.T) {
	s := New(backend.NewMemory(), "alice", Options{})
	_, cancel := s.Subscribe()
	defer cancel()
	for i := 0; i < 100; i++ {
		s.SetCropControl("c1", models.ControlIrrigation, i%2 == 0)
	}
}

func TestRing(t *testing.T) {
	r := newRing[int](2)
	assert.Empty(t, r.newestFirst())
	r.push(1)
	assert.Equal(t, []int{1}, r.newestFirst())
	r.push(2)
	r.push(3)
	assert.Equal(t, []int{3, 2}, r.newestFirst())
}
