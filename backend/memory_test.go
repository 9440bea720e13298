package backend

import (
	"context"
	"testing"
	"time"

	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestMemory_RequiresOwner(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	_, err := b.ListFarms(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = b.ListCrops(ctx, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = b.InsertFarm(ctx, models.Farm{Name: "x"})
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	_, err = b.Subscribe(ctx, TableFarms, "")
	assert.ErrorIs(t, err, ErrNotAuthenticated)
	assert.Zero(t, b.ListCalls(TableFarms))
}

func TestMemory_OwnerScoping(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	_, err := b.InsertFarm(ctx, models.Farm{OwnerID: "alice", Name: "A"})
	require.NoError(t, err)
	_, err = b.InsertFarm(ctx, models.Farm{OwnerID: "bob", Name: "B"})
	require.NoError(t, err)

	farms, err := b.ListFarms(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, farms, 1)
	assert.Equal(t, "A", farms[0].Name)
	assert.NotEmpty(t, farms[0].ID)
}

func TestMemory_SubscribeDeliversOwnedChanges(t *testing.T) {
	b := NewMemory()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, TableCrops, "alice")
	require.NoError(t, err)
	defer sub.Close()

	_, err = b.InsertCrop(ctx, models.Crop{OwnerID: "bob", Name: "other"})
	require.NoError(t, err)
	c, err := b.InsertCrop(ctx, models.Crop{OwnerID: "alice", Name: "mine"})
	require.NoError(t, err)

	select {
	case ev := <-sub.Events():
		assert.Equal(t, Change{Table: TableCrops, Op: OpInsert, ID: c.ID}, ev)
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
}

func TestMemory_CloseStopsFeed(t *testing.T) {
	b := NewMemory()
	sub, err := b.Subscribe(context.Background(), TableFarms, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, b.Subscribers())

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	assert.Zero(t, b.Subscribers())

	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestMemory_UpdateCropImageNotFound(t *testing.T) {
	b := NewMemory()
	c, err := b.InsertCrop(context.Background(), models.Crop{OwnerID: "alice"})
	require.NoError(t, err)

	_, err = b.UpdateCropImage(context.Background(), "bob", c.ID, "u")
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := b.UpdateCropImage(context.Background(), "alice", c.ID, "https://img/x.jpg")
	require.NoError(t, err)
	assert.Equal(t, "https://img/x.jpg", got.Image)
}

func TestMemory_DuplicateUser(t *testing.T) {
	b := NewMemory()
	_, err := b.CreateUser(context.Background(), models.User{Email: "a@b.c"})
	require.NoError(t, err)
	_, err = b.CreateUser(context.Background(), models.User{Email: "a@b.c"})
	assert.ErrorIs(t, err, ErrDuplicate)

	u, err := b.FindUser(context.Background(), "a@b.c", "")
	require.NoError(t, err)
	assert.Equal(t, "a@b.c", u.Email)

	byID, err := b.GetUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, byID.Email)
	_, err = b.GetUser(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMongoOp(t *testing.T) {
	assert.Equal(t, OpUpdate, mongoOp("replace"))
	assert.Equal(t, OpDelete, mongoOp("delete"))
	assert.Equal(t, OpResync, mongoOp("invalidate"))
}
