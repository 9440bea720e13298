package realtime

import (
	"context"
	"testing"
	"time"

	"cropwise/backend"
	"cropwise/models"
	"cropwise/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSync_RemoteInsertReachesStore(t *testing.T) {
	be := backend.NewMemory()
	st := store.New(be, "alice", store.Options{})
	rt := New(be, st, nil)
	require.NoError(t, rt.Start(context.Background(), "alice"))
	defer rt.Stop()

	// another device inserts a farm directly
	f, err := be.InsertFarm(context.Background(), models.Farm{OwnerID: "alice", Name: "Remote"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, ok := st.Farm(f.ID)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_IgnoresOtherOwners(t *testing.T) {
	be := backend.NewMemory()
	st := store.New(be, "alice", store.Options{})
	rt := New(be, st, nil)
	require.NoError(t, rt.Start(context.Background(), "alice"))
	defer rt.Stop()

	_, err := be.InsertFarm(context.Background(), models.Farm{OwnerID: "bob", Name: "Other"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, be.ListCalls(backend.TableFarms))
}

func TestSync_RemoteDeleteRemovesCrop(t *testing.T) {
	be := backend.NewMemory()
	ctx := context.Background()
	c, err := be.InsertCrop(ctx, models.Crop{OwnerID: "alice", Name: "Wheat"})
	require.NoError(t, err)
	st := store.New(be, "alice", store.Options{})
	require.NoError(t, st.Refresh(ctx))

	rt := New(be, st, nil)
	require.NoError(t, rt.Start(ctx, "alice"))
	defer rt.Stop()

	be.DeleteCrop("alice", c.ID)
	require.Eventually(t, func() bool {
		_, ok := st.Crop(c.ID)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSync_StopClosesSubscriptions(t *testing.T) {
	be := backend.NewMemory()
	rt := New(be, store.New(be, "alice", store.Options{}), nil)
	require.NoError(t, rt.Start(context.Background(), "alice"))
	assert.Equal(t, 2, be.Subscribers())

	rt.Stop()
	assert.Zero(t, be.Subscribers())
	_, running := rt.Owner()
	assert.False(t, running)

	// no refetch after teardown
	calls := be.ListCalls(backend.TableFarms)
	_, err := be.InsertFarm(context.Background(), models.Farm{OwnerID: "alice"})
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, calls, be.ListCalls(backend.TableFarms))

	rt.Stop()
}

func TestSync_IdentityChangeReplacesSubscriptions(t *testing.T) {
	be := backend.NewMemory()
	rt := New(be, store.New(be, "alice", store.Options{}), nil)
	require.NoError(t, rt.Start(context.Background(), "alice"))
	require.NoError(t, rt.Start(context.Background(), "alice"))
	assert.Equal(t, 2, be.Subscribers())

	require.NoError(t, rt.Start(context.Background(), "bob"))
	owner, running := rt.Owner()
	assert.True(t, running)
	assert.Equal(t, "bob", owner)
	assert.Equal(t, 2, be.Subscribers())
	rt.Stop()
}

func TestSync_RequiresOwner(t *testing.T) {
	be := backend.NewMemory()
	rt := New(be, store.New(be, "", store.Options{}), nil)
	assert.ErrorIs(t, rt.Start(context.Background(), ""), backend.ErrNotAuthenticated)
}
