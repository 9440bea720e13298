// Package backend is the backend-as-a-service boundary: owner-scoped farm, crop and
// user rows plus a realtime change feed per table. Drivers: mongo (change streams),
// postgres (gorm + LISTEN/NOTIFY) and an in-memory store used in tests and local runs.
package backend

import (
	"context"
	"errors"
	"sync"

	"cropwise/models"
)

var (
	// ErrNotAuthenticated is returned before any I/O when no owner id is supplied.
	ErrNotAuthenticated = errors.New("backend: not authenticated")
	ErrNotFound         = errors.New("backend: not found")
	ErrDuplicate        = errors.New("backend: duplicate")
)

type Table string

const (
	TableFarms Table = "farms"
	TableCrops Table = "crops"
)

type ChangeOp string

const (
	OpInsert ChangeOp = "insert"
	OpUpdate ChangeOp = "update"
	OpDelete ChangeOp = "delete"
	// OpResync is emitted after a feed reconnects and changes may have been missed.
	OpResync ChangeOp = "resync"
)

// Change is one row-level notification.
type Change struct {
	Table Table    `json:"table"`
	Op    ChangeOp `json:"op"`
	ID    string   `json:"id,omitempty"`
}

// Subscription is an open change feed. Events is closed once the feed stops.
type Subscription interface {
	Events() <-chan Change
	Close() error
}

// Backend is implemented by every storage driver.
type Backend interface {
	ListFarms(ctx context.Context, ownerID string) ([]models.Farm, error)
	ListCrops(ctx context.Context, ownerID string) ([]models.Crop, error)
	// InsertFarm stores f and echoes it back with the assigned id.
	InsertFarm(ctx context.Context, f models.Farm) (models.Farm, error)
	InsertCrop(ctx context.Context, c models.Crop) (models.Crop, error)
	UpdateCropImage(ctx context.Context, ownerID, cropID, url string) (models.Crop, error)

	CreateUser(ctx context.Context, u models.User) (models.User, error)
	// FindUser looks a user up by email, or by phone when email is empty.
	FindUser(ctx context.Context, email, phone string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, error)

	// Subscribe opens a change feed for table filtered to ownerID's rows.
	Subscribe(ctx context.Context, table Table, ownerID string) (Subscription, error)
	Close(ctx context.Context) error
}

func requireOwner(ownerID string) error {
	if ownerID == "" {
		return ErrNotAuthenticated
	}
	return nil
}

// feed adapts a blocking producer loop to Subscription.
type feed struct {
	events chan Change
	cancel context.CancelFunc
	done   chan struct{}
	closer func() error
	once   sync.Once
	err    error
}

// newFeed runs produce in its own goroutine until ctx is cancelled or produce
// returns. closer runs after the producer has exited.
func newFeed(ctx context.Context, produce func(ctx context.Context, emit func(Change) bool), closer func() error) *feed {
	ctx, cancel := context.WithCancel(ctx)
	f := &feed{
		events: make(chan Change, 16),
		cancel: cancel,
		done:   make(chan struct{}),
		closer: closer,
	}
	emit := func(c Change) bool {
		select {
		case f.events <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}
	go func() {
		defer close(f.done)
		defer close(f.events)
		produce(ctx, emit)
	}()
	return f
}

func (f *feed) Events() <-chan Change { return f.events }

func (f *feed) Close() error {
	f.once.Do(func() {
		f.cancel()
		// drain so a producer blocked on emit can observe cancellation
		go func() {
			for range f.events {
			}
		}()
		<-f.done
		if f.closer != nil {
			f.err = f.closer()
		}
	})
	return f.err
}

var (
	_ Backend = (*Mongo)(nil)
	_ Backend = (*Postgres)(nil)
	_ Backend = (*Memory)(nil)
)
