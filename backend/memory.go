package backend

import (
	"context"
	"sort"
	"sync"
	"time"

	"cropwise/models"

	"github.com/google/uuid"
)

type memSub struct {
	table   Table
	ownerID string
	in      chan Change
}

// Memory is an in-process Backend. It backs local runs without a database and
// the package tests elsewhere in the module. Fail injects an error into every
// read and write.
type Memory struct {
	mu    sync.Mutex
	users map[string]models.User
	farms map[string]models.Farm
	crops map[string]models.Crop
	subs  map[*memSub]struct{}
	err   error

	listCalls map[Table]int
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[string]models.User{},
		farms:     map[string]models.Farm{},
		crops:     map[string]models.Crop{},
		subs:      map[*memSub]struct{}{},
		listCalls: map[Table]int{},
	}
}

// Fail makes subsequent calls return err until Fail(nil).
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// ListCalls reports how many list queries table has served.
func (m *Memory) ListCalls(t Table) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls[t]
}

// Subscribers reports the number of open change feeds.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) ListFarms(_ context.Context, ownerID string) ([]models.Farm, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[TableFarms]++
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Farm{}
	for _, f := range m.farms {
		if f.OwnerID == ownerID {
			out = append(out, f.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) ListCrops(_ context.Context, ownerID string) ([]models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls[TableCrops]++
	if m.err != nil {
		return nil, m.err
	}
	out := []models.Crop{}
	for _, c := range m.crops {
		if c.OwnerID == ownerID {
			out = append(out, c.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) InsertFarm(_ context.Context, f models.Farm) (models.Farm, error) {
	if err := requireOwner(f.OwnerID); err != nil {
		return models.Farm{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Farm{}, m.err
	}
	f.ID = uuid.NewString()
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	f.Crops = []string{}
	m.farms[f.ID] = f.Clone()
	m.notifyLocked(TableFarms, f.OwnerID, Change{Table: TableFarms, Op: OpInsert, ID: f.ID})
	return f, nil
}

func (m *Memory) InsertCrop(_ context.Context, c models.Crop) (models.Crop, error) {
	if err := requireOwner(c.OwnerID); err != nil {
		return models.Crop{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Crop{}, m.err
	}
	c.ID = uuid.NewString()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.crops[c.ID] = c.Clone()
	m.notifyLocked(TableCrops, c.OwnerID, Change{Table: TableCrops, Op: OpInsert, ID: c.ID})
	return c, nil
}

func (m *Memory) UpdateCropImage(_ context.Context, ownerID, cropID, url string) (models.Crop, error) {
	if err := requireOwner(ownerID); err != nil {
		return models.Crop{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.Crop{}, m.err
	}
	c, ok := m.crops[cropID]
	if !ok || c.OwnerID != ownerID {
		return models.Crop{}, ErrNotFound
	}
	c.Image = url
	m.crops[cropID] = c
	m.notifyLocked(TableCrops, ownerID, Change{Table: TableCrops, Op: OpUpdate, ID: cropID})
	return c.Clone(), nil
}

// DeleteCrop removes a crop the way another client would; the API never deletes.
func (m *Memory) DeleteCrop(ownerID, cropID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.crops, cropID)
	m.notifyLocked(TableCrops, ownerID, Change{Table: TableCrops, Op: OpDelete, ID: cropID})
}

func (m *Memory) CreateUser(_ context.Context, u models.User) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	for _, existing := range m.users {
		if (u.Email != "" && existing.Email == u.Email) || (u.Phone != "" && existing.Phone == u.Phone) {
			return models.User{}, ErrDuplicate
		}
	}
	u.ID = uuid.NewString()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) FindUser(_ context.Context, email, phone string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	for _, u := range m.users {
		if email != "" && u.Email == email {
			return u, nil
		}
		if email == "" && phone != "" && u.Phone == phone {
			return u, nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) GetUser(_ context.Context, id string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return models.User{}, m.err
	}
	u, ok := m.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) Subscribe(ctx context.Context, table Table, ownerID string) (Subscription, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}
	s := &memSub{table: table, ownerID: ownerID, in: make(chan Change, 64)}
	m.mu.Lock()
	m.subs[s] = struct{}{}
	m.mu.Unlock()

	produce := func(ctx context.Context, emit func(Change) bool) {
		for {
			select {
			case <-ctx.Done():
				return
			case c := <-s.in:
				if !emit(c) {
					return
				}
			}
		}
	}
	return newFeed(context.WithoutCancel(ctx), produce, func() error {
		m.mu.Lock()
		delete(m.subs, s)
		m.mu.Unlock()
		return nil
	}), nil
}

func (m *Memory) notifyLocked(table Table, ownerID string, c Change) {
	for s := range m.subs {
		if s.table != table || s.ownerID != ownerID {
			continue
		}
		select {
		case s.in <- c:
		default:
		}
	}
}

func (m *Memory) Close(context.Context) error { return nil }
