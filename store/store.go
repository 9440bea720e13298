// Package store holds one identity's application state: auth, farms, crops,
// controls, crop history and health detections. Every action runs under one
// mutex; getters hand out copies.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cropwise/backend"
	"cropwise/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultHistoryLimit = 500

type EventKind string

const (
	EventAuth      EventKind = "auth"
	EventFarm      EventKind = "farm"
	EventCrop      EventKind = "crop"
	EventControls  EventKind = "controls"
	EventHistory   EventKind = "history"
	EventDetection EventKind = "detection"
	EventReplaced  EventKind = "replaced"
)

// Event tells observers what changed. ID is the affected entity, when there is one.
type Event struct {
	Kind EventKind `json:"kind"`
	ID   string    `json:"id,omitempty"`
}

type Options struct {
	HistoryLimit int
	Logger       *zap.Logger
	Now          func() time.Time
}

type Store struct {
	be      backend.Backend
	ownerID string
	log     *zap.Logger
	now     func() time.Time
	limit   int

	mu         sync.RWMutex
	auth       models.AuthState
	farms      map[string]models.Farm
	farmOrder  []string
	crops      map[string]models.Crop
	cropOrder  []string
	controls   map[string]models.CropControls
	history    map[string]*ring[models.CropHistoryEntry]
	detections *ring[models.HealthDetectionResult]
	observers  map[chan Event]struct{}
}

// New returns an empty store whose service calls are scoped to ownerID.
func New(be backend.Backend, ownerID string, opts Options) *Store {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = DefaultHistoryLimit
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		be:         be,
		ownerID:    ownerID,
		log:        opts.Logger.With(zap.String("owner", ownerID)),
		now:        opts.Now,
		limit:      opts.HistoryLimit,
		farms:      map[string]models.Farm{},
		crops:      map[string]models.Crop{},
		controls:   map[string]models.CropControls{},
		history:    map[string]*ring[models.CropHistoryEntry]{},
		detections: newRing[models.HealthDetectionResult](opts.HistoryLimit),
		observers:  map[chan Event]struct{}{},
	}
}

func (s *Store) OwnerID() string { return s.ownerID }

// Subscribe registers an observer. Sends never block; a slow observer misses events.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	s.mu.Lock()
	s.observers[ch] = struct{}{}
	s.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Store) emitLocked(e Event) {
	for ch := range s.observers {
		select {
		case ch <- e:
		default:
		}
	}
}

// Login marks the identity as logged in. It reports whether this was a transition.
func (s *Store) Login(email, phone string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.auth.LoggedIn
	s.auth.LoggedIn = true
	s.auth.Email = email
	s.auth.Phone = phone
	if !was {
		s.emitLocked(Event{Kind: EventAuth})
	}
	return !was
}

// Logout flips the auth flag only. Cached farms and crops stay.
func (s *Store) Logout() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	was := s.auth.LoggedIn
	s.auth.LoggedIn = false
	if was {
		s.emitLocked(Event{Kind: EventAuth})
	}
	return was
}

func (s *Store) AuthState() models.AuthState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.auth
	a.Onboarded = len(s.farmOrder) > 0
	return a
}

// AddFarm persists farm and merges the echoed record. It returns the new id,
// or "" when the backend call failed.
func (s *Store) AddFarm(ctx context.Context, farm models.Farm) (string, bool) {
	farm.OwnerID = s.ownerID
	saved, err := s.be.InsertFarm(ctx, farm)
	if err != nil {
		s.log.Error("add farm", zap.String("name", farm.Name), zap.Error(err))
		return "", false
	}
	s.mu.Lock()
	s.mergeFarmLocked(saved)
	s.emitLocked(Event{Kind: EventFarm, ID: saved.ID})
	s.mu.Unlock()
	return saved.ID, true
}

// AddCrop persists crop under farmID, merges it and links it to the farm.
func (s *Store) AddCrop(ctx context.Context, crop models.Crop, farmID string) bool {
	_, ok := s.AddCropReturningID(ctx, crop, farmID)
	return ok
}

// AddCropReturningID is AddCrop for callers that need the assigned id.
func (s *Store) AddCropReturningID(ctx context.Context, crop models.Crop, farmID string) (string, bool) {
	crop.OwnerID = s.ownerID
	crop.FarmID = farmID
	saved, err := s.be.InsertCrop(ctx, crop)
	if err != nil {
		s.log.Error("add crop", zap.String("farm", farmID), zap.String("name", crop.Name), zap.Error(err))
		return "", false
	}
	s.mu.Lock()
	s.mergeCropLocked(saved)
	s.emitLocked(Event{Kind: EventCrop, ID: saved.ID})
	s.mu.Unlock()
	return saved.ID, true
}

// UpdateCropImage points the crop at a new image URL.
func (s *Store) UpdateCropImage(ctx context.Context, cropID, url string) bool {
	saved, err := s.be.UpdateCropImage(ctx, s.ownerID, cropID, url)
	if err != nil {
		s.log.Error("update crop image", zap.String("crop", cropID), zap.Error(err))
		return false
	}
	s.mu.Lock()
	s.mergeCropLocked(saved)
	s.emitLocked(Event{Kind: EventCrop, ID: saved.ID})
	s.mu.Unlock()
	return true
}

// mergeFarmLocked inserts or overwrites f by id. The crop id list is owned by
// the store and survives the overwrite.
func (s *Store) mergeFarmLocked(f models.Farm) {
	f = f.Clone()
	if prev, ok := s.farms[f.ID]; ok {
		f.Crops = prev.Crops
	} else {
		s.farmOrder = append(s.farmOrder, f.ID)
		f.Crops = s.cropIDsForLocked(f.ID)
	}
	s.farms[f.ID] = f
}

func (s *Store) mergeCropLocked(c models.Crop) {
	c = c.Clone()
	if _, ok := s.crops[c.ID]; !ok {
		s.cropOrder = append(s.cropOrder, c.ID)
	}
	s.crops[c.ID] = c
	if f, ok := s.farms[c.FarmID]; ok && !f.HasCrop(c.ID) {
		f.Crops = append(f.Crops, c.ID)
		s.farms[f.ID] = f
	}
	if _, ok := s.controls[c.ID]; !ok {
		s.controls[c.ID] = models.CropControls{}
	}
}

func (s *Store) cropIDsForLocked(farmID string) []string {
	ids := []string{}
	for _, id := range s.cropOrder {
		if s.crops[id].FarmID == farmID {
			ids = append(ids, id)
		}
	}
	return ids
}

// Replace swaps both collections for a fresh fetch and rebuilds the farm to crop links.
func (s *Store) Replace(farms []models.Farm, crops []models.Crop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crops = make(map[string]models.Crop, len(crops))
	s.cropOrder = s.cropOrder[:0]
	for _, c := range crops {
		if _, dup := s.crops[c.ID]; !dup {
			s.cropOrder = append(s.cropOrder, c.ID)
		}
		s.crops[c.ID] = c.Clone()
		if _, ok := s.controls[c.ID]; !ok {
			s.controls[c.ID] = models.CropControls{}
		}
	}
	s.farms = make(map[string]models.Farm, len(farms))
	s.farmOrder = s.farmOrder[:0]
	for _, f := range farms {
		if _, dup := s.farms[f.ID]; dup {
			continue
		}
		f = f.Clone()
		f.Crops = s.cropIDsForLocked(f.ID)
		s.farms[f.ID] = f
		s.farmOrder = append(s.farmOrder, f.ID)
	}
	s.emitLocked(Event{Kind: EventReplaced})
}

// Refresh fetches both collections and replaces the cached ones. On failure the
// previous state is kept.
func (s *Store) Refresh(ctx context.Context) error {
	defer s.markReady()
	farms, err := s.be.ListFarms(ctx, s.ownerID)
	if err != nil {
		s.log.Warn("refresh farms", zap.Error(err))
		return fmt.Errorf("list farms: %w", err)
	}
	crops, err := s.be.ListCrops(ctx, s.ownerID)
	if err != nil {
		s.log.Warn("refresh crops", zap.Error(err))
		return fmt.Errorf("list crops: %w", err)
	}
	s.Replace(farms, crops)
	return nil
}

func (s *Store) markReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.auth.Ready {
		s.auth.Ready = true
		s.emitLocked(Event{Kind: EventAuth})
	}
}

func (s *Store) Farm(id string) (models.Farm, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.farms[id]
	return f.Clone(), ok
}

func (s *Store) Farms() []models.Farm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Farm, 0, len(s.farmOrder))
	for _, id := range s.farmOrder {
		out = append(out, s.farms[id].Clone())
	}
	return out
}

func (s *Store) Crop(id string) (models.Crop, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.crops[id]
	return c.Clone(), ok
}

func (s *Store) AllCrops() []models.Crop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Crop, 0, len(s.cropOrder))
	for _, id := range s.cropOrder {
		out = append(out, s.crops[id].Clone())
	}
	return out
}

// CropsForFarm resolves the farm's crop id list; ids with no cached crop are skipped.
func (s *Store) CropsForFarm(farmID string) []models.Crop {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.farms[farmID]
	if !ok {
		return []models.Crop{}
	}
	out := make([]models.Crop, 0, len(f.Crops))
	for _, id := range f.Crops {
		if c, ok := s.crops[id]; ok {
			out = append(out, c.Clone())
		}
	}
	return out
}

// SetCropControl sets one toggle. Unknown keys are ignored and report false.
func (s *Store) SetCropControl(cropID, key string, v bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.controls[cropID]
	if !c.Set(key, v) {
		return false
	}
	s.controls[cropID] = c
	s.emitLocked(Event{Kind: EventControls, ID: cropID})
	return true
}

// CropControl returns the crop's toggles, all off when never set.
func (s *Store) CropControl(cropID string) models.CropControls {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.controls[cropID]
}

func (s *Store) AddCropHistory(e models.CropHistoryEntry) models.CropHistoryEntry {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.history[e.CropID]
	if !ok {
		r = newRing[models.CropHistoryEntry](s.limit)
		s.history[e.CropID] = r
	}
	r.push(e)
	s.emitLocked(Event{Kind: EventHistory, ID: e.CropID})
	return e
}

// CropHistory returns the crop's entries newest first.
func (s *Store) CropHistory(cropID string) []models.CropHistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.history[cropID]
	if !ok {
		return []models.CropHistoryEntry{}
	}
	return r.newestFirst()
}

func (s *Store) AddHealthDetection(d models.HealthDetectionResult) models.HealthDetectionResult {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Timestamp.IsZero() {
		d.Timestamp = s.now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detections.push(d)
	s.emitLocked(Event{Kind: EventDetection, ID: d.CropID})
	return d
}

// HealthDetections returns all detections newest first.
func (s *Store) HealthDetections() []models.HealthDetectionResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.detections.newestFirst()
}
