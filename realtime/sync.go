// Package realtime keeps a store current by refetching whenever the backend
// reports a change to the owner's farms or crops.
package realtime

import (
	"context"
	"fmt"
	"sync"

	"cropwise/backend"

	"go.uber.org/zap"
)

// Refresher is the state that gets refetched on change.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Sync owns the two change subscriptions of one identity.
type Sync struct {
	be     backend.Backend
	target Refresher
	log    *zap.Logger

	mu      sync.Mutex
	ownerID string
	subs    []backend.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(be backend.Backend, target Refresher, log *zap.Logger) *Sync {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sync{be: be, target: target, log: log}
}

// Start subscribes to farms and crops for ownerID. Starting for the owner that
// is already active is a no-op; a different owner replaces the subscriptions.
func (s *Sync) Start(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return backend.ErrNotAuthenticated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		if s.ownerID == ownerID {
			return nil
		}
		s.stopLocked()
	}

	var subs []backend.Subscription
	for _, table := range []backend.Table{backend.TableFarms, backend.TableCrops} {
		sub, err := s.be.Subscribe(ctx, table, ownerID)
		if err != nil {
			for _, open := range subs {
				_ = open.Close()
			}
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
		subs = append(subs, sub)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.ownerID = ownerID
	s.subs = subs
	s.cancel = cancel

	// one pending refetch is enough however many changes arrive meanwhile
	signal := make(chan struct{}, 1)
	for _, sub := range subs {
		s.wg.Add(1)
		go func(sub backend.Subscription) {
			defer s.wg.Done()
			for ch := range sub.Events() {
				s.log.Debug("change", zap.String("table", string(ch.Table)), zap.String("op", string(ch.Op)), zap.String("id", ch.ID))
				select {
				case signal <- struct{}{}:
				default:
				}
			}
		}(sub)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-signal:
				if err := s.target.Refresh(runCtx); err != nil && runCtx.Err() == nil {
					s.log.Warn("realtime refetch", zap.String("owner", ownerID), zap.Error(err))
				}
			}
		}
	}()
	s.log.Info("realtime started", zap.String("owner", ownerID))
	return nil
}

// Stop closes both subscriptions and waits for the watchers to exit.
func (s *Sync) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sync) stopLocked() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	for _, sub := range s.subs {
		if err := sub.Close(); err != nil {
			s.log.Warn("close subscription", zap.Error(err))
		}
	}
	s.wg.Wait()
	s.log.Info("realtime stopped", zap.String("owner", s.ownerID))
	s.cancel = nil
	s.subs = nil
	s.ownerID = ""
}

// Owner returns the identity currently subscribed, if any.
func (s *Sync) Owner() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerID, s.cancel != nil
}
