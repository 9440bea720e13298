package main

import (
	"context"
	"sync"
	"time"

	"cropwise/backend"
	"cropwise/models"
	"cropwise/realtime"
	"cropwise/sensors"
	"cropwise/store"

	"go.uber.org/zap"
)

// Session is one signed-in identity: its state, its change feeds and its sensor pollers.
type Session struct {
	UserID  string
	Store   *store.Store
	Sync    *realtime.Sync
	Sensors *sensors.Hub
}

// Sessions keeps one Session per user id for the life of the process.
type Sessions struct {
	be       backend.Backend
	src      sensors.Source
	interval time.Duration
	limit    int
	log      *zap.Logger

	mu     sync.Mutex
	byUser map[string]*Session
	// validAfter holds each user's last logout. Tokens issued at or before it
	// stay revoked across later logins.
	validAfter map[string]time.Time
}

func newSessions(be backend.Backend, src sensors.Source, interval time.Duration, historyLimit int, log *zap.Logger) *Sessions {
	return &Sessions{
		be:         be,
		src:        src,
		interval:   interval,
		limit:      historyLimit,
		log:        log.Named("session"),
		byUser:     map[string]*Session{},
		validAfter: map[string]time.Time{},
	}
}

func (s *Sessions) ensureLocked(userID string) *Session {
	if sess, ok := s.byUser[userID]; ok {
		return sess
	}
	st := store.New(s.be, userID, store.Options{HistoryLimit: s.limit, Logger: s.log})
	sess := &Session{
		UserID:  userID,
		Store:   st,
		Sync:    realtime.New(s.be, st, s.log),
		Sensors: sensors.NewHub(s.src, s.interval, s.log),
	}
	s.byUser[userID] = sess
	return sess
}

// Login activates the session for u: auth flag, initial load, change feeds.
// A feed that cannot be opened is logged; the periodic resync still covers it.
func (s *Sessions) Login(ctx context.Context, u models.User) *Session {
	s.mu.Lock()
	sess := s.ensureLocked(u.ID)
	s.mu.Unlock()

	sess.Store.Login(u.Email, u.Phone)
	if err := sess.Store.Refresh(ctx); err != nil {
		s.log.Warn("initial load", zap.String("user", u.ID), zap.Error(err))
	}
	if err := sess.Sync.Start(ctx, u.ID); err != nil {
		s.log.Warn("start realtime", zap.String("user", u.ID), zap.Error(err))
	}
	return sess
}

// IssueTime is the issue time for a new token of userID: now, moved past the
// last logout when both fall in the same millisecond.
func (s *Sessions) IssueTime(userID string) time.Time {
	now := time.Now().Truncate(time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if at, ok := s.validAfter[userID]; ok && !now.After(at) {
		now = at.Add(time.Millisecond)
	}
	return now
}

func (s *Sessions) revokedLocked(userID string, issuedAt time.Time) bool {
	at, ok := s.validAfter[userID]
	return ok && !issuedAt.After(at)
}

// Active returns the session for userID when it is logged in and the token
// was issued after the last logout.
func (s *Sessions) Active(userID string, issuedAt time.Time) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.revokedLocked(userID, issuedAt) {
		return nil, false
	}
	sess, ok := s.byUser[userID]
	if !ok || !sess.Store.AuthState().LoggedIn {
		return nil, false
	}
	return sess, true
}

// Restore reactivates a session after a restart for a token that is still valid.
func (s *Sessions) Restore(ctx context.Context, userID string, issuedAt time.Time) (*Session, bool) {
	if sess, ok := s.Active(userID, issuedAt); ok {
		return sess, true
	}
	s.mu.Lock()
	revoked := s.revokedLocked(userID, issuedAt)
	s.mu.Unlock()
	if revoked {
		return nil, false
	}
	u, err := s.be.GetUser(ctx, userID)
	if err != nil {
		return nil, false
	}
	return s.Login(ctx, u), true
}

// Logout stops the feeds and pollers. Cached farms and crops are kept for the next login.
func (s *Sessions) Logout(userID string) bool {
	s.mu.Lock()
	sess, ok := s.byUser[userID]
	s.validAfter[userID] = time.Now().Truncate(time.Millisecond)
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.Sync.Stop()
	sess.Sensors.StopAll()
	return sess.Store.Logout()
}

func (s *Sessions) loggedIn() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.byUser))
	for _, sess := range s.byUser {
		if sess.Store.AuthState().LoggedIn {
			out = append(out, sess)
		}
	}
	return out
}

// ResyncAll refetches every logged-in session, covering changes a dropped feed missed.
func (s *Sessions) ResyncAll(ctx context.Context) int {
	n := 0
	for _, sess := range s.loggedIn() {
		if err := sess.Store.Refresh(ctx); err != nil {
			s.log.Warn("resync", zap.String("user", sess.UserID), zap.Error(err))
			continue
		}
		n++
	}
	return n
}

func (s *Sessions) Close() {
	s.mu.Lock()
	all := s.byUser
	s.byUser = map[string]*Session{}
	s.mu.Unlock()
	for _, sess := range all {
		sess.Sync.Stop()
		sess.Sensors.StopAll()
	}
}
