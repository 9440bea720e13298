package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type sseWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func startSSE(w http.ResponseWriter) (*sseWriter, bool) {
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return nil, false
	}
	// streams outlive the server write timeout
	_ = rc.SetWriteDeadline(time.Time{})
	return &sseWriter{w: w, rc: rc}, true
}

func (s *sseWriter) send(event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return s.rc.Flush()
}

func (s *sseWriter) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	return s.rc.Flush()
}

// handleEvents streams the session's store events. Clients refetch what changed.
func (a *App) handleEvents(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	sse, ok := startSSE(w)
	if !ok {
		return
	}
	events, unsubscribe := sess.Store.Subscribe()
	defer unsubscribe()

	keepalive := time.NewTicker(25 * time.Second)
	defer keepalive.Stop()
	if err := sse.send("auth", sess.Store.AuthState()); err != nil {
		return
	}
	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			if err := sse.ping(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.send(string(ev.Kind), ev); err != nil {
				return
			}
		}
	}
}
