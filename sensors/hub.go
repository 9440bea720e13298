package sensors

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type hubEntry struct {
	p    *Poller
	refs int
}

// Hub shares one poller per crop between all views watching that crop. The
// poller starts on the first Acquire and stops on the last release.
type Hub struct {
	src      Source
	interval time.Duration
	log      *zap.Logger

	mu      sync.Mutex
	pollers map[string]*hubEntry
}

func NewHub(src Source, interval time.Duration, log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{src: src, interval: interval, log: log, pollers: map[string]*hubEntry{}}
}

// Acquire mounts a view on cropID. The returned release is safe to call more than once.
func (h *Hub) Acquire(cropID string) (*Poller, func()) {
	h.mu.Lock()
	e, ok := h.pollers[cropID]
	if !ok {
		e = &hubEntry{p: NewPoller(h.src, cropID, h.interval, h.log)}
		h.pollers[cropID] = e
		e.p.Start()
	}
	e.refs++
	h.mu.Unlock()

	var once sync.Once
	return e.p, func() {
		once.Do(func() { h.release(cropID, e) })
	}
}

func (h *Hub) release(cropID string, e *hubEntry) {
	h.mu.Lock()
	e.refs--
	last := e.refs == 0 && h.pollers[cropID] == e
	if last {
		delete(h.pollers, cropID)
	}
	h.mu.Unlock()
	if last {
		e.p.Stop()
	}
}

// Active reports how many crops are being polled.
func (h *Hub) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pollers)
}

// StopAll stops every poller regardless of outstanding references.
func (h *Hub) StopAll() {
	h.mu.Lock()
	entries := h.pollers
	h.pollers = map[string]*hubEntry{}
	h.mu.Unlock()
	for _, e := range entries {
		e.p.Stop()
	}
}
