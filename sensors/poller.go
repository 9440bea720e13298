// Package sensors polls the Decision API for per-crop soil readings.
package sensors

import (
	"context"
	"sync"
	"time"

	"cropwise/decision"
	"cropwise/models"

	"go.uber.org/zap"
)

const DefaultInterval = 3 * time.Second

// Source serves readings; *decision.Client satisfies it.
type Source interface {
	Sensors(ctx context.Context, cropID string) decision.Result[models.SensorReading]
	SensorTick(ctx context.Context, cropID string) decision.Result[models.SensorReading]
}

// Poller fetches one crop's reading once, then advances it every interval.
// A failed fetch publishes the zero reading.
type Poller struct {
	cropID   string
	src      Source
	interval time.Duration
	log      *zap.Logger

	mu       sync.Mutex
	latest   models.SensorReading
	status   decision.Status
	watchers map[chan models.SensorReading]struct{}
	cancel   context.CancelFunc
	done     chan struct{}
	stopped  bool
}

func NewPoller(src Source, cropID string, interval time.Duration, log *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		cropID:   cropID,
		src:      src,
		interval: interval,
		log:      log.With(zap.String("crop", cropID)),
		latest:   models.ZeroReading(),
		watchers: map[chan models.SensorReading]struct{}{},
	}
}

// Start launches the polling goroutine. Calling it twice is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil || p.stopped {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)
	p.publish(ctx, p.src.Sensors(ctx, p.cropID))

	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.publish(ctx, p.src.SensorTick(ctx, p.cropID))
		}
	}
}

func (p *Poller) publish(ctx context.Context, r decision.Result[models.SensorReading]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// a result that lands after Stop belongs to nobody
	if ctx.Err() != nil || p.stopped {
		return
	}
	reading := r.Value
	if !r.OK() {
		reading = models.ZeroReading()
	}
	p.latest = reading
	p.status = r.Status
	for ch := range p.watchers {
		offerLatest(ch, reading)
	}
}

// offerLatest replaces any unread reading in ch with r.
func offerLatest(ch chan models.SensorReading, r models.SensorReading) {
	select {
	case ch <- r:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- r:
	default:
	}
}

// Latest returns the last published reading and its status. Before the first
// fetch completes the status is empty and the reading is zero.
func (p *Poller) Latest() (models.SensorReading, decision.Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.status
}

// Watch returns a channel that always holds the newest unread reading. It is
// closed by cancel or by Stop.
func (p *Poller) Watch() (<-chan models.SensorReading, func()) {
	ch := make(chan models.SensorReading, 1)
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	p.watchers[ch] = struct{}{}
	if p.status != "" {
		ch <- p.latest
	}
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if _, ok := p.watchers[ch]; ok {
			delete(p.watchers, ch)
			close(ch)
		}
	}
}

// Stop cancels the ticker and any in-flight request, then waits for the
// goroutine. Watchers are closed.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	cancel, done := p.cancel, p.done
	for ch := range p.watchers {
		delete(p.watchers, ch)
		close(ch)
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.log.Debug("poller stopped")
}
