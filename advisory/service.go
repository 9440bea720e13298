package advisory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultMaxAge = 6 * time.Hour

// Service serves advisories stale-while-revalidate: a cached advisory is
// returned at once, and when older than maxAge it is flagged Stale and
// regenerated in the background.
type Service struct {
	gen    Generator
	cache  *Cache
	maxAge time.Duration
	log    *zap.Logger
	now    func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
}

// NewService accepts a nil generator, in which case only rule-based advisories are produced.
func NewService(gen Generator, cache *Cache, maxAge time.Duration, log *zap.Logger) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		gen:      gen,
		cache:    cache,
		maxAge:   maxAge,
		log:      log.Named("advisory"),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		inflight: map[string]bool{},
	}
}

func (s *Service) Get(ctx context.Context, in Input) Advisory {
	cached, at, ok, err := s.cache.Get(ctx, in.Crop.ID)
	if err != nil {
		s.log.Warn("read cache", zap.String("crop", in.Crop.ID), zap.Error(err))
	}
	if ok {
		if s.now().Sub(at) > s.maxAge {
			cached.Stale = true
			s.revalidate(in)
		}
		return cached
	}
	a, ok := s.generate(ctx, in)
	if !ok {
		return RuleBased(in, s.now())
	}
	if err := s.cache.Put(ctx, a, s.now()); err != nil {
		s.log.Warn("write cache", zap.String("crop", in.Crop.ID), zap.Error(err))
	}
	return a
}

// generate asks the generator for an advisory. Only its output is ever
// cached; rule-based fallbacks are computed per request.
func (s *Service) generate(ctx context.Context, in Input) (Advisory, bool) {
	if s.gen == nil {
		return Advisory{}, false
	}
	a, err := s.gen.Generate(ctx, in)
	if err != nil {
		s.log.Warn("generate advisory", zap.String("crop", in.Crop.ID), zap.Error(err))
		return Advisory{}, false
	}
	return a, true
}

// revalidate refreshes the cached advisory once per crop at a time. A failed
// refresh keeps the previous advisory.
func (s *Service) revalidate(in Input) {
	s.mu.Lock()
	if s.inflight[in.Crop.ID] || s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.inflight[in.Crop.ID] = true
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inflight, in.Crop.ID)
			s.mu.Unlock()
		}()
		a, ok := s.generate(s.ctx, in)
		if !ok || s.ctx.Err() != nil {
			return
		}
		if err := s.cache.Put(s.ctx, a, s.now()); err != nil {
			s.log.Warn("write cache", zap.String("crop", in.Crop.ID), zap.Error(err))
		}
	}()
}

// Close stops background revalidation and waits for it.
func (s *Service) Close() {
	s.mu.Lock()
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}
