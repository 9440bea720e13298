package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"cropwise/advisory"
	"cropwise/backend"
	"cropwise/blobstore"
	"cropwise/decision"
	"cropwise/weather"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type App struct {
	cfg      Config
	log      *zap.Logger
	be       backend.Backend
	decision *decision.Client
	weather  *weather.Service
	blobs    blobstore.Store
	advisory *advisory.Service
	sessions *Sessions
	cron     *cron.Cron

	closers []func() error
}

func openBackend(ctx context.Context, cfg Config, log *zap.Logger) (backend.Backend, error) {
	switch cfg.Backend {
	case "mongo", "":
		return backend.NewMongo(ctx, cfg.MongoURI, cfg.MongoDB, log)
	case "postgres":
		return backend.NewPostgres(cfg.PostgresDSN, log)
	case "memory":
		return backend.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func newApp(ctx context.Context, cfg Config, log *zap.Logger) (*App, error) {
	be, err := openBackend(ctx, cfg, log.Named("backend"))
	if err != nil {
		return nil, fmt.Errorf("open %s backend: %w", cfg.Backend, err)
	}
	return newAppWithBackend(ctx, cfg, log, be)
}

// newAppWithBackend takes ownership of be: it is closed along with everything
// opened so far when construction fails.
func newAppWithBackend(ctx context.Context, cfg Config, log *zap.Logger, be backend.Backend) (_ *App, err error) {
	a := &App{cfg: cfg, log: log, be: be}
	defer func() {
		if err != nil {
			if cerr := a.release(ctx); cerr != nil {
				log.Warn("release after failed start", zap.Error(cerr))
			}
		}
	}()

	a.decision = decision.New(cfg.DecisionURL, cfg.HTTPTimeout, log.Named("decision"))

	var geo weather.Geocoder
	if cfg.MapsAPIKey != "" {
		g, err := weather.NewMapsGeocoder(cfg.MapsAPIKey)
		if err != nil {
			return nil, fmt.Errorf("geocoder: %w", err)
		}
		geo = g
	}
	a.weather = &weather.Service{
		Client:  weather.NewClient(cfg.WeatherURL, cfg.WeatherAPIKey, cfg.HTTPTimeout, log.Named("weather")),
		Locator: weather.NewLocator(geo, cfg.DefaultCity, log.Named("weather")),
	}

	if cfg.GCSBucket != "" {
		g, err := blobstore.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentials)
		if err != nil {
			return nil, fmt.Errorf("gcs: %w", err)
		}
		a.blobs = g
		a.closers = append(a.closers, g.Close)
	} else {
		l, err := blobstore.NewLocal(cfg.UploadDir, "/uploads")
		if err != nil {
			return nil, err
		}
		a.blobs = l
	}

	cache, err := advisory.OpenCache(filepath.Clean(cfg.AdvisoryDB))
	if err != nil {
		return nil, fmt.Errorf("advisory cache: %w", err)
	}
	a.closers = append(a.closers, cache.Close)
	var gen advisory.Generator
	if cfg.OpenAIKey != "" {
		gen = advisory.NewOpenAI(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
	}
	a.advisory = advisory.NewService(gen, cache, cfg.AdvisoryMaxAge, log)
	a.closers = append(a.closers, func() error { a.advisory.Close(); return nil })

	a.sessions = newSessions(be, a.decision, cfg.SensorInterval, cfg.HistoryLimit, log)

	a.cron = cron.New()
	if _, err = a.cron.AddFunc(cfg.ResyncSchedule, a.resync); err != nil {
		return nil, fmt.Errorf("resync schedule %q: %w", cfg.ResyncSchedule, err)
	}
	return a, nil
}

func (a *App) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTPTimeout)
	defer cancel()
	n := a.sessions.ResyncAll(ctx)
	a.log.Debug("resync done", zap.Int("sessions", n))
}

func (a *App) close(ctx context.Context) error {
	<-a.cron.Stop().Done()
	a.sessions.Close()
	return a.release(ctx)
}

// release closes the opened resources in reverse order, then the backend.
func (a *App) release(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	errs = append(errs, a.be.Close(ctx))
	return errors.Join(errs...)
}
