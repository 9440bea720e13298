package weather

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cropwise/models"

	"go.uber.org/zap"
	"googlemaps.github.io/maps"
)

// Geocoder turns a free-form place name into coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

type MapsGeocoder struct {
	client *maps.Client
}

func NewMapsGeocoder(apiKey string) (*MapsGeocoder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("maps api key not set")
	}
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}
	return &MapsGeocoder{client: c}, nil
}

func (g *MapsGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	results, err := g.client.Geocode(ctx, &maps.GeocodingRequest{Address: address})
	if err != nil {
		return 0, 0, err
	}
	if len(results) == 0 {
		return 0, 0, fmt.Errorf("no geocoding result for %q", address)
	}
	loc := results[0].Geometry.Location
	return loc.Lat, loc.Lng, nil
}

type Source string

const (
	SourceCoordinates Source = "coordinates"
	SourceFarm        Source = "farm"
	SourceGeocoded    Source = "geocoded"
	SourceDefault     Source = "default"
)

// Location is where the weather gets looked up: coordinates when known,
// otherwise City.
type Location struct {
	Lat    float64 `json:"lat,omitempty"`
	Lon    float64 `json:"lon,omitempty"`
	HasLL  bool    `json:"-"`
	City   string  `json:"city,omitempty"`
	Source Source  `json:"source"`
}

// Query is what a caller knows about the position.
type Query struct {
	Lat, Lon *float64
	Farm     *models.Farm
}

// geocodeTTL matches the position cache hint the dashboard used for device geolocation.
const geocodeTTL = 5 * time.Minute

type cachedPoint struct {
	lat, lon float64
	at       time.Time
}

// Locator resolves a Query with the fallback chain explicit coordinates, farm
// coordinates, geocoded farm location, default city.
type Locator struct {
	geo         Geocoder
	defaultCity string
	log         *zap.Logger
	now         func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPoint
}

// NewLocator accepts a nil geocoder; the geocoding step is then skipped.
func NewLocator(geo Geocoder, defaultCity string, log *zap.Logger) *Locator {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultCity == "" {
		defaultCity = "Delhi"
	}
	return &Locator{geo: geo, defaultCity: defaultCity, log: log, now: time.Now, cache: map[string]cachedPoint{}}
}

func (l *Locator) Resolve(ctx context.Context, q Query) Location {
	if q.Lat != nil && q.Lon != nil {
		return Location{Lat: *q.Lat, Lon: *q.Lon, HasLL: true, Source: SourceCoordinates}
	}
	if q.Farm != nil {
		if q.Farm.HasCoordinates() {
			return Location{Lat: *q.Farm.Latitude, Lon: *q.Farm.Longitude, HasLL: true, City: q.Farm.Location, Source: SourceFarm}
		}
		if place := strings.TrimSpace(q.Farm.Location); place != "" && l.geo != nil {
			if lat, lon, err := l.geocode(ctx, place); err == nil {
				return Location{Lat: lat, Lon: lon, HasLL: true, City: place, Source: SourceGeocoded}
			} else {
				l.log.Warn("geocode farm location", zap.String("location", place), zap.Error(err))
			}
		}
	}
	return Location{City: l.defaultCity, Source: SourceDefault}
}

func (l *Locator) geocode(ctx context.Context, place string) (float64, float64, error) {
	key := strings.ToLower(place)
	l.mu.Lock()
	if p, ok := l.cache[key]; ok && l.now().Sub(p.at) < geocodeTTL {
		l.mu.Unlock()
		return p.lat, p.lon, nil
	}
	l.mu.Unlock()

	lat, lon, err := l.geo.Geocode(ctx, place)
	if err != nil {
		return 0, 0, err
	}
	l.mu.Lock()
	l.cache[key] = cachedPoint{lat: lat, lon: lon, at: l.now()}
	l.mu.Unlock()
	return lat, lon, nil
}

// Report is the weather card payload.
type Report struct {
	Location Location  `json:"location"`
	Current  *Current  `json:"current,omitempty"`
	Forecast *Forecast `json:"forecast,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Service couples the client with the locator.
type Service struct {
	Client  *Client
	Locator *Locator
}

// Report resolves q and fetches current weather and forecast. A forecast
// failure only leaves Forecast empty; a current-weather failure is returned.
func (s *Service) Report(ctx context.Context, q Query) (Report, error) {
	loc := s.Locator.Resolve(ctx, q)
	rep := Report{Location: loc}

	var (
		cur Current
		fc  Forecast
		err error
	)
	if loc.HasLL {
		cur, err = s.Client.Current(ctx, loc.Lat, loc.Lon)
	} else {
		cur, err = s.Client.CurrentByCity(ctx, loc.City)
	}
	if err != nil {
		rep.Error = err.Error()
		return rep, err
	}
	rep.Current = &cur

	if loc.HasLL {
		fc, err = s.Client.Forecast(ctx, loc.Lat, loc.Lon)
	} else {
		fc, err = s.Client.ForecastByCity(ctx, loc.City)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		s.Locator.log.Warn("weather forecast", zap.Error(err))
	} else if err == nil {
		rep.Forecast = &fc
	}
	return rep, nil
}
