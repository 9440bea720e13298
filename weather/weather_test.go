package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const currentBody = `{"coord":{"lat":30.9,"lon":75.85},"weather":[{"main":"Clouds","description":"scattered clouds","icon":"03d"}],
"main":{"temp":24.5,"feels_like":24.1,"pressure":1009,"humidity":61},"wind":{"speed":3.2},"rain":{"1h":0.4},
"dt":1730448000,"name":"Ludhiana","sys":{"country":"IN"}}`

const forecastBody = `{"list":[{"dt":1730451600,"main":{"temp":23,"temp_min":22,"temp_max":24,"humidity":65},
"weather":[{"description":"light rain","icon":"10d"}],"pop":0.6,"rain":{"3h":1.2}}],"city":{"name":"Ludhiana","country":"IN"}}`

func owmServer(t *testing.T, check func(r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			check(r)
		}
		switch r.URL.Path {
		case "/data/2.5/weather":
			_, _ = w.Write([]byte(currentBody))
		case "/data/2.5/forecast":
			_, _ = w.Write([]byte(forecastBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CurrentByCoordinates(t *testing.T) {
	srv := owmServer(t, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("appid"))
		assert.Equal(t, "metric", q.Get("units"))
		assert.Equal(t, "30.9000", q.Get("lat"))
	})
	c := NewClient(srv.URL, "k", time.Second, nil)

	cur, err := c.Current(context.Background(), 30.9, 75.85)
	require.NoError(t, err)
	assert.Equal(t, "Ludhiana", cur.City)
	assert.Equal(t, 24.5, cur.TempC)
	assert.Equal(t, 0.4, cur.RainMM)
	assert.Equal(t, "scattered clouds", cur.Description)
	assert.Equal(t, 61.0, cur.Brief().HumidityPct)
}

func TestClient_ForecastByCity(t *testing.T) {
	srv := owmServer(t, func(r *http.Request) {
		if r.URL.Path == "/data/2.5/forecast" {
			assert.Equal(t, "Delhi", r.URL.Query().Get("q"))
		}
	})
	c := NewClient(srv.URL, "k", time.Second, nil)
	fc, err := c.ForecastByCity(context.Background(), "Delhi")
	require.NoError(t, err)
	require.Len(t, fc.Entries, 1)
	assert.Equal(t, 0.6, fc.Entries[0].RainChance)
	assert.Equal(t, 1.2, fc.Entries[0].RainMM)
}

func TestClient_NoAPIKey(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", time.Second, nil)
	_, err := c.CurrentByCity(context.Background(), "Delhi")
	assert.ErrorIs(t, err, ErrNoAPIKey)
}

type stubGeocoder struct {
	calls atomic.Int32
	err   error
}

func (g *stubGeocoder) Geocode(ctx context.Context, address string) (float64, float64, error) {
	g.calls.Add(1)
	if g.err != nil {
		return 0, 0, g.err
	}
	return 30.9, 75.85, nil
}

func ptr(v float64) *float64 { return &v }

func TestLocator_FallbackChain(t *testing.T) {
	geo := &stubGeocoder{}
	l := NewLocator(geo, "Delhi", nil)
	ctx := context.Background()

	loc := l.Resolve(ctx, Query{Lat: ptr(1), Lon: ptr(2)})
	assert.Equal(t, SourceCoordinates, loc.Source)

	farm := models.Farm{Location: "Punjab", Latitude: ptr(31), Longitude: ptr(75)}
	loc = l.Resolve(ctx, Query{Farm: &farm})
	assert.Equal(t, SourceFarm, loc.Source)
	assert.Equal(t, 31.0, loc.Lat)

	farm = models.Farm{Location: "Punjab"}
	loc = l.Resolve(ctx, Query{Farm: &farm})
	assert.Equal(t, SourceGeocoded, loc.Source)
	l.Resolve(ctx, Query{Farm: &farm})
	assert.Equal(t, int32(1), geo.calls.Load(), "geocode result is cached")

	loc = l.Resolve(ctx, Query{})
	assert.Equal(t, Location{City: "Delhi", Source: SourceDefault}, loc)
}

func TestLocator_GeocodeFailureUsesDefaultCity(t *testing.T) {
	l := NewLocator(&stubGeocoder{err: errors.New("quota")}, "Delhi", nil)
	farm := models.Farm{Location: "Nowhere"}
	loc := l.Resolve(context.Background(), Query{Farm: &farm})
	assert.Equal(t, SourceDefault, loc.Source)
	assert.Equal(t, "Delhi", loc.City)
}

func TestService_Report(t *testing.T) {
	srv := owmServer(t, nil)
	s := &Service{Client: NewClient(srv.URL, "k", time.Second, nil), Locator: NewLocator(nil, "Delhi", nil)}
	rep, err := s.Report(context.Background(), Query{})
	require.NoError(t, err)
	require.NotNil(t, rep.Current)
	require.NotNil(t, rep.Forecast)
	assert.Equal(t, SourceDefault, rep.Location.Source)
}
