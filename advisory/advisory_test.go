package advisory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"cropwise/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func openCache(t *testing.T) *Cache {
	t.Helper()
	c, err := OpenCache(filepath.Join(t.TempDir(), "advisory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func wheat() models.Crop {
	return models.Crop{ID: "c1", Name: "Wheat Field A", CropType: "wheat", CurrentStage: models.StagePlanting}
}

type countingGen struct {
	calls atomic.Int32
	err   error
}

func (g *countingGen) Generate(ctx context.Context, in Input) (Advisory, error) {
	n := g.calls.Add(1)
	if g.err != nil {
		return Advisory{}, g.err
	}
	return Advisory{CropID: in.Crop.ID, Headline: "gen", Summary: "s", Risk: RiskLow, Source: SourceLLM,
		Actions: []string{}, GeneratedAt: time.Unix(int64(n), 0).UTC()}, nil
}

func TestRuleBased(t *testing.T) {
	now := time.Now()
	a := RuleBased(Input{Crop: wheat(), Reading: models.ZeroReading()}, now)
	assert.Equal(t, "Sensor data unavailable", a.Headline)

	a = RuleBased(Input{Crop: wheat(), Reading: models.SensorReading{Moisture: 45, PH: 6.5, N: 20, P: 10, K: 10}}, now)
	assert.Equal(t, RiskLow, a.Risk)

	a = RuleBased(Input{Crop: wheat(), Reading: models.SensorReading{Moisture: 20, PH: 8, N: 5}}, now)
	assert.Equal(t, RiskHigh, a.Risk)
	assert.Contains(t, a.Actions, "Irrigate within the next 24 hours")
	assert.Equal(t, SourceRules, a.Source)
}

func TestCache_RoundTrip(t *testing.T) {
	c := openCache(t)
	ctx := context.Background()

	_, _, ok, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, c.Put(ctx, Advisory{CropID: "c1", Headline: "first"}, at))
	require.NoError(t, c.Put(ctx, Advisory{CropID: "c1", Headline: "second"}, at.Add(time.Hour)))

	a, stored, ok, err := c.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", a.Headline)
	assert.True(t, stored.Equal(at.Add(time.Hour)))
}

func TestService_FreshCacheServedWithoutRegenerating(t *testing.T) {
	gen := &countingGen{}
	s := NewService(gen, openCache(t), time.Hour, nil)
	defer s.Close()

	first := s.Get(context.Background(), Input{Crop: wheat()})
	second := s.Get(context.Background(), Input{Crop: wheat()})
	assert.Equal(t, int32(1), gen.calls.Load())
	assert.Equal(t, first.Headline, second.Headline)
	assert.False(t, second.Stale)
}

func TestService_StaleWhileRevalidate(t *testing.T) {
	gen := &countingGen{}
	cache := openCache(t)
	s := NewService(gen, cache, time.Hour, nil)
	defer s.Close()
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, cache.Put(ctx, Advisory{CropID: "c1", Headline: "old", Source: SourceLLM}, old))

	a := s.Get(ctx, Input{Crop: wheat()})
	assert.Equal(t, "old", a.Headline)
	assert.True(t, a.Stale)

	require.Eventually(t, func() bool {
		got, _, ok, _ := cache.Get(ctx, "c1")
		return ok && got.Headline == "gen"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_GeneratorFailureFallsBackToRules(t *testing.T) {
	s := NewService(&countingGen{err: errors.New("rate limited")}, openCache(t), time.Hour, nil)
	defer s.Close()
	a := s.Get(context.Background(), Input{Crop: wheat(), Reading: models.SensorReading{Moisture: 50, PH: 6.8, N: 15}})
	assert.Equal(t, SourceRules, a.Source)
	assert.NotEmpty(t, a.Headline)
}

func TestService_FailedRefreshKeepsLastAdvisory(t *testing.T) {
	gen := &countingGen{err: errors.New("upstream down")}
	cache := openCache(t)
	s := NewService(gen, cache, time.Hour, nil)
	ctx := context.Background()

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, cache.Put(ctx, Advisory{CropID: "c1", Headline: "last good", Source: SourceLLM}, old))

	a := s.Get(ctx, Input{Crop: wheat()})
	assert.Equal(t, "last good", a.Headline)
	assert.True(t, a.Stale)

	require.Eventually(t, func() bool { return gen.calls.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	s.Close()

	got, at, ok, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SourceLLM, got.Source)
	assert.Equal(t, "last good", got.Headline)
	assert.WithinDuration(t, old, at, time.Second, "refresh time must not move on failure")

	// still stale, so the next read tries the generator again
	s2 := NewService(gen, cache, time.Hour, nil)
	defer s2.Close()
	assert.True(t, s2.Get(ctx, Input{Crop: wheat()}).Stale)
}

func TestService_RuleFallbackIsNotCached(t *testing.T) {
	cache := openCache(t)
	s := NewService(&countingGen{err: errors.New("rate limited")}, cache, time.Hour, nil)
	defer s.Close()
	ctx := context.Background()

	a := s.Get(ctx, Input{Crop: wheat()})
	assert.Equal(t, SourceRules, a.Source)
	_, _, ok, err := cache.Get(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		content, _ := json.Marshal(map[string]any{
			"headline": "Irrigate soon",
			"summary":  "Moisture is dropping.",
			"actions":  []string{"Irrigate tomorrow morning"},
			"risk":     "medium",
		})
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": string(content)},
			}},
		})
	}))
	defer srv.Close()

	gen := NewOpenAI("test-key", srv.URL+"/v1", "")
	a, err := gen.Generate(context.Background(), Input{Crop: wheat(), Reading: models.SensorReading{Moisture: 28, PH: 6.4, NPK: "12-8-10"}})
	require.NoError(t, err)
	assert.Equal(t, "Irrigate soon", a.Headline)
	assert.Equal(t, RiskMedium, a.Risk)
	assert.Equal(t, SourceLLM, a.Source)
	assert.Equal(t, "c1", a.CropID)
}

func TestOpenAI_BadReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI("k", srv.URL+"/v1", "").Generate(context.Background(), Input{Crop: wheat()})
	assert.Error(t, err)
}
