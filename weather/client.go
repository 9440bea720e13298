// Package weather fetches current conditions and forecasts from an
// OpenWeatherMap-compatible API and decides where to look them up.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"cropwise/models"

	"go.uber.org/zap"
)

var ErrNoAPIKey = errors.New("weather: api key not configured")

const DefaultBaseURL = "https://api.openweathermap.org"

type Current struct {
	City        string    `json:"city"`
	Country     string    `json:"country,omitempty"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	TempC       float64   `json:"temperature"`
	FeelsLikeC  float64   `json:"feelsLike"`
	HumidityPct float64   `json:"humidity"`
	PressureHPa float64   `json:"pressure"`
	WindSpeed   float64   `json:"windSpeed"`
	RainMM      float64   `json:"rainMm"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
	Time        time.Time `json:"time"`
}

// Brief is the subset attached to decision requests.
func (c Current) Brief() *models.WeatherBrief {
	return &models.WeatherBrief{
		TemperatureC: c.TempC,
		HumidityPct:  c.HumidityPct,
		RainMM:       c.RainMM,
		Description:  c.Description,
	}
}

type ForecastEntry struct {
	Time        time.Time `json:"time"`
	TempC       float64   `json:"temperature"`
	TempMinC    float64   `json:"tempMin"`
	TempMaxC    float64   `json:"tempMax"`
	HumidityPct float64   `json:"humidity"`
	RainMM      float64   `json:"rainMm"`
	RainChance  float64   `json:"rainChance"`
	Description string    `json:"description"`
	Icon        string    `json:"icon,omitempty"`
}

type Forecast struct {
	City    string          `json:"city"`
	Country string          `json:"country,omitempty"`
	Entries []ForecastEntry `json:"entries"`
}

// owm wire shapes
type owmMain struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Pressure  float64 `json:"pressure"`
	Humidity  float64 `json:"humidity"`
}

type owmCondition struct {
	Main        string `json:"main"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

type owmCurrent struct {
	Coord struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"coord"`
	Weather []owmCondition `json:"weather"`
	Main    owmMain        `json:"main"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
	Rain map[string]float64 `json:"rain"`
	Dt   int64              `json:"dt"`
	Name string             `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type owmForecast struct {
	List []struct {
		Dt      int64              `json:"dt"`
		Main    owmMain            `json:"main"`
		Weather []owmCondition     `json:"weather"`
		Pop     float64            `json:"pop"`
		Rain    map[string]float64 `json:"rain"`
	} `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

type Client struct {
	base   string
	apiKey string
	http   *http.Client
	log    *zap.Logger
}

func NewClient(baseURL, apiKey string, timeout time.Duration, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		apiKey: apiKey,
		http:   &http.Client{Timeout: timeout},
		log:    log.Named("weather"),
	}
}

func coordQuery(lat, lon float64) url.Values {
	return url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', 4, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', 4, 64)},
	}
}

func (c *Client) Current(ctx context.Context, lat, lon float64) (Current, error) {
	return c.current(ctx, coordQuery(lat, lon))
}

func (c *Client) CurrentByCity(ctx context.Context, city string) (Current, error) {
	return c.current(ctx, url.Values{"q": {city}})
}

func (c *Client) Forecast(ctx context.Context, lat, lon float64) (Forecast, error) {
	return c.forecast(ctx, coordQuery(lat, lon))
}

func (c *Client) ForecastByCity(ctx context.Context, city string) (Forecast, error) {
	return c.forecast(ctx, url.Values{"q": {city}})
}

func (c *Client) current(ctx context.Context, q url.Values) (Current, error) {
	var raw owmCurrent
	if err := c.get(ctx, "/data/2.5/weather", q, &raw); err != nil {
		return Current{}, err
	}
	out := Current{
		City:        raw.Name,
		Country:     raw.Sys.Country,
		Lat:         raw.Coord.Lat,
		Lon:         raw.Coord.Lon,
		TempC:       raw.Main.Temp,
		FeelsLikeC:  raw.Main.FeelsLike,
		HumidityPct: raw.Main.Humidity,
		PressureHPa: raw.Main.Pressure,
		WindSpeed:   raw.Wind.Speed,
		RainMM:      raw.Rain["1h"],
		Time:        time.Unix(raw.Dt, 0).UTC(),
	}
	if len(raw.Weather) > 0 {
		out.Description = raw.Weather[0].Description
		out.Icon = raw.Weather[0].Icon
	}
	return out, nil
}

func (c *Client) forecast(ctx context.Context, q url.Values) (Forecast, error) {
	var raw owmForecast
	if err := c.get(ctx, "/data/2.5/forecast", q, &raw); err != nil {
		return Forecast{}, err
	}
	out := Forecast{City: raw.City.Name, Country: raw.City.Country, Entries: make([]ForecastEntry, 0, len(raw.List))}
	for _, it := range raw.List {
		e := ForecastEntry{
			Time:        time.Unix(it.Dt, 0).UTC(),
			TempC:       it.Main.Temp,
			TempMinC:    it.Main.TempMin,
			TempMaxC:    it.Main.TempMax,
			HumidityPct: it.Main.Humidity,
			RainMM:      it.Rain["3h"],
			RainChance:  it.Pop,
		}
		if len(it.Weather) > 0 {
			e.Description = it.Weather[0].Description
			e.Icon = it.Weather[0].Icon
		}
		out.Entries = append(out.Entries, e)
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	if c.apiKey == "" {
		return ErrNoAPIKey
	}
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("weather call failed: %w", err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("weather non-2xx: %s, body: %s", resp.Status, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode weather resp: %w", err)
	}
	return nil
}
