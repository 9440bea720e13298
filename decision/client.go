// Package decision is the client for the remote Decision API. Every call returns
// a Result whose Status says whether the value is real, a documented fallback,
// or absent.
package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cropwise/models"

	"go.uber.org/zap"
)

type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// Result carries the outcome of one endpoint call. Degraded results hold the
// fallback value and the error that caused it.
type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

func (r Result[T]) OK() bool { return r.Status == StatusOK }

// Usable reports whether Value can be rendered (real data or a fallback).
func (r Result[T]) Usable() bool { return r.Status != StatusFailed }

func ok[T any](v T) Result[T] { return Result[T]{Value: v, Status: StatusOK} }

func degraded[T any](fallback T, err error) Result[T] {
	return Result[T]{Value: fallback, Status: StatusDegraded, Err: err}
}

func failed[T any](err error) Result[T] { return Result[T]{Status: StatusFailed, Err: err} }

const DefaultTimeout = 20 * time.Second

type Client struct {
	base string
	http *http.Client
	log  *zap.Logger
}

func New(baseURL string, timeout time.Duration, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if baseURL == "" || baseURL == "local" {
		baseURL = "http://127.0.0.1:8000"
	}
	return &Client{
		base: strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
		log:  log.Named("decision"),
	}
}

// postJSON sends in as JSON to path and decodes the reply into out.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal %s req: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, q url.Values, out any) error {
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("decision call %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &HTTPError{Path: req.URL.Path, Status: resp.StatusCode, Body: string(data)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s resp: %w", req.URL.Path, err)
	}
	return nil
}

// HTTPError is a non-2xx reply.
type HTTPError struct {
	Path   string
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("decision %s non-2xx: %d, body: %s", e.Path, e.Status, e.Body)
}

func (c *Client) warn(call string, err error) {
	c.log.Warn("decision api", zap.String("call", call), zap.Error(err))
}

func (c *Client) Decide(ctx context.Context, in models.DecisionRequest) Result[models.Decision] {
	var out models.Decision
	if err := c.postJSON(ctx, "/decide", in, &out); err != nil {
		c.warn("decide", err)
		return failed[models.Decision](err)
	}
	return ok(out)
}

func (c *Client) Feedback(ctx context.Context, in models.FeedbackRequest) Result[models.FeedbackAck] {
	if !in.Outcome.Valid() {
		return failed[models.FeedbackAck](fmt.Errorf("invalid outcome %q", in.Outcome))
	}
	var out models.FeedbackAck
	if err := c.postJSON(ctx, "/feedback", in, &out); err != nil {
		c.warn("feedback", err)
		return failed[models.FeedbackAck](err)
	}
	return ok(out)
}

func (c *Client) CropJourney(ctx context.Context, q models.CropQuery) Result[[]models.JourneyPoint] {
	var out struct {
		Journey []models.JourneyPoint `json:"journey"`
	}
	if err := c.postJSON(ctx, "/crop/journey", q, &out); err != nil {
		c.warn("crop journey", err)
		return degraded([]models.JourneyPoint{}, err)
	}
	return ok(nonNil(out.Journey))
}

func (c *Client) GrowthStages(ctx context.Context, q models.CropQuery) Result[[]models.GrowthStage] {
	var out struct {
		Stages []models.GrowthStage `json:"stages"`
	}
	if err := c.postJSON(ctx, "/crop/growth-stages", q, &out); err != nil {
		c.warn("growth stages", err)
		return degraded([]models.GrowthStage{}, err)
	}
	return ok(nonNil(out.Stages))
}

func (c *Client) CropRotation(ctx context.Context, q models.CropQuery) Result[[]models.RotationSuggestion] {
	var out struct {
		Suggestions []models.RotationSuggestion `json:"suggestions"`
	}
	if err := c.postJSON(ctx, "/crop/rotation", q, &out); err != nil {
		c.warn("crop rotation", err)
		return degraded([]models.RotationSuggestion{}, err)
	}
	return ok(nonNil(out.Suggestions))
}

func (c *Client) PredictYield(ctx context.Context, in models.YieldRequest) Result[models.YieldPrediction] {
	var out models.YieldPrediction
	if err := c.postJSON(ctx, "/yield/predict", in, &out); err != nil {
		c.warn("predict yield", err)
		return failed[models.YieldPrediction](err)
	}
	return ok(out)
}

// Sensors fetches the current reading for cropID. On failure the zero reading
// is returned, never a previous value.
func (c *Client) Sensors(ctx context.Context, cropID string) Result[models.SensorReading] {
	return c.reading(ctx, "/sensors", cropID)
}

// SensorTick advances the simulated sensor feed and returns the new reading.
func (c *Client) SensorTick(ctx context.Context, cropID string) Result[models.SensorReading] {
	return c.reading(ctx, "/sensors/tick", cropID)
}

func (c *Client) reading(ctx context.Context, path, cropID string) Result[models.SensorReading] {
	q := url.Values{}
	if cropID != "" {
		q.Set("crop_id", cropID)
	}
	var out models.SensorReading
	if err := c.get(ctx, path, q, &out); err != nil {
		if ctx.Err() == nil {
			c.warn(strings.TrimPrefix(path, "/"), err)
		}
		return degraded(models.ZeroReading(), err)
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	return ok(out.WithNPK())
}

// Analytics falls back to the offline policy defaults.
func (c *Client) Analytics(ctx context.Context) Result[models.Analytics] {
	var out models.Analytics
	if err := c.get(ctx, "/analytics", nil, &out); err != nil {
		c.warn("analytics", err)
		return degraded(models.OfflineAnalytics(err.Error()), err)
	}
	if out.SystemStatus == "" {
		out.SystemStatus = "online"
	}
	return ok(out)
}

func (c *Client) CropDetails(ctx context.Context, q models.CropQuery) Result[models.CropDetails] {
	var out models.CropDetails
	if err := c.postJSON(ctx, "/crop-details", q, &out); err != nil {
		c.warn("crop details", err)
		return failed[models.CropDetails](err)
	}
	return ok(out)
}

// DetectDisease uploads an image as multipart field "file".
func (c *Client) DetectDisease(ctx context.Context, cropID, filename, contentType string, image io.Reader) Result[models.DiseaseDetection] {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if cropID != "" {
		_ = mw.WriteField("crop_id", cropID)
	}
	part, err := mw.CreatePart(filePartHeader(filename, contentType))
	if err != nil {
		return failed[models.DiseaseDetection](fmt.Errorf("build multipart: %w", err))
	}
	if _, err := io.Copy(part, image); err != nil {
		return failed[models.DiseaseDetection](fmt.Errorf("read image: %w", err))
	}
	if err := mw.Close(); err != nil {
		return failed[models.DiseaseDetection](fmt.Errorf("build multipart: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/detect-disease", &buf)
	if err != nil {
		return failed[models.DiseaseDetection](fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out models.DiseaseDetection
	if err := c.do(req, &out); err != nil {
		c.warn("detect disease", err)
		return failed[models.DiseaseDetection](err)
	}
	return ok(out)
}

// CropNetRequest points the CropNet model at an already uploaded image.
type CropNetRequest struct {
	CropID   string `json:"crop_id,omitempty"`
	ImageURL string `json:"image_url"`
}

func (c *Client) CropNetDetect(ctx context.Context, in CropNetRequest) Result[models.DiseaseDetection] {
	var out models.DiseaseDetection
	if err := c.postJSON(ctx, "/cropnet-detect", in, &out); err != nil {
		c.warn("cropnet detect", err)
		return failed[models.DiseaseDetection](err)
	}
	return ok(out)
}

func (c *Client) ModelMetrics(ctx context.Context) Result[[]models.ModelMetric] {
	var out struct {
		Models []models.ModelMetric `json:"models"`
	}
	if err := c.get(ctx, "/model-metrics", nil, &out); err != nil {
		c.warn("model metrics", err)
		return degraded([]models.ModelMetric{}, err)
	}
	return ok(nonNil(out.Models))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
