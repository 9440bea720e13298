package main

import (
	"cropwise/decision"
	"cropwise/models"
)

// Request/response DTOs. Keep them minimal and explicit.

type registerReq struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Password string `json:"password"`
}

type tokenResp struct {
	Token string           `json:"token"`
	Auth  models.AuthState `json:"auth"`
}

type meResp struct {
	User models.User      `json:"user"`
	Auth models.AuthState `json:"auth"`
}

type controlReq struct {
	Enabled bool `json:"enabled"`
}

type decideReq struct {
	Kind models.DecisionKind `json:"type"`
	// Sensors overrides the live reading when set.
	Sensors *models.SensorReading `json:"sensors,omitempty"`
}

type feedbackReq struct {
	Action  string                 `json:"action"`
	Outcome models.FeedbackOutcome `json:"outcome"`
	State   string                 `json:"state,omitempty"`
	Reward  *float64               `json:"reward,omitempty"`
}

type yieldReq struct {
	Rainfall *float64 `json:"rainfall_mm,omitempty"`
}

// resultResp wraps a decision API result for the client: the payload plus
// whether it is live data or a fallback.
type resultResp[T any] struct {
	Status decision.Status `json:"status"`
	Data   T               `json:"data"`
	Error  string          `json:"error,omitempty"`
}

type sensorsResp struct {
	CropID  string               `json:"cropId"`
	Status  decision.Status      `json:"status"`
	Reading models.SensorReading `json:"reading"`
}

type decideResp struct {
	Decision models.Decision         `json:"decision"`
	Entry    models.CropHistoryEntry `json:"entry"`
}

type dashboardResp struct {
	Auth      models.AuthState                 `json:"auth"`
	Farms     int                              `json:"farms"`
	Crops     int                              `json:"crops"`
	Analytics resultResp[models.Analytics]     `json:"analytics"`
	Models    resultResp[[]models.ModelMetric] `json:"models"`
	Weather   any                              `json:"weather"`
}
