package models

import (
	"fmt"
	"time"
)

// SensorReading is one soil snapshot for a crop.
type SensorReading struct {
	Moisture  float64   `json:"moisture"`
	PH        float64   `json:"ph"`
	N         float64   `json:"n"`
	P         float64   `json:"p"`
	K         float64   `json:"k"`
	NPK       string    `json:"npk"`
	Timestamp time.Time `json:"timestamp,omitzero"`
}

// ZeroReading is what a view shows when the sensor endpoint fails.
func ZeroReading() SensorReading {
	return SensorReading{NPK: "0-0-0"}
}

// IsZero reports whether r carries no measurement.
func (r SensorReading) IsZero() bool {
	return r.Moisture == 0 && r.PH == 0 && r.N == 0 && r.P == 0 && r.K == 0
}

// WithNPK fills NPK from the individual nutrient values when the API omits it.
func (r SensorReading) WithNPK() SensorReading {
	if r.NPK == "" {
		r.NPK = fmt.Sprintf("%g-%g-%g", r.N, r.P, r.K)
	}
	return r
}

// CropControls are per-crop toggles held in memory only.
type CropControls struct {
	Irrigation    bool `json:"irrigation"`
	Fertilization bool `json:"fertilization"`
}

const (
	ControlIrrigation    = "irrigation"
	ControlFertilization = "fertilization"
)

// Set updates the named toggle. Unknown keys report false.
func (c *CropControls) Set(key string, v bool) bool {
	switch key {
	case ControlIrrigation:
		c.Irrigation = v
	case ControlFertilization:
		c.Fertilization = v
	default:
		return false
	}
	return true
}

// CropHistoryEntry is a sensor snapshot with the action taken and its outcome.
type CropHistoryEntry struct {
	ID        string        `json:"id"`
	CropID    string        `json:"cropId"`
	Timestamp time.Time     `json:"timestamp"`
	Sensors   SensorReading `json:"sensors"`
	Action    string        `json:"action"`            // e.g. irrigate, fertilize, pest_control
	Decision  string        `json:"decision,omitempty"` // API recommendation text
	Outcome   string        `json:"outcome,omitempty"`  // apply | delay | ignore
	Reward    *float64      `json:"reward,omitempty"`
}

// HealthDetectionResult is the outcome of one image analysis.
type HealthDetectionResult struct {
	ID         string    `json:"id"`
	CropID     string    `json:"cropId"`
	Timestamp  time.Time `json:"timestamp"`
	ImageURL   string    `json:"imageUrl"`
	Disease    string    `json:"disease"`
	Confidence float64   `json:"confidence"`
	Healthy    bool      `json:"healthy"`
	Treatment  string    `json:"treatment,omitempty"`
	Model      string    `json:"model,omitempty"` // detect-disease | cropnet
}
