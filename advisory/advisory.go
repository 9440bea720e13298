// Package advisory produces the per-crop advisory card: a short LLM-written
// recommendation, cached per crop in SQLite and revalidated in the background.
package advisory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cropwise/models"
)

type Risk string

const (
	RiskLow    Risk = "low"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

const (
	SourceLLM   = "llm"
	SourceRules = "rules"
)

type Advisory struct {
	CropID      string    `json:"cropId"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary"`
	Actions     []string  `json:"actions"`
	Risk        Risk      `json:"risk"`
	Source      string    `json:"source"`
	GeneratedAt time.Time `json:"generatedAt"`
	Stale       bool      `json:"stale"`
}

// Input is everything an advisory is written from.
type Input struct {
	Crop    models.Crop
	Reading models.SensorReading
	Weather *models.WeatherBrief
}

type Generator interface {
	Generate(ctx context.Context, in Input) (Advisory, error)
}

// RuleBased writes an advisory from fixed agronomic thresholds.
func RuleBased(in Input, now time.Time) Advisory {
	a := Advisory{
		CropID:      in.Crop.ID,
		Source:      SourceRules,
		GeneratedAt: now.UTC(),
		Actions:     []string{},
	}
	r := in.Reading
	if r.IsZero() {
		a.Headline = "Sensor data unavailable"
		a.Summary = fmt.Sprintf("No live readings for %s. Check the field sensors before acting.", in.Crop.Name)
		a.Risk = RiskMedium
		a.Actions = append(a.Actions, "Inspect soil moisture manually")
		return a
	}

	var issues []string
	switch {
	case r.Moisture < 30:
		issues = append(issues, "soil is dry")
		a.Actions = append(a.Actions, "Irrigate within the next 24 hours")
	case r.Moisture > 70:
		issues = append(issues, "soil is waterlogged")
		a.Actions = append(a.Actions, "Pause irrigation and check drainage")
	}
	switch {
	case r.PH > 0 && r.PH < 5.5:
		issues = append(issues, "soil is acidic")
		a.Actions = append(a.Actions, "Apply agricultural lime")
	case r.PH > 7.5:
		issues = append(issues, "soil is alkaline")
		a.Actions = append(a.Actions, "Apply gypsum or elemental sulphur")
	}
	if r.N < 10 {
		issues = append(issues, "nitrogen is low")
		a.Actions = append(a.Actions, "Top-dress with a nitrogen fertilizer")
	}
	if w := in.Weather; w != nil && w.RainMM > 5 && r.Moisture >= 30 {
		a.Actions = append(a.Actions, "Rain expected, delay irrigation")
	}
	if tip := stageTip(in.Crop.CurrentStage); tip != "" {
		a.Actions = append(a.Actions, tip)
	}

	switch len(issues) {
	case 0:
		a.Risk = RiskLow
		a.Headline = "Conditions look healthy"
		a.Summary = fmt.Sprintf("%s readings are within normal ranges.", in.Crop.Name)
	case 1:
		a.Risk = RiskMedium
		a.Headline = "One issue needs attention"
		a.Summary = fmt.Sprintf("For %s the %s.", in.Crop.Name, issues[0])
	default:
		a.Risk = RiskHigh
		a.Headline = "Several issues need attention"
		a.Summary = fmt.Sprintf("For %s: %s.", in.Crop.Name, strings.Join(issues, "; "))
	}
	return a
}

func stageTip(stage string) string {
	switch stage {
	case models.StagePlanting:
		return "Keep the seedbed evenly moist"
	case models.StageVegetative:
		return "Scout for leaf pests weekly"
	case models.StageFlowering:
		return "Avoid water stress during flowering"
	case models.StageHarvesting:
		return "Stop irrigation two weeks before harvest"
	}
	return ""
}
