package models

import "time"

// Payloads exchanged with the remote Decision API.

type DecisionKind string

const (
	DecisionIrrigation DecisionKind = "irrigation"
	DecisionFertilizer DecisionKind = "fertilizer"
	DecisionPest       DecisionKind = "pest"
)

type DecisionRequest struct {
	CropID   string        `json:"crop_id"`
	CropType string        `json:"crop_type,omitempty"`
	Stage    string        `json:"stage,omitempty"`
	Kind     DecisionKind  `json:"type"`
	Sensors  SensorReading `json:"sensors"`
	Weather  *WeatherBrief `json:"weather,omitempty"`
}

// WeatherBrief is the weather context attached to a decision request.
type WeatherBrief struct {
	TemperatureC float64 `json:"temperature"`
	HumidityPct  float64 `json:"humidity"`
	RainMM       float64 `json:"rain_mm"`
	Description  string  `json:"description,omitempty"`
}

type Decision struct {
	Action     string             `json:"action"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason,omitempty"`
	Amount     *float64           `json:"amount,omitempty"`
	Unit       string             `json:"unit,omitempty"`
	State      string             `json:"state,omitempty"`
	QValues    map[string]float64 `json:"q_values,omitempty"`
}

type FeedbackOutcome string

const (
	OutcomeApply  FeedbackOutcome = "apply"
	OutcomeDelay  FeedbackOutcome = "delay"
	OutcomeIgnore FeedbackOutcome = "ignore"
)

// Valid reports whether o is one of the accepted outcomes.
func (o FeedbackOutcome) Valid() bool {
	return o == OutcomeApply || o == OutcomeDelay || o == OutcomeIgnore
}

type FeedbackRequest struct {
	CropID  string          `json:"crop_id"`
	Action  string          `json:"action"`
	Outcome FeedbackOutcome `json:"outcome"`
	State   string          `json:"state,omitempty"`
	Reward  *float64        `json:"reward,omitempty"`
}

type FeedbackAck struct {
	Status  string   `json:"status"`
	Reward  *float64 `json:"reward,omitempty"`
	Message string   `json:"message,omitempty"`
}

type JourneyPoint struct {
	Timestamp time.Time     `json:"timestamp"`
	Sensors   SensorReading `json:"sensors"`
	Action    string        `json:"action,omitempty"`
	Reward    *float64      `json:"reward,omitempty"`
}

type GrowthStage struct {
	Stage     string  `json:"stage"`
	StartDate string  `json:"start_date"`
	EndDate   string  `json:"end_date"`
	Progress  float64 `json:"progress"`
	Current   bool    `json:"current"`
}

type RotationSuggestion struct {
	Crop   string  `json:"crop"`
	Reason string  `json:"reason"`
	Score  float64 `json:"score"`
}

// CropQuery identifies the crop for the crop-level analytic endpoints.
type CropQuery struct {
	CropID     string `json:"crop_id"`
	CropType   string `json:"crop_type"`
	SowingDate string `json:"sowing_date,omitempty"`
	Stage      string `json:"stage,omitempty"`
}

type YieldRequest struct {
	CropID   string        `json:"crop_id"`
	CropType string        `json:"crop_type"`
	AreaAcre float64       `json:"area_acres"`
	Sensors  SensorReading `json:"sensors"`
	Rainfall *float64      `json:"rainfall_mm,omitempty"`
}

type YieldPrediction struct {
	PredictedYield float64            `json:"predicted_yield"`
	Unit           string             `json:"unit"`
	Confidence     float64            `json:"confidence"`
	Factors        map[string]float64 `json:"factors,omitempty"`
}

type CropDetails struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	WaterRequirement string   `json:"water_requirement,omitempty"`
	IdealPH          string   `json:"ideal_ph,omitempty"`
	Fertilizer       string   `json:"fertilizer,omitempty"`
	CommonPests      []string `json:"common_pests,omitempty"`
}

type DiseaseDetection struct {
	Disease    string  `json:"disease"`
	Confidence float64 `json:"confidence"`
	Healthy    bool    `json:"healthy"`
	Treatment  string  `json:"treatment,omitempty"`
}

// PolicyStats describes the reinforcement-learning policy behind /decide.
type PolicyStats struct {
	Epsilon        float64 `json:"epsilon"`
	LearningRate   float64 `json:"learning_rate"`
	DiscountFactor float64 `json:"discount_factor"`
}

type Analytics struct {
	SystemStatus   string                        `json:"system_status"`
	TotalDecisions int                           `json:"total_decisions"`
	AverageReward  float64                       `json:"average_reward"`
	Policy         PolicyStats                   `json:"policy"`
	QTable         map[string]map[string]float64 `json:"q_table"`
	Error          string                        `json:"error,omitempty"`
}

// OfflineAnalytics is what the analytics dashboard renders while /analytics is unreachable.
func OfflineAnalytics(reason string) Analytics {
	q := map[string]map[string]float64{}
	for _, state := range []string{"dry", "optimal", "wet"} {
		q[state] = map[string]float64{"irrigate": 0, "delay": 0, "skip": 0}
	}
	return Analytics{
		SystemStatus: "offline",
		Policy:       PolicyStats{Epsilon: 0.1, LearningRate: 0.1, DiscountFactor: 0.9},
		QTable:       q,
		Error:        reason,
	}
}

type ModelMetric struct {
	Name      string    `json:"name"`
	Accuracy  float64   `json:"accuracy"`
	Precision float64   `json:"precision,omitempty"`
	Recall    float64   `json:"recall,omitempty"`
	F1        float64   `json:"f1,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
