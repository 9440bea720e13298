package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const systemPrompt = "You are an agronomy assistant. Reply with a JSON object with keys " +
	`"headline" (max 8 words), "summary" (1-2 sentences), "actions" (array of up to 4 short imperative steps) ` +
	`and "risk" ("low", "medium" or "high").`

// OpenAI writes advisories with a chat completion model.
type OpenAI struct {
	client *openai.Client
	model  string
	now    func() time.Time
}

// NewOpenAI builds a generator. baseURL may point at any OpenAI-compatible API.
func NewOpenAI(apiKey, baseURL, model string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, now: time.Now}
}

type llmReply struct {
	Headline string   `json:"headline"`
	Summary  string   `json:"summary"`
	Actions  []string `json:"actions"`
	Risk     Risk     `json:"risk"`
}

func (o *OpenAI) Generate(ctx context.Context, in Input) (Advisory, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt(in)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
		MaxTokens:      300,
		Temperature:    0.3,
	})
	if err != nil {
		return Advisory{}, fmt.Errorf("openai chat completion error: %w", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return Advisory{}, fmt.Errorf("openai returned empty response or choices")
	}

	var reply llmReply
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &reply); err != nil {
		return Advisory{}, fmt.Errorf("decode advisory: %w", err)
	}
	if reply.Headline == "" || reply.Summary == "" {
		return Advisory{}, fmt.Errorf("advisory missing headline or summary")
	}
	switch reply.Risk {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		reply.Risk = RiskMedium
	}
	if reply.Actions == nil {
		reply.Actions = []string{}
	}
	return Advisory{
		CropID:      in.Crop.ID,
		Headline:    reply.Headline,
		Summary:     reply.Summary,
		Actions:     reply.Actions,
		Risk:        reply.Risk,
		Source:      SourceLLM,
		GeneratedAt: o.now().UTC(),
	}, nil
}

func prompt(in Input) string {
	var b strings.Builder
	c := in.Crop
	fmt.Fprintf(&b, "Crop: %s (%s), stage %s, sown %s, %s at %s.\n",
		c.Name, orUnknown(c.CropType), c.CurrentStage, c.SowingDate, c.LandArea, orUnknown(c.Location))
	r := in.Reading
	if r.IsZero() {
		b.WriteString("Sensor readings: unavailable.\n")
	} else {
		fmt.Fprintf(&b, "Sensor readings: moisture %.1f%%, pH %.1f, NPK %s.\n", r.Moisture, r.PH, r.NPK)
	}
	if w := in.Weather; w != nil {
		fmt.Fprintf(&b, "Weather: %.1f°C, humidity %.0f%%, rain %.1f mm, %s.\n", w.TemperatureC, w.HumidityPct, w.RainMM, w.Description)
	}
	b.WriteString("Write today's advisory for the farmer.")
	return b.String()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
