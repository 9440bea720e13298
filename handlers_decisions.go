package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cropwise/advisory"
	"cropwise/blobstore"
	"cropwise/decision"
	"cropwise/export"
	"cropwise/models"
	"cropwise/weather"

	"go.uber.org/zap"
)

// weatherBrief is best effort: no key or an outage just leaves it nil.
func (a *App) weatherBrief(ctx context.Context, sess *Session, c models.Crop) *models.WeatherBrief {
	if a.cfg.WeatherAPIKey == "" {
		return nil
	}
	q := weather.Query{}
	if f, ok := sess.Store.Farm(c.FarmID); ok {
		q.Farm = &f
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rep, err := a.weather.Report(ctx, q)
	if err != nil || rep.Current == nil {
		return nil
	}
	return rep.Current.Brief()
}

// handleDecide asks the decision API for a recommendation on the crop's
// current reading and records it in the crop history.
func (a *App) handleDecide(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	var req decideReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	switch req.Kind {
	case "":
		req.Kind = models.DecisionIrrigation
	case models.DecisionIrrigation, models.DecisionFertilizer, models.DecisionPest:
	default:
		writeFormError(w, &models.ValidationError{Field: "type", Message: "type must be irrigation, fertilizer or pest"})
		return
	}

	reading := models.ZeroReading()
	if req.Sensors != nil {
		reading = req.Sensors.WithNPK()
	} else if res := a.decision.Sensors(r.Context(), c.ID); res.OK() {
		reading = res.Value
	}

	res := a.decision.Decide(r.Context(), models.DecisionRequest{
		CropID:   c.ID,
		CropType: c.CropType,
		Stage:    c.CurrentStage,
		Kind:     req.Kind,
		Sensors:  reading,
		Weather:  a.weatherBrief(r.Context(), sess, c),
	})
	if !res.OK() {
		writeResult(w, res)
		return
	}
	entry := sess.Store.AddCropHistory(models.CropHistoryEntry{
		CropID:   c.ID,
		Sensors:  reading,
		Action:   res.Value.Action,
		Decision: res.Value.Reason,
	})
	writeJSON(w, http.StatusOK, decideResp{Decision: res.Value, Entry: entry})
}

// handleFeedback reports what the farmer did with a recommendation.
func (a *App) handleFeedback(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	var req feedbackReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeFormError(w, &models.ValidationError{Field: "action", Message: "action is required"})
		return
	}
	if !req.Outcome.Valid() {
		writeFormError(w, &models.ValidationError{Field: "outcome", Message: "outcome must be apply, delay or ignore"})
		return
	}
	res := a.decision.Feedback(r.Context(), models.FeedbackRequest{
		CropID: c.ID, Action: req.Action, Outcome: req.Outcome, State: req.State, Reward: req.Reward,
	})
	if res.OK() {
		reward := req.Reward
		if res.Value.Reward != nil {
			reward = res.Value.Reward
		}
		sess.Store.AddCropHistory(models.CropHistoryEntry{
			CropID:  c.ID,
			Action:  req.Action,
			Outcome: string(req.Outcome),
			Reward:  reward,
		})
	}
	writeResult(w, res)
}

func (a *App) handleHistory(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Store.CropHistory(c.ID))
}

func (a *App) handleHistoryXLSX(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-history.xlsx"`, c.ID))
	if err := export.CropHistoryXLSX(w, c, sess.Store.CropHistory(c.ID), time.Now()); err != nil {
		a.log.Error("export history", zap.String("crop", c.ID), zap.Error(err))
	}
}

// handleDetectDisease stores the uploaded leaf image and runs it through the
// detect-disease model, or CropNet with ?model=cropnet.
func (a *App) handleDetectDisease(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeFormError(w, &models.ValidationError{Field: "image", Message: "image file is required"})
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "image too large")
		return
	}
	contentType := header.Header.Get("Content-Type")

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.HTTPTimeout)
	defer cancel()
	url, err := a.blobs.Put(ctx, blobstore.PrefixDiseaseImages, header.Filename, contentType, bytes.NewReader(data))
	if err != nil {
		a.log.Error("upload disease image", zap.String("crop", c.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}

	model := "detect-disease"
	var res decision.Result[models.DiseaseDetection]
	if r.URL.Query().Get("model") == "cropnet" {
		model = "cropnet"
		res = a.decision.CropNetDetect(ctx, decision.CropNetRequest{CropID: c.ID, ImageURL: url})
	} else {
		res = a.decision.DetectDisease(ctx, c.ID, header.Filename, contentType, bytes.NewReader(data))
	}
	if !res.OK() {
		writeResult(w, res)
		return
	}
	d := sess.Store.AddHealthDetection(models.HealthDetectionResult{
		CropID:     c.ID,
		ImageURL:   url,
		Disease:    res.Value.Disease,
		Confidence: res.Value.Confidence,
		Healthy:    res.Value.Healthy,
		Treatment:  res.Value.Treatment,
		Model:      model,
	})
	writeJSON(w, http.StatusOK, d)
}

func (a *App) handleDetections(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mustSession(r).Store.HealthDetections())
}

func (a *App) handleJourney(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeResult(w, a.decision.CropJourney(r.Context(), cropQuery(c)))
}

func (a *App) handleGrowthStages(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeResult(w, a.decision.GrowthStages(r.Context(), cropQuery(c)))
}

func (a *App) handleRotation(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeResult(w, a.decision.CropRotation(r.Context(), cropQuery(c)))
}

func (a *App) handleYield(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	var req yieldReq
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "bad json")
			return
		}
	}
	reading := models.ZeroReading()
	if res := a.decision.Sensors(r.Context(), c.ID); res.OK() {
		reading = res.Value
	}
	writeResult(w, a.decision.PredictYield(r.Context(), models.YieldRequest{
		CropID:   c.ID,
		CropType: c.CropType,
		AreaAcre: acres(c.LandArea),
		Sensors:  reading,
		Rainfall: req.Rainfall,
	}))
}

// acres reads the number out of a "12 acres" label.
func acres(label string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(label), "acres")), 64)
	return v
}

func (a *App) handleCropDetails(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeResult(w, a.decision.CropDetails(r.Context(), cropQuery(c)))
}

// handleAdvisory returns the crop's advisory card, possibly stale while a fresh one is generated.
func (a *App) handleAdvisory(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	in := advisory.Input{Crop: c, Reading: models.ZeroReading(), Weather: a.weatherBrief(r.Context(), sess, c)}
	if res := a.decision.Sensors(r.Context(), c.ID); res.OK() {
		in.Reading = res.Value
	}
	writeJSON(w, http.StatusOK, a.advisory.Get(r.Context(), in))
}
