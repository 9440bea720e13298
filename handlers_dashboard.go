package main

import (
	"context"
	"net/http"
	"strconv"

	"cropwise/models"
	"cropwise/weather"

	"golang.org/x/sync/errgroup"
)

// handleAnalytics answers with offline defaults (status degraded) when the decision API is down.
func (a *App) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeResult(w, a.decision.Analytics(r.Context()))
}

func (a *App) handleModelMetrics(w http.ResponseWriter, r *http.Request) {
	writeResult(w, a.decision.ModelMetrics(r.Context()))
}

// weatherQuery reads ?lat=&lon= or ?farmId= from the request.
func weatherQuery(r *http.Request, sess *Session) weather.Query {
	var q weather.Query
	if lat, err := strconv.ParseFloat(r.URL.Query().Get("lat"), 64); err == nil {
		if lon, err := strconv.ParseFloat(r.URL.Query().Get("lon"), 64); err == nil {
			q.Lat, q.Lon = &lat, &lon
		}
	}
	if farmID := r.URL.Query().Get("farmId"); farmID != "" {
		if f, ok := sess.Store.Farm(farmID); ok {
			q.Farm = &f
		}
	} else if farms := sess.Store.Farms(); len(farms) > 0 {
		q.Farm = &farms[0]
	}
	return q
}

// handleWeather returns current weather and forecast. Failures still answer
// 200 with the resolved location and an error field so the card can render.
func (a *App) handleWeather(w http.ResponseWriter, r *http.Request) {
	rep, _ := a.weather.Report(r.Context(), weatherQuery(r, mustSession(r)))
	writeJSON(w, http.StatusOK, rep)
}

// handleDashboard loads analytics, model metrics and weather in parallel.
// Each panel keeps its own outcome; one failing panel does not fail the others.
func (a *App) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	out := dashboardResp{
		Auth:  sess.Store.AuthState(),
		Farms: len(sess.Store.Farms()),
		Crops: len(sess.Store.AllCrops()),
	}
	q := weatherQuery(r, sess)

	eg, egCtx := errgroup.WithContext(r.Context())
	eg.Go(func() error {
		out.Analytics = toResp(a.decision.Analytics(egCtx))
		return nil
	})
	eg.Go(func() error {
		out.Models = toResp(a.decision.ModelMetrics(egCtx))
		return nil
	})
	eg.Go(func() error {
		ctx, cancel := context.WithTimeout(egCtx, a.cfg.HTTPTimeout)
		defer cancel()
		rep, _ := a.weather.Report(ctx, q)
		out.Weather = rep
		return nil
	})
	_ = eg.Wait()

	if out.Models.Data == nil {
		out.Models.Data = []models.ModelMetric{}
	}
	writeJSON(w, http.StatusOK, out)
}
