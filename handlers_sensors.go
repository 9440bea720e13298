package main

import (
	"net/http"

	"go.uber.org/zap"
)

// handleSensors fetches one reading. A failed call yields the zero reading with status degraded.
func (a *App) handleSensors(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	res := a.decision.Sensors(r.Context(), c.ID)
	writeJSON(w, http.StatusOK, sensorsResp{CropID: c.ID, Status: res.Status, Reading: res.Value})
}

// handleSensorStream streams readings as server-sent events while the client
// stays connected. All streams on one crop share one poller.
func (a *App) handleSensorStream(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	sse, ok := startSSE(w)
	if !ok {
		return
	}
	poller, release := sess.Sensors.Acquire(c.ID)
	defer release()
	readings, stop := poller.Watch()
	defer stop()

	a.log.Debug("sensor stream opened", zap.String("crop", c.ID))
	for {
		select {
		case <-r.Context().Done():
			a.log.Debug("sensor stream closed", zap.String("crop", c.ID))
			return
		case reading, ok := <-readings:
			if !ok {
				return
			}
			_, status := poller.Latest()
			if err := sse.send("reading", sensorsResp{CropID: c.ID, Status: status, Reading: reading}); err != nil {
				return
			}
		}
	}
}
