package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"cropwise/decision"
	"cropwise/models"

	"github.com/go-chi/chi/v5"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFormError renders validation failures as 400 and anything else as 500.
func writeFormError(w http.ResponseWriter, err error) {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Message, "field": ve.Field})
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// writeResult answers 200 for live or fallback data and 502 when the decision API call failed.
func writeResult[T any](w http.ResponseWriter, res decision.Result[T]) {
	if !res.Usable() {
		writeJSON(w, http.StatusBadGateway, toResp(res))
		return
	}
	writeJSON(w, http.StatusOK, toResp(res))
}

func toResp[T any](res decision.Result[T]) resultResp[T] {
	out := resultResp[T]{Status: res.Status, Data: res.Value}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("bad json: %w", err)
	}
	return nil
}

// cropParam resolves {id} to a crop of the caller, writing 404 when it is not there.
func cropParam(w http.ResponseWriter, r *http.Request) (*Session, models.Crop, bool) {
	sess := mustSession(r)
	c, ok := sess.Store.Crop(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "crop not found")
		return sess, models.Crop{}, false
	}
	return sess, c, true
}

func cropQuery(c models.Crop) models.CropQuery {
	return models.CropQuery{CropID: c.ID, CropType: c.CropType, SowingDate: c.SowingDate, Stage: c.CurrentStage}
}
