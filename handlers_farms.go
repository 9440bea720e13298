package main

import (
	"context"
	"net/http"
	"time"

	"cropwise/export"
	"cropwise/models"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *App) handleListFarms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mustSession(r).Store.Farms())
}

// handleCreateFarm validates the registration form and persists the farm.
func (a *App) handleCreateFarm(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)

	var in models.FarmInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	farm, err := models.NewFarm(in, sess.UserID, uuid.NewString, time.Now())
	if err != nil {
		writeFormError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, ok := sess.Store.AddFarm(ctx, farm)
	if !ok {
		writeError(w, http.StatusBadGateway, "could not save farm")
		return
	}
	saved, _ := sess.Store.Farm(id)
	writeJSON(w, http.StatusCreated, saved)
}

func (a *App) handleGetFarm(w http.ResponseWriter, r *http.Request) {
	f, ok := mustSession(r).Store.Farm(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "farm not found")
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (a *App) handleFarmCrops(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mustSession(r).Store.CropsForFarm(chi.URLParam(r, "id")))
}

// handleFarmsGeoJSON returns every farm with coordinates as a point feature.
func (a *App) handleFarmsGeoJSON(w http.ResponseWriter, r *http.Request) {
	st := mustSession(r).Store
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, export.FarmsGeoJSON(st.Farms(), st.AllCrops()))
}

// handleLandsGeoJSON returns the farm's marked parcels in canvas coordinates.
func (a *App) handleLandsGeoJSON(w http.ResponseWriter, r *http.Request) {
	f, ok := mustSession(r).Store.Farm(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "farm not found")
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	writeJSON(w, http.StatusOK, export.LandsGeoJSON(f))
}
