package main

import (
	"context"
	"net/http"
	"time"

	"cropwise/blobstore"
	"cropwise/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const maxImageBytes = 10 << 20

// handleListCrops returns all crops, or one farm's crops with ?farmId=.
func (a *App) handleListCrops(w http.ResponseWriter, r *http.Request) {
	st := mustSession(r).Store
	if farmID := r.URL.Query().Get("farmId"); farmID != "" {
		writeJSON(w, http.StatusOK, st.CropsForFarm(farmID))
		return
	}
	writeJSON(w, http.StatusOK, st.AllCrops())
}

// handleCreateCrop registers a crop on one of the caller's farms.
func (a *App) handleCreateCrop(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)

	var in models.CropInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	if err := in.Validate(); err != nil {
		writeFormError(w, err)
		return
	}
	farm, ok := sess.Store.Farm(in.FarmID)
	if !ok {
		writeFormError(w, &models.ValidationError{Field: "farmId", Message: "farm not found"})
		return
	}
	crop, err := models.NewCrop(in, sess.UserID, farm.Location, time.Now())
	if err != nil {
		writeFormError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, ok := sess.Store.AddCropReturningID(ctx, crop, farm.ID)
	if !ok {
		writeError(w, http.StatusBadGateway, "could not save crop")
		return
	}
	saved, _ := sess.Store.Crop(id)
	writeJSON(w, http.StatusCreated, saved)
}

func (a *App) handleGetCrop(w http.ResponseWriter, r *http.Request) {
	_, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleCropImage uploads the multipart "image" and points the crop at it.
func (a *App) handleCropImage(w http.ResponseWriter, r *http.Request) {
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

	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.HTTPTimeout)
	defer cancel()
	url, err := a.blobs.Put(ctx, blobstore.PrefixCropImages, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		a.log.Error("upload crop image", zap.String("crop", c.ID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "upload failed")
		return
	}
	if !sess.Store.UpdateCropImage(ctx, c.ID, url) {
		writeError(w, http.StatusBadGateway, "could not save crop")
		return
	}
	saved, _ := sess.Store.Crop(c.ID)
	writeJSON(w, http.StatusOK, saved)
}

func (a *App) handleGetControls(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Store.CropControl(c.ID))
}

// handleSetControl flips one toggle: irrigation or fertilization.
func (a *App) handleSetControl(w http.ResponseWriter, r *http.Request) {
	sess, c, ok := cropParam(w, r)
	if !ok {
		return
	}
	var req controlReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	key := chi.URLParam(r, "key")
	if !sess.Store.SetCropControl(c.ID, key, req.Enabled) {
		writeFormError(w, &models.ValidationError{Field: "key", Message: "unknown control " + key})
		return
	}
	writeJSON(w, http.StatusOK, sess.Store.CropControl(c.ID))
}
