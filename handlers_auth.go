package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cropwise/backend"
	"cropwise/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func credentials(email, phone, password string) (string, string, error) {
	email, phone = models.NormalizeEmail(email), models.NormalizePhone(phone)
	if email == "" && phone == "" {
		return "", "", &models.ValidationError{Field: "email", Message: "email or phone is required"}
	}
	if len(password) < 6 {
		return "", "", &models.ValidationError{Field: "password", Message: "password must be at least 6 characters"}
	}
	return email, phone, nil
}

// handleRegister creates a new user with bcrypt-hashed password and signs them in.
func (a *App) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	email, phone, err := credentials(req.Email, req.Phone, req.Password)
	if err != nil {
		writeFormError(w, err)
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "hash error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	u, err := a.be.CreateUser(ctx, models.User{Email: email, Phone: phone, PasswordHash: string(hash)})
	if errors.Is(err, backend.ErrDuplicate) {
		writeError(w, http.StatusConflict, "account already registered")
		return
	}
	if err != nil {
		a.log.Error("create user", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	a.issueToken(w, r, u, http.StatusCreated)
}

// handleLogin verifies credentials and returns a JWT token.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad json")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := a.be.FindUser(ctx, models.NormalizeEmail(req.Email), models.NormalizePhone(req.Phone))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	a.issueToken(w, r, u, http.StatusOK)
}

func (a *App) issueToken(w http.ResponseWriter, r *http.Request, u models.User, status int) {
	tok, err := signJWT(a.cfg.JWTSecret, u.ID, a.sessions.IssueTime(u.ID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "jwt error")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), a.cfg.HTTPTimeout)
	defer cancel()
	sess := a.sessions.Login(ctx, u)
	writeJSON(w, status, tokenResp{Token: tok, Auth: sess.Store.AuthState()})
}

func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	a.sessions.Logout(sess.UserID)
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the current user's profile (without password hash).
func (a *App) handleMe(w http.ResponseWriter, r *http.Request) {
	sess := mustSession(r)
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	u, err := a.be.GetUser(ctx, sess.UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, meResp{User: u, Auth: sess.Store.AuthState()})
}
