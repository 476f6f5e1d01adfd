package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/revuhq/revu/internal/auth"
	"github.com/revuhq/revu/internal/core"
	"github.com/revuhq/revu/internal/storage"
)

// AuthHandler serves registration, login, and token refresh.
type AuthHandler struct {
	store  storage.Store
	tokens *auth.TokenManager
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(store storage.Store, tokens *auth.TokenManager, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: store, tokens: tokens, logger: logger}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates a new account.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("failed to hash password", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user, err := h.store.CreateUser(r.Context(), req.Username, hash)
	if err != nil {
		if errors.Is(err, core.ErrUsernameTaken) {
			writeError(w, http.StatusConflict, fmt.Sprintf("username %q already exists", req.Username))
			return
		}
		h.logger.Error("failed to create user", "error", err)
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Registration Successful",
		"user":    map[string]any{"username": user.Username},
	})
}

// Login verifies credentials and issues an access/refresh token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := h.store.GetUserByUsername(r.Context(), req.Username)
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same answer for unknown user and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, err := h.tokens.IssueAccess(user.ID)
	if err != nil {
		h.logger.Error("failed to issue access token", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	refreshToken, err := h.tokens.IssueRefresh(user.ID)
	if err != nil {
		h.logger.Error("failed to issue refresh token", "error", err)
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"user":          map[string]any{"id": user.ID, "name": user.Username},
		"token":         accessToken,
		"refresh_token": refreshToken,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a fresh access token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	userID, err := h.tokens.Verify(req.RefreshToken, auth.KindRefresh)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	accessToken, err := h.tokens.IssueAccess(userID)
	if err != nil {
		h.logger.Error("failed to issue access token", "error", err)
		writeError(w, http.StatusInternalServerError, "token refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": accessToken})
}
