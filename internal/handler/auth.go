package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/auth"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/middleware"
	"github.com/jaredeoliphant/bwf-inventory-shiny/internal/session"
)

// CredentialChecker verifies a username/password pair.
// Satisfied by *auth.Credentials.
type CredentialChecker interface {
	Check(username, password string) error
}

// SessionStarter creates and ends sessions.
// Satisfied by *session.Controller.
type SessionStarter interface {
	Create(ctx context.Context, username string) (*session.State, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// AuthHandler handles login and logout.
type AuthHandler struct {
	creds     CredentialChecker
	sessions  SessionStarter
	jwtSecret string
	tokenTTL  time.Duration
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(creds CredentialChecker, sessions SessionStarter, jwtSecret string, tokenTTL time.Duration) *AuthHandler {
	if tokenTTL <= 0 {
		tokenTTL = auth.DefaultTokenTTL
	}
	return &AuthHandler{creds: creds, sessions: sessions, jwtSecret: jwtSecret, tokenTTL: tokenTTL}
}

// RegisterRoutes registers the public auth endpoints on the given Chi router.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/login", h.Login)
}

// RegisterProtectedRoutes registers auth endpoints that need a token.
func (h *AuthHandler) RegisterProtectedRoutes(r chi.Router) {
	r.Post("/auth/logout", h.Logout)
}

// --- Request / Response types ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
	Session     sessionResponse `json:"session"`
}

// --- Handlers ---

// Login handles username + password authentication and starts a session.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if err := h.creds.Check(req.Username, req.Password); err != nil {
		slog.Info("login rejected", "username", req.Username)
		writeError(w, "login", err)
		return
	}

	st, err := h.sessions.Create(r.Context(), req.Username)
	if err != nil {
		writeError(w, "create session", err)
		return
	}

	token, err := auth.GenerateToken(h.jwtSecret, st.Username, st.ID, h.tokenTTL)
	if err != nil {
		slog.Error("generate token", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		ExpiresIn:   int64(h.tokenTTL / time.Second),
		Session:     toSessionResponse(st),
	})
}

// Logout ends the caller's session; its token stops working immediately.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	sid, ok := middleware.SessionIDFromContext(r.Context())
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if err := h.sessions.Delete(r.Context(), sid); err != nil {
		writeError(w, "logout", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
