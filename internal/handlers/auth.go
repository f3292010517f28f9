package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hrease/apiserver/internal/services"
	"go.uber.org/zap"
)

// AuthHandler serves login, token and password reset endpoints.
type AuthHandler struct {
	creds  *services.CredentialService
	logger *zap.Logger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(creds *services.CredentialService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{creds: creds, logger: logger}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, creds *services.CredentialService, logger *zap.Logger) {
	handler := NewAuthHandler(creds, logger)

	r.Post("/login", handler.Login)
	r.Post("/refresh", handler.Refresh)
	r.Post("/verify", handler.Verify)
	r.Post("/password-reset", handler.RequestReset)
	r.Post("/password-reset/confirm", handler.ConfirmReset)
}

// RequireAuth enforces a Bearer access token and injects the user id into context.
func RequireAuth(creds *services.CredentialService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, services.CodeAuthenticationFailed,
					"Authentication credentials were not provided.", nil)
				return
			}

			claims, err := creds.Verify(r.Context(), tokenString)
			if err != nil {
				writeServiceError(w, r, logger, err, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID)))
		})
	}
}

// Login verifies credentials and returns a token pair with the user snapshot.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.creds.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusUnauthorized)
		return
	}
	writeData(w, result)
}

// Refresh rotates a refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	pair, err := h.creds.Refresh(r.Context(), req.Refresh)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusUnauthorized)
		return
	}
	writeData(w, pair)
}

// Verify reports whether an access token is currently valid.
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.creds.Verify(r.Context(), req.Token); err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusUnauthorized)
		return
	}
	writeMessage(w, services.MessageTokenValid)
}

// RequestReset answers identically for known and unknown addresses.
func (h *AuthHandler) RequestReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.creds.RequestReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusBadRequest)
		return
	}
	writeMessage(w, services.MessageResetRequested)
}

// ConfirmReset sets a new password from a reset link.
func (h *AuthHandler) ConfirmReset(w http.ResponseWriter, r *http.Request) {
	var req PasswordResetConfirmRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.creds.ConfirmReset(r.Context(), req.UID, req.Token, req.NewPassword); err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusBadRequest)
		return
	}
	writeMessage(w, services.MessageResetConfirmed)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

type VerifyRequest struct {
	Token string `json:"token"`
}

type PasswordResetRequest struct {
	Email string `json:"email"`
}

type PasswordResetConfirmRequest struct {
	UID         string `json:"uid"`
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func bearerToken(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
