package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hrease/apiserver/internal/services"
	"github.com/hrease/apiserver/types"
	"go.uber.org/zap"
)

// UserHandler serves the authenticated user's own profile.
type UserHandler struct {
	creds  *services.CredentialService
	logger *zap.Logger
}

func NewUserHandler(creds *services.CredentialService, logger *zap.Logger) *UserHandler {
	return &UserHandler{creds: creds, logger: logger}
}

// UserRouter registers profile routes behind authMiddleware.
func UserRouter(r chi.Router, creds *services.CredentialService, logger *zap.Logger, authMiddleware func(http.Handler) http.Handler) {
	handler := NewUserHandler(creds, logger)

	r.With(authMiddleware).Get("/me", handler.Me)
	r.With(authMiddleware).Patch("/me", handler.UpdateMe)
}

// Me returns the current user's profile.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.CodeAuthenticationFailed,
			"Authentication credentials were not provided.", nil)
		return
	}

	profile, err := h.creds.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusUnauthorized)
		return
	}
	writeData(w, profile)
}

// UpdateMe applies a partial profile update. Read-only and unknown fields are ignored.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, err := userIDFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, services.CodeAuthenticationFailed,
			"Authentication credentials were not provided.", nil)
		return
	}

	var raw map[string]json.RawMessage
	if !decodeJSON(w, r, &raw) {
		return
	}
	patch, fields := parseProfilePatch(raw)
	if len(fields) > 0 {
		writeError(w, http.StatusBadRequest, services.CodeValidation, "Invalid input.", fields)
		return
	}

	profile, err := h.creds.UpdateProfile(r.Context(), userID, patch)
	if err != nil {
		writeServiceError(w, r, h.logger, err, http.StatusUnauthorized)
		return
	}
	writeData(w, profile)
}

func parseProfilePatch(raw map[string]json.RawMessage) (types.ProfilePatch, map[string][]string) {
	var patch types.ProfilePatch
	fields := map[string][]string{}

	stringField := func(name string) *string {
		value, ok := raw[name]
		if !ok {
			return nil
		}
		var s *string
		if err := json.Unmarshal(value, &s); err != nil {
			fields[name] = append(fields[name], "Not a valid string.")
			return nil
		}
		if s == nil {
			fields[name] = append(fields[name], "This field may not be null.")
			return nil
		}
		return s
	}

	patch.FirstName = stringField("first_name")
	patch.LastName = stringField("last_name")
	patch.JobTitle = stringField("job_title")
	patch.Department = stringField("department")

	if value, ok := raw["hire_date"]; ok {
		var date types.Date
		if err := json.Unmarshal(value, &date); err != nil {
			fields["hire_date"] = append(fields["hire_date"],
				"Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		} else {
			patch.HireDate = &date
		}
	}
	return patch, fields
}
