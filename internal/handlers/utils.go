package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hrease/apiserver/internal/services"
	"go.uber.org/zap"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	maxBodyBytes = 1 << 20
)

type contextKey string

const contextUserIDKey contextKey = "user_id"

type SuccessResponse struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type ErrorResponse struct {
	Status  string              `json:"status"`
	Message string              `json:"message"`
	Code    services.Code       `json:"code"`
	Errors  map[string][]string `json:"errors,omitempty"`
}

var errMissingSubject = errors.New("missing subject")

func withUserID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, contextUserIDKey, id)
}

func userIDFromContext(ctx context.Context) (int64, error) {
	id, ok := ctx.Value(contextUserIDKey).(int64)
	if !ok || id < 1 {
		return 0, errMissingSubject
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, SuccessResponse{Status: statusSuccess, Data: data})
}

func writeMessage(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, SuccessResponse{Status: statusSuccess, Message: message})
}

func writeError(w http.ResponseWriter, status int, code services.Code, message string, fields map[string][]string) {
	writeJSON(w, status, ErrorResponse{Status: statusError, Message: message, Code: code, Errors: fields})
}

// writeServiceError maps a service failure to its HTTP response. INVALID_TOKEN
// is 401 on session endpoints and 400 on reset confirmation, so the caller picks.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error, invalidTokenStatus int) {
	svcErr, ok := services.AsError(err)
	if !ok {
		logger.Error("request failed",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, services.CodeInternal, "Internal server error", nil)
		return
	}

	status := http.StatusBadRequest
	switch svcErr.Code {
	case services.CodeAuthenticationFailed:
		status = http.StatusUnauthorized
	case services.CodeInvalidToken:
		status = invalidTokenStatus
	case services.CodeInternal:
		status = http.StatusInternalServerError
	}
	writeError(w, status, svcErr.Code, svcErr.Message, svcErr.Fields)
}

// decodeJSON reads a JSON object body. It reports false after writing a 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		message := "Malformed JSON body."
		if errors.Is(err, io.EOF) {
			message = "Request body is required."
		}
		writeError(w, http.StatusBadRequest, services.CodeValidation, message, nil)
		return false
	}
	return true
}
