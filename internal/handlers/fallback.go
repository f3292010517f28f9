package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hrease/apiserver/internal/services"
	"go.uber.org/zap"
)

// NotFound answers unknown routes with the standard error body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, services.CodeNotFound, "Not found.", nil)
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, services.CodeMethodNotAllowed,
		"Method \""+r.Method+"\" not allowed.", nil)
}

// Recoverer turns a handler panic into a logged INTERNAL_ERROR response.
// http.ErrAbortHandler is re-raised so net/http can abort the connection.
func Recoverer(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.Stack("stack"),
				)
				if r.Header.Get("Connection") != "Upgrade" {
					writeError(w, http.StatusInternalServerError, services.CodeInternal, "Internal server error", nil)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
