package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"bookvault/internal/app"
	"bookvault/internal/util"
)

const genericErrorMessage = "internal server error"

type errorResponse struct {
	Message    string              `json:"message"`
	Errors     map[string][]string `json:"errors,omitempty"`
	ErrorStack string              `json:"errorStack,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeAppError maps service errors onto the HTTP taxonomy: validation
// failures carry field detail, known rejections carry their message, and
// everything else collapses into a fixed 500 message so no internals leak.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	var vErr *app.ValidationError
	if errors.As(err, &vErr) {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Message: "Validation failed",
			Errors:  vErr.Fields,
		})
		return
	}
	switch {
	case errors.Is(err, app.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, app.ErrForbidden):
		s.writeError(w, r, http.StatusForbidden, err.Error(), nil)
	case errors.Is(err, app.ErrInvalidCredentials), errors.Is(err, app.ErrEmailAlreadyExists):
		s.writeError(w, r, http.StatusBadRequest, err.Error(), nil)
	default:
		s.writeError(w, r, http.StatusInternalServerError, genericErrorMessage, err)
	}
}

// writeError renders the error body. The cause is logged, and surfaced as
// errorStack only in development mode.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string, cause error) {
	body := errorResponse{Message: message}
	if cause != nil {
		logger := util.LoggerFromContext(r.Context())
		if status >= http.StatusInternalServerError {
			logger.Error("request failed", "status", status, "err", cause)
		} else {
			logger.Info("request rejected", "status", status, "err", cause)
		}
		if s.development {
			body.ErrorStack = cause.Error()
		}
	}
	writeJSON(w, status, body)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Message: "method not allowed"})
}

func (s *Server) notFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorResponse{Message: "not found"})
}
