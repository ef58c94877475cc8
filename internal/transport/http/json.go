package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"live-quiz-service/internal/domain"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

const codeUnauthenticated = "unauthenticated"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeError(w, http.StatusBadRequest, string(domain.CodeInvalidArgument), msg)
}

// writeDomainError maps a service error onto its status and wire code.
// Unclassified errors are logged and reported with a generic message.
func writeDomainError(w http.ResponseWriter, logger *slog.Logger, err error) {
	code := domain.CodeOf(err)
	status := statusFor(code)
	msg := err.Error()
	if code == domain.CodeInternal {
		logger.Error("request failed", "err", err)
		msg = "internal error"
		if errors.Is(err, domain.ErrCodeExhausted) {
			msg = "could not allocate a join code, try again"
		}
	}
	writeError(w, status, string(code), msg)
}

func statusFor(code domain.Code) int {
	switch code {
	case domain.CodeInvalidArgument:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeFailedPrecondition, domain.CodeAlreadyExists:
		return http.StatusConflict
	case domain.CodePermissionDenied:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
