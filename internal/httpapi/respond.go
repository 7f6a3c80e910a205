package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
)

// Fixed client-facing messages. Details stay in the logs.
const (
	msgInvalidInput    = "Invalid input. Please check the submitted content and try again."
	msgRateLimited     = "Rate limit exceeded. Please try again in a moment."
	msgQuotaExhausted  = "AI credits exhausted. Please add credits to continue."
	msgUnsupported     = "This content type cannot be verified yet. Please submit it as text instead."
	msgNotFound        = "Not found."
	msgUnableToProcess = "Unable to process the request. Please try again later."
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps an error kind to its HTTP status and public message
func statusFor(kind model.Kind) (int, string) {
	switch kind {
	case model.KindInvalidInput:
		return http.StatusBadRequest, msgInvalidInput
	case model.KindUpstreamRateLimited:
		return http.StatusTooManyRequests, msgRateLimited
	case model.KindUpstreamQuotaExhausted:
		return http.StatusPaymentRequired, msgQuotaExhausted
	case model.KindModalityUnsupported:
		return http.StatusUnprocessableEntity, msgUnsupported
	default:
		return http.StatusInternalServerError, msgUnableToProcess
	}
}

func (s *Server) writeKindError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status, msg := statusFor(kind)
	fields := []zap.Field{
		zap.String("kind", kind.String()),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	}
	if status >= 500 {
		s.logger.Error("request failed", fields...)
	} else {
		s.logger.Info("request rejected", fields...)
	}
	writeError(w, status, msg)
}
