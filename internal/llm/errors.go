package llm

import (
	"net/http"

	"github.com/ppiankov/credence/internal/model"
)

// upstreamError maps a provider failure onto the service error kinds
func upstreamError(provider string, status int, quota bool, err error) error {
	op := "llm." + provider
	switch {
	case status == http.StatusPaymentRequired || quota:
		return model.E(model.KindUpstreamQuotaExhausted, op, err)
	case status == http.StatusTooManyRequests:
		return model.E(model.KindUpstreamRateLimited, op, err)
	}
	return model.E(model.KindUpstreamUnavailable, op, err)
}

func contractError(provider string, format string, args ...any) error {
	return model.Errorf(model.KindContractViolation, "llm."+provider, format, args...)
}
