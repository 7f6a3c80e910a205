// Package evidence gathers external evidence for a claim from fact-check
// databases and web search, concurrently and with per-source deadlines.
package evidence

import (
	"context"

	"github.com/ppiankov/credence/internal/model"
)

// Source is one evidence channel
type Source interface {
	Name() string
	Kind() model.SourceKind
	Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error)
}

// TierClassifier assigns trust tiers to record URLs
type TierClassifier interface {
	Tier(rawURL string) model.TrustTier
}
