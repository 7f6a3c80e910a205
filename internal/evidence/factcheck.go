package evidence

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/api/factchecktools/v1alpha1"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"

	"github.com/ppiankov/credence/internal/model"
)

// FactCheckSource queries the Google Fact Check Tools claim search
type FactCheckSource struct {
	svc        *factchecktools.Service
	language   string
	maxAgeDays int64
}

// NewFactCheckSource creates the source. base supplies proxy settings and may be nil.
func NewFactCheckSource(ctx context.Context, cfg model.FactCheckConfig, base *http.Client) (*FactCheckSource, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fact-check API key is required")
	}
	svc, err := factchecktools.NewService(ctx, googleOptions(cfg.APIKey, cfg.Endpoint, base)...)
	if err != nil {
		return nil, fmt.Errorf("create fact-check client: %w", err)
	}
	return &FactCheckSource{svc: svc, language: cfg.Language, maxAgeDays: cfg.MaxAgeDays}, nil
}

// googleOptions authenticates with an API key on top of a caller-supplied transport
func googleOptions(apiKey, endpoint string, base *http.Client) []option.ClientOption {
	var rt http.RoundTripper = http.DefaultTransport
	if base != nil && base.Transport != nil {
		rt = base.Transport
	}
	client := &http.Client{Transport: &transport.APIKey{Key: apiKey, Transport: rt}}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	return opts
}

func (s *FactCheckSource) Name() string           { return "factcheck" }
func (s *FactCheckSource) Kind() model.SourceKind { return model.SourceFactCheck }

// Search returns one record per claim review
func (s *FactCheckSource) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	call := s.svc.Claims.Search().Query(query).PageSize(int64(limit)).Context(ctx)
	if s.language != "" {
		call = call.LanguageCode(s.language)
	}
	if s.maxAgeDays > 0 {
		call = call.MaxAgeDays(s.maxAgeDays)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, fmt.Errorf("claims search: %w", err)
	}

	var records []model.EvidenceRecord
	for _, claim := range resp.Claims {
		snippet := claim.Text
		if claim.Claimant != "" {
			snippet = fmt.Sprintf("%s (claimed by %s)", claim.Text, claim.Claimant)
		}
		for _, review := range claim.ClaimReview {
			rec := model.EvidenceRecord{
				Title:     strings.TrimSpace(review.Title),
				Snippet:   snippet,
				SourceURL: review.Url,
				Rating:    strings.TrimSpace(review.TextualRating),
				Kind:      model.SourceFactCheck,
			}
			if review.Publisher != nil {
				rec.Publisher = review.Publisher.Name
				if rec.Publisher == "" {
					rec.Publisher = review.Publisher.Site
				}
			}
			if rec.Title == "" {
				rec.Title = claim.Text
			}
			records = append(records, rec)
		}
	}
	return records, nil
}
