package evidence

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/api/customsearch/v1"

	"github.com/ppiankov/credence/internal/model"
)

// maxSearchResults is the most results the search API returns per call
const maxSearchResults = 10

// WebSearchSource queries a Programmable Search Engine
type WebSearchSource struct {
	svc *customsearch.Service
	cx  string
}

// NewWebSearchSource creates the source. base supplies proxy settings and may be nil.
func NewWebSearchSource(ctx context.Context, cfg model.SearchConfig, base *http.Client) (*WebSearchSource, error) {
	if cfg.APIKey == "" || cfg.CX == "" {
		return nil, fmt.Errorf("search API key and engine id (cx) are required")
	}
	svc, err := customsearch.NewService(ctx, googleOptions(cfg.APIKey, cfg.Endpoint, base)...)
	if err != nil {
		return nil, fmt.Errorf("create search client: %w", err)
	}
	return &WebSearchSource{svc: svc, cx: cfg.CX}, nil
}

func (s *WebSearchSource) Name() string           { return "websearch" }
func (s *WebSearchSource) Kind() model.SourceKind { return model.SourceWebSearch }

// Search returns title, snippet and link for each result
func (s *WebSearchSource) Search(ctx context.Context, query string, limit int) ([]model.EvidenceRecord, error) {
	if limit > maxSearchResults {
		limit = maxSearchResults
	}
	resp, err := s.svc.Cse.List().Cx(s.cx).Q(query).Num(int64(limit)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	records := make([]model.EvidenceRecord, 0, len(resp.Items))
	for _, item := range resp.Items {
		records = append(records, model.EvidenceRecord{
			Title:     item.Title,
			Snippet:   item.Snippet,
			SourceURL: item.Link,
			Publisher: item.DisplayLink,
			Kind:      model.SourceWebSearch,
		})
	}
	return records, nil
}
