package evidence

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/util"
)

// Aggregator fans a query out to every source and merges the results.
// Source failures are logged and contribute nothing.
type Aggregator struct {
	sources    []Source
	timeout    time.Duration
	maxResults int
	limiter    *util.Limiter
	classifier TierClassifier
	memo       cache.Cache
	memoTTL    time.Duration
	logger     *zap.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithLimiter rate-limits calls per source name
func WithLimiter(l *util.Limiter) Option {
	return func(a *Aggregator) { a.limiter = l }
}

// WithClassifier tags records with a trust tier
func WithClassifier(c TierClassifier) Option {
	return func(a *Aggregator) { a.classifier = c }
}

// WithMemo caches merged evidence per query for ttl
func WithMemo(c cache.Cache, ttl time.Duration) Option {
	return func(a *Aggregator) { a.memo, a.memoTTL = c, ttl }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) { a.logger = l }
}

// NewAggregator creates an Aggregator over the given sources
func NewAggregator(sources []Source, timeout time.Duration, maxResults int, opts ...Option) *Aggregator {
	a := &Aggregator{
		sources:    sources,
		timeout:    timeout,
		maxResults: maxResults,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Aggregate never fails. An empty query returns empty evidence.
func (a *Aggregator) Aggregate(ctx context.Context, query string) model.Evidence {
	query = strings.TrimSpace(query)
	if query == "" || len(a.sources) == 0 {
		return model.Evidence{Query: query}
	}

	memoKey := cache.Key("evidence", query)
	if a.memo != nil {
		if data, ok := a.memo.Get(ctx, memoKey); ok {
			var ev model.Evidence
			if err := json.Unmarshal(data, &ev); err == nil {
				return ev
			}
		}
	}

	results := make([][]model.EvidenceRecord, len(a.sources))
	succeeded := make([]bool, len(a.sources))

	// Plain group: one source failing must not cancel the others
	var g errgroup.Group
	for i, src := range a.sources {
		g.Go(func() error {
			records, err := a.query(ctx, src, query)
			if err != nil {
				a.logger.Warn("evidence source failed",
					zap.String("source", src.Name()),
					zap.Error(err))
				return nil
			}
			results[i] = records
			succeeded[i] = true
			return nil
		})
	}
	_ = g.Wait()

	ev := a.merge(query, results)

	anyOK := false
	for _, ok := range succeeded {
		anyOK = anyOK || ok
	}
	if a.memo != nil && anyOK {
		if data, err := json.Marshal(ev); err == nil {
			_ = a.memo.Set(ctx, memoKey, data, a.memoTTL)
		}
	}
	return ev
}

func (a *Aggregator) query(ctx context.Context, src Source, query string) ([]model.EvidenceRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	if a.limiter != nil {
		if err := a.limiter.Wait(ctx, src.Name()); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	records, err := src.Search(ctx, query, a.maxResults)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("evidence source answered",
		zap.String("source", src.Name()),
		zap.Int("records", len(records)),
		zap.Duration("elapsed", time.Since(start)))
	return records, nil
}

// merge orders fact-checks before web results, drops records without a
// usable URL and removes duplicates across sources.
func (a *Aggregator) merge(query string, results [][]model.EvidenceRecord) model.Evidence {
	ev := model.Evidence{
		Query:      query,
		FactChecks: []model.EvidenceRecord{},
		WebResults: []model.EvidenceRecord{},
	}
	seen := make(map[string]bool)

	for _, kind := range []model.SourceKind{model.SourceFactCheck, model.SourceWebSearch} {
		for i, src := range a.sources {
			if src.Kind() != kind {
				continue
			}
			count := 0
			for _, rec := range results[i] {
				if count >= a.maxResults {
					break
				}
				if !model.IsAbsoluteURL(rec.SourceURL) || seen[rec.SourceURL] {
					continue
				}
				seen[rec.SourceURL] = true
				rec.Kind = kind
				if a.classifier != nil {
					rec.Tier = a.classifier.Tier(rec.SourceURL)
				}
				if kind == model.SourceFactCheck {
					ev.FactChecks = append(ev.FactChecks, rec)
				} else {
					ev.WebResults = append(ev.WebResults, rec)
				}
				count++
			}
		}
	}
	return ev
}
