// Package verify runs one verification end to end: normalize, replay from
// cache or gather evidence, ask the engine, reconcile and persist.
package verify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/policy"
	"github.com/ppiankov/credence/internal/prompt"
	"github.com/ppiankov/credence/internal/store"
)

const op = "verify"

// SelfReferenceNote marks verdicts produced by the self-reference exemption
const SelfReferenceNote = "self-reference exemption"

const selfReferenceExplanation = "This URL is the address of this verification service itself. " +
	"It is exempt from analysis and is reported as authentic."

// Aggregator gathers evidence for a query
type Aggregator interface {
	Aggregate(ctx context.Context, query string) model.Evidence
}

// Enforcer obtains a contract-conforming analysis from the engine
type Enforcer interface {
	Enforce(ctx context.Context, req llm.Request) (*llm.Outcome, error)
}

// Deps are the collaborators of a Service. Cache may be nil.
type Deps struct {
	Normalizer *normalize.Normalizer
	Aggregator Aggregator
	Assembler  *prompt.Assembler
	Enforcer   Enforcer
	Policy     *policy.Policy
	Cache      *cache.VerdictCache
	Store      store.Store
	Logger     *zap.Logger
}

// Service orchestrates a verification
type Service struct {
	normalizer *normalize.Normalizer
	aggregator Aggregator
	assembler  *prompt.Assembler
	enforcer   Enforcer
	policy     *policy.Policy
	cache      *cache.VerdictCache
	store      store.Store
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a Service
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return &Service{
		normalizer: d.Normalizer,
		aggregator: d.Aggregator,
		assembler:  d.Assembler,
		enforcer:   d.Enforcer,
		policy:     d.Policy,
		cache:      d.Cache,
		store:      d.Store,
		logger:     d.Logger,
		now:        time.Now,
	}
}

// Result is a persisted verdict and how it was produced
type Result struct {
	Verdict *model.Verdict
	Cached  bool
}

// Verify checks one submission on behalf of userID ("" for anonymous)
func (s *Service) Verify(ctx context.Context, sub model.Submission, userID string) (*Result, error) {
	start := s.now()

	// 1. Validate and resolve the modality
	n, err := s.normalizer.Normalize(ctx, sub)
	if err != nil {
		return nil, err
	}

	// 2. The service's own URL never reaches evidence or the engine
	if n.SelfReference {
		v := s.selfReferenceVerdict(n, userID)
		if err := s.save(ctx, v); err != nil {
			return nil, err
		}
		s.logger.Info("self-reference exemption applied", zap.String("verdict_id", v.ID))
		return &Result{Verdict: v}, nil
	}

	// 3. Replay an identical recent verdict as a new row for this user
	if s.cache != nil {
		if prior, ok := s.cache.Lookup(ctx, n.Type, n.Text, n.URL); ok {
			v := replay(prior, n, userID)
			if err := s.save(ctx, v); err != nil {
				return nil, err
			}
			s.logger.Info("verdict served from cache",
				zap.String("verdict_id", v.ID),
				zap.String("cached_from", prior.ID),
				zap.String("content_type", string(n.Type)))
			return &Result{Verdict: v, Cached: true}, nil
		}
	}

	// 4. Evidence and page content are independent lookups
	var ev model.Evidence
	var g errgroup.Group
	g.Go(func() error {
		ev = s.aggregator.Aggregate(ctx, n.Query)
		return nil
	})
	g.Go(func() error {
		s.normalizer.AttachPage(ctx, n)
		return nil
	})
	_ = g.Wait()

	// 5. One engine call under the decision policy
	now := s.now()
	req := s.assembler.Build(n, ev, now)
	outcome, err := s.enforcer.Enforce(ctx, req)
	if err != nil {
		s.logger.Error("engine call failed",
			zap.String("kind", model.KindOf(err).String()),
			zap.String("content_type", string(n.Type)),
			zap.Error(err))
		return nil, err
	}

	// 6. Apply the deterministic parts of the policy
	analysis, notes := s.policy.Reconcile(outcome.Analysis, policy.Case{
		Evidence:   ev,
		Disclosure: n.Disclosure(),
	})
	for _, note := range notes {
		s.logger.Info("policy adjustment", zap.String("note", note))
	}

	// 7. Persist, then make the verdict available for replay
	v := model.NewVerdict(analysis, n.Type, userID)
	v.ContentText = n.Text
	v.ContentURL = n.URL
	v.Video = n.Video
	v.Meta = model.AnalysisMeta{
		Provider:       outcome.Provider,
		Model:          outcome.Model,
		Degraded:       n.Degraded,
		DegradedReason: n.DegradedReason,
		DroppedSources: outcome.Dropped,
		PolicyNotes:    notes,
		Forensics:      outcome.Forensics,
		ProcessedAt:    &now,
	}
	if err := v.Validate(); err != nil {
		return nil, model.E(model.KindContractViolation, op, err)
	}
	if err := s.save(ctx, &v); err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Remember(ctx, &v)
	}

	s.logger.Info("verification complete",
		zap.String("verdict_id", v.ID),
		zap.String("content_type", string(n.Type)),
		zap.String("verdict", string(v.Label)),
		zap.Int("confidence", v.Confidence),
		zap.Int("evidence", len(ev.FactChecks)+len(ev.WebResults)),
		zap.Bool("degraded", n.Degraded),
		zap.Duration("elapsed", s.now().Sub(start)))

	return &Result{Verdict: &v}, nil
}

func (s *Service) save(ctx context.Context, v *model.Verdict) error {
	if err := s.store.Save(ctx, v); err != nil {
		return model.E(model.KindPersistenceFailure, op, fmt.Errorf("save verdict: %w", err))
	}
	return nil
}

func (s *Service) selfReferenceVerdict(n *normalize.Normalized, userID string) *model.Verdict {
	now := s.now()
	v := model.NewVerdict(model.Analysis{
		Verdict:            model.LabelTrue,
		Confidence:         100,
		Explanation:        selfReferenceExplanation,
		Sources:            []string{n.URL},
		PositiveIndicators: []string{"Official address of this service"},
	}, n.Type, userID)
	v.ContentText = n.Text
	v.ContentURL = n.URL
	v.Meta = model.AnalysisMeta{PolicyNotes: []string{SelfReferenceNote}, ProcessedAt: &now}
	return &v
}

// replay copies the judgement of prior onto a new row for this submission
func replay(prior *model.Verdict, n *normalize.Normalized, userID string) *model.Verdict {
	v := model.NewVerdict(prior.Analysis(), n.Type, userID)
	v.ContentText = n.Text
	v.ContentURL = n.URL
	v.Meta = model.AnalysisMeta{
		Provider:       prior.Meta.Provider,
		Model:          prior.Meta.Model,
		Degraded:       prior.Meta.Degraded,
		DegradedReason: prior.Meta.DegradedReason,
		CachedFrom:     prior.ID,
		ProcessedAt:    prior.Meta.ProcessedAt,
	}
	if v.Meta.ProcessedAt == nil {
		created := prior.CreatedAt
		v.Meta.ProcessedAt = &created
	}
	return &v
}
