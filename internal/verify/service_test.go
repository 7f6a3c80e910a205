package verify

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/policy"
	"github.com/ppiankov/credence/internal/prompt"
	"github.com/ppiankov/credence/internal/store"
)

const selfURL = "https://preview--truth-len.lovable.app/"

type fakeProvider struct {
	args  string
	err   error
	calls atomic.Int32
	last  llm.Request
}

func (p *fakeProvider) Name() string  { return "fake" }
func (p *fakeProvider) Model() string { return "fake-1" }

func (p *fakeProvider) Analyze(_ context.Context, req llm.Request) (*llm.ToolCall, error) {
	p.calls.Add(1)
	p.last = req
	if p.err != nil {
		return nil, p.err
	}
	return &llm.ToolCall{Name: req.Tool.Name, Arguments: json.RawMessage(p.args)}, nil
}

type fakeAggregator struct {
	evidence model.Evidence
	calls    atomic.Int32
}

func (a *fakeAggregator) Aggregate(_ context.Context, query string) model.Evidence {
	a.calls.Add(1)
	ev := a.evidence
	ev.Query = query
	return ev
}

type failingFetcher struct{}

func (failingFetcher) FetchPage(context.Context, string) (*normalize.Page, error) {
	return nil, errors.New("dial tcp: connection refused")
}

type brokenStore struct{ *store.MemoryStore }

func (brokenStore) Save(context.Context, *model.Verdict) error { return errors.New("disk full") }

type harness struct {
	svc        *Service
	provider   *fakeProvider
	aggregator *fakeAggregator
	store      *store.MemoryStore
}

func newHarness(t *testing.T, args string, ev model.Evidence) *harness {
	t.Helper()
	p := policy.Default()
	h := &harness{
		provider:   &fakeProvider{args: args},
		aggregator: &fakeAggregator{evidence: ev},
		store:      store.NewMemoryStore(),
	}
	h.svc = NewService(Deps{
		Normalizer: normalize.New(model.DefaultConfig().Limits,
			normalize.WithFetcher(failingFetcher{}),
			normalize.WithSelfURL(selfURL)),
		Aggregator: h.aggregator,
		Assembler:  prompt.New(p),
		Enforcer:   llm.NewEnforcer(h.provider, true, nil),
		Policy:     p,
		Cache:      cache.NewVerdictCache(h.store, cache.NewMemoryCache(time.Hour, time.Minute), 24*time.Hour, nil),
		Store:      h.store,
	})
	return h
}

func (h *harness) rows(t *testing.T) []model.Verdict {
	t.Helper()
	list, err := h.store.FetchRecent(context.Background(), store.MaxLimit, "")
	require.NoError(t, err)
	return list
}

func assertPersistable(t *testing.T, v *model.Verdict) {
	t.Helper()
	assert.True(t, v.Label.Valid(), "label %q", v.Label)
	assert.GreaterOrEqual(t, v.Confidence, 0)
	assert.LessOrEqual(t, v.Confidence, 100)
	for _, s := range v.Sources {
		assert.True(t, model.IsAbsoluteURL(s), "source %q", s)
	}
}

func TestVerify_Text(t *testing.T) {
	ev := model.Evidence{WebResults: []model.EvidenceRecord{
		{Title: "AP", SourceURL: "https://apnews.com/article/a", Kind: model.SourceWebSearch, Tier: model.TierOne},
	}}
	h := newHarness(t, `{"verdict":"misleading","confidence":62.6,"explanation":"Old photo reused.",
		"sources":["https://apnews.com/article/a","https://invented.example/x"],"redFlags":["old image"]}`, ev)

	res, err := h.svc.Verify(context.Background(), model.Submission{Text: "Floods hit the city today"}, "user-1")
	require.NoError(t, err)

	v := res.Verdict
	assert.False(t, res.Cached)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "user-1", v.UserID)
	assert.Equal(t, model.ContentText, v.ContentType)
	assert.Equal(t, "Floods hit the city today", v.ContentText)
	assert.Equal(t, model.LabelMisleading, v.Label)
	assert.Equal(t, 63, v.Confidence)
	assert.Equal(t, []string{"https://apnews.com/article/a"}, v.Sources)
	assert.Equal(t, []string{"https://invented.example/x"}, v.Meta.DroppedSources)
	assert.Equal(t, "fake", v.Meta.Provider)
	assert.NotNil(t, v.Meta.ProcessedAt)
	assertPersistable(t, v)

	assert.Contains(t, h.provider.last.Text(), "<claim>\nFloods hit the city today\n</claim>")
	assert.Len(t, h.rows(t), 1)
}

func TestVerify_IdenticalTextIsReplayed(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":35,"explanation":"Nothing found.","sources":[]}`, model.Evidence{})
	ctx := context.Background()
	sub := model.Submission{Text: "The bridge collapsed this morning"}

	first, err := h.svc.Verify(ctx, sub, "alice")
	require.NoError(t, err)
	second, err := h.svc.Verify(ctx, sub, "bob")
	require.NoError(t, err)
	third, err := h.svc.Verify(ctx, sub, "")
	require.NoError(t, err)

	assert.Equal(t, int32(1), h.provider.calls.Load(), "engine must run once")
	assert.Equal(t, int32(1), h.aggregator.calls.Load())

	assert.True(t, second.Cached)
	assert.NotEqual(t, first.Verdict.ID, second.Verdict.ID)
	assert.Equal(t, "bob", second.Verdict.UserID)
	assert.Equal(t, first.Verdict.Label, second.Verdict.Label)
	assert.Equal(t, first.Verdict.Confidence, second.Verdict.Confidence)
	assert.Equal(t, first.Verdict.Explanation, second.Verdict.Explanation)
	assert.Equal(t, first.Verdict.Sources, second.Verdict.Sources)
	assert.Equal(t, first.Verdict.ID, second.Verdict.Meta.CachedFrom)

	// Replays point at the original analysis, never at another replay
	assert.Equal(t, first.Verdict.ID, third.Verdict.Meta.CachedFrom)
	assert.Len(t, h.rows(t), 3)
}

func TestVerify_CacheWindowExpires(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":35,"explanation":"Nothing found."}`, model.Evidence{})
	ctx := context.Background()
	sub := model.Submission{Text: "claim"}

	_, err := h.svc.Verify(ctx, sub, "")
	require.NoError(t, err)

	// Age the stored row past the window and drop the hot tier
	rows := h.rows(t)
	require.Len(t, rows, 1)
	stale := store.NewMemoryStore()
	old := rows[0]
	old.ID = ""
	old.CreatedAt = time.Now().Add(-25 * time.Hour)
	require.NoError(t, stale.Save(ctx, &old))
	h.svc.store = stale
	h.svc.cache = cache.NewVerdictCache(stale, nil, 24*time.Hour, nil)

	res, err := h.svc.Verify(ctx, sub, "")
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, int32(2), h.provider.calls.Load())
}

func TestVerify_MediaIsNeverCached(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":30,"explanation":"Cannot tell."}`, model.Evidence{})
	sub := model.Submission{Image: &model.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}}

	for i := 0; i < 2; i++ {
		res, err := h.svc.Verify(context.Background(), sub, "")
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(2), h.provider.calls.Load())
	require.NotNil(t, h.provider.last.Image())
}

func TestVerify_NoEvidenceNeverFalse(t *testing.T) {
	h := newHarness(t, `{"verdict":"false","confidence":8,"explanation":"I could not find this anywhere."}`, model.Evidence{})

	res, err := h.svc.Verify(context.Background(), model.Submission{Text: "A new island appeared overnight"}, "")
	require.NoError(t, err)

	assert.Equal(t, model.LabelUnverified, res.Verdict.Label)
	band, _ := policy.Default().Band(model.LabelUnverified)
	assert.GreaterOrEqual(t, res.Verdict.Confidence, band.Min)
	assert.LessOrEqual(t, res.Verdict.Confidence, band.Max)
	assert.NotEmpty(t, res.Verdict.Meta.PolicyNotes)
}

func TestVerify_FactCheckOutranksWeb(t *testing.T) {
	ev := model.Evidence{
		FactChecks: []model.EvidenceRecord{{Title: "Fake quote", SourceURL: "https://www.politifact.com/f", Rating: "False", Kind: model.SourceFactCheck, Tier: model.TierOne}},
		WebResults: []model.EvidenceRecord{{Title: "Blog repeats quote", SourceURL: "https://blog.example.com/q", Kind: model.SourceWebSearch, Tier: model.TierUnknown}},
	}
	h := newHarness(t, `{"verdict":"true","confidence":88,"explanation":"A blog confirms it.","sources":["https://blog.example.com/q"]}`, ev)

	res, err := h.svc.Verify(context.Background(), model.Submission{Text: "The senator said X"}, "")
	require.NoError(t, err)

	assert.Equal(t, model.LabelFalse, res.Verdict.Label)
	assert.LessOrEqual(t, res.Verdict.Confidence, 20)
	assertPersistable(t, res.Verdict)
}

func TestVerify_DegradedURL(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":40,"explanation":"The domain is unknown."}`, model.Evidence{})

	res, err := h.svc.Verify(context.Background(), model.Submission{URL: "https://news.example.com/2026/aliens-land-in-paris"}, "")
	require.NoError(t, err)

	v := res.Verdict
	assert.True(t, strings.HasPrefix(v.Explanation, policy.DisclosureURLOnly), "explanation: %q", v.Explanation)
	assert.True(t, v.Meta.Degraded)
	assert.Equal(t, normalize.ReasonPageUnavailable, v.Meta.DegradedReason)
	assert.Equal(t, "https://news.example.com/2026/aliens-land-in-paris", v.ContentURL)
	assert.Equal(t, model.ContentURL, v.ContentType)
}

func TestVerify_Video(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":30,"explanation":"Only metadata was available.",
		"deepfakeIndicators":["file name suggests AI"],"audioVisualSync":"not assessable"}`, model.Evidence{})

	res, err := h.svc.Verify(context.Background(), model.Submission{
		Video: &model.VideoRef{FileName: "deepfake_ai_clip.mp4", Size: 1 << 20, MimeType: "video/mp4"},
	}, "")
	require.NoError(t, err)

	v := res.Verdict
	assert.Equal(t, llm.ToolVerifyVideo, h.provider.last.Tool.Name)
	assert.True(t, strings.HasPrefix(v.Explanation, policy.DisclosureMetadataOnly))
	assert.Contains(t, v.RedFlags, "file name suggests AI")
	require.NotNil(t, v.Meta.Forensics)
	assert.Equal(t, "not assessable", v.Meta.Forensics.AudioVisualSync)
	require.NotNil(t, v.Video)
	assert.Equal(t, "deepfake_ai_clip.mp4", v.Video.FileName)
}

func TestVerify_SelfReference(t *testing.T) {
	h := newHarness(t, `{}`, model.Evidence{})

	res, err := h.svc.Verify(context.Background(), model.Submission{URL: "https://preview--truth-len.lovable.app"}, "u")
	require.NoError(t, err)

	assert.Equal(t, model.LabelTrue, res.Verdict.Label)
	assert.Equal(t, 100, res.Verdict.Confidence)
	assert.Equal(t, []string{selfURL}, res.Verdict.Sources)
	assert.Contains(t, res.Verdict.Meta.PolicyNotes, SelfReferenceNote)
	assert.Equal(t, int32(0), h.provider.calls.Load())
	assert.Equal(t, int32(0), h.aggregator.calls.Load())
	assert.Len(t, h.rows(t), 1)
}

func TestVerify_MalformedEngineOutput(t *testing.T) {
	h := newHarness(t, `{"confidence":50,"explanation":"missing the label"}`, model.Evidence{})

	_, err := h.svc.Verify(context.Background(), model.Submission{Text: "claim"}, "")
	require.Error(t, err)
	assert.Equal(t, model.KindContractViolation, model.KindOf(err))
	assert.Empty(t, h.rows(t))
}

func TestVerify_BareSourceNameRejected(t *testing.T) {
	h := newHarness(t, `{"verdict":"true","confidence":90,"explanation":"Reuters says so.","sources":["Reuters"]}`, model.Evidence{})

	_, err := h.svc.Verify(context.Background(), model.Submission{Text: "claim"}, "")
	assert.Equal(t, model.KindContractViolation, model.KindOf(err))
	assert.Empty(t, h.rows(t))
}

func TestVerify_UpstreamErrorsKeepTheirKind(t *testing.T) {
	for _, kind := range []model.Kind{model.KindUpstreamRateLimited, model.KindUpstreamQuotaExhausted, model.KindUpstreamUnavailable} {
		t.Run(kind.String(), func(t *testing.T) {
			h := newHarness(t, "", model.Evidence{})
			h.provider.err = model.E(kind, "llm.fake", errors.New("upstream"))

			_, err := h.svc.Verify(context.Background(), model.Submission{Text: "claim"}, "")
			assert.Equal(t, kind, model.KindOf(err))
			assert.Empty(t, h.rows(t))
		})
	}
}

func TestVerify_InputTooLarge(t *testing.T) {
	h := newHarness(t, `{}`, model.Evidence{})

	_, err := h.svc.Verify(context.Background(), model.Submission{Text: strings.Repeat("a", 6000)}, "")
	assert.Equal(t, model.KindInvalidInput, model.KindOf(err))
	assert.Equal(t, int32(0), h.aggregator.calls.Load())
	assert.Equal(t, int32(0), h.provider.calls.Load())
}

func TestVerify_AudioUnsupported(t *testing.T) {
	h := newHarness(t, `{}`, model.Evidence{})

	_, err := h.svc.Verify(context.Background(), model.Submission{Audio: &model.Blob{Data: []byte("x"), MimeType: "audio/mpeg"}}, "")
	assert.Equal(t, model.KindModalityUnsupported, model.KindOf(err))
	assert.Equal(t, int32(0), h.provider.calls.Load())
}

func TestVerify_PersistenceFailure(t *testing.T) {
	h := newHarness(t, `{"verdict":"unverified","confidence":30,"explanation":"x"}`, model.Evidence{})
	h.svc.store = brokenStore{store.NewMemoryStore()}

	_, err := h.svc.Verify(context.Background(), model.Submission{Text: "claim"}, "")
	assert.Equal(t, model.KindPersistenceFailure, model.KindOf(err))
}
