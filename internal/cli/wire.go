package cli

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/evidence"
	"github.com/ppiankov/credence/internal/identity"
	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/policy"
	"github.com/ppiankov/credence/internal/prompt"
	"github.com/ppiankov/credence/internal/store"
	"github.com/ppiankov/credence/internal/store/firestore"
	"github.com/ppiankov/credence/internal/store/postgres"
	"github.com/ppiankov/credence/internal/store/sqlite"
	"github.com/ppiankov/credence/internal/util"
	"github.com/ppiankov/credence/internal/verify"
)

// migrator is implemented by the SQL stores
type migrator interface {
	Migrate(ctx context.Context) error
}

// app holds the wired components of one process
type app struct {
	store    store.Store
	service  *verify.Service
	resolver identity.Resolver
	closers  []func() error
}

// Close releases everything opened by buildApp in reverse order
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp wires the verification pipeline from configuration
func buildApp(ctx context.Context, c model.Config, log *zap.Logger) (*app, error) {
	a := &app{}

	st, err := openStore(ctx, c.Store, log)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	svc, err := buildService(ctx, c, st, a, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.service = svc

	resolver, err := buildResolver(c.Identity)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.resolver = resolver
	return a, nil
}

func buildService(ctx context.Context, c model.Config, st store.Store, a *app, log *zap.Logger) (*verify.Service, error) {
	pol, err := policy.Load(c.Policy.Path)
	if err != nil {
		return nil, err
	}

	hot, closeHot, err := buildCache(ctx, c.Cache, c.Cache.Window)
	if err != nil {
		return nil, err
	}
	if closeHot != nil {
		a.closers = append(a.closers, closeHot)
	}

	provider, err := llm.NewProvider(ctx, llm.ConfigFromModel(c.LLM, c.HTTP))
	if err != nil {
		return nil, fmt.Errorf("reasoning engine: %w", err)
	}
	log.Info("reasoning engine configured",
		zap.String("provider", provider.Name()),
		zap.String("model", provider.Model()))

	normalizer, err := buildNormalizer(c, log)
	if err != nil {
		return nil, err
	}

	return verify.NewService(verify.Deps{
		Normalizer: normalizer,
		Aggregator: buildAggregator(ctx, c, pol, log),
		Assembler:  prompt.New(pol),
		Enforcer:   llm.NewEnforcer(provider, c.LLM.StrictEvidence, log),
		Policy:     pol,
		Cache:      cache.NewVerdictCache(st, hot, c.Cache.Window, log),
		Store:      st,
		Logger:     log,
	}), nil
}

// openStore selects the verdict store backend
func openStore(ctx context.Context, sc model.StoreConfig, log *zap.Logger) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch strings.ToLower(sc.Backend) {
	case "", "memory":
		log.Warn("using in-memory store, verdicts are lost on exit")
		return store.NewMemoryStore(), nil
	case "sqlite":
		st, err = sqlite.Open(sc.SQLitePath, log)
	case "postgres", "postgresql":
		if sc.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for the postgres backend")
		}
		st, err = postgres.Connect(ctx, sc.DSN, log)
	case "firestore":
		if sc.FirestoreProj == "" {
			return nil, fmt.Errorf("store.firestore_project is required for the firestore backend")
		}
		st, err = firestore.New(ctx, sc.FirestoreProj, log)
	default:
		return nil, fmt.Errorf("unknown store backend: %s (supported: memory, sqlite, postgres, firestore)", sc.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", sc.Backend, err)
	}

	if m, ok := st.(migrator); ok && sc.MigrateOnStart {
		if err := m.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	return st, nil
}

// buildCache returns the hot tier in front of the store. The returned
// closer is nil for backends that hold no connection.
func buildCache(ctx context.Context, cc model.CacheConfig, ttl time.Duration) (cache.Cache, func() error, error) {
	switch strings.ToLower(cc.Backend) {
	case "", "memory":
		return cache.NewMemoryCache(ttl, 10*time.Minute), nil, nil
	case "none":
		return nil, nil, nil
	case "disk":
		return cache.NewDiskCache(cacheDir(cc), ttl), nil, nil
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cc.RedisAddr, cc.RedisPassword, cc.RedisDB, ttl)
		if err != nil {
			return nil, nil, err
		}
		return rc, rc.Close, nil
	case "layered":
		rc, err := cache.NewRedisCache(ctx, cc.RedisAddr, cc.RedisPassword, cc.RedisDB, ttl)
		if err != nil {
			return nil, nil, err
		}
		return cache.NewLayeredCache(cache.NewMemoryCache(ttl, 10*time.Minute), rc), rc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown cache backend: %s (supported: memory, disk, redis, layered, none)", cc.Backend)
	}
}

func cacheDir(cc model.CacheConfig) string {
	if cc.Dir != "" {
		return cc.Dir
	}
	if dir, err := configDir(); err == nil {
		return filepath.Join(dir, "cache")
	}
	return filepath.Join(".credence", "cache")
}

func buildNormalizer(c model.Config, log *zap.Logger) (*normalize.Normalizer, error) {
	var robots *util.RobotsChecker
	if c.HTTP.RespectRobots {
		robots = util.NewRobotsChecker(util.NewPublicHTTPClient(c.HTTP, c.HTTP.FetchTimeout), c.HTTP.UserAgent, time.Hour, log)
	}
	fetcher := normalize.NewFetcher(c.HTTP, c.Limits.MaxPageTextChars, robots, util.NewLimiter(c.HTTP.HostRPS, 1), log)

	opts := []normalize.Option{
		normalize.WithFetcher(fetcher),
		normalize.WithSelfURL(c.SelfReference.CanonicalURL),
		normalize.WithPrivateNetworks(c.HTTP.AllowPrivateNetworks),
		normalize.WithLogger(log),
	}
	if c.LLM.TranscriptionModel != "" {
		if !strings.EqualFold(c.LLM.Provider, "openai") {
			return nil, fmt.Errorf("llm.transcription_model requires the openai provider")
		}
		t, err := llm.NewOpenAITranscriber(llm.ConfigFromModel(c.LLM, c.HTTP), c.LLM.TranscriptionModel)
		if err != nil {
			return nil, fmt.Errorf("transcriber: %w", err)
		}
		opts = append(opts, normalize.WithTranscriber(t))
	}
	return normalize.New(c.Limits, opts...), nil
}

// buildAggregator enables every evidence source that has credentials.
// A missing source is not an error; evidence is advisory.
func buildAggregator(ctx context.Context, c model.Config, pol *policy.Policy, log *zap.Logger) *evidence.Aggregator {
	client := util.NewHTTPClient(c.HTTP, c.Evidence.SourceTimeout)
	var sources []evidence.Source

	if c.Evidence.FactCheck.APIKey != "" {
		if src, err := evidence.NewFactCheckSource(ctx, c.Evidence.FactCheck, client); err != nil {
			log.Warn("fact-check source disabled", zap.Error(err))
		} else {
			sources = append(sources, src)
		}
	}
	if c.Evidence.Search.APIKey != "" && c.Evidence.Search.CX != "" {
		if src, err := evidence.NewWebSearchSource(ctx, c.Evidence.Search, client); err != nil {
			log.Warn("web search source disabled", zap.Error(err))
		} else {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		log.Warn("no evidence sources configured, verdicts will rely on the engine alone")
	}

	return evidence.NewAggregator(sources, c.Evidence.SourceTimeout, c.Evidence.MaxResults,
		evidence.WithLimiter(util.NewLimiter(c.Evidence.RateLimit, c.Evidence.Burst)),
		evidence.WithClassifier(policy.NewClassifier(pol)),
		evidence.WithMemo(cache.NewMemoryCache(c.Evidence.MemoTTL, 10*time.Minute), c.Evidence.MemoTTL),
		evidence.WithLogger(log))
}

func buildResolver(ic model.IdentityConfig) (identity.Resolver, error) {
	if ic.JWTSecret == "" {
		return identity.Anonymous{}, nil
	}
	return identity.NewJWTResolver(ic.JWTSecret, ic.Issuer, ic.Audience)
}
