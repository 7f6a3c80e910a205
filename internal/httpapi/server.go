// Package httpapi exposes verification, history, feedback and stats over HTTP
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/identity"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
	"github.com/ppiankov/credence/internal/verify"
)

// Verifier runs one verification
type Verifier interface {
	Verify(ctx context.Context, sub model.Submission, userID string) (*verify.Result, error)
}

// Server holds the handler dependencies
type Server struct {
	verifier Verifier
	store    store.Store
	identity identity.Resolver
	cfg      model.ServerConfig
	logger   *zap.Logger
}

// New creates a Server. A nil resolver treats every caller as anonymous.
func New(v Verifier, s store.Store, r identity.Resolver, cfg model.ServerConfig, logger *zap.Logger) *Server {
	if r == nil {
		r = identity.Anonymous{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{verifier: v, store: s, identity: r, cfg: cfg, logger: logger}
}

// Routes returns the router with middleware applied
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(s.cors)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		if s.cfg.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))
		}
		r.Post("/verify", s.handleVerify)
		r.Get("/verifications", s.handleListVerifications)
		r.Get("/verifications/{id}", s.handleGetVerification)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/stats", s.handleStats)
	})
	return r
}

// requestLogger writes one structured line per request
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}()
		next.ServeHTTP(ww, r)
	})
}

// cors answers preflight requests and tags responses for browser clients
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.CORSOrigin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", s.cfg.CORSOrigin)
			h.Set("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			if s.cfg.CORSOrigin != "*" {
				h.Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userID resolves the caller. A bad credential downgrades to anonymous.
func (s *Server) userID(r *http.Request) string {
	id, err := s.identity.Resolve(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		s.logger.Debug("ignoring unusable credential", zap.Error(err))
		return ""
	}
	return id
}
