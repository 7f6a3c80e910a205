// Package postgres is the PostgreSQL verdict store
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const verdictColumns = `id::text, user_id, content_type, content_text, content_url, verdict, confidence_score,
	explanation, sources, red_flags, positive_indicators, video_metadata, analysis_meta, created_at`

// Store implements store.Store on a pgx pool
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Connect opens a pool and verifies it with a ping
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Migrate applies the embedded migrations
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer func() { _ = db.Close() }()

	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	for _, r := range results {
		s.logger.Info("migration applied",
			zap.Int64("version", r.Source.Version),
			zap.Duration("duration", r.Duration))
	}
	return nil
}

func (s *Store) Save(ctx context.Context, v *model.Verdict) error {
	if err := store.PrepareVerdict(v, time.Now()); err != nil {
		return err
	}
	sources, _ := json.Marshal(v.Sources)
	redFlags, _ := json.Marshal(v.RedFlags)
	positives, _ := json.Marshal(v.PositiveIndicators)
	meta, err := json.Marshal(v.Meta)
	if err != nil {
		return fmt.Errorf("encode analysis meta: %w", err)
	}
	var video []byte
	if v.Video != nil {
		video, _ = json.Marshal(v.Video)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO verifications (id, user_id, content_type, content_text, content_url, content_hash,
			verdict, confidence_score, explanation, sources, red_flags, positive_indicators,
			video_metadata, analysis_meta, cached_from, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, v.ID, v.UserID, string(v.ContentType), v.ContentText, v.ContentURL,
		store.ContentHash(v.ContentType, v.ContentText, v.ContentURL),
		string(v.Label), v.Confidence, v.Explanation, sources, redFlags, positives,
		video, meta, v.Meta.CachedFrom, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Verdict, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+verdictColumns+` FROM verifications WHERE id::text = $1`, id)
	v, err := scanVerdict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *Store) FetchRecent(ctx context.Context, limit int, userID string) ([]model.Verdict, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+verdictColumns+` FROM verifications
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer rows.Close()

	out := []model.Verdict{}
	for rows.Next() {
		v, err := scanVerdict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan verification: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

func (s *Store) FindRecentByContent(ctx context.Context, contentType model.ContentType, text, url string, since time.Time) (*model.Verdict, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+verdictColumns+` FROM verifications
		WHERE content_hash = $1 AND cached_from = '' AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`, store.ContentHash(contentType, text, url), since)
	v, err := scanVerdict(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func (s *Store) SaveFeedback(ctx context.Context, f *model.Feedback) error {
	store.PrepareFeedback(f, time.Now())
	var verificationID *string
	if f.VerificationID != "" {
		verificationID = &f.VerificationID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback (id, user_id, verification_id, feedback_type, subject, message, rating, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, f.ID, f.UserID, verificationID, string(f.Type), f.Subject, f.Message, f.Rating, f.Status, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, userID string) (model.Stats, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT verdict, count(*) FROM verifications
		WHERE ($1 = '' OR user_id = $1)
		GROUP BY verdict
	`, userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count verifications: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.Label]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return model.Stats{}, err
		}
		counts[model.Label(label)] = n
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, err
	}
	return model.NewStats(counts), nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanVerdict(row pgx.Row) (*model.Verdict, error) {
	var (
		v           model.Verdict
		contentType string
		label       string
	)
	err := row.Scan(&v.ID, &v.UserID, &contentType, &v.ContentText, &v.ContentURL, &label,
		&v.Confidence, &v.Explanation, &v.Sources, &v.RedFlags, &v.PositiveIndicators,
		&v.Video, &v.Meta, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	v.ContentType = model.ContentType(contentType)
	v.Label = model.Label(label)
	v.CreatedAt = v.CreatedAt.UTC()
	return &v, nil
}
