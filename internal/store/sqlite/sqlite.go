// Package sqlite is the single-node verdict store on an embedded SQLite file
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

//go:embed migrations/*.sql
var migrations embed.FS

const verdictColumns = `id, user_id, content_type, content_text, content_url, verdict, confidence_score,
	explanation, sources, red_flags, positive_indicators, video_metadata, analysis_meta, created_at`

// Store implements store.Store on database/sql
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the database file at path
func Open(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time; SQLite serializes anyway
	db.SetMaxOpenConns(1)

	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Migrate applies the embedded migrations
func (s *Store) Migrate(ctx context.Context) error {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return err
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, s.db, sub)
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
	if err := store.PrepareVerdict(v, s.now()); err != nil {
		return err
	}
	sources, _ := json.Marshal(v.Sources)
	redFlags, _ := json.Marshal(v.RedFlags)
	positives, _ := json.Marshal(v.PositiveIndicators)
	meta, err := json.Marshal(v.Meta)
	if err != nil {
		return fmt.Errorf("encode analysis meta: %w", err)
	}
	var video sql.NullString
	if v.Video != nil {
		data, _ := json.Marshal(v.Video)
		video = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verifications (id, user_id, content_type, content_text, content_url, content_hash,
			verdict, confidence_score, explanation, sources, red_flags, positive_indicators,
			video_metadata, analysis_meta, cached_from, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, v.ID, v.UserID, string(v.ContentType), v.ContentText, v.ContentURL,
		store.ContentHash(v.ContentType, v.ContentText, v.ContentURL),
		string(v.Label), v.Confidence, v.Explanation, string(sources), string(redFlags), string(positives),
		video, string(meta), v.Meta.CachedFrom, v.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert verification: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Verdict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+verdictColumns+` FROM verifications WHERE id = ?`, id)
	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get verification: %w", err)
	}
	return v, nil
}

func (s *Store) FetchRecent(ctx context.Context, limit int, userID string) ([]model.Verdict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+verdictColumns+` FROM verifications
		WHERE (? = '' OR user_id = ?)
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, userID, userID, store.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	row := s.db.QueryRowContext(ctx, `
		SELECT `+verdictColumns+` FROM verifications
		WHERE content_hash = ? AND cached_from = '' AND created_at >= ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, store.ContentHash(contentType, text, url), since.UnixNano())
	v, err := scanVerdict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find verification: %w", err)
	}
	return v, nil
}

func (s *Store) SaveFeedback(ctx context.Context, f *model.Feedback) error {
	store.PrepareFeedback(f, s.now())
	var verificationID, rating any
	if f.VerificationID != "" {
		verificationID = f.VerificationID
	}
	if f.Rating != nil {
		rating = *f.Rating
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO feedback (id, user_id, verification_id, feedback_type, subject, message, rating, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.UserID, verificationID, string(f.Type), f.Subject, f.Message, rating, f.Status, f.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert feedback: %w", err)
	}
	return nil
}

func (s *Store) Stats(ctx context.Context, userID string) (model.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT verdict, count(*) FROM verifications
		WHERE (? = '' OR user_id = ?)
		GROUP BY verdict
	`, userID, userID)
	if err != nil {
		return model.Stats{}, fmt.Errorf("count verifications: %w", err)
	}
	defer func() { _ = rows.Close() }()

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
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVerdict(row scanner) (*model.Verdict, error) {
	var (
		v                                  model.Verdict
		contentType, label                 string
		sources, redFlags, positives, meta string
		video                              sql.NullString
		createdAt                          int64
	)
	err := row.Scan(&v.ID, &v.UserID, &contentType, &v.ContentText, &v.ContentURL, &label,
		&v.Confidence, &v.Explanation, &sources, &redFlags, &positives, &video, &meta, &createdAt)
	if err != nil {
		return nil, err
	}
	v.ContentType = model.ContentType(contentType)
	v.Label = model.Label(label)
	v.CreatedAt = time.Unix(0, createdAt).UTC()

	for _, f := range []struct {
		raw string
		dst any
	}{
		{sources, &v.Sources},
		{redFlags, &v.RedFlags},
		{positives, &v.PositiveIndicators},
		{meta, &v.Meta},
	} {
		if err := json.Unmarshal([]byte(f.raw), f.dst); err != nil {
			return nil, fmt.Errorf("decode column: %w", err)
		}
	}
	if video.Valid {
		v.Video = &model.VideoRef{}
		if err := json.Unmarshal([]byte(video.String), v.Video); err != nil {
			return nil, fmt.Errorf("decode video metadata: %w", err)
		}
	}
	return &v, nil
}
