// Package store persists verdicts and feedback. Verdicts are an
// append-only log: there is no update or delete.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/credence/internal/model"
)

// ErrNotFound is returned by Get for unknown ids
var ErrNotFound = errors.New("not found")

// Default and maximum page sizes for FetchRecent
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Store is the verdict store contract shared by every backend
type Store interface {
	// Save inserts v, assigning ID and CreatedAt when unset
	Save(ctx context.Context, v *model.Verdict) error

	// Get returns one verdict or ErrNotFound
	Get(ctx context.Context, id string) (*model.Verdict, error)

	// FetchRecent returns verdicts newest first. An empty userID lists all.
	FetchRecent(ctx context.Context, limit int, userID string) ([]model.Verdict, error)

	// FindRecentByContent returns the newest original (not replayed)
	// verdict for identical content created at or after since, or nil.
	FindRecentByContent(ctx context.Context, contentType model.ContentType, text, url string, since time.Time) (*model.Verdict, error)

	// SaveFeedback inserts f, assigning ID, Status and CreatedAt when unset
	SaveFeedback(ctx context.Context, f *model.Feedback) error

	// Stats counts verdicts per label. An empty userID counts all.
	Stats(ctx context.Context, userID string) (model.Stats, error)

	Close() error
}

// ClampLimit applies the default and maximum page size
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// PrepareVerdict fills the generated fields and validates v before insert
func PrepareVerdict(v *model.Verdict, now time.Time) error {
	if err := v.Validate(); err != nil {
		return err
	}
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now.UTC()
	}
	return nil
}

// PrepareFeedback fills the generated fields of f before insert
func PrepareFeedback(f *model.Feedback, now time.Time) {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.Status == "" {
		f.Status = model.FeedbackPending
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = now.UTC()
	}
}

// MatchesContent reports whether v is an original verdict for the content
func MatchesContent(v *model.Verdict, contentType model.ContentType, text, url string) bool {
	if v.ContentType != contentType || v.Meta.CachedFrom != "" {
		return false
	}
	if contentType == model.ContentURL {
		return v.ContentURL == url
	}
	return v.ContentText == text
}

// ContentHash is the indexed identity of text or URL content in SQL backends
func ContentHash(contentType model.ContentType, text, url string) string {
	identity := text
	if contentType == model.ContentURL {
		identity = url
	}
	sum := sha256.Sum256([]byte(string(contentType) + "\x00" + identity))
	return hex.EncodeToString(sum[:])
}
