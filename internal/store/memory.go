package store

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

// MemoryStore keeps everything in process. Used for tests and one-shot
// CLI runs.
type MemoryStore struct {
	mu       sync.RWMutex
	verdicts []model.Verdict // insertion order
	feedback []model.Feedback
	now      func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) Save(_ context.Context, v *model.Verdict) error {
	if err := PrepareVerdict(v, s.now()); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verdicts = append(s.verdicts, clone(*v))
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.verdicts {
		if s.verdicts[i].ID == id {
			v := clone(s.verdicts[i])
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) FetchRecent(_ context.Context, limit int, userID string) ([]model.Verdict, error) {
	limit = ClampLimit(limit)
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Verdict, 0, limit)
	for i := len(s.verdicts) - 1; i >= 0 && len(out) < limit; i-- {
		v := s.verdicts[i]
		if userID != "" && v.UserID != userID {
			continue
		}
		out = append(out, clone(v))
	}
	return out, nil
}

func (s *MemoryStore) FindRecentByContent(_ context.Context, contentType model.ContentType, text, url string, since time.Time) (*model.Verdict, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.verdicts) - 1; i >= 0; i-- {
		v := s.verdicts[i]
		if v.CreatedAt.Before(since) {
			continue
		}
		if MatchesContent(&v, contentType, text, url) {
			found := clone(v)
			return &found, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) SaveFeedback(_ context.Context, f *model.Feedback) error {
	PrepareFeedback(f, s.now())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feedback = append(s.feedback, *f)
	return nil
}

// Feedback returns a copy of all stored feedback
func (s *MemoryStore) Feedback() []model.Feedback {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Feedback(nil), s.feedback...)
}

func (s *MemoryStore) Stats(_ context.Context, userID string) (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[model.Label]int)
	for _, v := range s.verdicts {
		if userID != "" && v.UserID != userID {
			continue
		}
		counts[v.Label]++
	}
	return model.NewStats(counts), nil
}

func (s *MemoryStore) Close() error { return nil }

// clone copies the slices so callers cannot mutate stored records
func clone(v model.Verdict) model.Verdict {
	v.Sources = append([]string{}, v.Sources...)
	v.RedFlags = append([]string{}, v.RedFlags...)
	v.PositiveIndicators = append([]string{}, v.PositiveIndicators...)
	return v
}
