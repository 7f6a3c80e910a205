// Package storetest holds the behaviour every store.Store backend must share
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

// Factory returns an empty, migrated store. Cleanup is the factory's job.
type Factory func(t *testing.T) store.Store

// base is truncated to microseconds, the coarsest precision of any backend
var base = time.Date(2026, time.May, 1, 12, 0, 0, 0, time.UTC)

func verdict(ct model.ContentType, text, url, user string, label model.Label, at time.Time) *model.Verdict {
	return &model.Verdict{
		UserID:             user,
		ContentType:        ct,
		ContentText:        text,
		ContentURL:         url,
		Label:              label,
		Confidence:         30,
		Explanation:        "No credible reports were found.",
		Sources:            []string{"https://apnews.com/article/x"},
		RedFlags:           []string{"anonymous source"},
		PositiveIndicators: []string{},
		Meta:               model.AnalysisMeta{Provider: "openai", Model: "gpt-4o-mini"},
		CreatedAt:          at,
	}
}

// Run exercises the full contract against a backend
func Run(t *testing.T, newStore Factory) {
	t.Run("SaveAndGet", func(t *testing.T) { testSaveAndGet(t, newStore(t)) })
	t.Run("RejectsInvalid", func(t *testing.T) { testRejectsInvalid(t, newStore(t)) })
	t.Run("FetchRecent", func(t *testing.T) { testFetchRecent(t, newStore(t)) })
	t.Run("FindRecentByContent", func(t *testing.T) { testFindRecentByContent(t, newStore(t)) })
	t.Run("Feedback", func(t *testing.T) { testFeedback(t, newStore(t)) })
	t.Run("Stats", func(t *testing.T) { testStats(t, newStore(t)) })
}

func testSaveAndGet(t *testing.T, s store.Store) {
	ctx := context.Background()

	v := verdict(model.ContentVideo, "is this real?", "", "user-1", model.LabelUnverified, base)
	v.Video = &model.VideoRef{FileName: "clip.mp4", Size: 2048, MimeType: "video/mp4"}
	v.Meta.Degraded = true
	v.Meta.DegradedReason = "video metadata only"
	v.Meta.Forensics = &model.Forensics{AudioVisualSync: "could not be assessed"}

	if err := s.Save(ctx, v); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if v.ID == "" {
		t.Fatal("Save() must assign an id")
	}

	got, err := s.Get(ctx, v.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("Get() mismatch (-saved +got):\n%s", diff)
	}

	// Stored copies must not alias the caller's slices
	got.Sources[0] = "https://changed.example/"
	again, _ := s.Get(ctx, v.ID)
	if again.Sources[0] != "https://apnews.com/article/x" {
		t.Error("stored verdict was mutated through a returned value")
	}

	if _, err := s.Get(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func testRejectsInvalid(t *testing.T, s store.Store) {
	ctx := context.Background()
	bad := []*model.Verdict{
		{ContentType: model.ContentText, Label: "maybe", Confidence: 50, Explanation: "x"},
		{ContentType: model.ContentText, Label: model.LabelTrue, Confidence: 101, Explanation: "x"},
		{ContentType: model.ContentText, Label: model.LabelTrue, Confidence: 90, Explanation: "x", Sources: []string{"Reuters"}},
	}
	for _, v := range bad {
		if err := s.Save(ctx, v); err == nil {
			t.Errorf("Save(%+v) accepted an invalid verdict", v)
		}
	}
	if list, _ := s.FetchRecent(ctx, 10, ""); len(list) != 0 {
		t.Errorf("invalid verdicts were stored: %d", len(list))
	}
}

func testFetchRecent(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, user := range []string{"alice", "bob", "alice", ""} {
		v := verdict(model.ContentText, "claim", "", user, model.LabelTrue, base.Add(time.Duration(i)*time.Minute))
		v.Confidence = 90 + i
		if err := s.Save(ctx, v); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	all, err := s.FetchRecent(ctx, 0, "")
	if err != nil {
		t.Fatalf("FetchRecent() error: %v", err)
	}
	if len(all) != 4 {
		t.Fatalf("got %d verdicts, want 4", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.After(all[i-1].CreatedAt) {
			t.Errorf("not newest first at %d", i)
		}
	}

	alice, _ := s.FetchRecent(ctx, 10, "alice")
	if len(alice) != 2 || alice[0].Confidence != 92 || alice[1].Confidence != 90 {
		t.Errorf("alice history = %+v", alice)
	}

	limited, _ := s.FetchRecent(ctx, 2, "")
	if len(limited) != 2 || limited[0].Confidence != 93 {
		t.Errorf("limited = %+v", limited)
	}
}

func testFindRecentByContent(t *testing.T, s store.Store) {
	ctx := context.Background()

	old := verdict(model.ContentText, "moon base opened", "", "u1", model.LabelFalse, base.Add(-48*time.Hour))
	fresh := verdict(model.ContentText, "moon base opened", "", "u2", model.LabelUnverified, base.Add(-time.Hour))
	replay := verdict(model.ContentText, "moon base opened", "", "u3", model.LabelUnverified, base.Add(-time.Minute))
	replay.Meta.CachedFrom = "someid"
	page := verdict(model.ContentURL, "", "https://example.com/a", "u1", model.LabelTrue, base.Add(-2*time.Hour))
	page.Confidence = 90

	for _, v := range []*model.Verdict{old, fresh, replay, page} {
		if err := s.Save(ctx, v); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}
	since := base.Add(-24 * time.Hour)

	got, err := s.FindRecentByContent(ctx, model.ContentText, "moon base opened", "", since)
	if err != nil {
		t.Fatalf("FindRecentByContent() error: %v", err)
	}
	if got == nil || got.ID != fresh.ID {
		t.Errorf("got %+v, want the fresh original", got)
	}

	if got, _ := s.FindRecentByContent(ctx, model.ContentText, "Moon base opened", "", since); got != nil {
		t.Error("match must be exact")
	}
	if got, _ := s.FindRecentByContent(ctx, model.ContentText, "moon base opened", "", base); got != nil {
		t.Error("verdicts older than since must not match")
	}
	if got, _ := s.FindRecentByContent(ctx, model.ContentURL, "", "https://example.com/a", since); got == nil || got.ID != page.ID {
		t.Errorf("URL lookup = %+v", got)
	}
	if got, _ := s.FindRecentByContent(ctx, model.ContentURL, "moon base opened", "", since); got != nil {
		t.Error("content type is part of the identity")
	}
}

func testFeedback(t *testing.T, s store.Store) {
	ctx := context.Background()
	v := verdict(model.ContentText, "claim", "", "u1", model.LabelTrue, base)
	v.Confidence = 90
	if err := s.Save(ctx, v); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	rating := 4
	f := &model.Feedback{UserID: "u1", VerificationID: v.ID, Type: model.FeedbackAccuracy, Subject: "Wrong", Message: "Source is outdated", Rating: &rating}
	if err := s.SaveFeedback(ctx, f); err != nil {
		t.Fatalf("SaveFeedback() error: %v", err)
	}
	if f.ID == "" || f.Status != model.FeedbackPending || f.CreatedAt.IsZero() {
		t.Errorf("generated fields not set: %+v", f)
	}

	anon := &model.Feedback{Type: model.FeedbackGeneral, Subject: "Hi", Message: "Nice"}
	if err := s.SaveFeedback(ctx, anon); err != nil {
		t.Errorf("anonymous feedback rejected: %v", err)
	}
}

func testStats(t *testing.T, s store.Store) {
	ctx := context.Background()

	empty, err := s.Stats(ctx, "")
	if err != nil {
		t.Fatalf("Stats() error: %v", err)
	}
	if empty != (model.Stats{}) {
		t.Errorf("empty store stats = %+v", empty)
	}

	labels := []struct {
		label      model.Label
		confidence int
		user       string
	}{
		{model.LabelTrue, 90, "a"},
		{model.LabelFalse, 10, "a"},
		{model.LabelFalse, 5, "b"},
		{model.LabelMisleading, 60, "a"},
	}
	for i, l := range labels {
		v := verdict(model.ContentText, "c", "", l.user, l.label, base.Add(time.Duration(i)*time.Second))
		v.Confidence = l.confidence
		if err := s.Save(ctx, v); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	got, _ := s.Stats(ctx, "")
	want := model.Stats{Total: 4, True: 1, False: 2, Misleading: 1, AccuracyRate: 25, FakePercentage: 50}
	if got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}

	a, _ := s.Stats(ctx, "a")
	if a.Total != 3 || a.False != 1 {
		t.Errorf("Stats(a) = %+v", a)
	}
}
