package model

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := E(KindUpstreamRateLimited, "llm.openai", errors.New("429"))
	wrapped := fmt.Errorf("verify: %w", base)

	if got := KindOf(wrapped); got != KindUpstreamRateLimited {
		t.Errorf("KindOf(wrapped) = %v, want %v", got, KindUpstreamRateLimited)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want internal", got)
	}
	if !IsKind(wrapped, KindUpstreamRateLimited) {
		t.Error("IsKind should match wrapped error")
	}
	if IsKind(nil, KindInternal) {
		t.Error("IsKind(nil) should be false")
	}
}

func TestVerdictValidate(t *testing.T) {
	valid := Verdict{Label: LabelTrue, Confidence: 90, Explanation: "ok", Sources: []string{"https://apnews.com/a"}}

	tests := []struct {
		name    string
		mutate  func(v *Verdict)
		wantErr bool
	}{
		{"valid", func(v *Verdict) {}, false},
		{"bad label", func(v *Verdict) { v.Label = "maybe" }, true},
		{"confidence too high", func(v *Verdict) { v.Confidence = 101 }, true},
		{"negative confidence", func(v *Verdict) { v.Confidence = -1 }, true},
		{"empty explanation", func(v *Verdict) { v.Explanation = "" }, true},
		{"bare publisher name", func(v *Verdict) { v.Sources = []string{"Reuters"} }, true},
		{"relative url", func(v *Verdict) { v.Sources = []string{"/news/1"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := valid
			tt.mutate(&v)
			err := v.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewStats(t *testing.T) {
	s := NewStats(map[Label]int{LabelTrue: 3, LabelFalse: 1, LabelMisleading: 1, LabelUnverified: 1})

	if s.Total != 6 {
		t.Errorf("Total = %d, want 6", s.Total)
	}
	if s.AccuracyRate != 50 {
		t.Errorf("AccuracyRate = %v, want 50", s.AccuracyRate)
	}
	if s.FakePercentage != 16.7 {
		t.Errorf("FakePercentage = %v, want 16.7", s.FakePercentage)
	}

	empty := NewStats(nil)
	if empty.Total != 0 || empty.AccuracyRate != 0 {
		t.Errorf("empty stats = %+v", empty)
	}
}

func TestEvidenceURLs(t *testing.T) {
	ev := Evidence{
		FactChecks: []EvidenceRecord{{SourceURL: "https://snopes.com/x"}},
		WebResults: []EvidenceRecord{{SourceURL: "https://snopes.com/x"}, {SourceURL: "https://apnews.com/y"}, {SourceURL: ""}},
	}
	urls := ev.URLs()
	if len(urls) != 2 || urls[0] != "https://snopes.com/x" || urls[1] != "https://apnews.com/y" {
		t.Errorf("URLs() = %v", urls)
	}
	if ev.Empty() {
		t.Error("Empty() should be false")
	}
}
