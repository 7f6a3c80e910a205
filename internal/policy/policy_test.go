package policy

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

func TestDefaultPolicyLoads(t *testing.T) {
	p := Default()

	want := map[model.Label][2]int{
		model.LabelTrue:       {85, 100},
		model.LabelFalse:      {0, 20},
		model.LabelMisleading: {40, 75},
		model.LabelUnverified: {20, 50},
	}
	for label, r := range want {
		b, ok := p.Band(label)
		if !ok {
			t.Fatalf("missing band for %s", label)
		}
		if b.Min != r[0] || b.Max != r[1] {
			t.Errorf("band %s = %d-%d, want %d-%d", label, b.Min, b.Max, r[0], r[1])
		}
	}
	if p.DefaultLabel() != model.LabelUnverified {
		t.Errorf("DefaultLabel() = %s, want unverified", p.DefaultLabel())
	}
}

func TestParseRejectsInvalidPolicies(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing bands", "version: 1\n"},
		{"bad tier", "trust_tiers:\n  - tier: gold\n"},
		{"inverted band", `bands:
  - {verdict: "true", min: 90, max: 80}
  - {verdict: "false", min: 0, max: 20}
  - {verdict: "misleading", min: 40, max: 75}
  - {verdict: "unverified", min: 20, max: 50, default: true}
`},
		{"no default", `bands:
  - {verdict: "true", min: 85, max: 100}
  - {verdict: "false", min: 0, max: 20}
  - {verdict: "misleading", min: 40, max: 75}
  - {verdict: "unverified", min: 20, max: 50}
`},
		{"not yaml", "{{{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestClassifier(t *testing.T) {
	c := NewClassifier(Default())

	tests := []struct {
		url  string
		want model.TrustTier
	}{
		{"https://www.reuters.com/world/article-1", model.TierOne},
		{"https://apnews.com/article/x", model.TierOne},
		{"https://edition.cnn.com/2026/01/01/politics", model.TierTwo},
		{"https://abcnews.go.com/US/story", model.TierTwo},
		{"https://www.cdc.gov/flu", model.TierOne},
		{"https://www.ox.ac.uk/news", model.TierOne},
		{"https://www.facebook.com/post/1", model.TierUntrusted},
		{"https://someone.substack.com/p/claim", model.TierUntrusted},
		{"https://example-news.net/story", model.TierUnknown},
		{"not a url", model.TierUnknown},
		{"https://reuters.com.evil.io/fake", model.TierUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := c.Tier(tt.url); got != tt.want {
				t.Errorf("Tier(%q) = %v, want %v", tt.url, got, tt.want)
			}
		})
	}
}

func TestClassifyRating(t *testing.T) {
	p := Default()

	tests := []struct {
		rating string
		want   RatingClass
	}{
		{"False", RatingFalse},
		{"Pants on Fire!", RatingFalse},
		{"Mostly False", RatingFalse},
		{"Not true", RatingFalse},
		{"Falso", RatingFalse},
		{"True", RatingTrue},
		{"Correct attribution", RatingTrue},
		{"Half True", RatingMixed},
		{"Mostly True", RatingMixed},
		{"Missing context", RatingMixed},
		{"Satire", RatingMixed},
		{"", RatingUnknown},
		{"Four Pinocchios", RatingUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.rating, func(t *testing.T) {
			if got := p.ClassifyRating(tt.rating); got != tt.want {
				t.Errorf("ClassifyRating(%q) = %v, want %v", tt.rating, got, tt.want)
			}
		})
	}
}

func TestRenderIncludesDateAndBands(t *testing.T) {
	p := Default()
	now := time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC)

	out := p.Render(now)

	for _, want := range []string{
		"October 19, 2026",
		"Events from 2025 to 2026",
		`"true" (confidence 85-100)`,
		`"unverified" (confidence 20-50)`,
		"reuters.com",
		"same language",
		DisclosureURLOnly,
		"Structured fact-check ratings",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered policy missing %q", want)
		}
	}

	if strings.Index(out, "Structured fact-check") > strings.Index(out, "Live web search") {
		t.Error("fact-checks must be listed before web search")
	}
}

func TestRenderBandCriteria(t *testing.T) {
	out := Default().Render(time.Date(2026, time.October, 19, 12, 0, 0, 0, time.UTC))

	bandLine := func(label string) string {
		prefix := fmt.Sprintf("- %q (confidence ", label)
		for _, line := range strings.Split(out, "\n") {
			if strings.HasPrefix(line, prefix) {
				return line
			}
		}
		t.Fatalf("no band line for %q", label)
		return ""
	}

	tests := []struct {
		label string
		want  []string
	}{
		{"true", []string{"85-100", "fact-check rating of true or verified", "two or more independent Tier 1 sources agreeing", "no contradiction"}},
		{"false", []string{"0-20", "false or debunked", "contradicted by multiple Tier 1 sources", "logically or physically impossible"}},
		{"misleading", []string{"40-75", "missing context", "exaggerated relative to the substantiated facts", "old information presented as new", "satire presented as news"}},
		{"unverified", []string{"20-50", "No credible evidence found either way", "default when uncertain", `prefer it over "false"`}},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			line := bandLine(tt.label)
			for _, want := range tt.want {
				if !strings.Contains(line, want) {
					t.Errorf("band %q missing %q\n%s", tt.label, want, line)
				}
			}
		})
	}

	if strings.Contains(bandLine("true"), "at least one Tier 1") {
		t.Error("a single Tier 1 source must not be enough for true")
	}
}

func TestReconcile(t *testing.T) {
	p := Default()
	falseCheck := model.Evidence{
		Query:      "claim",
		FactChecks: []model.EvidenceRecord{{SourceURL: "https://snopes.com/a", Rating: "False"}},
		WebResults: []model.EvidenceRecord{{SourceURL: "https://blog.example.com/b", Snippet: "it is true"}},
	}

	tests := []struct {
		name      string
		in        model.Analysis
		c         Case
		wantLabel model.Label
		wantConf  int
		wantNotes int
	}{
		{
			name:      "fact-check false overrides true",
			in:        model.Analysis{Verdict: model.LabelTrue, Confidence: 90, Explanation: "x"},
			c:         Case{Evidence: falseCheck},
			wantLabel: model.LabelFalse,
			wantConf:  20,
			wantNotes: 2,
		},
		{
			name:      "no evidence turns false into unverified",
			in:        model.Analysis{Verdict: model.LabelFalse, Confidence: 10, Explanation: "x"},
			c:         Case{Evidence: model.Evidence{Query: "claim"}},
			wantLabel: model.LabelUnverified,
			wantConf:  20,
			wantNotes: 2,
		},
		{
			name:      "no lookup keeps false",
			in:        model.Analysis{Verdict: model.LabelFalse, Confidence: 10, Explanation: "x"},
			c:         Case{},
			wantLabel: model.LabelFalse,
			wantConf:  10,
			wantNotes: 0,
		},
		{
			name:      "mixed ratings do not override",
			in:        model.Analysis{Verdict: model.LabelTrue, Confidence: 88, Explanation: "x"},
			c:         Case{Evidence: model.Evidence{Query: "q", FactChecks: []model.EvidenceRecord{{Rating: "False"}, {Rating: "Half true"}}}},
			wantLabel: model.LabelTrue,
			wantConf:  88,
			wantNotes: 0,
		},
		{
			name:      "confidence clamped into band",
			in:        model.Analysis{Verdict: model.LabelMisleading, Confidence: 95, Explanation: "x"},
			c:         Case{},
			wantLabel: model.LabelMisleading,
			wantConf:  75,
			wantNotes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, notes := p.Reconcile(tt.in, tt.c)
			if got.Verdict != tt.wantLabel {
				t.Errorf("verdict = %s, want %s", got.Verdict, tt.wantLabel)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %d, want %d", got.Confidence, tt.wantConf)
			}
			if len(notes) != tt.wantNotes {
				t.Errorf("notes = %v, want %d entries", notes, tt.wantNotes)
			}
		})
	}
}

func TestReconcileDisclosure(t *testing.T) {
	p := Default()
	in := model.Analysis{Verdict: model.LabelUnverified, Confidence: 30, Explanation: "The URL suggests a sports story."}

	got, _ := p.Reconcile(in, Case{Disclosure: DisclosureURLOnly})
	if !strings.HasPrefix(got.Explanation, DisclosureURLOnly) {
		t.Errorf("explanation = %q, want disclosure prefix", got.Explanation)
	}

	again, notes := p.Reconcile(got, Case{Disclosure: DisclosureURLOnly})
	if again.Explanation != got.Explanation || len(notes) != 0 {
		t.Error("disclosure must not be added twice")
	}
}
