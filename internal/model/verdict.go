package model

import (
	"fmt"
	"net/url"
	"time"
)

// Label is the classification of a verdict
type Label string

const (
	LabelTrue       Label = "true"
	LabelFalse      Label = "false"
	LabelMisleading Label = "misleading"
	LabelUnverified Label = "unverified"
)

// Labels lists every valid label
var Labels = []Label{LabelTrue, LabelFalse, LabelMisleading, LabelUnverified}

// Valid reports whether l is one of the four labels
func (l Label) Valid() bool {
	switch l {
	case LabelTrue, LabelFalse, LabelMisleading, LabelUnverified:
		return true
	}
	return false
}

// Analysis is the engine's structured assessment after contract enforcement
type Analysis struct {
	Verdict            Label    `json:"verdict"`
	Confidence         int      `json:"confidence"`
	Explanation        string   `json:"explanation"`
	Sources            []string `json:"sources"`
	RedFlags           []string `json:"redFlags"`
	PositiveIndicators []string `json:"positiveIndicators"`
}

// Forensics holds the video-only fields of the engine output
type Forensics struct {
	DeepfakeIndicators []string `json:"deepfakeIndicators,omitempty" firestore:"deepfakeIndicators,omitempty"`
	EditingArtifacts   []string `json:"editingArtifacts,omitempty" firestore:"editingArtifacts,omitempty"`
	AudioVisualSync    string   `json:"audioVisualSync,omitempty" firestore:"audioVisualSync,omitempty"`
}

// AnalysisMeta records how a verdict was produced
type AnalysisMeta struct {
	Provider       string     `json:"provider,omitempty" firestore:"provider,omitempty"`
	Model          string     `json:"model,omitempty" firestore:"model,omitempty"`
	Degraded       bool       `json:"degraded,omitempty" firestore:"degraded,omitempty"`
	DegradedReason string     `json:"degradedReason,omitempty" firestore:"degradedReason,omitempty"`
	CachedFrom     string     `json:"cachedFrom,omitempty" firestore:"cachedFrom,omitempty"`
	DroppedSources []string   `json:"droppedSources,omitempty" firestore:"droppedSources,omitempty"`
	PolicyNotes    []string   `json:"policyNotes,omitempty" firestore:"policyNotes,omitempty"`
	Forensics      *Forensics `json:"forensics,omitempty" firestore:"forensics,omitempty"`
	ProcessedAt    *time.Time `json:"processedAt,omitempty" firestore:"processedAt,omitempty"`
}

// Verdict is a persisted verification result. Records are never mutated.
type Verdict struct {
	ID                 string       `json:"id"`
	UserID             string       `json:"userId,omitempty"`
	ContentType        ContentType  `json:"contentType"`
	ContentText        string       `json:"contentText,omitempty"`
	ContentURL         string       `json:"contentUrl,omitempty"`
	Label              Label        `json:"verdict"`
	Confidence         int          `json:"confidenceScore"`
	Explanation        string       `json:"explanation"`
	Sources            []string     `json:"sources"`
	RedFlags           []string     `json:"redFlags"`
	PositiveIndicators []string     `json:"positiveIndicators"`
	Video              *VideoRef    `json:"videoMetadata,omitempty"`
	Meta               AnalysisMeta `json:"analysisMeta"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// NewVerdict builds an unsaved verdict from an analysis
func NewVerdict(a Analysis, contentType ContentType, userID string) Verdict {
	return Verdict{
		UserID:             userID,
		ContentType:        contentType,
		Label:              a.Verdict,
		Confidence:         a.Confidence,
		Explanation:        a.Explanation,
		Sources:            nonNil(a.Sources),
		RedFlags:           nonNil(a.RedFlags),
		PositiveIndicators: nonNil(a.PositiveIndicators),
	}
}

// Analysis projects the verdict back into the analysis shape
func (v Verdict) Analysis() Analysis {
	return Analysis{
		Verdict:            v.Label,
		Confidence:         v.Confidence,
		Explanation:        v.Explanation,
		Sources:            nonNil(v.Sources),
		RedFlags:           nonNil(v.RedFlags),
		PositiveIndicators: nonNil(v.PositiveIndicators),
	}
}

// Validate checks the invariants every stored verdict must satisfy
func (v Verdict) Validate() error {
	if !v.Label.Valid() {
		return fmt.Errorf("invalid verdict label %q", v.Label)
	}
	if v.Confidence < 0 || v.Confidence > 100 {
		return fmt.Errorf("confidence %d out of range", v.Confidence)
	}
	if v.Explanation == "" {
		return fmt.Errorf("empty explanation")
	}
	for _, s := range v.Sources {
		if !IsAbsoluteURL(s) {
			return fmt.Errorf("source %q is not an absolute URL", s)
		}
	}
	return nil
}

// IsAbsoluteURL reports whether s is an http(s) URL with a host
func IsAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
