package model

import "time"

// FeedbackType classifies user feedback
type FeedbackType string

const (
	FeedbackGeneral     FeedbackType = "general"
	FeedbackBug         FeedbackType = "bug"
	FeedbackFeature     FeedbackType = "feature"
	FeedbackImprovement FeedbackType = "improvement"
	FeedbackAccuracy    FeedbackType = "accuracy"
)

// Valid reports whether t is a known feedback type
func (t FeedbackType) Valid() bool {
	switch t {
	case FeedbackGeneral, FeedbackBug, FeedbackFeature, FeedbackImprovement, FeedbackAccuracy:
		return true
	}
	return false
}

// Feedback is a user note, optionally tied to a verdict
type Feedback struct {
	ID             string       `json:"id"`
	UserID         string       `json:"userId,omitempty"`
	VerificationID string       `json:"verificationId,omitempty"`
	Type           FeedbackType `json:"feedbackType"`
	Subject        string       `json:"subject"`
	Message        string       `json:"message"`
	Rating         *int         `json:"rating,omitempty"`
	Status         string       `json:"status"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// FeedbackPending is the status of newly submitted feedback
const FeedbackPending = "pending"

// Stats summarizes stored verdicts
type Stats struct {
	Total          int     `json:"total"`
	True           int     `json:"true"`
	False          int     `json:"false"`
	Misleading     int     `json:"misleading"`
	Unverified     int     `json:"unverified"`
	AccuracyRate   float64 `json:"accuracyRate"`   // share of true verdicts, percent
	FakePercentage float64 `json:"fakePercentage"` // share of false verdicts, percent
}

// NewStats derives the percentages from per-label counts
func NewStats(counts map[Label]int) Stats {
	s := Stats{
		True:       counts[LabelTrue],
		False:      counts[LabelFalse],
		Misleading: counts[LabelMisleading],
		Unverified: counts[LabelUnverified],
	}
	s.Total = s.True + s.False + s.Misleading + s.Unverified
	if s.Total > 0 {
		s.AccuracyRate = percent(s.True, s.Total)
		s.FakePercentage = percent(s.False, s.Total)
	}
	return s
}

func percent(n, total int) float64 {
	return float64(int(float64(n)*1000/float64(total)+0.5)) / 10
}
