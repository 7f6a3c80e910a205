package policy

import (
	"fmt"
	"strings"

	"github.com/ppiankov/credence/internal/model"
)

// Case is the context an analysis is reconciled against
type Case struct {
	Evidence   model.Evidence
	Disclosure string // Required explanation prefix for degraded inputs
}

// Reconcile applies the deterministic parts of the policy to an engine
// analysis. It returns the adjusted analysis and a note per adjustment.
func (p *Policy) Reconcile(a model.Analysis, c Case) (model.Analysis, []string) {
	var notes []string

	switch p.factCheckConsensus(c.Evidence) {
	case RatingFalse:
		if a.Verdict == model.LabelTrue {
			notes = append(notes, "fact-check ratings unanimously false; verdict changed from true to false")
			a.Verdict = model.LabelFalse
		}
	case RatingTrue:
		if a.Verdict == model.LabelFalse {
			notes = append(notes, "fact-check ratings unanimously true; verdict changed from false to true")
			a.Verdict = model.LabelTrue
		}
	}

	if c.Evidence.Sought() && c.Evidence.Empty() && a.Verdict == model.LabelFalse {
		def := p.DefaultLabel()
		notes = append(notes, fmt.Sprintf("no evidence found; verdict changed from false to %s", def))
		a.Verdict = def
	}

	if clamped := p.Clamp(a.Verdict, a.Confidence); clamped != a.Confidence {
		notes = append(notes, fmt.Sprintf("confidence %d moved into %s band as %d", a.Confidence, a.Verdict, clamped))
		a.Confidence = clamped
	}

	if c.Disclosure != "" && !strings.HasPrefix(strings.TrimSpace(a.Explanation), c.Disclosure) {
		a.Explanation = c.Disclosure + " " + strings.TrimSpace(a.Explanation)
		notes = append(notes, "degraded-input disclosure added")
	}

	return a, notes
}

// factCheckConsensus returns RatingFalse or RatingTrue when every classifiable
// fact-check rating agrees, otherwise RatingUnknown.
func (p *Policy) factCheckConsensus(ev model.Evidence) RatingClass {
	consensus := RatingUnknown
	for _, r := range ev.FactChecks {
		class := p.ClassifyRating(r.Rating)
		switch class {
		case RatingUnknown:
			continue
		case RatingMixed:
			return RatingUnknown
		}
		if consensus != RatingUnknown && consensus != class {
			return RatingUnknown
		}
		consensus = class
	}
	return consensus
}
