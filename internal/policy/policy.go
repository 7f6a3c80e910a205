// Package policy holds the versioned decision policy: trust tiers, verdict
// bands, rating vocabulary and the directives rendered for the engine.
package policy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/credence/internal/model"
)

//go:embed policy.yaml
var defaultPolicy []byte

// Fixed disclosure sentences. Degraded verdicts must open with one of them.
const (
	DisclosureURLOnly      = "Note: the page content could not be retrieved, so this assessment is based only on the URL structure and available evidence."
	DisclosureMetadataOnly = "Note: only the video's file metadata was available, so this assessment is not based on the video frames or audio."
)

// Policy is the declarative decision policy
type Policy struct {
	Version    int         `yaml:"version"`
	Tiers      []TierRule  `yaml:"trust_tiers"`
	Bands      []Band      `yaml:"bands"`
	Ratings    RatingRules `yaml:"ratings"`
	Temporal   Temporal    `yaml:"temporal"`
	Precedence []string    `yaml:"precedence"`
	Directives []string    `yaml:"directives"`
}

// TierRule lists the domains belonging to one trust tier
type TierRule struct {
	Tier        string   `yaml:"tier"`
	Label       string   `yaml:"label"`
	Description string   `yaml:"description"`
	Domains     []string `yaml:"domains"`
	Suffixes    []string `yaml:"suffixes"`

	tier model.TrustTier
}

// Band is the confidence range allowed for a verdict label
type Band struct {
	Verdict  model.Label `yaml:"verdict"`
	Min      int         `yaml:"min"`
	Max      int         `yaml:"max"`
	Default  bool        `yaml:"default"`
	Criteria string      `yaml:"criteria"`
}

// RatingRules is the keyword vocabulary for textual fact-check ratings.
// Lists are matched in the order mixed, false, true.
type RatingRules struct {
	Mixed []string `yaml:"mixed"`
	False []string `yaml:"false"`
	True  []string `yaml:"true"`
}

type Temporal struct {
	RecentYears int `yaml:"recent_years"`
}

// Default returns the built-in policy
func Default() *Policy {
	p, err := Parse(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("built-in policy is invalid: %v", err))
	}
	return p
}

// Load reads a policy file, falling back to the built-in policy when path is empty
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML policy document
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) validate() error {
	for i := range p.Tiers {
		t, ok := model.ParseTrustTier(p.Tiers[i].Tier)
		if !ok || t == model.TierUnknown {
			return fmt.Errorf("policy: unknown trust tier %q", p.Tiers[i].Tier)
		}
		p.Tiers[i].tier = t
	}

	seen := make(map[model.Label]bool)
	defaults := 0
	for _, b := range p.Bands {
		if !b.Verdict.Valid() {
			return fmt.Errorf("policy: band for unknown verdict %q", b.Verdict)
		}
		if seen[b.Verdict] {
			return fmt.Errorf("policy: duplicate band for %q", b.Verdict)
		}
		if b.Min < 0 || b.Max > 100 || b.Min > b.Max {
			return fmt.Errorf("policy: band %q has invalid range %d-%d", b.Verdict, b.Min, b.Max)
		}
		if b.Default {
			defaults++
		}
		seen[b.Verdict] = true
	}
	for _, l := range model.Labels {
		if !seen[l] {
			return fmt.Errorf("policy: missing band for %q", l)
		}
	}
	if defaults != 1 {
		return fmt.Errorf("policy: exactly one default band required, got %d", defaults)
	}
	return nil
}

// Band returns the confidence band for a label
func (p *Policy) Band(l model.Label) (Band, bool) {
	for _, b := range p.Bands {
		if b.Verdict == l {
			return b, true
		}
	}
	return Band{}, false
}

// DefaultLabel is the label to prefer under uncertainty
func (p *Policy) DefaultLabel() model.Label {
	for _, b := range p.Bands {
		if b.Default {
			return b.Verdict
		}
	}
	return model.LabelUnverified
}

// Clamp moves confidence into the band of the given label
func (p *Policy) Clamp(l model.Label, confidence int) int {
	b, ok := p.Band(l)
	if !ok {
		return confidence
	}
	if confidence < b.Min {
		return b.Min
	}
	if confidence > b.Max {
		return b.Max
	}
	return confidence
}

// RatingClass is the normalized meaning of a textual fact-check rating
type RatingClass int

const (
	RatingUnknown RatingClass = iota
	RatingFalse
	RatingMixed
	RatingTrue
)

// ClassifyRating maps free-text ratings such as "Pants on Fire" to a class
func (p *Policy) ClassifyRating(text string) RatingClass {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return RatingUnknown
	}
	for _, rule := range []struct {
		words []string
		class RatingClass
	}{
		{p.Ratings.Mixed, RatingMixed},
		{p.Ratings.False, RatingFalse},
		{p.Ratings.True, RatingTrue},
	} {
		for _, w := range rule.words {
			if strings.Contains(t, w) {
				return rule.class
			}
		}
	}
	return RatingUnknown
}
