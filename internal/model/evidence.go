package model

import "strings"

// SourceKind identifies which evidence channel produced a record
type SourceKind string

const (
	SourceFactCheck SourceKind = "factcheck" // Structured fact-check database
	SourceWebSearch SourceKind = "websearch" // General web search
)

// TrustTier is the credibility class of a publisher domain
type TrustTier int

const (
	TierUnknown   TrustTier = 0 // Not listed in any tier
	TierOne       TrustTier = 1 // Wire services, major outlets, official bodies
	TierTwo       TrustTier = 2 // Established regional and national outlets
	TierUntrusted TrustTier = 3 // Social media, anonymous blogs, user-generated content
)

func (t TrustTier) String() string {
	switch t {
	case TierOne:
		return "tier1"
	case TierTwo:
		return "tier2"
	case TierUntrusted:
		return "untrusted"
	default:
		return "unknown"
	}
}

// ParseTrustTier maps the textual tier names used in policy files
func ParseTrustTier(s string) (TrustTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tier1":
		return TierOne, true
	case "tier2":
		return TierTwo, true
	case "untrusted":
		return TierUntrusted, true
	case "unknown":
		return TierUnknown, true
	}
	return TierUnknown, false
}

// EvidenceRecord is one piece of external evidence shown to the reasoning engine
type EvidenceRecord struct {
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet,omitempty"`
	SourceURL string     `json:"sourceUrl"`
	Publisher string     `json:"publisher,omitempty"`
	Rating    string     `json:"rating,omitempty"` // Textual rating, fact-checks only
	Kind      SourceKind `json:"kind"`
	Tier      TrustTier  `json:"tier"`
}

// Evidence is the merged result of all evidence sources for one query.
// Fact-checks always precede web results.
type Evidence struct {
	Query      string           `json:"query,omitempty"`
	FactChecks []EvidenceRecord `json:"factChecks"`
	WebResults []EvidenceRecord `json:"webResults"`
}

// Empty reports whether no source returned anything
func (e Evidence) Empty() bool {
	return len(e.FactChecks) == 0 && len(e.WebResults) == 0
}

// Sought reports whether a lookup was attempted at all
func (e Evidence) Sought() bool {
	return e.Query != ""
}

// URLs returns every record URL in precedence order without duplicates
func (e Evidence) URLs() []string {
	seen := make(map[string]bool)
	var urls []string
	for _, list := range [][]EvidenceRecord{e.FactChecks, e.WebResults} {
		for _, r := range list {
			if r.SourceURL == "" || seen[r.SourceURL] {
				continue
			}
			seen[r.SourceURL] = true
			urls = append(urls, r.SourceURL)
		}
	}
	return urls
}
