package policy

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"

	"github.com/ppiankov/credence/internal/model"
)

// Classifier assigns publisher URLs to trust tiers
type Classifier struct {
	domains  map[string]model.TrustTier
	suffixes []suffixRule
}

type suffixRule struct {
	suffix string
	tier   model.TrustTier
}

// NewClassifier builds lookup tables from the policy's tier rules
func NewClassifier(p *Policy) *Classifier {
	c := &Classifier{domains: make(map[string]model.TrustTier)}
	for _, rule := range p.Tiers {
		for _, d := range rule.Domains {
			d = strings.ToLower(strings.TrimPrefix(d, "www."))
			if _, exists := c.domains[d]; !exists {
				c.domains[d] = rule.tier
			}
		}
		for _, s := range rule.Suffixes {
			c.suffixes = append(c.suffixes, suffixRule{suffix: strings.ToLower(strings.TrimPrefix(s, ".")), tier: rule.tier})
		}
	}
	return c
}

// Tier classifies a URL. Unparseable and unlisted URLs are TierUnknown.
func (c *Classifier) Tier(rawURL string) model.TrustTier {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Hostname() == "" {
		return model.TierUnknown
	}
	host := strings.ToLower(strings.TrimPrefix(parsed.Hostname(), "www."))

	// Exact host first so subdomain listings such as abcnews.go.com win
	if t, ok := c.domains[host]; ok {
		return t
	}

	// Walk up the labels until the registrable domain
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	for h := host; h != ""; {
		if t, ok := c.domains[h]; ok {
			return t
		}
		if h == registrable {
			break
		}
		idx := strings.Index(h, ".")
		if idx < 0 {
			break
		}
		h = h[idx+1:]
	}

	for _, s := range c.suffixes {
		if host == s.suffix || strings.HasSuffix(host, "."+s.suffix) {
			return s.tier
		}
	}
	return model.TierUnknown
}
