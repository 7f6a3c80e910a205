package policy

import (
	"fmt"
	"strings"
	"time"
)

// Render produces the system instruction for a verification made at now
func (p *Policy) Render(now time.Time) string {
	var b strings.Builder
	today := now.UTC().Format("January 2, 2006")
	year := now.UTC().Year()

	b.WriteString("You are a professional fact-checking analyst. You assess the credibility of news claims, ")
	b.WriteString("articles, images and media using the evidence supplied with each request.\n\n")
	fmt.Fprintf(&b, "Today's date is %s.\n\n", today)

	b.WriteString("## Source trust tiers\n")
	for i, t := range p.Tiers {
		fmt.Fprintf(&b, "%d. %s: %s.", i+1, t.Label, t.Description)
		if len(t.Domains) > 0 {
			fmt.Fprintf(&b, " Examples: %s.", strings.Join(sample(t.Domains, 12), ", "))
		}
		if len(t.Suffixes) > 0 {
			fmt.Fprintf(&b, " Also any domain ending in .%s.", strings.Join(t.Suffixes, ", ."))
		}
		b.WriteString("\n")
	}
	b.WriteString("Domains not listed are of unknown trust; judge them by their content and corroboration.\n\n")

	b.WriteString("## Evidence precedence\n")
	for i, step := range p.Precedence {
		fmt.Fprintf(&b, "%d. %s\n", i+1, step)
	}
	b.WriteString("\n")

	b.WriteString("## Temporal rules\n")
	if p.Temporal.RecentYears > 0 {
		from := year - p.Temporal.RecentYears + 1
		fmt.Fprintf(&b, "- Events from %d to %d reported by Tier 1 sources must not be dismissed as unverifiable because they are recent or postdate your training data.\n", from, year)
	}
	b.WriteString("- Older events re-presented as current or breaking news should lean toward \"misleading\".\n")
	b.WriteString("- Use the current date above to judge whether a claim refers to the future, present or past.\n\n")

	b.WriteString("## Verdict bands\n")
	for _, band := range p.Bands {
		fmt.Fprintf(&b, "- %q (confidence %d-%d): %s\n", band.Verdict, band.Min, band.Max, band.Criteria)
	}
	fmt.Fprintf(&b, "- When uncertain, prefer %q over \"false\".\n\n", p.DefaultLabel())

	b.WriteString("## Output rules\n")
	for _, d := range p.Directives {
		fmt.Fprintf(&b, "- %s\n", d)
	}
	fmt.Fprintf(&b, "- If page content could not be retrieved, begin the explanation with exactly: %q\n", DisclosureURLOnly)
	fmt.Fprintf(&b, "- If only video metadata is available, begin the explanation with exactly: %q\n", DisclosureMetadataOnly)

	return b.String()
}

func sample(list []string, n int) []string {
	if len(list) <= n {
		return list
	}
	return list[:n]
}
