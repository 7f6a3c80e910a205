// Package prompt assembles reasoning engine requests from the decision
// policy, the normalized submission and the gathered evidence.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/policy"
)

// maxListedURLs bounds the allowlist repeated in the rules block
const maxListedURLs = 20

// Assembler builds one engine request per verification
type Assembler struct {
	policy *policy.Policy
}

// New creates an Assembler for p
func New(p *policy.Policy) *Assembler {
	return &Assembler{policy: p}
}

// Build produces the request for n. The system instruction carries the
// decision policy for now; the user turn carries the case.
func (a *Assembler) Build(n *normalize.Normalized, ev model.Evidence, now time.Time) llm.Request {
	req := llm.Request{
		System:  a.policy.Render(now),
		Tool:    llm.VerdictTool(n.Type),
		Allowed: ev.URLs(),
	}

	req.Parts = append(req.Parts, llm.Part{Text: contentBlock(n)})
	req.Parts = append(req.Parts, llm.Part{Text: evidenceBlock(ev)})
	req.Parts = append(req.Parts, llm.Part{Text: rulesBlock(n, ev, req.Allowed, req.Tool.Name)})

	if n.Type == model.ContentImage && n.Image != nil {
		req.Parts = append(req.Parts, llm.Part{Image: n.Image})
	}
	return req
}

// contentBlock describes the submission. Submitted material is fenced so
// instructions inside it read as data.
func contentBlock(n *normalize.Normalized) string {
	var b strings.Builder

	switch n.Type {
	case model.ContentText:
		b.WriteString("Assess the credibility of the following news claim.\n")
		fence(&b, "claim", n.Text)

	case model.ContentURL:
		b.WriteString("Assess the credibility of the news article at this URL.\n")
		fmt.Fprintf(&b, "URL: %s\n", n.URL)
		if n.Text != "" {
			fence(&b, "note", n.Text)
		}
		if n.Page != nil {
			if n.Page.Title != "" {
				fmt.Fprintf(&b, "Page title: %s\n", n.Page.Title)
			}
			fence(&b, "page", n.Page.Text)
		} else {
			b.WriteString("The page content could not be retrieved. Judge only from the URL structure ")
			b.WriteString("(domain, path, naming) and the evidence below.\n")
		}

	case model.ContentImage:
		b.WriteString("Assess the authenticity and credibility of the attached image.\n")
		b.WriteString("Look for signs of manipulation or AI generation: inconsistent lighting and shadows, ")
		b.WriteString("warped text or hands, cloning, compression seams and mismatched perspective. ")
		b.WriteString("Read any visible text or captions and assess the claim they make.\n")
		if n.Text != "" {
			fence(&b, "caption", n.Text)
		}

	case model.ContentAudio:
		b.WriteString("Assess the credibility of the claims made in this audio recording. ")
		b.WriteString("Only an automatic transcript is available; do not judge voice authenticity.\n")
		fence(&b, "transcript", n.Text)

	case model.ContentVideo:
		b.WriteString("Assess the authenticity of an uploaded video. Only its file metadata is available; ")
		b.WriteString("the frames and audio track could not be analyzed.\n")
		if v := n.Video; v != nil {
			fmt.Fprintf(&b, "File name: %s\n", v.FileName)
			fmt.Fprintf(&b, "File size: %d bytes\n", v.Size)
			if v.MimeType != "" {
				fmt.Fprintf(&b, "File type: %s\n", v.MimeType)
			}
		}
		if n.Text != "" {
			fence(&b, "description", n.Text)
		}
		b.WriteString("Report deepfake indicators, editing artifacts and audio-visual sync only where the ")
		b.WriteString("metadata or description supports them; otherwise say they could not be assessed.\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

func fence(b *strings.Builder, tag, body string) {
	fmt.Fprintf(b, "<%s>\n%s\n</%s>\n", tag, body, tag)
}

// evidenceBlock lists fact-checks before web results, numbered so the
// engine can refer to them.
func evidenceBlock(ev model.Evidence) string {
	var b strings.Builder
	b.WriteString("## Evidence\n")

	if !ev.Sought() {
		b.WriteString("No evidence lookup was possible for this submission. Rely on the content itself ")
		b.WriteString("and state which conclusions could not be checked against external sources.")
		return b.String()
	}
	fmt.Fprintf(&b, "Search query: %s\n", ev.Query)

	if ev.Empty() {
		b.WriteString("No fact-checks or web results were found. Absence of evidence is not evidence of falsity: ")
		fmt.Fprintf(&b, "unless the claim is impossible on its face, the verdict should be %q.", "unverified")
		return b.String()
	}

	b.WriteString("\n### Fact-checks (highest precedence)\n")
	if len(ev.FactChecks) == 0 {
		b.WriteString("None found.\n")
	}
	for i, r := range ev.FactChecks {
		fmt.Fprintf(&b, "[F%d] %s\n", i+1, r.Title)
		if r.Publisher != "" {
			fmt.Fprintf(&b, "     Publisher: %s (%s)\n", r.Publisher, r.Tier)
		}
		if r.Rating != "" {
			fmt.Fprintf(&b, "     Rating: %s\n", r.Rating)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "     Claim: %s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "     URL: %s\n", r.SourceURL)
	}

	b.WriteString("\n### Web results\n")
	if len(ev.WebResults) == 0 {
		b.WriteString("None found.\n")
	}
	for i, r := range ev.WebResults {
		fmt.Fprintf(&b, "[W%d] %s\n", i+1, r.Title)
		if r.Publisher != "" {
			fmt.Fprintf(&b, "     Publisher: %s (%s)\n", r.Publisher, r.Tier)
		} else {
			fmt.Fprintf(&b, "     Trust: %s\n", r.Tier)
		}
		if r.Snippet != "" {
			fmt.Fprintf(&b, "     Snippet: %s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "     URL: %s\n", r.SourceURL)
	}

	return strings.TrimRight(b.String(), "\n")
}

// rulesBlock repeats the case-specific constraints after the material
func rulesBlock(n *normalize.Normalized, ev model.Evidence, allowed []string, tool string) string {
	var b strings.Builder
	b.WriteString("## Rules for this case\n")

	if len(allowed) == 0 {
		b.WriteString("- No evidence URLs are available. Leave \"sources\" empty; do not cite publications by name.\n")
	} else {
		b.WriteString("- \"sources\" may ONLY contain URLs copied exactly from this list:\n")
		b.WriteString(joinURLs(allowed))
		b.WriteString("\n")
	}

	if d := n.Disclosure(); d != "" {
		fmt.Fprintf(&b, "- Begin the explanation with exactly: %q\n", d)
	}
	if ev.Sought() && ev.Empty() {
		b.WriteString("- Do not answer \"false\" without a concrete contradiction you can explain.\n")
	}
	b.WriteString("- Write the explanation, red flags and positive indicators in the language of the submitted content.\n")
	fmt.Fprintf(&b, "- Respond by calling %s exactly once.", tool)

	return b.String()
}

func joinURLs(urls []string) string {
	var b strings.Builder
	for i, u := range urls {
		if i >= maxListedURLs {
			fmt.Fprintf(&b, "\n  ... and %d more from the evidence above", len(urls)-maxListedURLs)
			break
		}
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "  - %s", u)
	}
	return b.String()
}
