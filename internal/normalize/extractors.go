package normalize

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Extractor selects the readable part of a page for one family of sites
type Extractor interface {
	// Name returns the extractor name
	Name() string

	// CanHandle reports whether this extractor knows the page layout
	CanHandle(pageURL *url.URL) bool

	// Content returns the selection holding the article body, or an empty
	// selection when the layout does not match
	Content(doc *goquery.Document) *goquery.Selection
}

// Registry picks the first matching extractor, falling back to a generic one
type Registry struct {
	extractors []Extractor
	generic    Extractor
}

// NewRegistry creates a registry with the built-in extractors
func NewRegistry() *Registry {
	r := &Registry{generic: genericExtractor{}}
	r.Register(wikipediaExtractor{})
	r.Register(legalExtractor{})
	return r
}

// Register adds an extractor ahead of the generic fallback
func (r *Registry) Register(e Extractor) {
	r.extractors = append(r.extractors, e)
}

// Find returns the extractor for rawURL
func (r *Registry) Find(rawURL string) Extractor {
	u, err := url.Parse(rawURL)
	if err != nil {
		return r.generic
	}
	for _, e := range r.extractors {
		if e.CanHandle(u) {
			return e
		}
	}
	return r.generic
}

// Extract returns the body text and the name of the extractor that
// produced it, using the generic layout when the specific one finds nothing
func (r *Registry) Extract(rawURL string, doc *goquery.Document) (text, extractor string) {
	e := r.Find(rawURL)
	text = collapseSpace(e.Content(doc).Text())
	if text == "" && e != r.generic {
		e = r.generic
		text = collapseSpace(e.Content(doc).Text())
	}
	return text, e.Name()
}

type genericExtractor struct{}

func (genericExtractor) Name() string            { return "generic" }
func (genericExtractor) CanHandle(*url.URL) bool { return true }

func (genericExtractor) Content(doc *goquery.Document) *goquery.Selection {
	root := doc.Find("article").First()
	if root.Length() == 0 || len(strings.TrimSpace(root.Text())) < 200 {
		root = doc.Find("body")
	}
	if root.Length() == 0 {
		root = doc.Selection
	}
	return root
}

// wikipediaExtractor keeps the article prose and drops citation markers,
// infoboxes and navigation boxes
type wikipediaExtractor struct{}

func (wikipediaExtractor) Name() string { return "wikipedia" }

func (wikipediaExtractor) CanHandle(u *url.URL) bool {
	host := strings.ToLower(u.Hostname())
	return host == "wikipedia.org" || strings.HasSuffix(host, ".wikipedia.org")
}

func (wikipediaExtractor) Content(doc *goquery.Document) *goquery.Selection {
	root := doc.Find("#mw-content-text .mw-parser-output").First()
	if root.Length() == 0 {
		return root
	}
	root.Find("sup.reference, .reference, .infobox, .navbox, .mw-editsection, .reflist, .hatnote, table").Remove()
	return root
}

// legalExtractor targets statute and regulation pages, whose body usually
// sits in a main element next to long navigation trees
type legalExtractor struct{}

var legalDomains = []string{"law.cornell.edu", "legislation.gov.uk", "eur-lex.europa.eu", "congress.gov", "govinfo.gov"}

func (legalExtractor) Name() string { return "legal" }

func (legalExtractor) CanHandle(u *url.URL) bool {
	host := strings.ToLower(strings.TrimPrefix(u.Hostname(), "www."))
	for _, d := range legalDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	path := strings.ToLower(u.Path)
	return strings.Contains(path, "/statute") || strings.Contains(path, "/regulation")
}

func (legalExtractor) Content(doc *goquery.Document) *goquery.Selection {
	root := doc.Find("main").First()
	if root.Length() == 0 {
		root = doc.Find("#content, .content").First()
	}
	root.Find("aside, .breadcrumb, .toc").Remove()
	return root
}
