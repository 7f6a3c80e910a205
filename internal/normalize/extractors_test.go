package normalize

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func parseDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestRegistry_Find(t *testing.T) {
	r := NewRegistry()
	tests := []struct {
		url  string
		want string
	}{
		{"https://en.wikipedia.org/wiki/Borscht", "wikipedia"},
		{"https://wikipedia.org/", "wikipedia"},
		{"https://wikipedia.org.evil.example/wiki/x", "generic"},
		{"https://www.law.cornell.edu/uscode/text/17/107", "legal"},
		{"https://example.gov/statutes/title-5", "legal"},
		{"https://apnews.com/article/x", "generic"},
		{"::not a url", "generic"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := r.Find(tt.url).Name(); got != tt.want {
				t.Errorf("Find() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWikipediaExtractor(t *testing.T) {
	doc := parseDoc(t, `<html><body>
<div id="mw-navigation">Main page Contents</div>
<div id="mw-content-text"><div class="mw-parser-output">
<table class="infobox"><tr><td>Type: Soup</td></tr></table>
<p>Borscht is a sour soup.<sup class="reference">[1]</sup></p>
<div class="navbox">Soups of the world</div>
</div></div></body></html>`)

	got, used := NewRegistry().Extract("https://en.wikipedia.org/wiki/Borscht", doc)
	if got != "Borscht is a sour soup." {
		t.Errorf("Extract() = %q", got)
	}
	if used != "wikipedia" {
		t.Errorf("extractor = %s, want wikipedia", used)
	}
}

func TestRegistry_FallsBackToGeneric(t *testing.T) {
	doc := parseDoc(t, `<html><body><p>Mirror of an article.</p></body></html>`)

	got, used := NewRegistry().Extract("https://en.wikipedia.org/wiki/Mirror", doc)
	if got != "Mirror of an article." {
		t.Errorf("Extract() = %q, want generic fallback", got)
	}
	if used != "generic" {
		t.Errorf("extractor = %s, want generic", used)
	}
}

func TestLegalExtractor(t *testing.T) {
	doc := parseDoc(t, `<html><body><nav>Title 17 &gt; Chapter 1</nav>
<main><div class="breadcrumb">Home</div><p>Fair use of a copyrighted work is not an infringement.</p></main></body></html>`)

	got, _ := NewRegistry().Extract("https://www.law.cornell.edu/uscode/text/17/107", doc)
	if got != "Fair use of a copyrighted work is not an infringement." {
		t.Errorf("Extract() = %q", got)
	}
}
