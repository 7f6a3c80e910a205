package evidence

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/credence/internal/model"
)

func TestFactCheckSource_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1alpha1/claims:search" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("key") != "fc-key" {
			t.Errorf("key = %q", q.Get("key"))
		}
		if q.Get("query") != "moon landing faked" || q.Get("languageCode") != "en" || q.Get("pageSize") != "5" {
			t.Errorf("query params = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"claims":[{
			"text":"The moon landing was faked",
			"claimant":"Viral post",
			"claimReview":[
				{"publisher":{"name":"Snopes","site":"snopes.com"},"url":"https://www.snopes.com/fact-check/moon","title":"Was the moon landing faked?","textualRating":"False","languageCode":"en"},
				{"publisher":{"site":"politifact.com"},"url":"https://www.politifact.com/x","textualRating":"Pants on Fire"}
			]}]}`))
	}))
	defer server.Close()

	src, err := NewFactCheckSource(context.Background(), model.FactCheckConfig{
		APIKey:   "fc-key",
		Endpoint: server.URL + "/",
		Language: "en",
	}, server.Client())
	if err != nil {
		t.Fatalf("NewFactCheckSource() error: %v", err)
	}

	records, err := src.Search(context.Background(), "moon landing faked", 5)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	r0 := records[0]
	if r0.Publisher != "Snopes" || r0.Rating != "False" || r0.SourceURL != "https://www.snopes.com/fact-check/moon" || r0.Kind != model.SourceFactCheck {
		t.Errorf("record 0 = %+v", r0)
	}
	if r0.Snippet != "The moon landing was faked (claimed by Viral post)" {
		t.Errorf("snippet = %q", r0.Snippet)
	}
	r1 := records[1]
	if r1.Publisher != "politifact.com" || r1.Title != "The moon landing was faked" {
		t.Errorf("record 1 = %+v", r1)
	}
}

func TestFactCheckSource_Error(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"API key not valid"}}`))
	}))
	defer server.Close()

	src, _ := NewFactCheckSource(context.Background(), model.FactCheckConfig{APIKey: "bad", Endpoint: server.URL + "/"}, nil)
	if _, err := src.Search(context.Background(), "q", 5); err == nil {
		t.Error("expected error")
	}
}

func TestWebSearchSource_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/customsearch/v1" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("cx") != "engine-1" || q.Get("q") != "moon base" || q.Get("num") != "10" || q.Get("key") != "cs-key" {
			t.Errorf("query params = %v", q)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Moon base opens","snippet":"The first lunar base...","link":"https://apnews.com/article/moon","displayLink":"apnews.com"}
		]}`))
	}))
	defer server.Close()

	src, err := NewWebSearchSource(context.Background(), model.SearchConfig{APIKey: "cs-key", CX: "engine-1", Endpoint: server.URL + "/"}, nil)
	if err != nil {
		t.Fatalf("NewWebSearchSource() error: %v", err)
	}

	records, err := src.Search(context.Background(), "moon base", 25)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d records", len(records))
	}
	want := model.EvidenceRecord{Title: "Moon base opens", Snippet: "The first lunar base...", SourceURL: "https://apnews.com/article/moon", Publisher: "apnews.com", Kind: model.SourceWebSearch}
	if records[0] != want {
		t.Errorf("record = %+v", records[0])
	}
}

func TestNewSources_RequireCredentials(t *testing.T) {
	if _, err := NewFactCheckSource(context.Background(), model.FactCheckConfig{}, nil); err == nil {
		t.Error("fact-check source without key should fail")
	}
	if _, err := NewWebSearchSource(context.Background(), model.SearchConfig{APIKey: "k"}, nil); err == nil {
		t.Error("web search source without cx should fail")
	}
}
