package normalize

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/util"
)

// fetchBackoff waits between attempts; tests replace it to skip the delay
var fetchBackoff = func(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

const fetchAttempts = 2

var errRobotsDisallowed = errors.New("disallowed by robots.txt")

// Page is the readable text extracted from a fetched URL
type Page struct {
	Title    string
	Text     string
	FinalURL string
}

// Fetcher retrieves a page and reduces it to plain text
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	maxChars   int
	robots     *util.RobotsChecker
	limiter    *util.Limiter
	extractors *Registry
	logger     *zap.Logger
}

// NewFetcher creates a Fetcher. robots and limiter may be nil. Unless
// cfg.AllowPrivateNetworks is set, only public addresses are dialled.
func NewFetcher(cfg model.HTTPConfig, maxChars int, robots *util.RobotsChecker, limiter *util.Limiter, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	client := util.NewPublicHTTPClient(cfg, cfg.FetchTimeout)
	maxRedirects := cfg.MaxRedirects
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		return nil
	}
	return &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxPageBytes,
		maxChars:   maxChars,
		robots:     robots,
		limiter:    limiter,
		extractors: NewRegistry(),
		logger:     logger,
	}
}

// FetchPage fetches rawURL with one retry on transient failures
func (f *Fetcher) FetchPage(ctx context.Context, rawURL string) (*Page, error) {
	if f.robots != nil && !f.robots.IsAllowed(ctx, rawURL) {
		return nil, errRobotsDisallowed
	}

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			if err := fetchBackoff(ctx, time.Duration(attempt)*500*time.Millisecond); err != nil {
				return nil, err
			}
		}
		if f.limiter != nil {
			if err := f.limiter.WaitHost(ctx, rawURL, 0); err != nil {
				return nil, err
			}
		}

		page, err := f.fetchOnce(ctx, rawURL)
		if err == nil {
			return page, nil
		}
		lastErr = err

		var se *statusError
		if errors.As(err, &se) && !se.retryable() {
			break
		}
		if errors.Is(err, util.ErrPrivateAddress) {
			break
		}
		if ctx.Err() != nil {
			break
		}
		f.logger.Debug("page fetch failed, retrying", zap.String("url", rawURL), zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return nil, lastErr
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status: %d %s", e.code, http.StatusText(e.code))
}

func (e *statusError) retryable() bool {
	return e.code == http.StatusTooManyRequests || e.code >= 500
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	page := &Page{FinalURL: resp.Request.URL.String()}
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case mediaType == "text/plain":
		page.Text = collapseSpace(string(body))
	case mediaType == "" || mediaType == "text/html" || mediaType == "application/xhtml+xml":
		title, text, err := f.extractText(page.FinalURL, body)
		if err != nil {
			return nil, err
		}
		page.Title, page.Text = title, text
	default:
		return nil, fmt.Errorf("unsupported content type %q", mediaType)
	}

	page.Text = truncateRunes(page.Text, f.maxChars)
	if page.Text == "" {
		return nil, errors.New("page has no readable text")
	}
	return page, nil
}

// extractText returns the document title and its visible body text
func (f *Fetcher) extractText(pageURL string, body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript, template, svg, iframe, nav, footer, header, form").Remove()
	// Keep words from adjacent blocks apart once tags are dropped
	doc.Find("p, div, br, li, tr, td, h1, h2, h3, h4, h5, h6, blockquote, section").AppendHtml(" ")

	title := collapseSpace(doc.Find("title").First().Text())
	text, extractor := f.extractors.Extract(pageURL, doc)
	f.logger.Debug("page text extracted", zap.String("url", pageURL), zap.String("extractor", extractor), zap.Int("chars", len(text)))
	return title, text, nil
}

// subjectFromURL turns the last path segment of a URL into search terms
func subjectFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Hostname()
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]
	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}

	// De-slugify and drop purely numeric tokens such as article ids
	words := strings.FieldsFunc(last, func(r rune) bool { return r == '-' || r == '_' || r == '+' })
	kept := words[:0]
	for _, w := range words {
		if strings.Trim(w, "0123456789") == "" {
			continue
		}
		kept = append(kept, w)
	}
	if len(kept) == 0 {
		return parsed.Hostname()
	}
	return strings.Join(kept, " ")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
