// Package normalize validates raw submissions and turns them into a
// canonical, bounded form the rest of the pipeline can rely on.
package normalize

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/policy"
	"github.com/ppiankov/credence/internal/util"
)

const op = "normalize"

// Degraded reasons recorded on the verdict
const (
	ReasonPageUnavailable = "page content unavailable"
	ReasonMetadataOnly    = "video metadata only"
)

// Normalized is a validated submission
type Normalized struct {
	Type  model.ContentType
	Text  string // Submitted text, accompanying text, or audio transcript
	URL   string // Canonical URL for url submissions
	Query string // Evidence lookup query, empty when none applies
	Image *model.Blob
	Video *model.VideoRef
	Page  *Page

	SelfReference  bool
	Degraded       bool
	DegradedReason string
}

// Disclosure returns the sentence a degraded verdict must open with
func (n *Normalized) Disclosure() string {
	if !n.Degraded {
		return ""
	}
	if n.Type == model.ContentVideo {
		return policy.DisclosureMetadataOnly
	}
	return policy.DisclosureURLOnly
}

// PageFetcher retrieves readable text for a URL
type PageFetcher interface {
	FetchPage(ctx context.Context, rawURL string) (*Page, error)
}

// Transcriber converts audio into text
type Transcriber interface {
	Transcribe(ctx context.Context, audio model.Blob) (string, error)
}

// Normalizer validates submissions against configured limits
type Normalizer struct {
	limits      model.LimitsConfig
	fetcher     PageFetcher
	transcriber Transcriber
	selfURL     string
	private     bool
	logger      *zap.Logger
}

// Option configures a Normalizer
type Option func(*Normalizer)

// WithFetcher enables page retrieval for URL submissions
func WithFetcher(f PageFetcher) Option {
	return func(n *Normalizer) { n.fetcher = f }
}

// WithTranscriber enables audio submissions
func WithTranscriber(t Transcriber) Option {
	return func(n *Normalizer) { n.transcriber = t }
}

// WithSelfURL sets the service's own canonical URL. Empty disables the exemption.
func WithSelfURL(raw string) Option {
	return func(n *Normalizer) {
		if raw == "" {
			n.selfURL = ""
			return
		}
		if canon, err := canonicalURL(raw); err == nil {
			n.selfURL = canon
		}
	}
}

// WithPrivateNetworks accepts URLs naming loopback or private hosts
func WithPrivateNetworks(allow bool) Option {
	return func(n *Normalizer) { n.private = allow }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// New creates a Normalizer
func New(limits model.LimitsConfig, opts ...Option) *Normalizer {
	n := &Normalizer{limits: limits, logger: zap.NewNop()}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize validates s and resolves its modality. It performs no network
// I/O except audio transcription; page retrieval happens in AttachPage.
func (n *Normalizer) Normalize(ctx context.Context, s model.Submission) (*Normalized, error) {
	if s.Empty() {
		return nil, model.Errorf(model.KindInvalidInput, op, "submission has no content")
	}

	ct, err := n.resolveType(s)
	if err != nil {
		return nil, err
	}

	text := strings.TrimSpace(s.Text)
	if utf8.RuneCountInString(text) > n.limits.MaxTextChars {
		return nil, model.Errorf(model.KindInvalidInput, op, "text exceeds %d characters", n.limits.MaxTextChars)
	}

	out := &Normalized{Type: ct, Text: text}

	switch ct {
	case model.ContentText:
		if text == "" {
			return nil, model.Errorf(model.KindInvalidInput, op, "text submission is empty")
		}
		out.Query = collapseSpace(text)

	case model.ContentURL:
		raw := strings.TrimSpace(s.URL)
		if raw == "" && isBareURL(text) {
			raw, out.Text = text, ""
		}
		if utf8.RuneCountInString(raw) > n.limits.MaxURLChars {
			return nil, model.Errorf(model.KindInvalidInput, op, "URL exceeds %d characters", n.limits.MaxURLChars)
		}
		canon, err := canonicalURL(raw)
		if err != nil {
			return nil, model.E(model.KindInvalidInput, op, err)
		}
		if !n.private && !publicURL(canon) {
			return nil, model.Errorf(model.KindInvalidInput, op, "URL must name a public host")
		}
		out.URL = canon
		out.SelfReference = n.selfURL != "" && canon == n.selfURL
		out.Query = subjectFromURL(canon)

	case model.ContentImage:
		if err := checkBlob(s.Image, "image/", n.limits.MaxImageBytes); err != nil {
			return nil, err
		}
		out.Image = s.Image
		out.Query = collapseSpace(text)

	case model.ContentAudio:
		if err := checkBlob(s.Audio, "audio/", n.limits.MaxAudioBytes); err != nil {
			return nil, err
		}
		if n.transcriber == nil {
			return nil, model.Errorf(model.KindModalityUnsupported, op, "audio transcription is not configured")
		}
		transcript, err := n.transcriber.Transcribe(ctx, *s.Audio)
		if err != nil {
			return nil, err
		}
		transcript = truncateRunes(collapseSpace(transcript), n.limits.MaxTextChars)
		if transcript == "" {
			return nil, model.Errorf(model.KindInvalidInput, op, "audio contains no recognizable speech")
		}
		out.Text = transcript
		out.Query = transcript

	case model.ContentVideo:
		v := s.Video
		if v == nil || strings.TrimSpace(v.FileName) == "" || v.Size <= 0 {
			return nil, model.Errorf(model.KindInvalidInput, op, "video metadata requires fileName and fileSize")
		}
		if v.MimeType != "" && !strings.HasPrefix(v.MimeType, "video/") {
			return nil, model.Errorf(model.KindInvalidInput, op, "file type %q is not a video", v.MimeType)
		}
		out.Video = v
		out.Query = collapseSpace(text)
		out.Degraded = true
		out.DegradedReason = ReasonMetadataOnly
	}

	return out, nil
}

// AttachPage fetches the page of a URL submission. Failure marks the
// submission degraded rather than failing it.
func (n *Normalizer) AttachPage(ctx context.Context, out *Normalized) {
	if out.Type != model.ContentURL || out.SelfReference {
		return
	}
	if n.fetcher == nil {
		out.Degraded, out.DegradedReason = true, ReasonPageUnavailable
		return
	}
	page, err := n.fetcher.FetchPage(ctx, out.URL)
	if err != nil {
		n.logger.Warn("page fetch failed, continuing with URL only", zap.String("url", out.URL), zap.Error(err))
		out.Degraded, out.DegradedReason = true, ReasonPageUnavailable
		return
	}
	out.Page = page
}

func (n *Normalizer) resolveType(s model.Submission) (model.ContentType, error) {
	if s.Type != "" {
		if !hasPayload(s, s.Type) {
			return "", model.Errorf(model.KindInvalidInput, op, "%s submission is missing its payload", s.Type)
		}
		return s.Type, nil
	}
	switch {
	case s.Image != nil:
		return model.ContentImage, nil
	case s.Audio != nil:
		return model.ContentAudio, nil
	case s.Video != nil:
		return model.ContentVideo, nil
	case strings.TrimSpace(s.URL) != "":
		return model.ContentURL, nil
	case isBareURL(strings.TrimSpace(s.Text)):
		return model.ContentURL, nil
	}
	return model.ContentText, nil
}

func hasPayload(s model.Submission, ct model.ContentType) bool {
	switch ct {
	case model.ContentText:
		return strings.TrimSpace(s.Text) != ""
	case model.ContentURL:
		return strings.TrimSpace(s.URL) != "" || isBareURL(strings.TrimSpace(s.Text))
	case model.ContentImage:
		return s.Image != nil
	case model.ContentAudio:
		return s.Audio != nil
	case model.ContentVideo:
		return s.Video != nil
	}
	return false
}

func checkBlob(b *model.Blob, prefix string, max int64) error {
	if b == nil || len(b.Data) == 0 {
		return model.Errorf(model.KindInvalidInput, op, "empty %spayload", strings.TrimSuffix(prefix, "/")+" ")
	}
	if int64(len(b.Data)) > max {
		return model.Errorf(model.KindInvalidInput, op, "payload exceeds %d bytes", max)
	}
	if !strings.HasPrefix(b.MimeType, prefix) {
		return model.Errorf(model.KindInvalidInput, op, "MIME type %q is not %s*", b.MimeType, prefix)
	}
	return nil
}

// canonicalURL validates an absolute http(s) URL and normalizes the parts
// that do not change which resource it names.
func canonicalURL(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("URL scheme must be http or https")
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("URL has no host")
	}
	u.Host = strings.ToLower(u.Host)
	if (u.Scheme == "http" && u.Port() == "80") || (u.Scheme == "https" && u.Port() == "443") {
		u.Host = u.Hostname()
	}
	u.Fragment = ""
	u.User = nil
	if u.Path == "" {
		u.Path = "/"
	}
	return u.String(), nil
}

func publicURL(canon string) bool {
	u, err := url.Parse(canon)
	return err == nil && util.IsPublicHost(u.Hostname())
}

func isBareURL(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	return model.IsAbsoluteURL(s)
}
