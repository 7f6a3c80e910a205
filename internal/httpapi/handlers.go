package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/microcosm-cc/bluemonday"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
)

const defaultAudioMime = "audio/webm"

// verifyRequest is the inbound verification body
type verifyRequest struct {
	ContentText   string          `json:"contentText"`
	ContentURL    string          `json:"contentUrl"`
	ContentType   string          `json:"contentType"`
	ImageData     string          `json:"imageData"`
	AudioData     string          `json:"audioData"`
	AudioMimeType string          `json:"audioMimeType"`
	VideoMetadata *model.VideoRef `json:"videoMetadata"`
}

type verifyResponse struct {
	Verification *model.Verdict `json:"verification"`
	Analysis     model.Analysis `json:"analysis"`
	Cached       bool           `json:"cached,omitempty"`
}

type feedbackRequest struct {
	VerificationID string `json:"verificationId"`
	FeedbackType   string `json:"feedbackType"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	Rating         *int   `json:"rating"`
}

type statsResponse struct {
	TotalVerifications int     `json:"totalVerifications"`
	VerifiedTrue       int     `json:"verifiedTrue"`
	DetectedFake       int     `json:"detectedFake"`
	Misleading         int     `json:"misleading"`
	Unverified         int     `json:"unverified"`
	AccuracyRate       float64 `json:"accuracyRate"`
	FakePercentage     float64 `json:"fakePercentage"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeKindError(w, r, model.E(model.KindInvalidInput, "decode request", err))
		return
	}

	sub, err := req.submission()
	if err != nil {
		s.writeKindError(w, r, model.E(model.KindInvalidInput, "decode request", err))
		return
	}

	res, err := s.verifier.Verify(r.Context(), sub, s.userID(r))
	if err != nil {
		s.writeKindError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Verification: res.Verdict,
		Analysis:     res.Verdict.Analysis(),
		Cached:       res.Cached,
	})
}

// submission converts the wire body. Content rules are the normalizer's job.
func (req verifyRequest) submission() (model.Submission, error) {
	sub := model.Submission{
		Text:  req.ContentText,
		URL:   req.ContentURL,
		Video: req.VideoMetadata,
	}
	if req.ContentType != "" {
		ct, ok := model.ParseContentType(req.ContentType)
		if !ok {
			return sub, fmt.Errorf("unknown content type %q", req.ContentType)
		}
		sub.Type = ct
	}
	if req.ImageData != "" {
		blob, err := decodeDataURI(req.ImageData, "")
		if err != nil {
			return sub, fmt.Errorf("image data: %w", err)
		}
		sub.Image = blob
	}
	if req.AudioData != "" {
		mime := req.AudioMimeType
		if mime == "" {
			mime = defaultAudioMime
		}
		blob, err := decodeDataURI(req.AudioData, mime)
		if err != nil {
			return sub, fmt.Errorf("audio data: %w", err)
		}
		sub.Audio = blob
	}
	return sub, nil
}

// decodeDataURI accepts "data:<mime>;base64,<payload>" or, when fallbackMime
// is set, bare base64.
func decodeDataURI(s, fallbackMime string) (*model.Blob, error) {
	mime, payload := fallbackMime, s
	if strings.HasPrefix(s, "data:") {
		header, data, ok := strings.Cut(strings.TrimPrefix(s, "data:"), ",")
		if !ok {
			return nil, errors.New("malformed data URI")
		}
		mt, isBase64 := strings.CutSuffix(header, ";base64")
		if !isBase64 {
			return nil, errors.New("data URI must be base64 encoded")
		}
		mime, payload = mt, data
	}
	if mime == "" {
		return nil, errors.New("missing MIME type")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return &model.Blob{Data: data, MimeType: strings.ToLower(mime)}, nil
}

func (s *Server) handleListVerifications(w http.ResponseWriter, r *http.Request) {
	limit := store.DefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, msgInvalidInput)
			return
		}
		limit = n
	}

	// An empty user id means every user to the store, so anonymous callers get no history
	userID := s.userID(r)
	if userID == "" {
		writeJSON(w, http.StatusOK, map[string]any{"verifications": []model.Verdict{}})
		return
	}

	list, err := s.store.FetchRecent(r.Context(), limit, userID)
	if err != nil {
		s.writeKindError(w, r, model.E(model.KindPersistenceFailure, "list verifications", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verifications": list})
}

func (s *Server) handleGetVerification(w http.ResponseWriter, r *http.Request) {
	v, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		s.writeKindError(w, r, model.E(model.KindPersistenceFailure, "get verification", err))
		return
	}
	// Verdicts owned by someone else are reported as missing
	if v.UserID != "" && v.UserID != s.userID(r) {
		writeError(w, http.StatusNotFound, msgNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verification": v})
}

var plainText = bluemonday.StrictPolicy()

// sanitize strips markup and leaves plain text
func sanitize(s string) string {
	return strings.TrimSpace(html.UnescapeString(plainText.Sanitize(s)))
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidInput)
		return
	}

	f := model.Feedback{
		UserID:         s.userID(r),
		VerificationID: strings.TrimSpace(req.VerificationID),
		Type:           model.FeedbackType(req.FeedbackType),
		Subject:        sanitize(req.Subject),
		Message:        sanitize(req.Message),
		Rating:         req.Rating,
	}
	if f.Type == "" {
		f.Type = model.FeedbackGeneral
	}
	if err := validateFeedback(f); err != nil {
		s.writeKindError(w, r, model.E(model.KindInvalidInput, "feedback", err))
		return
	}

	if f.VerificationID != "" {
		if _, err := s.store.Get(r.Context(), f.VerificationID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.writeKindError(w, r, model.Errorf(model.KindInvalidInput, "feedback", "unknown verification %q", f.VerificationID))
				return
			}
			s.writeKindError(w, r, model.E(model.KindPersistenceFailure, "feedback", err))
			return
		}
	}

	if err := s.store.SaveFeedback(r.Context(), &f); err != nil {
		s.writeKindError(w, r, model.E(model.KindPersistenceFailure, "feedback", err))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"feedback": f})
}

func validateFeedback(f model.Feedback) error {
	if !f.Type.Valid() {
		return fmt.Errorf("unknown feedback type %q", f.Type)
	}
	if n := utf8.RuneCountInString(f.Subject); n < 5 || n > 200 {
		return fmt.Errorf("subject must be 5-200 characters, got %d", n)
	}
	if n := utf8.RuneCountInString(f.Message); n < 10 || n > 2000 {
		return fmt.Errorf("message must be 10-2000 characters, got %d", n)
	}
	if f.Rating != nil && (*f.Rating < 0 || *f.Rating > 5) {
		return fmt.Errorf("rating must be 0-5")
	}
	return nil
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context(), "")
	if err != nil {
		s.writeKindError(w, r, model.E(model.KindPersistenceFailure, "stats", err))
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalVerifications: st.Total,
		VerifiedTrue:       st.True,
		DetectedFake:       st.False,
		Misleading:         st.Misleading,
		Unverified:         st.Unverified,
		AccuracyRate:       st.AccuracyRate,
		FakePercentage:     st.FakePercentage,
	})
}
