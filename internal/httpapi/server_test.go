package httpapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/credence/internal/identity"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/store"
	"github.com/ppiankov/credence/internal/verify"
)

type fakeVerifier struct {
	err    error
	cached bool
	got    model.Submission
	userID string
	calls  int
}

func (f *fakeVerifier) Verify(_ context.Context, sub model.Submission, userID string) (*verify.Result, error) {
	f.calls++
	f.got, f.userID = sub, userID
	if f.err != nil {
		return nil, f.err
	}
	v := &model.Verdict{
		ID: "v-1", UserID: userID, ContentType: model.ContentText, ContentText: sub.Text,
		Label: model.LabelUnverified, Confidence: 35, Explanation: "Nothing found.",
		Sources: []string{}, RedFlags: []string{}, PositiveIndicators: []string{},
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	return &verify.Result{Verdict: v, Cached: f.cached}, nil
}

func newTestServer(t *testing.T, v Verifier, r identity.Resolver) (*httptest.Server, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	srv := New(v, st, r, model.DefaultConfig().Server, nil)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, st
}

func postJSON(t *testing.T, url string, body any, header http.Header) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestVerify_Success(t *testing.T) {
	fv := &fakeVerifier{cached: true}
	ts, _ := newTestServer(t, fv, nil)

	resp := postJSON(t, ts.URL+"/api/verify", map[string]any{"contentText": "The moon is made of cheese"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Verification model.Verdict  `json:"verification"`
		Analysis     model.Analysis `json:"analysis"`
		Cached       bool           `json:"cached"`
	}
	decode(t, resp, &body)
	assert.Equal(t, "v-1", body.Verification.ID)
	assert.Equal(t, model.LabelUnverified, body.Verification.Label)
	assert.Equal(t, 35, body.Analysis.Confidence)
	assert.Equal(t, "Nothing found.", body.Analysis.Explanation)
	assert.True(t, body.Cached)
	assert.Equal(t, "The moon is made of cheese", fv.got.Text)
	assert.Equal(t, "", fv.userID)
}

func TestVerify_ErrorMapping(t *testing.T) {
	tests := []struct {
		kind   model.Kind
		status int
		msg    string
	}{
		{model.KindInvalidInput, http.StatusBadRequest, msgInvalidInput},
		{model.KindUpstreamRateLimited, http.StatusTooManyRequests, msgRateLimited},
		{model.KindUpstreamQuotaExhausted, http.StatusPaymentRequired, msgQuotaExhausted},
		{model.KindModalityUnsupported, http.StatusUnprocessableEntity, msgUnsupported},
		{model.KindUpstreamUnavailable, http.StatusInternalServerError, msgUnableToProcess},
		{model.KindContractViolation, http.StatusInternalServerError, msgUnableToProcess},
		{model.KindPersistenceFailure, http.StatusInternalServerError, msgUnableToProcess},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			secret := "pq: password authentication failed for user credence"
			ts, _ := newTestServer(t, &fakeVerifier{err: model.E(tt.kind, "verify", errors.New(secret))}, nil)

			resp := postJSON(t, ts.URL+"/api/verify", map[string]any{"contentText": "claim"}, nil)
			assert.Equal(t, tt.status, resp.StatusCode)

			var body errorResponse
			decode(t, resp, &body)
			assert.Equal(t, tt.msg, body.Error)
			assert.NotContains(t, body.Error, "password")
		})
	}
}

func TestVerify_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `{"contentText":`},
		{"wrong type", `{"contentText": 42}`},
		{"unknown content type", `{"contentText":"x","contentType":"hologram"}`},
		{"bad image data", `{"imageData":"data:image/png;base64,!!!"}`},
		{"image not base64 uri", `{"imageData":"data:image/png,rawbytes"}`},
		{"image without mime", `{"imageData":"aGVsbG8="}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := &fakeVerifier{}
			ts, _ := newTestServer(t, fv, nil)
			resp, err := http.Post(ts.URL+"/api/verify", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Equal(t, 0, fv.calls)
		})
	}
}

func TestVerify_DecodesMedia(t *testing.T) {
	fv := &fakeVerifier{}
	ts, _ := newTestServer(t, fv, nil)

	png := []byte{0x89, 'P', 'N', 'G'}
	resp := postJSON(t, ts.URL+"/api/verify", map[string]any{
		"contentType": "image",
		"imageData":   "data:image/png;base64," + base64.StdEncoding.EncodeToString(png),
		"audioData":   base64.StdEncoding.EncodeToString([]byte("ogg")),
		"videoMetadata": map[string]any{
			"fileName": "clip.mp4", "fileSize": 2048, "fileType": "video/mp4",
		},
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, model.ContentImage, fv.got.Type)
	require.NotNil(t, fv.got.Image)
	assert.Equal(t, png, fv.got.Image.Data)
	assert.Equal(t, "image/png", fv.got.Image.MimeType)
	require.NotNil(t, fv.got.Audio)
	assert.Equal(t, defaultAudioMime, fv.got.Audio.MimeType)
	require.NotNil(t, fv.got.Video)
	assert.Equal(t, int64(2048), fv.got.Video.Size)
}

const testSecret = "s3cret"

func bearer(t *testing.T, subject string) http.Header {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return http.Header{"Authorization": {"Bearer " + token}}
}

func jwtResolver(t *testing.T) identity.Resolver {
	t.Helper()
	r, err := identity.NewJWTResolver(testSecret, "", "")
	require.NoError(t, err)
	return r
}

func get(t *testing.T, url string, header http.Header) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	for k, vs := range header {
		req.Header[k] = vs
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestVerify_Identity(t *testing.T) {
	r := jwtResolver(t)

	fv := &fakeVerifier{}
	ts, _ := newTestServer(t, fv, r)

	resp := postJSON(t, ts.URL+"/api/verify", map[string]any{"contentText": "x"}, bearer(t, "user-7"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-7", fv.userID)

	// An unusable credential proceeds anonymously
	resp = postJSON(t, ts.URL+"/api/verify", map[string]any{"contentText": "x"}, http.Header{"Authorization": {"Bearer garbage"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", fv.userID)
}

func TestVerify_BodyLimit(t *testing.T) {
	fv := &fakeVerifier{}
	st := store.NewMemoryStore()
	cfg := model.DefaultConfig().Server
	cfg.MaxBodyBytes = 128
	ts := httptest.NewServer(New(fv, st, nil, cfg, nil).Routes())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/verify", map[string]any{"contentText": strings.Repeat("a", 1000)}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, 0, fv.calls)
}

func saveVerdict(t *testing.T, st store.Store, userID string) *model.Verdict {
	t.Helper()
	v := &model.Verdict{
		UserID: userID, ContentType: model.ContentText, ContentText: "c",
		Label: model.LabelFalse, Confidence: 10, Explanation: "Debunked.",
		Sources: []string{"https://www.snopes.com/x"},
	}
	require.NoError(t, st.Save(context.Background(), v))
	return v
}

func TestVerifications(t *testing.T) {
	ts, st := newTestServer(t, &fakeVerifier{}, jwtResolver(t))
	auth := bearer(t, "user-7")
	first := saveVerdict(t, st, "user-7")
	second := saveVerdict(t, st, "user-7")
	saveVerdict(t, st, "user-8")

	resp := get(t, ts.URL+"/api/verifications?limit=1", auth)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list struct {
		Verifications []model.Verdict `json:"verifications"`
	}
	decode(t, resp, &list)
	require.Len(t, list.Verifications, 1)
	assert.Equal(t, second.ID, list.Verifications[0].ID)

	resp = get(t, ts.URL+"/api/verifications/"+first.ID, auth)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = get(t, ts.URL+"/api/verifications/missing", auth)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = get(t, ts.URL+"/api/verifications?limit=abc", auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerifications_ScopedToCaller(t *testing.T) {
	ts, st := newTestServer(t, &fakeVerifier{}, jwtResolver(t))
	alice := saveVerdict(t, st, "alice")
	anon := saveVerdict(t, st, "")

	listIDs := func(header http.Header) []string {
		resp := get(t, ts.URL+"/api/verifications", header)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var list struct {
			Verifications []model.Verdict `json:"verifications"`
		}
		decode(t, resp, &list)
		ids := make([]string, 0, len(list.Verifications))
		for _, v := range list.Verifications {
			ids = append(ids, v.ID)
		}
		return ids
	}

	assert.Empty(t, listIDs(nil), "anonymous callers must not see any history")
	assert.Empty(t, listIDs(http.Header{"Authorization": {"Bearer garbage"}}))
	assert.Equal(t, []string{alice.ID}, listIDs(bearer(t, "alice")))
	assert.Empty(t, listIDs(bearer(t, "bob")))

	tests := []struct {
		name   string
		id     string
		header http.Header
		want   int
	}{
		{"owner", alice.ID, bearer(t, "alice"), http.StatusOK},
		{"anonymous caller", alice.ID, nil, http.StatusNotFound},
		{"other user", alice.ID, bearer(t, "bob"), http.StatusNotFound},
		{"anonymous verdict", anon.ID, nil, http.StatusOK},
		{"anonymous verdict with identity", anon.ID, bearer(t, "bob"), http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := get(t, ts.URL+"/api/verifications/"+tt.id, tt.header)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestFeedback(t *testing.T) {
	ts, st := newTestServer(t, &fakeVerifier{}, nil)
	v := saveVerdict(t, st, "")

	resp := postJSON(t, ts.URL+"/api/feedback", map[string]any{
		"verificationId": v.ID,
		"feedbackType":   "accuracy",
		"subject":        "Wrong <b>verdict</b>",
		"message":        "<script>alert(1)</script>The rating is out of date & wrong.",
		"rating":         2,
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	saved := st.Feedback()
	require.Len(t, saved, 1)
	assert.Equal(t, "Wrong verdict", saved[0].Subject)
	assert.Equal(t, "The rating is out of date & wrong.", saved[0].Message)
	assert.Equal(t, model.FeedbackPending, saved[0].Status)
	assert.Equal(t, v.ID, saved[0].VerificationID)
}

func TestFeedback_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body map[string]any
	}{
		{"unknown verification", map[string]any{"verificationId": "nope", "subject": "Hello there", "message": "Long enough message"}},
		{"short subject", map[string]any{"subject": "Hi", "message": "Long enough message"}},
		{"short message", map[string]any{"subject": "Hello there", "message": "short"}},
		{"markup only", map[string]any{"subject": "<b></b><i></i>", "message": "Long enough message"}},
		{"bad type", map[string]any{"feedbackType": "rant", "subject": "Hello there", "message": "Long enough message"}},
		{"bad rating", map[string]any{"subject": "Hello there", "message": "Long enough message", "rating": 9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, st := newTestServer(t, &fakeVerifier{}, nil)
			resp := postJSON(t, ts.URL+"/api/feedback", tt.body, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			assert.Empty(t, st.Feedback())
		})
	}
}

func TestStats(t *testing.T) {
	ts, st := newTestServer(t, &fakeVerifier{}, nil)
	saveVerdict(t, st, "a")
	saveVerdict(t, st, "b")

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var body statsResponse
	decode(t, resp, &body)
	assert.Equal(t, statsResponse{TotalVerifications: 2, DetectedFake: 2, FakePercentage: 100}, body)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t, &fakeVerifier{}, nil)

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/verify", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), "authorization")
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeVerifier{}, nil)
	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDecodeDataURI(t *testing.T) {
	blob, err := decodeDataURI("data:IMAGE/JPEG;base64,"+base64.StdEncoding.EncodeToString([]byte("jpg")), "")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", blob.MimeType)
	assert.Equal(t, []byte("jpg"), blob.Data)

	_, err = decodeDataURI("data:image/png;base64", "")
	assert.Error(t, err)
}
