package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/credence/internal/model"
)

func TestGeminiProvider_Analyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-test:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		toolConfig, _ := body["toolConfig"].(map[string]any)
		fcc, _ := toolConfig["functionCallingConfig"].(map[string]any)
		if fcc["mode"] != "ANY" {
			t.Errorf("function calling mode = %v, want ANY", fcc["mode"])
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{
				"content": {"role": "model", "parts": [{"functionCall": {"name": "verify_news", "args": ` + validArgs + `}}]},
				"finishReason": "STOP"
			}],
			"usageMetadata": {"totalTokenCount": 42},
			"modelVersion": "gemini-test"
		}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(context.Background(), Config{
		APIKey:  "test-key",
		BaseURL: server.URL + "/",
		Model:   "gemini-test",
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	call, err := provider.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if call.Name != ToolVerifyNews || call.TokensUsed != 42 {
		t.Errorf("call = %+v", call)
	}

	var args map[string]any
	if err := json.Unmarshal(call.Arguments, &args); err != nil || args["verdict"] != "false" {
		t.Errorf("arguments = %s", call.Arguments)
	}
}

func TestGeminiProvider_Analyze_RateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	provider, err := NewGeminiProvider(context.Background(), Config{APIKey: "test-key", BaseURL: server.URL + "/", Model: "gemini-test"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	_, err = provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindUpstreamRateLimited {
		t.Errorf("kind = %v (err: %v)", model.KindOf(err), err)
	}
}

func TestNewGeminiProvider_RequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}
