package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ppiankov/credence/internal/model"
)

func TestOllamaProvider_Analyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("Expected path /api/chat, got %s", r.URL.Path)
		}

		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Stream {
			t.Error("Expected stream=false")
		}
		if req.Format["type"] != "object" {
			t.Errorf("Expected JSON schema format, got %v", req.Format)
		}
		if len(req.Messages) != 2 || len(req.Messages[1].Images) != 1 {
			t.Errorf("Expected system+user messages with one image, got %+v", req.Messages)
		}

		resp := ollamaResponse{
			Model:           "llama3.1:8b",
			Message:         ollamaMessage{Role: "assistant", Content: validArgs},
			Done:            true,
			PromptEvalCount: 20,
			EvalCount:       30,
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOllamaProvider(Config{BaseURL: server.URL, Model: "llama3.1:8b"})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	req := testRequest()
	req.Parts = append(req.Parts, Part{Image: &model.Blob{Data: []byte("img"), MimeType: "image/jpeg"}})
	call, err := provider.Analyze(context.Background(), req)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if call.Name != ToolVerifyNews || string(call.Arguments) != validArgs || call.TokensUsed != 50 {
		t.Errorf("call = %+v", call)
	}
}

func TestOllamaProvider_Analyze_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaError{Error: "model not found"})
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "missing"})
	_, err := provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("kind = %v (err: %v)", model.KindOf(err), err)
	}
}

func TestOllamaProvider_NoModel(t *testing.T) {
	if _, err := NewOllamaProvider(Config{}); err == nil {
		t.Error("Expected error when model is not specified")
	}
}
