package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/credence/internal/model"
)

func testRequest() Request {
	return Request{
		System:  "policy",
		Parts:   []Part{{Text: "Analyze this claim"}},
		Tool:    VerdictTool(model.ContentText),
		Allowed: []string{"https://example.com/1"},
	}
}

const validArgs = `{"verdict":"false","confidence":12.4,"explanation":"Debunked by fact-checkers.","sources":["https://example.com/1"],"redFlags":["no source"],"positiveIndicators":[]}`

func TestOpenAIProvider_Analyze_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		choice, _ := body["tool_choice"].(map[string]any)
		fn, _ := choice["function"].(map[string]any)
		if fn["name"] != ToolVerifyNews {
			t.Errorf("Expected forced tool choice %s, got %v", ToolVerifyNews, body["tool_choice"])
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{{
				Message: openai.ChatCompletionMessage{
					Role: "assistant",
					ToolCalls: []openai.ToolCall{{
						ID:   "call_1",
						Type: openai.ToolTypeFunction,
						Function: openai.FunctionCall{
							Name:      ToolVerifyNews,
							Arguments: validArgs,
						},
					}},
				},
				FinishReason: "tool_calls",
			}},
			Usage: openai.Usage{TotalTokens: 100},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	call, err := provider.Analyze(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if call.Name != ToolVerifyNews {
		t.Errorf("Name = %s", call.Name)
	}
	if string(call.Arguments) != validArgs {
		t.Errorf("Arguments = %s", call.Arguments)
	}
	if call.TokensUsed != 100 {
		t.Errorf("TokensUsed = %d", call.TokensUsed)
	}
}

func TestOpenAIProvider_Analyze_Image(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(raw), "data:image/png;base64,") {
			t.Errorf("request does not carry the image as a data URI")
		}
		_ = json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{
				ToolCalls: []openai.ToolCall{{Function: openai.FunctionCall{Name: ToolVerifyNews, Arguments: validArgs}}},
			}}},
		})
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	req := testRequest()
	req.Parts = append(req.Parts, Part{Image: &model.Blob{Data: []byte{0x89, 'P', 'N', 'G'}, MimeType: "image/png"}})

	if _, err := provider.Analyze(context.Background(), req); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
}

func TestOpenAIProvider_Analyze_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   model.Kind
	}{
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded","type":"requests"}}`, model.KindUpstreamRateLimited},
		{"quota via 429", http.StatusTooManyRequests, `{"error":{"message":"You exceeded your quota","type":"insufficient_quota","code":"insufficient_quota"}}`, model.KindUpstreamQuotaExhausted},
		{"payment required", http.StatusPaymentRequired, `{"error":{"message":"Payment required","type":"billing"}}`, model.KindUpstreamQuotaExhausted},
		{"server error", http.StatusInternalServerError, `{"error":{"message":"Internal server error","type":"server_error"}}`, model.KindUpstreamUnavailable},
		{"no tool call", http.StatusOK, `{"choices":[{"message":{"role":"assistant","content":"It is false."}}]}`, model.KindContractViolation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5 * time.Second})
			_, err := provider.Analyze(context.Background(), testRequest())
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if got := model.KindOf(err); got != tt.want {
				t.Errorf("kind = %v, want %v (err: %v)", got, tt.want, err)
			}
		})
	}
}

func TestOpenAIProvider_Analyze_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer server.Close()

	provider, _ := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := provider.Analyze(context.Background(), testRequest())
	if model.KindOf(err) != model.KindUpstreamUnavailable {
		t.Errorf("kind = %v, want upstream unavailable (err: %v)", model.KindOf(err), err)
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error for missing API key")
	}
}

func TestOpenAITranscriber(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("Expected path /audio/transcriptions, got %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != openai.Whisper1 {
			t.Errorf("model = %q", got)
		}
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file: %v", err)
		}
		if header.Filename != "submission.mp3" {
			t.Errorf("filename = %q", header.Filename)
		}
		_, _ = w.Write([]byte(`{"text":"The minister resigned."}`))
	}))
	defer server.Close()

	tr, err := NewOpenAITranscriber(Config{APIKey: "test-key", BaseURL: server.URL}, "")
	if err != nil {
		t.Fatalf("NewOpenAITranscriber() error: %v", err)
	}
	text, err := tr.Transcribe(context.Background(), model.Blob{Data: []byte("ID3"), MimeType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("Transcribe() error: %v", err)
	}
	if text != "The minister resigned." {
		t.Errorf("text = %q", text)
	}
}
