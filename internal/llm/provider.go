// Package llm calls the reasoning engine and enforces the structured
// verdict contract on whatever comes back.
package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/util"
)

// Provider defines the interface for reasoning engine backends
type Provider interface {
	// Name returns the provider name
	Name() string

	// Model returns the configured model identifier
	Model() string

	// Analyze sends one request and forces a call to req.Tool
	Analyze(ctx context.Context, req Request) (*ToolCall, error)
}

// Request is a fully assembled engine request
type Request struct {
	// System is the rendered decision policy
	System string

	// Parts is the user turn: text blocks and at most one image
	Parts []Part

	// Tool is the only function the engine may call
	Tool ToolSchema

	// Allowed is the STRICT allowlist of URLs the engine can cite
	Allowed []string
}

// Part is one element of the user turn
type Part struct {
	Text  string
	Image *model.Blob
}

// Text joins the text parts of a request
func (r Request) Text() string {
	var texts []string
	for _, p := range r.Parts {
		if p.Text != "" {
			texts = append(texts, p.Text)
		}
	}
	return strings.Join(texts, "\n\n")
}

// Image returns the first image part, if any
func (r Request) Image() *model.Blob {
	for _, p := range r.Parts {
		if p.Image != nil {
			return p.Image
		}
	}
	return nil
}

// ToolSchema describes the function the engine must call
type ToolSchema struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema
}

// ToolCall is the raw function call returned by the engine
type ToolCall struct {
	Name       string
	Arguments  json.RawMessage
	Model      string
	TokensUsed int
}

// Config holds reasoning engine configuration
type Config struct {
	// Provider name: "openai", "gemini", "anthropic", "ollama"
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints
	BaseURL string

	// Timeout for a single engine call
	Timeout time.Duration

	// MaxTokens for response generation
	MaxTokens int

	Temperature float64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel converts the application config
func ConfigFromModel(llmCfg model.LLMConfig, httpCfg model.HTTPConfig) Config {
	return Config{
		Provider:    llmCfg.Provider,
		Model:       llmCfg.Model,
		APIKey:      llmCfg.APIKey,
		BaseURL:     llmCfg.BaseURL,
		Timeout:     llmCfg.Timeout,
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
		HTTPProxy:   httpCfg.HTTPProxy,
		HTTPSProxy:  httpCfg.HTTPSProxy,
		NoProxy:     httpCfg.NoProxy,
	}
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return c.Timeout
}

func (c Config) maxTokens() int {
	if c.MaxTokens <= 0 {
		return 1500
	}
	return c.MaxTokens
}

// httpClient has no client-level timeout; calls are bounded by context
func (c Config) httpClient() *http.Client {
	return util.NewHTTPClient(model.HTTPConfig{
		HTTPProxy:  c.HTTPProxy,
		HTTPSProxy: c.HTTPSProxy,
		NoProxy:    c.NoProxy,
	}, 0)
}
