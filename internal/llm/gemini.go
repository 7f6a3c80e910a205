package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini models
type GeminiProvider struct {
	client *genai.Client
	config Config
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(ctx context.Context, config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.httpClient(),
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &GeminiProvider{client: client, config: config}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the configured model
func (p *GeminiProvider) Model() string {
	return p.config.Model
}

// Analyze calls GenerateContent with function calling mode ANY
func (p *GeminiProvider) Analyze(ctx context.Context, req Request) (*ToolCall, error) {
	ctx, cancel := context.WithTimeout(ctx, p.config.timeout())
	defer cancel()

	var parts []*genai.Part
	for _, part := range req.Parts {
		switch {
		case part.Image != nil:
			parts = append(parts, genai.NewPartFromBytes(part.Image.Data, part.Image.MimeType))
		case part.Text != "":
			parts = append(parts, genai.NewPartFromText(part.Text))
		}
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(req.System, genai.RoleUser),
		Temperature:       genai.Ptr(float32(p.config.Temperature)),
		MaxOutputTokens:   int32(p.config.maxTokens()),
		Tools: []*genai.Tool{{
			FunctionDeclarations: []*genai.FunctionDeclaration{{
				Name:                 req.Tool.Name,
				Description:          req.Tool.Description,
				ParametersJsonSchema: req.Tool.Parameters,
			}},
		}},
		ToolConfig: &genai.ToolConfig{
			FunctionCallingConfig: &genai.FunctionCallingConfig{
				Mode:                 genai.FunctionCallingConfigModeAny,
				AllowedFunctionNames: []string{req.Tool.Name},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, genConfig)
	if err != nil {
		return nil, classifyGeminiError(err)
	}

	calls := resp.FunctionCalls()
	if len(calls) == 0 {
		return nil, contractError(p.Name(), "response contains no function call")
	}
	args, err := json.Marshal(calls[0].Args)
	if err != nil {
		return nil, contractError(p.Name(), "encode function arguments: %v", err)
	}

	call := &ToolCall{Name: calls[0].Name, Arguments: args, Model: resp.ModelVersion}
	if resp.UsageMetadata != nil {
		call.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return call, nil
}

func classifyGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return upstreamError("gemini", apiErr.Code, false, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return upstreamError("gemini", apiErrPtr.Code, false, err)
	}
	return upstreamError("gemini", 0, false, err)
}
