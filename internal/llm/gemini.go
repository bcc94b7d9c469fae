package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/thinkdifferentdot/maybe/internal/config"
)

// geminiRequest is one generate call with a JSON response schema.
type geminiRequest struct {
	Schema      *genai.Schema
	Model       string
	System      string
	User        string
	Temperature float32
	MaxTokens   int32
}

// geminiBackend performs a generate call. The SDK implementation is
// swapped for a fake in tests.
type geminiBackend interface {
	generate(ctx context.Context, req geminiRequest) (*genai.GenerateContentResponse, error)
}

// sdkBackend calls the Gemini API through the genai SDK.
type sdkBackend struct {
	apiKey  string
	timeout time.Duration
}

func (b *sdkBackend) generate(ctx context.Context, req geminiRequest) (*genai.GenerateContentResponse, error) {
	if b.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.timeout)
		defer cancel()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(b.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer func() { _ = client.Close() }()

	model := client.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)
	if req.MaxTokens > 0 {
		model.SetMaxOutputTokens(req.MaxTokens)
	}
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = req.Schema

	return model.GenerateContent(ctx, genai.Text(req.User))
}

// geminiClient adapts the shared prompt to a schema-constrained Gemini call.
type geminiClient struct {
	backend     geminiBackend
	model       string
	temperature float32
	maxTokens   int32
}

// newGeminiProvider creates the Gemini adapter.
func newGeminiProvider(apiKey string, llm config.LLMSettings, opts gatewayOptions) (*gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	return newGeminiProviderWithBackend(&sdkBackend{apiKey: apiKey, timeout: llm.Timeout}, llm, opts), nil
}

func newGeminiProviderWithBackend(backend geminiBackend, llm config.LLMSettings, opts gatewayOptions) *gateway {
	client := &geminiClient{
		backend:     backend,
		model:       llm.Gemini.Model,
		temperature: float32(llm.Temperature),
		maxTokens:   int32(llm.MaxTokens), //nolint:gosec // bounded by config validation
	}
	return newGateway(config.ProviderGemini, llm.Gemini.Model, closingJSONObject, client, llm, opts)
}

// categorizationSchema constrains ids and names to the batch being categorized.
func categorizationSchema(p prompt) *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"categorizations": {
				Type:        genai.TypeArray,
				Description: "Categorizations for each transaction",
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"transaction_id": {
							Type:        genai.TypeString,
							Description: "The ID of the transaction being categorized",
							Enum:        p.TransactionIDs,
						},
						"category_name": {
							Type:        genai.TypeString,
							Description: "The matched category name, or null if uncertain",
							Enum:        p.CategoryNames,
							Nullable:    true,
						},
						"confidence": {
							Type:        genai.TypeNumber,
							Description: "Confidence between 0 and 1",
						},
					},
					Required: []string{"transaction_id", "category_name"},
				},
			},
		},
		Required: []string{"categorizations"},
	}
}

func (c *geminiClient) complete(ctx context.Context, p prompt) (completion, error) {
	resp, err := c.backend.generate(ctx, geminiRequest{
		Model:       c.model,
		System:      p.System,
		User:        p.User,
		Schema:      categorizationSchema(p),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return completion{}, geminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return completion{}, malformed(config.ProviderGemini, fmt.Errorf("no candidates returned"))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return completion{}, malformed(config.ProviderGemini, fmt.Errorf("no text content in response"))
	}

	out := completion{text: b.String()}
	if resp.UsageMetadata != nil {
		out.promptTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.completionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// geminiError maps SDK failures onto the provider error taxonomy.
func geminiError(err error) *ProviderError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		perr := statusError(config.ProviderGemini, apiErr.Code, apiErr.Message)
		perr.Err = err
		return perr
	}

	var blocked *genai.BlockedError
	if errors.As(err, &blocked) {
		return malformed(config.ProviderGemini, err)
	}

	return transportError(config.ProviderGemini, err)
}
