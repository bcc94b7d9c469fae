package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/thinkdifferentdot/maybe/internal/config"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	categorizeToolName      = "categorize_transactions"
)

// anthropicClient talks to the messages endpoint and asks for a tool call.
type anthropicClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// newAnthropicProvider creates the Anthropic adapter.
func newAnthropicProvider(apiKey string, llm config.LLMSettings, httpClient *http.Client, opts gatewayOptions) (*gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	baseURL := strings.TrimRight(llm.Anthropic.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	maxTokens := llm.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	client := &anthropicClient{
		httpClient:  httpClient,
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       llm.Anthropic.Model,
		temperature: llm.Temperature,
		maxTokens:   maxTokens,
	}
	return newGateway(config.ProviderAnthropic, llm.Anthropic.Model, closingTool, client, llm, opts), nil
}

type anthropicTool struct {
	InputSchema map[string]any `json:"input_schema"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
}

type anthropicRequest struct {
	ToolChoice  map[string]string `json:"tool_choice,omitempty"`
	Model       string            `json:"model"`
	System      string            `json:"system"`
	Messages    []openAIMessage   `json:"messages"`
	Tools       []anthropicTool   `json:"tools"`
	Temperature float64           `json:"temperature"`
	MaxTokens   int               `json:"max_tokens"`
}

// anthropicResponse represents the Anthropic messages response structure.
type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Input json.RawMessage `json:"input,omitempty"`
		Type  string          `json:"type"`
		Text  string          `json:"text,omitempty"`
		Name  string          `json:"name,omitempty"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// categorizeTool constrains ids and names to the batch being categorized.
func categorizeTool(p prompt) anthropicTool {
	names := make([]any, 0, len(p.CategoryNames)+1)
	for _, n := range p.CategoryNames {
		names = append(names, n)
	}
	names = append(names, "null")

	return anthropicTool{
		Name:        categorizeToolName,
		Description: "Categorize financial transactions into the user's categories",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"categorizations": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"transaction_id": map[string]any{
								"type":        "string",
								"enum":        p.TransactionIDs,
								"description": "The ID of the transaction being categorized",
							},
							"category_name": map[string]any{
								"type":        "string",
								"enum":        names,
								"description": `The matched category name, or "null" if no match`,
							},
							"confidence": map[string]any{
								"type":        "number",
								"description": "Confidence between 0 and 1",
							},
						},
						"required":             []string{"transaction_id", "category_name"},
						"additionalProperties": false,
					},
				},
			},
			"required":             []string{"categorizations"},
			"additionalProperties": false,
		},
	}
}

func (c *anthropicClient) complete(ctx context.Context, p prompt) (completion, error) {
	body, err := json.Marshal(anthropicRequest{
		Model:       c.model,
		System:      p.System,
		Messages:    []openAIMessage{{Role: "user", Content: p.User}},
		Tools:       []anthropicTool{categorizeTool(p)},
		ToolChoice:  map[string]string{"type": "tool", "name": categorizeToolName},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion{}, transportError(config.ProviderAnthropic, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion{}, transportError(config.ProviderAnthropic, err)
	}

	if resp.StatusCode != http.StatusOK {
		return completion{}, statusError(config.ProviderAnthropic, resp.StatusCode, string(raw))
	}

	var response anthropicResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return completion{}, malformed(config.ProviderAnthropic, fmt.Errorf("failed to parse response: %w", err))
	}

	out := completion{
		promptTokens:     response.Usage.InputTokens,
		completionTokens: response.Usage.OutputTokens,
	}

	// Prefer the tool call; fall back to any text the model wrote instead.
	var texts []string
	for _, block := range response.Content {
		switch block.Type {
		case "tool_use":
			if block.Name == categorizeToolName && len(block.Input) > 0 {
				out.structured = block.Input
				return out, nil
			}
		case "text":
			texts = append(texts, block.Text)
		}
	}

	if len(texts) == 0 {
		return completion{}, malformed(config.ProviderAnthropic, fmt.Errorf("no tool_use or text content in response"))
	}
	out.text = strings.Join(texts, "\n")
	return out, nil
}
