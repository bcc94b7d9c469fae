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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// openAIClient talks to the chat completions endpoint in JSON mode.
type openAIClient struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
}

// newOpenAIProvider creates the OpenAI adapter.
func newOpenAIProvider(apiKey string, llm config.LLMSettings, httpClient *http.Client, opts gatewayOptions) (*gateway, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	baseURL := strings.TrimRight(llm.OpenAI.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}

	client := &openAIClient{
		httpClient:  httpClient,
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       llm.OpenAI.Model,
		temperature: llm.Temperature,
		maxTokens:   llm.MaxTokens,
	}
	return newGateway(config.ProviderOpenAI, llm.OpenAI.Model, closingJSONObject, client, llm, opts), nil
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	ResponseFormat map[string]string `json:"response_format"`
	Model          string            `json:"model"`
	Messages       []openAIMessage   `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
}

// openAIResponse represents the OpenAI chat completion response structure.
type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
		Index        int    `json:"index"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (c *openAIClient) complete(ctx context.Context, p prompt) (completion, error) {
	body, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{
			{Role: "system", Content: p.System},
			{Role: "user", Content: p.User},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
		Temperature:    c.temperature,
		MaxTokens:      c.maxTokens,
	})
	if err != nil {
		return completion{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return completion{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return completion{}, transportError(config.ProviderOpenAI, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return completion{}, transportError(config.ProviderOpenAI, err)
	}

	if resp.StatusCode != http.StatusOK {
		return completion{}, statusError(config.ProviderOpenAI, resp.StatusCode, string(raw))
	}

	var response openAIResponse
	if err := json.Unmarshal(raw, &response); err != nil {
		return completion{}, malformed(config.ProviderOpenAI, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(response.Choices) == 0 {
		return completion{}, malformed(config.ProviderOpenAI, fmt.Errorf("no completion choices returned"))
	}

	return completion{
		text:             response.Choices[0].Message.Content,
		promptTokens:     response.Usage.PromptTokens,
		completionTokens: response.Usage.CompletionTokens,
	}, nil
}
