package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultModel    = "gpt-4o-mini"
	defaultTimeout  = 60 * time.Second
)

// Generator abstracts the model call so the analysis pipeline is testable
// with fakes.
type Generator interface {
	GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Model() string
}

// HTTPDoer allows tests to fake HTTP transport.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls OpenAI Chat Completions with strict JSON schema output.
type Client struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient HTTPDoer
}

// NewClient creates a client with sane defaults. The endpoint is derived
// from baseURL when set, so tests can point at an httptest server.
func NewClient(apiKey, model, baseURL string, httpClient HTTPDoer) *Client {
	if strings.TrimSpace(model) == "" {
		model = defaultModel
	}
	endpoint := defaultEndpoint
	if trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/"); trimmed != "" {
		endpoint = trimmed + "/v1/chat/completions"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		endpoint:   endpoint,
		httpClient: httpClient,
	}
}

func (c *Client) Model() string {
	return c.model
}

// GenerateAnalysis requests strict structured output for one sampled
// transcript and returns the raw JSON content of the first choice. The
// caller owns parsing and contract validation; nothing here is trusted.
func (c *Client) GenerateAnalysis(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", errors.New("OPENAI_API_KEY is empty")
	}

	payload, err := json.Marshal(chatCompletionsRequest{
		Model:       c.model,
		Temperature: 0.1,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: responseJSONSchema{
				Name:   sessionAnalysisSchemaName,
				Strict: true,
				Schema: sessionAnalysisSchema(),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("read openai response: %w", err)
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		var apiErr openAIErrorEnvelope
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("openai status %d: %s", response.StatusCode, apiErr.Error.Message)
		}
		return "", fmt.Errorf("openai status %d: %s", response.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatCompletionsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if parsed.Error.Message != "" {
		return "", fmt.Errorf("openai error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}

	message := parsed.Choices[0].Message
	if strings.TrimSpace(message.Refusal) != "" {
		return "", fmt.Errorf("openai refusal: %s", strings.TrimSpace(message.Refusal))
	}

	content, err := parseMessageContent(message.Content)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(content) == "" {
		return "", errors.New("openai returned empty content")
	}
	return content, nil
}

func parseMessageContent(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var asParts []responseContentPart
	if err := json.Unmarshal(raw, &asParts); err == nil {
		var builder strings.Builder
		for _, part := range asParts {
			if part.Type == "text" {
				builder.WriteString(part.Text)
			}
		}
		return builder.String(), nil
	}

	return "", fmt.Errorf("unsupported openai message content format: %s", string(raw))
}

type chatCompletionsRequest struct {
	Model          string         `json:"model"`
	Temperature    float64        `json:"temperature"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string             `json:"type"`
	JSONSchema responseJSONSchema `json:"json_schema"`
}

type responseJSONSchema struct {
	Name   string         `json:"name"`
	Strict bool           `json:"strict"`
	Schema map[string]any `json:"schema"`
}

type chatCompletionsResponse struct {
	Choices []chatChoice        `json:"choices"`
	Error   openAIErrorResponse `json:"error"`
}

type chatChoice struct {
	Message chatMessageResponse `json:"message"`
}

type chatMessageResponse struct {
	Content json.RawMessage `json:"content"`
	Refusal string          `json:"refusal"`
}

type responseContentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type openAIErrorEnvelope struct {
	Error openAIErrorResponse `json:"error"`
}

type openAIErrorResponse struct {
	Message string `json:"message"`
}
