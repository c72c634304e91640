package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const openAIDefaultBase = "https://api.openai.com/v1"

// OpenAIProvider implements Provider for the OpenAI Chat Completions API
// and compatible endpoints.
type OpenAIProvider struct {
	name        string
	apiKey      string
	apiBase     string
	chatPath    string // defaults to "/chat/completions"
	client      *http.Client
	retryConfig RetryConfig
}

func NewOpenAIProvider(name, apiKey, apiBase string) *OpenAIProvider {
	if apiBase == "" {
		apiBase = openAIDefaultBase
	}
	if name == "" {
		name = "openai"
	}
	return &OpenAIProvider{
		name:        name,
		apiKey:      apiKey,
		apiBase:     strings.TrimRight(apiBase, "/"),
		chatPath:    "/chat/completions",
		client:      &http.Client{Timeout: 120 * time.Second},
		retryConfig: DefaultRetryConfig(),
	}
}

// WithRetryConfig replaces the transport retry policy.
func (p *OpenAIProvider) WithRetryConfig(cfg RetryConfig) *OpenAIProvider {
	p.retryConfig = cfg
	return p
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.buildRequestBody(req)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var oaiResp openAIResponse
		if err := json.NewDecoder(respBody).Decode(&oaiResp); err != nil {
			return nil, fmt.Errorf("%s: decode response: %w", p.name, err)
		}

		return p.parseResponse(&oaiResp)
	})
}

func (p *OpenAIProvider) buildRequestBody(req ChatRequest) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	body := map[string]interface{}{
		"model":    req.Model,
		"messages": msgs,
	}
	if req.Options.MaxOutputTokens > 0 {
		body["max_tokens"] = req.Options.MaxOutputTokens
	}
	if len(req.Options.StopSequences) > 0 {
		body["stop"] = req.Options.StopSequences
	}
	return body
}

func (p *OpenAIProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%s: marshal request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiBase+p.chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", p.name, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       fmt.Sprintf("%s: %s", p.name, string(respBody)),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}

	return resp.Body, nil
}

func (p *OpenAIProvider) parseResponse(resp *openAIResponse) (*ChatResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s: %w", p.name, ErrNoContent)
	}

	choice := resp.Choices[0]
	result := &ChatResponse{
		Content:      choice.Message.Content,
		FinishReason: choice.FinishReason,
	}
	if resp.Usage != nil {
		result.Usage = Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		}
	}
	return result, nil
}

// --- OpenAI API types (internal) ---

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage,omitempty"`
}
