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

const ollamaDefaultHost = "http://localhost:11434"

// OllamaProvider implements Provider against a local Ollama server's /api/chat endpoint.
type OllamaProvider struct {
	host        string
	client      *http.Client
	retryConfig RetryConfig
}

func NewOllamaProvider(host string) *OllamaProvider {
	if host == "" {
		host = ollamaDefaultHost
	}
	return &OllamaProvider{
		host:        strings.TrimRight(host, "/"),
		client:      &http.Client{Timeout: 300 * time.Second},
		retryConfig: DefaultRetryConfig(),
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	body := p.buildRequestBody(req)

	return RetryDo(ctx, p.retryConfig, func() (*ChatResponse, error) {
		respBody, err := p.doRequest(ctx, body)
		if err != nil {
			return nil, err
		}
		defer respBody.Close()

		var resp ollamaChatResponse
		if err := json.NewDecoder(respBody).Decode(&resp); err != nil {
			return nil, fmt.Errorf("ollama: decode response: %w", err)
		}

		return p.parseResponse(&resp), nil
	})
}

func (p *OllamaProvider) buildRequestBody(req ChatRequest) map[string]interface{} {
	msgs := make([]map[string]interface{}, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, map[string]interface{}{
			"role":    m.Role,
			"content": m.Content,
		})
	}

	options := map[string]interface{}{}
	if req.Options.MaxOutputTokens > 0 {
		options["num_predict"] = req.Options.MaxOutputTokens
	}
	if len(req.Options.StopSequences) > 0 {
		options["stop"] = req.Options.StopSequences
	}

	body := map[string]interface{}{
		"model":    req.Model,
		"messages": msgs,
		"stream":   false,
	}
	if len(options) > 0 {
		body["options"] = options
	}
	return body
}

func (p *OllamaProvider) doRequest(ctx context.Context, body interface{}) (io.ReadCloser, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/chat", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status: resp.StatusCode,
			Body:   fmt.Sprintf("ollama: %s", string(respBody)),
		}
	}

	return resp.Body, nil
}

func (p *OllamaProvider) parseResponse(resp *ollamaChatResponse) *ChatResponse {
	result := &ChatResponse{
		Content:      resp.Message.Content,
		FinishReason: "stop",
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
		},
	}
	if resp.DoneReason == "length" {
		result.FinishReason = "length"
	}
	return result
}

// --- Ollama API types (internal) ---

type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"done_reason,omitempty"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}
