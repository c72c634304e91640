package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAnthropicChat_FoldsSystemAndLeadingAssistant(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "ak" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") == "" {
			t.Error("missing anthropic-version header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"content":[{"type":"text","text":"hey"},{"type":"text","text":" you"}],"stop_reason":"max_tokens","usage":{"input_tokens":20,"output_tokens":7}}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model: "claude-3-haiku",
		Messages: []Message{
			{Role: RoleSystem, Content: "SYSTEM: rules <END>"},
			{Role: RoleAssistant, Content: "<@bot>: Example response! <END>"},
			{Role: RoleUser, Content: "<@amy>: hi <END>"},
		},
		Options: GenerateOptions{StopSequences: []string{"<END>"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hey you" {
		t.Errorf("Content = %q", resp.Content)
	}
	if resp.FinishReason != "length" {
		t.Errorf("FinishReason = %q, want length", resp.FinishReason)
	}
	if resp.Usage != (Usage{PromptTokens: 20, CompletionTokens: 7}) {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if got["system"] != "SYSTEM: rules <END>\n\n<@bot>: Example response! <END>" {
		t.Errorf("system = %q", got["system"])
	}
	if got["max_tokens"] != float64(anthropicDefaultMaxTokens) {
		t.Errorf("max_tokens = %v", got["max_tokens"])
	}
	msgs, _ := got["messages"].([]interface{})
	if len(msgs) != 1 {
		t.Fatalf("messages = %v", got["messages"])
	}
	if m := msgs[0].(map[string]interface{}); m["role"] != "user" {
		t.Errorf("first turn role = %v, want user", m["role"])
	}
}

func TestAnthropicChat_SystemOnlyMakesNoCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected HTTP call for a system-only transcript")
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak", WithAnthropicBaseURL(srv.URL))
	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "claude-3-haiku",
		Messages: []Message{{Role: RoleSystem, Content: "only instructions"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "" || resp.Usage != (Usage{}) {
		t.Errorf("resp = %+v, want empty", resp)
	}
}

func TestAnthropicChat_NoTextBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"content":[],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	p := NewAnthropicProvider("ak", WithAnthropicBaseURL(srv.URL))
	_, err := p.Chat(context.Background(), ChatRequest{
		Model:    "claude-3-haiku",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}
