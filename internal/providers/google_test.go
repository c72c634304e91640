package providers

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/genai"
)

type fakeGenerator struct {
	calls    int
	model    string
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls++
	f.model = model
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(texts ...string) *genai.GenerateContentResponse {
	parts := make([]*genai.Part, 0, len(texts))
	for _, t := range texts {
		parts = append(parts, &genai.Part{Text: t})
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: genai.RoleModel, Parts: parts},
			FinishReason: genai.FinishReasonStop,
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     40,
			CandidatesTokenCount: 6,
		},
	}
}

func TestGoogleChat_MapsRolesAndConfig(t *testing.T) {
	gen := &fakeGenerator{resp: textResponse("hello", "world")}
	p := &GoogleProvider{models: gen}

	resp, err := p.Chat(context.Background(), ChatRequest{
		Model: "gemini-1.5-flash",
		Messages: []Message{
			{Role: RoleSystem, Content: "SYSTEM: be brief <END>"},
			{Role: RoleAssistant, Content: "<@bot>: Example response! <END>"},
			{Role: RoleUser, Content: "<@amy>: hi <END>"},
		},
		Options: GenerateOptions{MaxOutputTokens: 1000, StopSequences: []string{"<END>"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Content != "hello world" {
		t.Errorf("Content = %q, want parts joined by a space", resp.Content)
	}
	if resp.Usage != (Usage{PromptTokens: 40, CompletionTokens: 6}) {
		t.Errorf("Usage = %+v", resp.Usage)
	}

	if gen.model != "gemini-1.5-flash" {
		t.Errorf("model = %q", gen.model)
	}
	if len(gen.contents) != 2 {
		t.Fatalf("contents = %d, want 2 (system goes to the instruction)", len(gen.contents))
	}
	if gen.contents[0].Role != genai.RoleModel || gen.contents[1].Role != genai.RoleUser {
		t.Errorf("roles = %q, %q", gen.contents[0].Role, gen.contents[1].Role)
	}
	if gen.config.SystemInstruction == nil || gen.config.SystemInstruction.Parts[0].Text != "SYSTEM: be brief <END>" {
		t.Errorf("SystemInstruction = %+v", gen.config.SystemInstruction)
	}
	if gen.config.MaxOutputTokens != 1000 {
		t.Errorf("MaxOutputTokens = %d", gen.config.MaxOutputTokens)
	}
	if len(gen.config.StopSequences) != 1 || gen.config.StopSequences[0] != "<END>" {
		t.Errorf("StopSequences = %v", gen.config.StopSequences)
	}
	for _, s := range gen.config.SafetySettings {
		if s.Threshold != genai.HarmBlockThresholdBlockNone {
			t.Errorf("safety %s threshold = %s", s.Category, s.Threshold)
		}
	}
}

func TestGoogleChat_SystemOnlyMakesNoCall(t *testing.T) {
	gen := &fakeGenerator{}
	p := &GoogleProvider{models: gen}

	resp, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: RoleSystem, Content: "instructions"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gen.calls != 0 {
		t.Errorf("calls = %d, want 0", gen.calls)
	}
	if resp.Content != "" {
		t.Errorf("Content = %q, want empty", resp.Content)
	}
}

func TestGoogleChat_NoUsableParts(t *testing.T) {
	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
	}{
		{"no candidates", &genai.GenerateContentResponse{}},
		{"nil content", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}},
		{"no parts", &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{Content: &genai.Content{}}}}},
		{"empty text", textResponse("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &GoogleProvider{models: &fakeGenerator{resp: tt.resp}}
			_, err := p.Chat(context.Background(), ChatRequest{
				Model:    "gemini-1.5-flash",
				Messages: []Message{{Role: RoleUser, Content: "hi"}},
			})
			if !errors.Is(err, ErrNoContent) {
				t.Fatalf("err = %v, want ErrNoContent", err)
			}
		})
	}
}

func TestGoogleChat_TransportError(t *testing.T) {
	p := &GoogleProvider{models: &fakeGenerator{err: errors.New("quota")}}
	_, err := p.Chat(context.Background(), ChatRequest{
		Model:    "gemini-1.5-flash",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestNewGoogleProvider_RequiresKey(t *testing.T) {
	if _, err := NewGoogleProvider(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
