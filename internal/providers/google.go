package providers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"
)

// contentGenerator is the slice of the GenAI client the provider uses.
// *genai.Models satisfies it.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GoogleProvider implements Provider using the Gemini API through the GenAI SDK.
type GoogleProvider struct {
	models contentGenerator
}

// NewGoogleProvider creates a Gemini-backed provider.
func NewGoogleProvider(ctx context.Context, apiKey string) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: create client: %w", err)
	}
	return &GoogleProvider{models: client.Models}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system, turns := splitSystem(req.Messages)
	if len(turns) == 0 {
		// Gemini has no system turn; a system-only transcript has nothing to answer.
		return &ChatResponse{FinishReason: "stop"}, nil
	}

	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		var role genai.Role = genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	resp, err := p.models.GenerateContent(ctx, req.Model, contents, p.buildConfig(system, req.Options))
	if err != nil {
		return nil, fmt.Errorf("google: generate content: %w", err)
	}

	return p.parseResponse(resp)
}

func (p *GoogleProvider) buildConfig(system []string, opts GenerateOptions) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		StopSequences:  opts.StopSequences,
		SafetySettings: googleSafetySettings(),
	}
	if opts.MaxOutputTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxOutputTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}
	return cfg
}

func (p *GoogleProvider) parseResponse(resp *genai.GenerateContentResponse) (*ChatResponse, error) {
	if resp.PromptFeedback != nil {
		slog.Warn("google: prompt feedback", "block_reason", resp.PromptFeedback.BlockReason)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return nil, fmt.Errorf("google: %w", ErrNoContent)
	}

	var texts []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			texts = append(texts, part.Text)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("google: %w", ErrNoContent)
	}

	result := &ChatResponse{
		Content:      strings.Join(texts, " "),
		FinishReason: "stop",
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonMaxTokens {
		result.FinishReason = "length"
	}
	if md := resp.UsageMetadata; md != nil {
		result.Usage = Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
		}
	}
	return result, nil
}

// googleSafetySettings disables content blocking for the harm categories
// Gemini filters by default; venue moderation is left to the venue.
func googleSafetySettings() []*genai.SafetySetting {
	categories := []genai.HarmCategory{
		genai.HarmCategoryHarassment,
		genai.HarmCategoryHateSpeech,
		genai.HarmCategorySexuallyExplicit,
		genai.HarmCategoryDangerousContent,
	}
	settings := make([]*genai.SafetySetting, 0, len(categories))
	for _, c := range categories {
		settings = append(settings, &genai.SafetySetting{
			Category:  c,
			Threshold: genai.HarmBlockThresholdBlockNone,
		})
	}
	return settings
}
