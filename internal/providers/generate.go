package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// ErrorReply is the text returned in place of a reply when generation fails.
const ErrorReply = "There was an error."

const tracerName = "github.com/sadeshmukh/discord-ai/internal/providers"

// Dispatcher routes a transcript to the adapter for a resolved provider and
// never returns an error: every failure is logged and collapsed into
// ErrorReply with zero usage, so a broken provider cannot take down the relay.
type Dispatcher struct {
	registry *Registry
	tracer   trace.Tracer
	rpm      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

type DispatcherOption func(*Dispatcher)

// WithRequestsPerMinute paces calls to each provider. Zero disables pacing.
func WithRequestsPerMinute(rpm int) DispatcherOption {
	return func(d *Dispatcher) { d.rpm = rpm }
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		limiters: make(map[string]*rate.Limiter),
	}
	for _, o := range opts {
		o(d)
	}
	if d.tracer == nil {
		d.tracer = otel.Tracer(tracerName)
	}
	return d
}

func (d *Dispatcher) Registry() *Registry { return d.registry }

func (d *Dispatcher) limiter(provider string) *rate.Limiter {
	if d.rpm <= 0 {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	l, ok := d.limiters[provider]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(d.rpm)), 1)
		d.limiters[provider] = l
	}
	return l
}

// Generate sends transcript to model on provider and returns the reported
// usage and reply text.
func (d *Dispatcher) Generate(ctx context.Context, provider, model string, transcript []Message, opts GenerateOptions) (Usage, string) {
	ctx, span := d.tracer.Start(ctx, "provider.generate", trace.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.Int("transcript.entries", len(transcript)),
	))
	defer span.End()

	fail := func(msg string, err error) (Usage, string) {
		slog.Error(msg, "provider", provider, "model", model, "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		return Usage{}, ErrorReply
	}

	p, err := d.registry.Provider(provider)
	if err != nil {
		return fail("generation provider unavailable", err)
	}

	if l := d.limiter(provider); l != nil {
		if err := l.Wait(ctx); err != nil {
			return fail("generation rate limit wait", err)
		}
	}

	start := time.Now()
	resp, err := p.Chat(ctx, ChatRequest{
		Messages: transcript,
		Model:    model,
		Options:  opts,
	})
	if err != nil {
		return fail("generation failed", err)
	}

	if resp.Usage.CompletionTokens == 0 {
		slog.Warn("provider reported no completion tokens",
			"provider", provider,
			"model", model,
			"prompt_tokens", resp.Usage.PromptTokens,
		)
	}

	span.SetAttributes(
		attribute.Int("usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("usage.completion_tokens", resp.Usage.CompletionTokens),
		attribute.String("finish_reason", resp.FinishReason),
	)
	slog.Debug("generation complete",
		"provider", provider,
		"model", model,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return resp.Usage, resp.Content
}
