// Package relay runs the message pipeline: venue events in, generated
// replies out, with guild policy applied in between.
package relay

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sadeshmukh/discord-ai/internal/guilds"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/render"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/transcript"
	"github.com/sadeshmukh/discord-ai/internal/usage"
	"github.com/sadeshmukh/discord-ai/internal/venue"
)

const (
	// DefaultMaxOutputTokens caps every generated reply.
	DefaultMaxOutputTokens = 1000

	// deleteWindow is how many recent channel messages a deletion is
	// annotated within.
	deleteWindow = 5

	tracerName = "github.com/sadeshmukh/discord-ai/internal/relay"
)

// Options tune a Relay. Zero values take defaults.
type Options struct {
	DefaultSystem   string
	MaxOutputTokens int
	Tracer          trace.Tracer
}

// Relay wires a venue to the guild config, usage ledger and provider
// dispatcher. One pipeline run is started per inbound message.
type Relay struct {
	venue      venue.Venue
	guilds     *guilds.Manager
	ledger     *usage.Ledger
	dispatcher *providers.Dispatcher
	builder    transcript.Builder
	maxOutput  int
	tracer     trace.Tracer

	mu       sync.Mutex
	inflight map[string]struct{} // channel IDs with a generation outstanding

	wg sync.WaitGroup
}

func New(v venue.Venue, g *guilds.Manager, l *usage.Ledger, d *providers.Dispatcher, opts Options) *Relay {
	r := &Relay{
		venue:      v,
		guilds:     g,
		ledger:     l,
		dispatcher: d,
		builder:    transcript.Builder{DefaultSystem: opts.DefaultSystem},
		maxOutput:  opts.MaxOutputTokens,
		tracer:     opts.Tracer,
		inflight:   make(map[string]struct{}),
	}
	if r.maxOutput <= 0 {
		r.maxOutput = DefaultMaxOutputTokens
	}
	if r.tracer == nil {
		r.tracer = otel.Tracer(tracerName)
	}
	return r
}

// Start registers the relay's handlers on the venue. Each message is
// processed on its own goroutine; Wait blocks until they have all returned.
func (r *Relay) Start() {
	r.venue.OnMessage(func(ctx context.Context, m venue.Message) {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Process(ctx, m)
		}()
	})
	r.venue.OnMessageEdited(r.HandleEdit)
	r.venue.OnMessageDeleted(r.HandleDelete)
}

// Wait blocks until every pipeline run started by Start has finished.
func (r *Relay) Wait() { r.wg.Wait() }

// InFlight returns the channels with a generation outstanding.
func (r *Relay) InFlight() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.inflight))
	for id := range r.inflight {
		out = append(out, id)
	}
	return out
}

// acquire marks channelID busy. It returns false if a run already holds it.
func (r *Relay) acquire(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inflight[channelID]; busy {
		return false
	}
	r.inflight[channelID] = struct{}{}
	return true
}

func (r *Relay) release(channelID string) {
	r.mu.Lock()
	delete(r.inflight, channelID)
	r.mu.Unlock()
}

// Process runs the pipeline for one inbound message synchronously.
func (r *Relay) Process(ctx context.Context, m venue.Message) {
	self := r.venue.Self()
	if m.GuildID == "" || m.Author.ID == self.ID {
		return
	}

	log := slog.With("run_id", uuid.NewString(), "guild_id", m.GuildID, "channel_id", m.ChannelID)

	cfg, ok, err := r.guilds.Get(ctx, m.GuildID)
	if err != nil {
		log.Error("load guild config", "error", err)
		return
	}
	if m.Author.Bot && !cfg.SeeBots {
		return
	}
	// unconfigured or disabled guilds stay silent, even when mentioned
	if !ok || cfg.ChannelID == "" {
		return
	}
	if string(cfg.ChannelID) != m.ChannelID && !m.MentionsSelf {
		return
	}

	if !r.acquire(m.ChannelID) {
		log.Debug("channel busy, message skipped", "message_id", m.ID)
		return
	}
	defer r.release(m.ChannelID)

	ctx, span := r.tracer.Start(ctx, "relay.process", trace.WithAttributes(
		attribute.String("guild_id", m.GuildID),
		attribute.String("channel_id", m.ChannelID),
	))
	defer span.End()

	if err := r.venue.Typing(ctx, m.ChannelID); err != nil {
		log.Error("typing indicator failed", "error", err)
		return
	}

	if !usage.Allowed(cfg) {
		r.refuse(ctx, log, m)
		return
	}

	history, err := r.venue.FetchRecent(ctx, m.ChannelID, cfg.ContextLength)
	if err != nil {
		log.Error("fetch history", "error", err)
		return
	}

	tr, err := r.builder.Build(transcript.Input{
		History:    history,
		Invoker:    m,
		Self:       self,
		IgnoredIDs: cfg.IgnoredUsers.Strings(),
		SeeBots:    cfg.SeeBots,
		System:     cfg.System,
	})
	if errors.Is(err, transcript.ErrNotEnoughHistory) {
		log.Debug("not enough history to respond to", "fetched", len(history))
		return
	}
	if err != nil {
		log.Error("build transcript", "error", err)
		return
	}

	provider, model, err := r.resolve(cfg.Model)
	if err != nil {
		log.Error("resolve model", "model", cfg.Model, "error", err)
		return
	}
	span.SetAttributes(attribute.String("provider", provider), attribute.String("model", model))

	u, reply := r.dispatcher.Generate(ctx, provider, model, tr.Messages, providers.GenerateOptions{
		MaxOutputTokens: r.maxOutput,
		StopSequences:   []string{transcript.EndToken},
	})

	counters, err := r.ledger.Record(ctx, m.GuildID, u)
	if err != nil {
		log.Error("record usage", "error", err)
	} else {
		log.Info("reply generated",
			"provider", provider,
			"model", model,
			"prompt_tokens", u.PromptTokens,
			"completion_tokens", u.CompletionTokens,
			"usage_today", counters.Today,
		)
	}

	rd := render.Renderer{Self: self, Names: tr.Names, NoPing: noPingList(cfg.NoPingUsers)}
	r.send(ctx, log, m, render.Chunk(rd.Render(reply)), venue.SendOptions{
		TTS:           cfg.TTS,
		MentionAuthor: !cfg.IgnoredUsers.Contains(m.Author.ID),
	})
}

// refuse posts the limit notice unless the message before m already is
// that notice.
func (r *Relay) refuse(ctx context.Context, log *slog.Logger, m venue.Message) {
	recent, err := r.venue.FetchRecent(ctx, m.ChannelID, 2)
	if err != nil {
		log.Error("fetch latest message", "error", err)
		return
	}
	for _, h := range recent {
		if h.ID == m.ID {
			continue
		}
		if h.Author.ID == r.venue.Self().ID && h.Content == usage.LimitNotice {
			return
		}
		break
	}
	log.Info("token limit reached")
	if _, err := r.venue.Send(ctx, m.ChannelID, usage.LimitNotice, venue.SendOptions{}); err != nil {
		log.Error("send limit notice", "error", err)
	}
}

// resolve maps a guild model id to (provider, model), falling back to the
// process default when the stored id is no longer in the catalog.
func (r *Relay) resolve(id string) (string, string, error) {
	registry := r.dispatcher.Registry()
	provider, model, err := registry.ResolveModel(id)
	if err == nil {
		return provider, model, nil
	}
	def := r.guilds.Defaults().Model
	if def == "" || def == id {
		return "", "", err
	}
	slog.Warn("guild model unavailable, using default", "model", id, "default", def)
	return registry.ResolveModel(def)
}

// send delivers chunks. A single chunk goes out as a threaded reply with a
// plain post as fallback; longer replies are posted in order, each failed
// chunk retried once and then dropped.
func (r *Relay) send(ctx context.Context, log *slog.Logger, m venue.Message, chunks []string, opts venue.SendOptions) {
	if len(chunks) == 1 {
		_, err := r.venue.Reply(ctx, m, chunks[0], opts)
		if err == nil {
			return
		}
		log.Error("reply failed, posting instead", "error", err)
		if _, err := r.venue.Send(ctx, m.ChannelID, chunks[0], venue.SendOptions{TTS: opts.TTS}); err != nil {
			log.Error("send reply", "error", err)
		}
		return
	}

	for i, c := range chunks {
		if _, err := r.venue.Send(ctx, m.ChannelID, c, venue.SendOptions{TTS: opts.TTS}); err == nil {
			continue
		}
		if _, err := r.venue.Send(ctx, m.ChannelID, c, venue.SendOptions{TTS: opts.TTS}); err != nil {
			log.Error("send reply chunk", "chunk", i, "of", len(chunks), "error", err)
		}
	}
}

// HandleDelete annotates a deleted message that was among the last few in
// the guild's active channel.
func (r *Relay) HandleDelete(ctx context.Context, m venue.Message) {
	if !r.annotatable(ctx, m) {
		return
	}
	recent, err := r.venue.FetchRecent(ctx, m.ChannelID, deleteWindow)
	if err != nil {
		slog.Error("fetch history for delete", "channel_id", m.ChannelID, "error", err)
		return
	}
	newer := 0
	for _, h := range recent {
		if snowflakeLess(m.ID, h.ID) {
			newer++
		}
	}
	if newer >= deleteWindow {
		return
	}
	r.annotate(ctx, m.ChannelID, transcript.Deleted(m.Author.ID, m.Content))
}

// HandleEdit annotates an edit of the most recent message in the guild's
// active channel with the original content.
func (r *Relay) HandleEdit(ctx context.Context, before, after venue.Message) {
	if !r.annotatable(ctx, before) {
		return
	}
	if before.Content == "" || before.Content == after.Content {
		return
	}
	recent, err := r.venue.FetchRecent(ctx, before.ChannelID, 1)
	if err != nil {
		slog.Error("fetch history for edit", "channel_id", before.ChannelID, "error", err)
		return
	}
	if len(recent) == 0 || recent[0].ID != before.ID {
		return
	}
	r.annotate(ctx, before.ChannelID, transcript.Edited(before.Author.ID, before.Content))
}

func (r *Relay) annotatable(ctx context.Context, m venue.Message) bool {
	// uncached messages arrive without an author
	if m.GuildID == "" || m.Author.ID == "" || m.Author.ID == r.venue.Self().ID {
		return false
	}
	cfg, ok, err := r.guilds.Get(ctx, m.GuildID)
	if err != nil {
		slog.Error("load guild config", "guild_id", m.GuildID, "error", err)
		return false
	}
	return ok && cfg.ChannelID != "" && string(cfg.ChannelID) == m.ChannelID
}

func (r *Relay) annotate(ctx context.Context, channelID, text string) {
	if _, err := r.venue.Send(ctx, channelID, text, venue.SendOptions{}); err != nil {
		slog.Error("send annotation", "channel_id", channelID, "error", err)
	}
}

// SelfCheck sends one probe generation through the default model and logs
// the outcome.
func (r *Relay) SelfCheck(ctx context.Context) {
	def := r.guilds.Defaults().Model
	provider, model, err := r.dispatcher.Registry().ResolveModel(def)
	if err != nil {
		slog.Warn("self-check skipped", "model", def, "error", err)
		return
	}
	u, reply := r.dispatcher.Generate(ctx, provider, model, []providers.Message{
		{Role: providers.RoleUser, Content: "Hello, world!"},
	}, providers.GenerateOptions{MaxOutputTokens: r.maxOutput})
	slog.Info("self-check", "provider", provider, "model", model, "tokens", u.Total(), "reply", reply)
}

func noPingList(users []store.NoPingUser) []render.NoPing {
	out := make([]render.NoPing, 0, len(users))
	for _, u := range users {
		out = append(out, render.NoPing{ID: string(u.ID), Name: u.Name})
	}
	return out
}

// snowflakeLess orders numeric message IDs without parsing them.
func snowflakeLess(a, b string) bool {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		return len(a) < len(b)
	}
	return a < b
}
