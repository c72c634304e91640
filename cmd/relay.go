package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sadeshmukh/discord-ai/internal/channels/discord"
	"github.com/sadeshmukh/discord-ai/internal/config"
	"github.com/sadeshmukh/discord-ai/internal/guilds"
	"github.com/sadeshmukh/discord-ai/internal/providers"
	"github.com/sadeshmukh/discord-ai/internal/relay"
	"github.com/sadeshmukh/discord-ai/internal/store"
	"github.com/sadeshmukh/discord-ai/internal/store/file"
	"github.com/sadeshmukh/discord-ai/internal/store/pg"
	"github.com/sadeshmukh/discord-ai/internal/store/sqlite"
	"github.com/sadeshmukh/discord-ai/internal/tracing"
	"github.com/sadeshmukh/discord-ai/internal/usage"
)

// openStores builds the guild store selected by the database mode.
// Postgres mode gates on schema compatibility first.
func openStores(cfg *config.Config) (*store.Stores, error) {
	sc := cfg.StoreConfig()
	switch sc.Mode {
	case store.ModePostgres:
		if err := checkSchemaOrAutoUpgrade(sc.PostgresDSN, sc.Path); err != nil {
			return nil, err
		}
		return pg.NewPGStores(sc)
	case store.ModeSQLite:
		return sqlite.NewSQLiteStores(sc)
	default:
		return file.NewFileStores(sc)
	}
}

func closeStores(s *store.Stores) {
	if s.Close == nil {
		return
	}
	if err := s.Close(); err != nil {
		slog.Warn("close store", "error", err)
	}
}

// services holds everything built from config that does not talk to Discord.
type services struct {
	stores     *store.Stores
	registry   *providers.Registry
	dispatcher *providers.Dispatcher
	guilds     *guilds.Manager
	ledger     *usage.Ledger
	schedule   *usage.ResetScheduler
}

func buildServices(ctx context.Context, cfg *config.Config, tp *tracing.Provider) (*services, error) {
	catalog, err := providers.LoadCatalog(config.ExpandHome(cfg.ModelsFile))
	if err != nil {
		return nil, err
	}
	registry := providers.NewRegistry(catalog)
	registerProviders(ctx, registry, cfg)

	stores, err := openStores(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	gm := guilds.NewManager(stores.Guilds, guilds.Defaults{
		Model:         cfg.DefaultModel,
		ContextLength: cfg.ContextLimit,
		TokenLimit:    cfg.TokenLimit,
	})
	ledger := usage.NewLedger(gm, usage.Weights{
		Prompt:     cfg.Usage.PromptWeight,
		Completion: cfg.Usage.CompletionWeight,
	})
	schedule, err := usage.NewResetScheduler(cfg.Usage.ResetSchedule, ledger)
	if err != nil {
		closeStores(stores)
		return nil, err
	}

	dispatcher := providers.NewDispatcher(registry,
		providers.WithRequestsPerMinute(cfg.Usage.ProviderRPM),
		providers.WithTracer(tp.Tracer("discord-ai/providers")),
	)
	return &services{
		stores:     stores,
		registry:   registry,
		dispatcher: dispatcher,
		guilds:     gm,
		ledger:     ledger,
		schedule:   schedule,
	}, nil
}

func runRelay(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return errors.New("no Discord token: set TOKEN in .env or run 'discord-ai onboard'")
	}
	if !cfg.HasAnyProvider() {
		slog.Warn("no provider credentials configured; every reply will be an error")
	}

	tp, err := tracing.Setup(ctx, cfg.Telemetry, Version)
	if err != nil {
		return err
	}
	defer tp.Shutdown(context.Background())

	svc, err := buildServices(ctx, cfg, tp)
	if err != nil {
		return err
	}
	defer closeStores(svc.stores)

	ch, err := discord.New(cfg.Discord)
	if err != nil {
		return err
	}

	r := relay.New(ch, svc.guilds, svc.ledger, svc.dispatcher, relay.Options{
		DefaultSystem:   cfg.DefaultSystem,
		MaxOutputTokens: cfg.Usage.MaxOutputTokens,
		Tracer:          tp.Tracer("discord-ai/relay"),
	})
	cmds := relay.NewCommands(r, relay.CommandOptions{
		Admins:   cfg.Admins,
		Invite:   cfg.Invite,
		Schedule: svc.schedule,
	})
	ch.SetCommands(cmds)
	ch.OnGuildJoin(cmds.Join)
	r.Start()

	if err := ch.Start(ctx); err != nil {
		return err
	}
	slog.Info("relay started",
		"version", Version,
		"store", cfg.Database.Mode,
		"default_model", cfg.DefaultModel,
		"providers", svc.registry.Registered(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r.SelfCheck(gctx)
		return nil
	})
	g.Go(func() error {
		return svc.schedule.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("graceful shutdown initiated")
		err := ch.Stop(context.Background())
		r.Wait()
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("relay stopped")
	return nil
}
