package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/marcus-crane/presence-bridge/config"
	"github.com/marcus-crane/presence-bridge/engine"
	"github.com/marcus-crane/presence-bridge/providers"
)

type presenceClient interface {
	SetActivity(ctx context.Context, presence engine.Presence) error
	ClearActivity(ctx context.Context) error
	UpdateClientID(clientID string)
}

// Bridge owns the provider chain, the engine and the presence client and only
// ever touches them from the goroutine running Run.
type Bridge struct {
	cfg    config.Config
	chain  *providers.Chain
	engine *engine.Engine
	client presenceClient

	loadConfig func() (config.Config, error)
	buildChain func(priority []string) *providers.Chain
	now        func() time.Time
}

func NewBridge(cfg config.Config, client presenceClient, loadConfig func() (config.Config, error)) *Bridge {
	return &Bridge{
		cfg:        cfg,
		chain:      providers.Build(cfg.ProviderPriority),
		engine:     engine.New(engine.ConfigFrom(cfg)),
		client:     client,
		loadConfig: loadConfig,
		buildChain: providers.Build,
		now:        time.Now,
	}
}

// Tick runs one poll/decide/publish cycle and returns how long to wait before
// the next one. Publish failures are logged and picked up again by a later tick.
func (b *Bridge) Tick(ctx context.Context) time.Duration {
	snapshot := b.chain.PollBest(ctx)
	now := b.now()
	out := b.engine.Tick(snapshot, now, now)

	switch out.Action {
	case engine.ActionSend:
		slog.Debug("Publishing presence",
			slog.String("diff", out.Diff.String()),
			slog.String("details", out.Presence.Details),
			slog.String("state", out.Presence.State))
		if err := b.client.SetActivity(ctx, *out.Presence); err != nil {
			slog.Warn("Failed to set discord activity, will retry with backoff", slog.String("error", err.Error()))
		}
	case engine.ActionClear:
		slog.Debug("Clearing presence", slog.String("provider", snapshot.Provider))
		if err := b.client.ClearActivity(ctx); err != nil {
			slog.Warn("Failed to clear discord activity, will retry with backoff", slog.String("error", err.Error()))
		}
	}
	return out.NextPoll
}

// Reload applies a new configuration. Engine history is kept.
func (b *Bridge) Reload(cfg config.Config) {
	b.cfg = cfg
	b.engine.UpdateConfig(engine.ConfigFrom(cfg))
	b.client.UpdateClientID(cfg.DiscordAppID)
	b.chain = b.buildChain(cfg.ProviderPriority)
	slog.Info("Configuration reloaded", slog.Any("providers", b.chain.Names()))
}

// Run ticks until ctx is cancelled. Reload notifications and the tick timer are
// served from the same select so their bodies never overlap. Work that has
// started runs to completion even if ctx is cancelled meanwhile.
func (b *Bridge) Run(ctx context.Context, reloads <-chan struct{}) error {
	slog.Info("presence-bridge started", slog.Any("providers", b.chain.Names()))

	work := context.WithoutCancel(ctx)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down")
			return nil
		case <-reloads:
			cfg, err := b.loadConfig()
			if err != nil {
				slog.Error("Failed to reload config, keeping the previous one", slog.String("error", err.Error()))
				continue
			}
			b.Reload(cfg)
			timer.Reset(0)
		case <-timer.C:
			timer.Reset(b.Tick(work))
		}
	}
}
