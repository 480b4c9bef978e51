package providers

import (
	"context"
	"log/slog"

	"github.com/samber/lo"

	"github.com/marcus-crane/presence-bridge/playback"
	"github.com/marcus-crane/presence-bridge/shared"
)

// Provider reads "now playing" state from one platform API. Poll may block on
// its own I/O and is called repeatedly, once per tick at most.
type Provider interface {
	Name() string
	Source() playback.Source
	Poll(ctx context.Context) (playback.Snapshot, error)
}

// Chain asks providers in priority order and keeps no memory between ticks.
type Chain struct {
	providers []Provider
}

func NewChain(providers ...Provider) *Chain {
	return &Chain{providers: providers}
}

// PollBest returns the first snapshot that is not Stopped or carries a track.
// Failing that it returns the first snapshot seen, with provider errors turned
// into Stopped snapshots, and a synthetic "none" snapshot if the chain is empty.
func (c *Chain) PollBest(ctx context.Context) playback.Snapshot {
	var fallback *playback.Snapshot
	for _, p := range c.providers {
		snapshot, err := p.Poll(ctx)
		if err != nil {
			slog.Debug("Provider poll failed",
				slog.String("provider", p.Name()),
				slog.String("error", err.Error()))
			snapshot = playback.Failed(p.Name(), err)
		} else if snapshot.Meaningful() {
			return snapshot
		}
		if fallback == nil {
			fallback = &snapshot
		}
	}
	if fallback != nil {
		return *fallback
	}
	return playback.Stopped(shared.PROVIDER_NONE)
}

func (c *Chain) Names() []string {
	return lo.Map(c.providers, func(p Provider, _ int) string {
		return p.Name()
	})
}

// registry holds the providers that can run on this platform. Per-OS files add
// to it from init.
var registry = map[string]func() Provider{}

func register(name string, ctor func() Provider) {
	registry[name] = ctor
}

// Available reports whether a provider name can be built on this platform.
func Available(name string) bool {
	_, ok := registry[name]
	return ok
}

// Build creates a chain from configured provider names, skipping names that
// aren't available here. An empty result falls back to the null provider.
func Build(priority []string) *Chain {
	return buildFrom(priority, registry)
}

func buildFrom(priority []string, available map[string]func() Provider) *Chain {
	var providers []Provider
	for _, name := range priority {
		ctor, ok := available[name]
		if !ok {
			slog.Debug("Provider unavailable on this platform", slog.String("provider", name))
			continue
		}
		providers = append(providers, ctor())
	}
	if len(providers) == 0 {
		providers = append(providers, Null{})
	}
	return NewChain(providers...)
}

// Null always reports Stopped.
type Null struct{}

func (Null) Name() string {
	return shared.PROVIDER_NULL
}

func (Null) Source() playback.Source {
	return playback.Unknown
}

func (n Null) Poll(context.Context) (playback.Snapshot, error) {
	return playback.Stopped(n.Name()), nil
}
