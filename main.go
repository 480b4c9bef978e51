package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/spf13/cobra"

	"github.com/marcus-crane/presence-bridge/config"
	"github.com/marcus-crane/presence-bridge/discord"
	"github.com/marcus-crane/presence-bridge/shared"
)

type Params struct {
	Config string `short:"c" optional:"true" help:"Path to the config file (defaults to the user config directory)." default:""`
}

func (p *Params) configPath() string {
	if p.Config != "" {
		return p.Config
	}
	return config.DefaultPath()
}

func main() {
	boa.CmdT[Params]{
		Use:     shared.APP_NAME,
		Short:   "Now playing -> event engine -> Discord rich presence",
		Version: appVersion(),
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			exitOnError("run", runBridge(commandContext(cmd), params))
		},
		SubCmds: []*cobra.Command{
			runCmd(),
			doctorCmd(),
			statusCmd(),
			configCmd(),
		},
	}.Run()
}

func runCmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "run",
		Short: "Keep Discord updated with what's playing (default)",
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			exitOnError("run", runBridge(commandContext(cmd), params))
		},
	}.ToCobra()
}

func configCmd() *cobra.Command {
	return boa.CmdT[boa.NoParams]{
		Use:   "config",
		Short: "Manage the config file",
		SubCmds: []*cobra.Command{
			boa.CmdT[Params]{
				Use:   "init",
				Short: "Write the default config file",
				RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
					path := params.configPath()
					exitOnError("config init", config.Init(path))
					fmt.Printf("Initialized config at %s\n", path)
				},
			}.ToCobra(),
		},
	}.ToCobra()
}

func runBridge(ctx context.Context, params *Params) error {
	path := params.configPath()
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := discord.NewClient(cfg.DiscordAppID)
	defer client.Close()

	bridge := NewBridge(cfg, client, func() (config.Config, error) {
		return config.Load(path)
	})

	reloads := make(chan struct{}, 1)
	scheduler, err := SetupInBackground(ctx, cfg, path, reloads)
	if err != nil {
		return fmt.Errorf("failed to start reload watchers: %w", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Shutdown(); err != nil {
			slog.Debug("Failed to stop scheduler", slog.String("error", err.Error()))
		}
	}()

	return bridge.Run(ctx, reloads)
}

// loadConfig reads the config and installs the default logger at its level.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.GetLogLevel()})))
	slog.Debug("Loaded config", slog.String("path", path))
	return cfg, nil
}

func exitOnError(command string, err error) {
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s: %v\n", command, err)
		os.Exit(1)
	}
}

func appVersion() string {
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi.Main.Version == "" {
		return "unknown"
	}
	return bi.Main.Version
}
