package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/GiGurra/boa/pkg/boa"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/spf13/cobra"

	"github.com/marcus-crane/presence-bridge/discord"
	"github.com/marcus-crane/presence-bridge/playback"
	"github.com/marcus-crane/presence-bridge/providers"
)

const probeTimeout = 200 * time.Millisecond

func doctorCmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "doctor",
		Short: "Check that Discord and a media source can be reached",
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(params.configPath())
			exitOnError("doctor", err)
			runDoctor(commandContext(cmd), os.Stdout, providers.Build(cfg.ProviderPriority))
		},
	}.ToCobra()
}

func statusCmd() *cobra.Command {
	return boa.CmdT[Params]{
		Use:   "status",
		Short: "Print what the provider chain currently sees",
		RunFunc: func(params *Params, cmd *cobra.Command, args []string) {
			cfg, err := loadConfig(params.configPath())
			exitOnError("status", err)
			writeStatus(os.Stdout, providers.Build(cfg.ProviderPriority).PollBest(commandContext(cmd)))
		},
	}.ToCobra()
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func runDoctor(ctx context.Context, w io.Writer, chain *providers.Chain) {
	fmt.Fprintln(w, "== presence-bridge doctor ==")

	reachable := peerReachable(ipcCandidates(), wsAddrs(), probeTimeout)
	fmt.Fprintf(w, "Discord RPC local endpoint: %s\n", lo.Ternary(reachable, "reachable", "not reachable"))

	running, err := discordProcessRunning(ctx)
	if err != nil {
		fmt.Fprintf(w, "Discord process: unknown (%v)\n", err)
	} else {
		fmt.Fprintf(w, "Discord process: %s\n", lo.Ternary(running, "running", "not found"))
	}

	fmt.Fprintf(w, "Providers: %s\n", strings.Join(chain.Names(), ", "))
	snapshot := chain.PollBest(ctx)
	fmt.Fprintf(w, "Provider checked: %s\n", snapshot.Provider)
	fmt.Fprintf(w, "Provider state: %s\n", snapshot.Status)
	if snapshot.Track != nil {
		fmt.Fprintf(w, "Now playing: %s - %s\n", snapshot.Track.Artist, snapshot.Track.Title)
	} else {
		fmt.Fprintln(w, "No active media session")
	}
	if snapshot.Err != "" {
		fmt.Fprintf(w, "Provider error: %s\n", snapshot.Err)
	}

	if runtime.GOOS == "darwin" {
		fmt.Fprintln(w, "macOS automation: check System Settings > Privacy & Security > Automation allows your terminal to control Music")
	}
}

func writeStatus(w io.Writer, snapshot playback.Snapshot) {
	fmt.Fprintf(w, "provider: %s\n", snapshot.Provider)
	fmt.Fprintf(w, "state: %s\n", snapshot.Status)
	if track := snapshot.Track; track != nil {
		fmt.Fprintf(w, "track: %s - %s\n", track.Artist, track.Title)
		if track.Album != "" {
			fmt.Fprintf(w, "album: %s\n", track.Album)
		}
	} else {
		fmt.Fprintln(w, "track: <none>")
	}
	if snapshot.Err != "" {
		fmt.Fprintf(w, "error: %s\n", snapshot.Err)
	}
}

func ipcCandidates() []string {
	var paths []string
	for slot := 0; slot < 10; slot++ {
		paths = append(paths, discord.IPCPaths(slot)...)
	}
	return paths
}

func wsAddrs() []string {
	return lo.Map(discord.WebSocketURLs(""), func(u string, _ int) string {
		u = strings.TrimPrefix(u, "ws://")
		return u[:strings.Index(u, "/")]
	})
}

// peerReachable reports whether any IPC endpoint exists or any WebSocket port
// accepts a TCP connection within timeout.
func peerReachable(ipcPaths, addrs []string, timeout time.Duration) bool {
	for _, path := range ipcPaths {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	for _, addr := range addrs {
		conn, err := net.DialTimeout("tcp", addr, timeout)
		if err == nil {
			conn.Close()
			return true
		}
	}
	return false
}

func discordProcessRunning(ctx context.Context) (bool, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list processes: %w", err)
	}
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(name), "discord") {
			return true, nil
		}
	}
	return false, nil
}
