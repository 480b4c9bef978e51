package providers

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/marcus-crane/presence-bridge/playback"
	"github.com/marcus-crane/presence-bridge/shared"
	"github.com/marcus-crane/presence-bridge/utils"
)

//go:embed jxa_now_playing.js
var jxaNowPlaying string

type jxaResult struct {
	State        string `json:"state"`
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Album        string `json:"album"`
	Duration     int64  `json:"duration"` // milliseconds
	Position     int64  `json:"position"` // milliseconds
	PersistentID string `json:"persistentId"`
	Error        string `json:"error"`
}

// AppleMusic queries Music.app through osascript's JavaScript runtime.
type AppleMusic struct {
	// Command runs the script and returns its stdout. Tests swap it out.
	Command func(ctx context.Context, script string) ([]byte, error)
}

func NewAppleMusic() *AppleMusic {
	return &AppleMusic{Command: runOsascript}
}

func (a *AppleMusic) Name() string {
	return shared.PROVIDER_APPLE_MUSIC
}

func (a *AppleMusic) Source() playback.Source {
	return playback.AppleMusicMac
}

func (a *AppleMusic) Poll(ctx context.Context) (playback.Snapshot, error) {
	out, err := a.Command(ctx, jxaNowPlaying)
	if err != nil {
		return playback.Snapshot{}, err
	}
	var res jxaResult
	if err := json.Unmarshal(bytes.TrimSpace(out), &res); err != nil {
		return playback.Snapshot{}, fmt.Errorf("invalid JSON from jxa script: %w", err)
	}
	return appleMusicSnapshot(a.Name(), res, time.Now()), nil
}

func appleMusicSnapshot(provider string, res jxaResult, now time.Time) playback.Snapshot {
	if res.Error != "" {
		return playback.Failed(provider, errors.New(res.Error))
	}
	if res.State != "playing" && res.State != "paused" {
		return playback.Stopped(provider)
	}

	title := res.Title
	if title == "" {
		title = "Unknown Title"
	}
	artist := res.Artist
	if artist == "" {
		artist = "Unknown Artist"
	}
	id := res.PersistentID
	if id == "" {
		id = fmt.Sprintf("%s:%s", artist, title)
	}

	track := playback.Track{
		ID:        id,
		Title:     title,
		Artist:    artist,
		Album:     res.Album,
		Duration:  time.Duration(res.Duration) * time.Millisecond,
		Position:  time.Duration(res.Position) * time.Millisecond,
		IsPlaying: res.State == "playing",
		Source:    playback.AppleMusicMac,
		Links: playback.Links{
			AppleMusic:    utils.AppleMusicSearchURL(artist, title),
			SpotifySearch: utils.SpotifySearchURL(artist, title),
		},
		UpdatedAt: now,
	}
	return playback.Active(provider, track, res.State)
}

func runOsascript(ctx context.Context, script string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "osascript", "-l", "JavaScript", "-e", script)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("osascript failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
