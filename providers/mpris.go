package providers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/marcus-crane/presence-bridge/playback"
	"github.com/marcus-crane/presence-bridge/shared"
	"github.com/marcus-crane/presence-bridge/utils"
)

const (
	mprisPrefix    = "org.mpris.MediaPlayer2."
	mprisPath      = dbus.ObjectPath("/org/mpris/MediaPlayer2")
	mprisInterface = "org.mpris.MediaPlayer2.Player"
)

// Mpris reads the first MPRIS player (by bus name) on the session bus.
type Mpris struct {
	conn *dbus.Conn
}

func NewMpris() *Mpris {
	return &Mpris{}
}

func (m *Mpris) Name() string {
	return shared.PROVIDER_MPRIS
}

func (m *Mpris) Source() playback.Source {
	return playback.Mpris
}

func (m *Mpris) Poll(ctx context.Context) (playback.Snapshot, error) {
	snapshot, err := m.poll(ctx)
	if err != nil && m.conn != nil {
		// The bus may have gone away, start over on the next poll
		m.conn.Close()
		m.conn = nil
	}
	return snapshot, err
}

func (m *Mpris) poll(ctx context.Context) (playback.Snapshot, error) {
	if m.conn == nil {
		conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
		if err != nil {
			return playback.Snapshot{}, fmt.Errorf("failed to connect DBus session: %w", err)
		}
		m.conn = conn
	}

	var names []string
	if err := m.conn.BusObject().CallWithContext(ctx, "org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return playback.Snapshot{}, fmt.Errorf("failed to list DBus names: %w", err)
	}
	player, ok := firstPlayer(names)
	if !ok {
		return playback.Stopped(m.Name()), nil
	}

	obj := m.conn.Object(player, mprisPath)

	statusVariant, err := obj.GetProperty(mprisInterface + ".PlaybackStatus")
	if err != nil {
		return playback.Snapshot{}, fmt.Errorf("failed to read PlaybackStatus from %s: %w", player, err)
	}
	status, _ := statusVariant.Value().(string)
	if status == "Stopped" || status == "" {
		return playback.Stopped(m.Name()), nil
	}

	metaVariant, err := obj.GetProperty(mprisInterface + ".Metadata")
	if err != nil {
		return playback.Snapshot{}, fmt.Errorf("failed to read Metadata from %s: %w", player, err)
	}
	metadata, _ := metaVariant.Value().(map[string]dbus.Variant)

	var position int64
	if v, err := obj.GetProperty(mprisInterface + ".Position"); err == nil {
		position, _ = variantInt64(v)
	}

	return mprisSnapshot(m.Name(), status, metadata, position, time.Now()), nil
}

func firstPlayer(names []string) (string, bool) {
	var players []string
	for _, n := range names {
		if strings.HasPrefix(n, mprisPrefix) {
			players = append(players, n)
		}
	}
	if len(players) == 0 {
		return "", false
	}
	sort.Strings(players)
	return players[0], true
}

// mprisSnapshot converts MPRIS properties into a snapshot. Lengths and positions
// are in microseconds.
func mprisSnapshot(provider, status string, metadata map[string]dbus.Variant, positionUs int64, now time.Time) playback.Snapshot {
	title := "Unknown Title"
	if v, ok := metadata["xesam:title"]; ok {
		if s, ok := v.Value().(string); ok && s != "" {
			title = s
		}
	}
	artist := "Unknown Artist"
	if v, ok := metadata["xesam:artist"]; ok {
		if artists, ok := v.Value().([]string); ok && len(artists) > 0 {
			artist = artists[0]
		}
	}
	var album string
	if v, ok := metadata["xesam:album"]; ok {
		album, _ = v.Value().(string)
	}
	var duration time.Duration
	if v, ok := metadata["mpris:length"]; ok {
		if us, ok := variantInt64(v); ok && us > 0 {
			duration = time.Duration(us) * time.Microsecond
		}
	}
	var position time.Duration
	if positionUs > 0 {
		position = time.Duration(positionUs) * time.Microsecond
	}

	track := playback.Track{
		ID:        fmt.Sprintf("%s:%s", artist, title),
		Title:     title,
		Artist:    artist,
		Album:     album,
		Duration:  duration,
		Position:  position,
		IsPlaying: status == "Playing",
		Source:    playback.Mpris,
		Links: playback.Links{
			AppleMusic:    utils.AppleMusicSearchURL(artist, title),
			SpotifySearch: utils.SpotifySearchURL(artist, title),
		},
		UpdatedAt: now,
	}
	return playback.Active(provider, track, status)
}

func variantInt64(v dbus.Variant) (int64, bool) {
	switch n := v.Value().(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case int32:
		return int64(n), true
	case uint32:
		return int64(n), true
	}
	return 0, false
}
