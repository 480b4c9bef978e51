package playback

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "Playing"
	case StatusPaused:
		return "Paused"
	case StatusStopped:
		return "Stopped"
	}
	return fmt.Sprintf("Status(%q)", string(s))
}

type Source string

const (
	AppleMusicMac       Source = "apple_music_mac"
	WindowsMediaSession Source = "windows_media_session"
	Mpris               Source = "mpris"
	Unknown             Source = "unknown"
)

// Links are outbound search links for a track. Empty means the link is unknown.
type Links struct {
	AppleMusic    string
	SpotifySearch string
}

// Track is the media currently loaded in a player. ID identifies the same piece of
// media across polls regardless of position or play state. Source readers use a
// persistent ID when the player has one and "artist:title" otherwise.
type Track struct {
	ID        string
	Title     string
	Artist    string
	Album     string
	Duration  time.Duration // zero when unknown
	Position  time.Duration // zero when unknown
	IsPlaying bool
	Source    Source
	Links     Links
	UpdatedAt time.Time
}

// Snapshot is the result of polling one provider. Track is nil whenever Status is
// StatusStopped and set otherwise.
type Snapshot struct {
	Provider string
	Status   Status
	Track    *Track
	Raw      string
	Err      string
}

func Stopped(provider string) Snapshot {
	return Snapshot{
		Provider: provider,
		Status:   StatusStopped,
		Raw:      "stopped",
	}
}

func Failed(provider string, err error) Snapshot {
	return Snapshot{
		Provider: provider,
		Status:   StatusStopped,
		Raw:      "error",
		Err:      err.Error(),
	}
}

// Active builds a Playing or Paused snapshot from a track.
func Active(provider string, track Track, raw string) Snapshot {
	status := StatusPaused
	if track.IsPlaying {
		status = StatusPlaying
	}
	return Snapshot{
		Provider: provider,
		Status:   status,
		Track:    &track,
		Raw:      raw,
	}
}

// Meaningful reports whether the snapshot should win over lower priority sources.
func (s Snapshot) Meaningful() bool {
	return s.Status != StatusStopped || s.Track != nil
}
