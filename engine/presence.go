package engine

import (
	"fmt"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"

	"github.com/marcus-crane/presence-bridge/playback"
	"github.com/marcus-crane/presence-bridge/shared"
)

const maxButtons = 2

type Button struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// Presence is the payload shown by the chat client. It is rebuilt from the
// current track on every tick and never modified afterwards.
type Presence struct {
	ActivityType   int
	Name           string
	Details        string
	State          string
	StartTimestamp *int64 // unix seconds, only while playing
	IsPlaying      bool
	LargeImage     string
	LargeText      string
	SmallImage     string
	SmallText      string
	Buttons        []Button
}

func (e *Engine) presenceFor(track *playback.Track) Presence {
	state := shared.PLAYER_STATE_PAUSED
	if track.IsPlaying {
		state = shared.PLAYER_STATE_PLAYING
		if track.Album != "" {
			state = "on " + track.Album
		}
	}

	p := Presence{
		ActivityType: shared.ACTIVITY_TYPE_LISTENING,
		Name:         shared.ACTIVITY_NAME,
		Details:      fmt.Sprintf("%s — %s", track.Artist, track.Title),
		State:        state,
		IsPlaying:    track.IsPlaying,
		LargeImage:   e.cfg.LargeImage,
		LargeText:    e.cfg.LargeText,
		SmallImage:   e.cfg.SmallPauseImage,
		SmallText:    shared.PLAYER_STATE_PAUSED,
	}
	if track.IsPlaying {
		p.StartTimestamp = e.stableStart
		p.SmallImage = e.cfg.SmallPlayImage
		p.SmallText = shared.PLAYER_STATE_PLAYING
	}

	if e.cfg.EnableButtons {
		var buttons []Button
		if track.Links.AppleMusic != "" {
			buttons = append(buttons, Button{Label: "Open/Search Apple Music", URL: track.Links.AppleMusic})
		}
		if track.Links.SpotifySearch != "" {
			buttons = append(buttons, Button{Label: "Search Spotify", URL: track.Links.SpotifySearch})
		}
		p.Buttons = lo.Subset(buttons, 0, maxButtons)
	}
	return p
}

// Hash is a content hash over every field the peer displays.
func (p Presence) Hash() uint64 {
	d := xxhash.New()
	write := func(s string) {
		d.WriteString(s)
		d.Write([]byte{0})
	}
	write(strconv.Itoa(p.ActivityType))
	write(p.Name)
	write(p.Details)
	write(p.State)
	if p.StartTimestamp != nil {
		write(strconv.FormatInt(*p.StartTimestamp, 10))
	} else {
		write("-")
	}
	write(strconv.FormatBool(p.IsPlaying))
	write(p.LargeImage)
	write(p.LargeText)
	write(p.SmallImage)
	write(p.SmallText)
	for _, b := range p.Buttons {
		write(b.Label)
		write(b.URL)
	}
	return d.Sum64()
}
