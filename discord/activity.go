package discord

import "github.com/marcus-crane/presence-bridge/engine"

type activity struct {
	Type       int             `json:"type"`
	Name       string          `json:"name"`
	Details    string          `json:"details"`
	State      string          `json:"state"`
	Timestamps timestamps      `json:"timestamps"`
	Assets     *assets         `json:"assets,omitempty"`
	Buttons    []engine.Button `json:"buttons,omitempty"`
}

type timestamps struct {
	Start *int64 `json:"start,omitempty"`
}

type assets struct {
	LargeImage string `json:"large_image,omitempty"`
	LargeText  string `json:"large_text,omitempty"`
	SmallImage string `json:"small_image,omitempty"`
	SmallText  string `json:"small_text,omitempty"`
}

func activityFrom(p engine.Presence) activity {
	a := activity{
		Type:       p.ActivityType,
		Name:       p.Name,
		Details:    p.Details,
		State:      p.State,
		Timestamps: timestamps{Start: p.StartTimestamp},
		Buttons:    p.Buttons,
	}
	art := assets{
		LargeImage: p.LargeImage,
		LargeText:  p.LargeText,
		SmallImage: p.SmallImage,
		SmallText:  p.SmallText,
	}
	if art != (assets{}) {
		a.Assets = &art
	}
	return a
}
