package engine

import (
	"log/slog"
	"time"

	"github.com/marcus-crane/presence-bridge/config"
	"github.com/marcus-crane/presence-bridge/playback"
)

type DiffKind int

const (
	DiffNothing DiffKind = iota
	DiffTrackChanged
	DiffStateChanged
)

func (d DiffKind) String() string {
	switch d {
	case DiffTrackChanged:
		return "track_changed"
	case DiffStateChanged:
		return "state_changed"
	}
	return "nothing"
}

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSend
	ActionClear
)

func (a ActionKind) String() string {
	switch a {
	case ActionSend:
		return "send"
	case ActionClear:
		return "clear"
	}
	return "none"
}

// Output is the decision for one tick. Presence is set only for ActionSend.
type Output struct {
	Action   ActionKind
	Presence *Presence
	NextPoll time.Duration
	Diff     DiffKind
}

type Config struct {
	PlayingPoll       time.Duration
	PausedPoll        time.Duration
	StoppedPoll       time.Duration
	MinUpdateInterval time.Duration
	Debounce          time.Duration
	EnableButtons     bool
	LargeImage        string
	LargeText         string
	SmallPlayImage    string
	SmallPauseImage   string
}

func ConfigFrom(cfg config.Config) Config {
	ms := func(v int64) time.Duration { return time.Duration(v) * time.Millisecond }
	return Config{
		PlayingPoll:       ms(cfg.Intervals.PlayingPollMs),
		PausedPoll:        ms(cfg.Intervals.PausedPollMs),
		StoppedPoll:       ms(cfg.Intervals.StoppedPollMs),
		MinUpdateInterval: ms(cfg.Intervals.PresenceMinUpdateMs),
		Debounce:          ms(cfg.Intervals.DebounceMs),
		EnableButtons:     cfg.EnableButtons,
		LargeImage:        cfg.Assets.LargeImage,
		LargeText:         cfg.Assets.LargeText,
		SmallPlayImage:    cfg.Assets.SmallPlayImage,
		SmallPauseImage:   cfg.Assets.SmallPauseImage,
	}
}

// Engine decides what to publish for each snapshot. It does no I/O and is not
// safe for concurrent use; the driver loop owns it.
//
// Time comes in two flavours: now is compared against earlier readings (use a
// time.Time carrying a monotonic clock reading) and wall only feeds the start
// timestamp shown by the peer.
type Engine struct {
	cfg Config

	lastTrack    *playback.Track
	lastSentHash uint64
	hasSentHash  bool
	lastSentAt   time.Time
	lastFlipAt   time.Time
	stableStart  *int64
}

func New(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// UpdateConfig swaps the configuration and keeps all history.
func (e *Engine) UpdateConfig(cfg Config) {
	e.cfg = cfg
}

func (e *Engine) Tick(snapshot playback.Snapshot, now, wall time.Time) Output {
	nextPoll := e.nextPoll(snapshot.Status)
	current := snapshot.Track
	prev := e.lastTrack

	diff := classify(prev, current)
	flipped := prev != nil && current != nil && prev.ID == current.ID && prev.IsPlaying != current.IsPlaying

	if diff == DiffStateChanged && flipped && e.withinDebounce(now) {
		// History is left untouched here. A state that persists past the window
		// shows up as a normal change on a later tick.
		slog.Debug("Suppressed play/pause flicker",
			slog.String("track_id", current.ID),
			slog.Bool("is_playing", current.IsPlaying))
		return Output{Action: ActionNone, NextPoll: nextPoll, Diff: DiffNothing}
	}

	e.updateStableStart(prev, current, wall)

	var out Output
	if current == nil {
		if prev != nil {
			e.hasSentHash = false
			e.lastSentAt = now
			out.Action = ActionClear
		}
	} else {
		presence := e.presenceFor(current)
		immediate := diff == DiffTrackChanged || diff == DiffStateChanged
		keepaliveDue := e.lastSentAt.IsZero() || now.Sub(e.lastSentAt) >= e.cfg.MinUpdateInterval

		// Sends whenever this holds, even when the hash matches the last send.
		if immediate || (current.IsPlaying && keepaliveDue) {
			e.lastSentHash = presence.Hash()
			e.hasSentHash = true
			e.lastSentAt = now
			out.Action = ActionSend
			out.Presence = &presence
		}
	}

	if flipped {
		e.lastFlipAt = now
	}
	e.lastTrack = current

	out.NextPoll = nextPoll
	out.Diff = diff
	return out
}

// LastSentHash returns the hash of the last presence sent, if any. It is reset
// by a clear.
func (e *Engine) LastSentHash() (uint64, bool) {
	return e.lastSentHash, e.hasSentHash
}

func classify(prev, current *playback.Track) DiffKind {
	switch {
	case prev == nil && current == nil:
		return DiffNothing
	case prev == nil || current == nil:
		return DiffTrackChanged
	case prev.ID != current.ID:
		return DiffTrackChanged
	case prev.IsPlaying != current.IsPlaying:
		return DiffStateChanged
	}
	return DiffNothing
}

func (e *Engine) withinDebounce(now time.Time) bool {
	if !e.lastFlipAt.IsZero() && now.Sub(e.lastFlipAt) < e.cfg.Debounce {
		return true
	}
	return !e.lastSentAt.IsZero() && now.Sub(e.lastSentAt) < e.cfg.Debounce
}

// updateStableStart keeps the start timestamp fixed for as long as the same
// track keeps playing, so position jitter between polls doesn't move it.
func (e *Engine) updateStableStart(prev, current *playback.Track, wall time.Time) {
	if current == nil || !current.IsPlaying {
		e.stableStart = nil
		return
	}
	if prev != nil && prev.ID == current.ID && e.stableStart != nil {
		return
	}
	start := wall.Unix() - int64(current.Position/time.Second)
	e.stableStart = &start
}

func (e *Engine) nextPoll(status playback.Status) time.Duration {
	switch status {
	case playback.StatusPlaying:
		return e.cfg.PlayingPoll
	case playback.StatusPaused:
		return e.cfg.PausedPoll
	}
	return e.cfg.StoppedPoll
}
