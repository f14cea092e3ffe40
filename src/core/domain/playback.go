package domain

import "fmt"

// Playback is the server-authoritative clock for the active track.
//
// PositionMS is a baseline snapshot taken at ServerTSMS. While IsPlaying the
// real position keeps advancing with the server clock; otherwise it is frozen.
type Playback struct {
	IsPlaying  bool  `json:"is_playing"`
	PositionMS int64 `json:"position_ms"`
	ServerTSMS int64 `json:"server_ts_ms"`
}

// PlaybackAction is a transport-level command on the clock.
type PlaybackAction string

const (
	ActionPlay    PlaybackAction = "play"
	ActionPause   PlaybackAction = "pause"
	ActionStop    PlaybackAction = "stop"
	ActionRestart PlaybackAction = "restart"
	ActionSeek    PlaybackAction = "seek"
)

// ParsePlaybackAction validates a command name.
func ParsePlaybackAction(s string) (PlaybackAction, error) {
	switch a := PlaybackAction(s); a {
	case ActionPlay, ActionPause, ActionStop, ActionRestart, ActionSeek:
		return a, nil
	default:
		return "", NewValidationError("action", fmt.Sprintf("unknown playback action %q", s))
	}
}

// StartPlayback is the clock right after a submission is activated.
func StartPlayback(autoplay bool, nowMS int64) Playback {
	return Playback{IsPlaying: autoplay, PositionMS: 0, ServerTSMS: nowMS}
}

// ResetPlayback is the cleared clock.
func ResetPlayback(nowMS int64) Playback {
	return Playback{IsPlaying: false, PositionMS: 0, ServerTSMS: nowMS}
}

// PositionAt derives the elapsed position at nowMS. Any client holding the
// broadcast payload can evaluate it against its own clock.
func (p Playback) PositionAt(nowMS int64) int64 {
	pos := p.PositionMS
	if p.IsPlaying {
		pos += max(0, nowMS-p.ServerTSMS)
	}
	return max(0, pos)
}

// Apply runs one transition. targetMS is only read for seek; durationMS is a
// soft upper bound for seek and 0 means unknown.
func (p Playback) Apply(action PlaybackAction, nowMS, targetMS, durationMS int64) (Playback, error) {
	switch action {
	case ActionPlay:
		p.IsPlaying = true
		p.ServerTSMS = nowMS
	case ActionPause:
		p.PositionMS = p.PositionAt(nowMS)
		p.IsPlaying = false
		p.ServerTSMS = nowMS
	case ActionStop:
		p.IsPlaying = false
		p.PositionMS = 0
		p.ServerTSMS = nowMS
	case ActionRestart:
		p.PositionMS = 0
		p.ServerTSMS = nowMS
	case ActionSeek:
		p.PositionMS = ClampSeek(targetMS, durationMS)
		p.ServerTSMS = nowMS
	default:
		return p, NewValidationError("action", fmt.Sprintf("unknown playback action %q", action))
	}
	return p, nil
}

// ClampSeek bounds a seek target to [0, durationMS]; an unknown duration only
// clamps from below.
func ClampSeek(targetMS, durationMS int64) int64 {
	targetMS = max(0, targetMS)
	if durationMS > 0 {
		targetMS = min(targetMS, durationMS)
	}
	return targetMS
}
