package output

import "time"

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type EventName string

const (
	EventRunStarted    EventName = "run_started"
	EventTrackStarted  EventName = "track_started"
	EventTrackSkipped  EventName = "track_skipped"
	EventTrackFinished EventName = "track_finished"
	EventTrackDeferred EventName = "track_deferred"
	EventTrackFailed   EventName = "track_failed"
	EventRunFinished   EventName = "run_finished"
)

type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Event     EventName      `json:"event"`
	TrackKey  string         `json:"track_key,omitempty"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}
