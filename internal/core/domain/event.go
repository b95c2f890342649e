package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventError     EventType = "error"
	EventCancelled EventType = "cancelled"
)

// StreamEvent is one decoded lifecycle event from a resource subscription.
// All four named event kinds flow through the same channel and are
// dispatched with a switch on Type.
type StreamEvent struct {
	Type      EventType
	Stage     Stage
	Progress  int
	Message   string
	Timestamp time.Time
	Results   map[string]any
	Error     string
}

type eventPayload struct {
	Stage     string         `json:"stage"`
	Progress  *int           `json:"progress"`
	Message   string         `json:"message"`
	Timestamp int64          `json:"timestamp"`
	Results   map[string]any `json:"results"`
	Error     string         `json:"error"`
}

// ParseStreamEvent decodes the JSON payload of a named stream event.
// The backend emits timestamps as epoch milliseconds; a missing timestamp
// falls back to local time so eviction bookkeeping always has something
// to work with.
func ParseStreamEvent(name string, data []byte) (StreamEvent, error) {
	eventType := EventType(strings.TrimSpace(name))
	switch eventType {
	case EventProgress, EventCompleted, EventError, EventCancelled:
	case "":
		eventType = EventProgress
	default:
		return StreamEvent{}, fmt.Errorf("unknown stream event %q", name)
	}

	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return StreamEvent{}, fmt.Errorf("decode %s event payload: %w", eventType, err)
	}

	event := StreamEvent{
		Type:      eventType,
		Message:   payload.Message,
		Timestamp: time.Now(),
		Results:   payload.Results,
		Error:     payload.Error,
	}
	if payload.Timestamp > 0 {
		event.Timestamp = time.UnixMilli(payload.Timestamp)
	}
	if payload.Progress != nil {
		event.Progress = *payload.Progress
	}

	switch eventType {
	case EventProgress:
		event.Stage = Stage(payload.Stage)
		if event.Stage == "" {
			event.Stage = StageAnalyzing
		}
		if !event.Stage.Known() {
			return StreamEvent{}, fmt.Errorf("unknown stage %q in progress event", payload.Stage)
		}
	case EventCompleted:
		event.Stage = StageCompleted
		event.Progress = 100
	case EventError:
		event.Stage = StageError
		if event.Error == "" {
			event.Error = "processing failed"
		}
	case EventCancelled:
		event.Stage = StageCancelled
	}

	return event, nil
}
