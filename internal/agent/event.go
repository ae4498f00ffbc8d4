package agent

import "log/slog"

type EventType string

const (
	EventAgentStart   EventType = "agent_start"
	EventContentDelta EventType = "content_delta"
	EventToolStart    EventType = "tool_start"
	EventToolDone     EventType = "tool_done"
	EventError        EventType = "error"
	EventDone         EventType = "done"
)

// Event is one streamed progress notification. Agent and Locale are set on
// agent_start only.
type Event struct {
	Type   EventType
	Text   string
	Tool   string
	Agent  Name
	Locale string
}

// emitter forwards events until the first delivery failure.
type emitter struct {
	emit   func(Event) error
	agent  Name
	failed bool
}

func (e *emitter) send(ev Event) {
	if e.emit == nil || e.failed {
		return
	}
	if err := e.emit(ev); err != nil {
		e.failed = true
		slog.Warn("stream consumer gone, dropping events", "agent", e.agent, "error", err)
	}
}
