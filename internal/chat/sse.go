package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aiox-platform/bookingbot/internal/agent"
	"github.com/aiox-platform/bookingbot/internal/uiparts"
)

type startPayload struct {
	Agent  string `json:"agent"`
	Locale string `json:"locale"`
}

type textPayload struct {
	Text string `json:"text"`
}

type toolPayload struct {
	Tool string `json:"tool"`
}

type donePayload struct {
	Agent        string         `json:"agent"`
	FullResponse string         `json:"full_response"`
	Parts        []uiparts.Part `json:"parts"`
	Locale       string         `json:"locale"`
}

// sseWriter writes server-sent events. Headers go out with the first event
// so admission errors can still be answered as JSON.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("response writer cannot flush")
	}
	return &sseWriter{w: w, flusher: f}, nil
}

func (s *sseWriter) event(ev agent.Event) error {
	switch ev.Type {
	case agent.EventAgentStart:
		return s.send(string(ev.Type), startPayload{Agent: string(ev.Agent), Locale: ev.Locale})
	case agent.EventToolStart, agent.EventToolDone:
		return s.send(string(ev.Type), toolPayload{Tool: ev.Tool})
	default:
		return s.send(string(ev.Type), textPayload{Text: ev.Text})
	}
}

func (s *sseWriter) send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", event, err)
	}
	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache, no-transform")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
