package voice

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type EventType string

const (
	EventCallStarted EventType = "call.started"
	EventCallEnded   EventType = "call.ended"
	EventCallFailed  EventType = "call.failed"
	EventIgnored     EventType = "ignored"
)

// Event is a normalized inbound lifecycle notification.
type Event struct {
	Type EventType
	// RawType is the provider's type string before normalization.
	RawType string
	CallID  string
	// AssistantID identifies the local call when CallID was never stored.
	AssistantID string
	EndedReason string
}

var ErrMalformedEvent = errors.New("voice: malformed event")

type eventCall struct {
	ID          string `json:"id"`
	AssistantID string `json:"assistantId"`
	EndedReason string `json:"endedReason"`
}

type eventEnvelope struct {
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	EndedReason string     `json:"endedReason"`
	Call        *eventCall `json:"call"`
	Message     *struct {
		Type        string     `json:"type"`
		Status      string     `json:"status"`
		EndedReason string     `json:"endedReason"`
		Call        *eventCall `json:"call"`
	} `json:"message"`
}

// ParseEvent accepts both {type, call} and {message: {type, call}} envelopes.
// An event without a call id parses as EventIgnored.
func ParseEvent(body []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	rawType, status, endedReason, call := env.Type, env.Status, env.EndedReason, env.Call
	if env.Message != nil {
		if rawType == "" {
			rawType = env.Message.Type
		}
		if status == "" {
			status = env.Message.Status
		}
		if endedReason == "" {
			endedReason = env.Message.EndedReason
		}
		if call == nil {
			call = env.Message.Call
		}
	}

	ev := Event{RawType: rawType, EndedReason: endedReason}
	if call != nil {
		ev.CallID = strings.TrimSpace(call.ID)
		ev.AssistantID = strings.TrimSpace(call.AssistantID)
		if ev.EndedReason == "" {
			ev.EndedReason = call.EndedReason
		}
	}
	ev.Type = normalizeType(rawType, status)
	if ev.CallID == "" {
		ev.Type = EventIgnored
	}
	return ev, nil
}

func normalizeType(rawType, status string) EventType {
	switch strings.ToLower(strings.TrimSpace(rawType)) {
	case "call.started", "call-started":
		return EventCallStarted
	case "call.ended", "call-ended", "end-of-call-report":
		return EventCallEnded
	case "call.failed", "call-failed":
		return EventCallFailed
	case "status-update":
		switch status {
		case "in-progress":
			return EventCallStarted
		case "ended":
			return EventCallEnded
		}
	}
	return EventIgnored
}
