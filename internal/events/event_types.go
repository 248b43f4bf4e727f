package events

import (
	"errors"
	"time"

	json "github.com/goccy/go-json"
)

// EventType names an inbound event channel.
type EventType string

const (
	EventNewIncident         EventType = "NewIncident"
	EventPublishIncident     EventType = "PublishIncident"
	EventEditIncidentContent EventType = "EditIncidentContent"
	EventIncidentDeleted     EventType = "IncidentDeleted"
	EventStaffChooseIncident EventType = "StaffChooseIncident"
	EventCoordinatorAssign   EventType = "CoordinatorAssignIncident"
	EventSolvedIncident      EventType = "SolvedIncident"
	EventAuthorityManage     EventType = "AuthorityManageIncidents"

	// EventMessage receives every parsed frame, typed or not.
	EventMessage EventType = "message"
)

// IncidentEventTypes lists every named event that carries an incident.
var IncidentEventTypes = []EventType{
	EventNewIncident,
	EventPublishIncident,
	EventEditIncidentContent,
	EventIncidentDeleted,
	EventStaffChooseIncident,
	EventCoordinatorAssign,
	EventSolvedIncident,
	EventAuthorityManage,
}

// Event is one inbound frame routed to a channel.
type Event struct {
	Type       EventType       `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	Frame      json.RawMessage `json:"frame"`
	ReceivedAt time.Time       `json:"received_at"`
}

var errNullFrame = errors.New("null frame")

var discriminatorKeys = []string{"action", "type"}

var payloadKeys = []string{"data", "payload"}

// ParseFrame decodes a raw frame into an Event. The event type comes from the
// "action" or "type" field; when both are absent the frame goes to EventMessage.
// The payload is the nested "data"/"payload" object when present, else the whole frame.
func ParseFrame(frame []byte, now time.Time) (Event, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(frame, &fields); err != nil {
		return Event{}, err
	}
	if fields == nil {
		return Event{}, errNullFrame
	}

	evt := Event{
		Type:       EventMessage,
		Payload:    json.RawMessage(frame),
		Frame:      json.RawMessage(frame),
		ReceivedAt: now,
	}

	for _, key := range discriminatorKeys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var name string
		if err := json.Unmarshal(raw, &name); err == nil && name != "" {
			evt.Type = EventType(name)
			break
		}
	}

	if evt.Type == EventMessage {
		return evt, nil
	}

	for _, key := range payloadKeys {
		raw, ok := fields[key]
		if ok && isObject(raw) {
			evt.Payload = raw
			break
		}
	}
	return evt, nil
}

func isObject(raw json.RawMessage) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
