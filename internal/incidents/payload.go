package incidents

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/spec-kit/incident-sync/internal/domain"
	"github.com/spec-kit/incident-sync/internal/events"
)

// payloadShape tags how an event payload carries its incident.
type payloadShape int

const (
	shapeInline payloadShape = iota
	shapeNestedIncident
	shapeNestedData
)

func (s payloadShape) String() string {
	switch s {
	case shapeNestedIncident:
		return "incident"
	case shapeNestedData:
		return "data"
	default:
		return "inline"
	}
}

var errEmptyPayload = errors.New("empty incident payload")

// classify picks the incident-bearing object out of an event payload.
func classify(fields map[string]json.RawMessage) (payloadShape, json.RawMessage) {
	if raw, ok := fields["incident"]; ok && isJSONObject(raw) {
		return shapeNestedIncident, raw
	}
	if raw, ok := fields["data"]; ok && isJSONObject(raw) {
		return shapeNestedData, raw
	}
	return shapeInline, nil
}

// ExtractIncident returns the raw incident record carried by an event payload,
// whatever envelope shape the server used.
func ExtractIncident(payload []byte) (domain.RawIncident, error) {
	if len(payload) == 0 {
		return nil, errEmptyPayload
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if fields == nil {
		return nil, errEmptyPayload
	}

	shape, nested := classify(fields)
	body := []byte(payload)
	if shape != shapeInline {
		body = nested
	}

	var raw domain.RawIncident
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode %s incident: %w", shape, err)
	}
	if raw == nil {
		return nil, errEmptyPayload
	}
	if shape == shapeInline {
		stripDiscriminators(raw)
	}
	return raw, nil
}

// stripDiscriminators removes envelope keys that would otherwise be read as
// incident fields; "type" is only dropped when it names an event.
func stripDiscriminators(raw domain.RawIncident) {
	delete(raw, "action")
	if name, ok := raw["type"].(string); ok && isEventName(name) {
		delete(raw, "type")
	}
}

func isEventName(name string) bool {
	for _, t := range events.IncidentEventTypes {
		if string(t) == name {
			return true
		}
	}
	return false
}

func isJSONObject(raw json.RawMessage) bool {
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
