package domain

import "time"

// JournalEntry is one inbound frame as recorded by the frame journal.
type JournalEntry struct {
	ID           int64     `json:"id"`
	EventName    string    `json:"eventName"`
	IncidentUUID string    `json:"incidentUuid"`
	Payload      []byte    `json:"-"`
	ReceivedAt   time.Time `json:"receivedAt"`
}
