package domain

import "time"

// NotificationType classifies log entries.
type NotificationType string

const (
	NotificationNewIncident NotificationType = "new_incident"
	NotificationAssigned    NotificationType = "assigned"
	NotificationComment     NotificationType = "comment"
	NotificationResolved    NotificationType = "resolved"
	NotificationUpdated     NotificationType = "updated"
	NotificationManaged     NotificationType = "managed"
	NotificationDeleted     NotificationType = "deleted"
)

// Notification is one entry of the persisted, bounded notification log.
type Notification struct {
	ID            string           `json:"id"`
	Type          NotificationType `json:"type"`
	Title         string           `json:"title"`
	Message       string           `json:"message"`
	IncidentID    string           `json:"incidentId"`
	IncidentTitle string           `json:"incidentTitle"`
	CreatedAt     time.Time        `json:"createdAt"`
	Read          bool             `json:"read"`
}
