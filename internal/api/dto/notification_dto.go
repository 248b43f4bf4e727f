package dto

import "github.com/spec-kit/incident-sync/internal/domain"

// NotificationListResponse returns the log with its unread count.
type NotificationListResponse struct {
	Data   []domain.Notification `json:"data"`
	Unread int                   `json:"unread"`
}
