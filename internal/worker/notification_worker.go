package worker

import (
	"github.com/spec-kit/incident-sync/internal/service"
)

// StartNotificationWorker registers notification handlers and returns a func
// that removes them again.
func StartNotificationWorker(notifications *service.NotificationService) (stop func()) {
	if notifications == nil {
		return func() {}
	}
	notifications.RegisterHandlers()
	return notifications.UnregisterHandlers
}
