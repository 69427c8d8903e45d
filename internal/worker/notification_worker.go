package worker

import (
	"go.uber.org/zap"

	"github.com/deskflow/helpdesk-assistant/internal/service"
)

// StartNotificationWorker subscribes the notification handlers to the
// dispatcher. Delivery is synchronous with the publishing request.
func StartNotificationWorker(notificationService *service.NotificationService, logger *zap.Logger) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
	if logger != nil {
		logger.Info("notification handlers registered")
	}
}
