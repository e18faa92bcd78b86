package confdesk

import (
	"fmt"

	"go.uber.org/zap"
)

// NotificationService turns status updates into user notifications
type NotificationService struct {
	logger   *zap.SugaredLogger
	notifier Notifier
}

func NewNotificationService(logger *zap.SugaredLogger, notifier Notifier) *NotificationService {
	return &NotificationService{
		logger:   logger.Named("notifications"),
		notifier: notifier,
	}
}

func (ns *NotificationService) Submit(update StatusUpdate) {
	title := statusTitle(update)

	ns.logger.Debugw("Submitting status notification", "title", title, "device", update.Device.Name)
	ns.notifier.Notify(title, update.Device.Name)
}

// statusTitle reads like "New Audio Input Device Connected"
func statusTitle(update StatusUpdate) string {
	status := "Disconnected"
	if update.Device.IsConnected {
		status = "Connected"
	}

	title := fmt.Sprintf("%s %s Device %s", update.Device.Kind, update.Device.Direction, status)
	if update.IsNew {
		title = "New " + title
	}

	return title
}
