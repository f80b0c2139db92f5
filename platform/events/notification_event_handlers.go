package events

import (
	"whalefall/domain/events"
	"whalefall/logging"
)

// NotificationEventHandlers turns sync events into operator-visible log
// summaries. The web layer queries session state directly; this handler is
// the always-on observer that survives without any connected client.
type NotificationEventHandlers struct {
	logger *logging.Logger
}

// NewNotificationEventHandlers creates event handlers for notifications
func NewNotificationEventHandlers() *NotificationEventHandlers {
	return &NotificationEventHandlers{
		logger: logging.Default().WithComponent("notification_events"),
	}
}

// RegisterHandlers registers all notification event handlers with the event bus
func (h *NotificationEventHandlers) RegisterHandlers(eventBus *SyncEventBus) {
	eventBus.OnSessionCompleted(h.handleSessionCompleted)
	eventBus.OnSessionFailed(h.handleSessionFailed)
	eventBus.OnSessionCancelled(h.handleSessionCancelled)
	eventBus.OnInstanceSyncFinished(h.handleInstanceSyncFinished)
}

func (h *NotificationEventHandlers) handleSessionCompleted(event events.SessionCompletedEvent) {
	if event.Session == nil {
		return
	}
	h.logger.Info("Sync session completed",
		"session_id", event.Session.SessionID,
		"total_instances", event.Session.TotalInstances,
		"duration", event.Session.Duration().String())
}

func (h *NotificationEventHandlers) handleSessionFailed(event events.SessionFailedEvent) {
	if event.Session == nil {
		return
	}
	h.logger.Error("Sync session failed",
		"session_id", event.Session.SessionID,
		"error", event.Error)
}

func (h *NotificationEventHandlers) handleSessionCancelled(event events.SessionCancelledEvent) {
	if event.Session == nil {
		return
	}
	h.logger.Info("Sync session cancelled",
		"session_id", event.Session.SessionID,
		"total_instances", event.Session.TotalInstances)
}

func (h *NotificationEventHandlers) handleInstanceSyncFinished(event events.InstanceSyncFinishedEvent) {
	if event.Record == nil {
		return
	}
	h.logger.Debug("Instance sync finished",
		"session_id", event.Record.SessionID,
		"instance_id", event.Record.InstanceID,
		"status", event.Record.Status,
		"items_synced", event.Record.ItemsSynced)
}
