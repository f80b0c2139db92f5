package events

// SyncEventPublisher defines the interface for publishing sync-related events.
type SyncEventPublisher interface {
	PublishSessionCompleted(event SessionCompletedEvent)
	PublishSessionFailed(event SessionFailedEvent)
	PublishSessionCancelled(event SessionCancelledEvent)
	PublishInstanceSyncFinished(event InstanceSyncFinishedEvent)
}
