package events

import (
	"sync"

	"whalefall/domain/events"
	"whalefall/logging"
)

// SyncEventBus provides type-safe event publishing and subscription for
// sync-related events. Handlers run asynchronously so publishers never block
// on observers, and a panicking handler is isolated and logged.
type SyncEventBus struct {
	mu     sync.RWMutex
	logger *logging.Logger

	sessionCompletedHandlers     []func(events.SessionCompletedEvent)
	sessionFailedHandlers        []func(events.SessionFailedEvent)
	sessionCancelledHandlers     []func(events.SessionCancelledEvent)
	instanceSyncFinishedHandlers []func(events.InstanceSyncFinishedEvent)
}

// NewSyncEventBus creates a new typed sync event bus
func NewSyncEventBus() *SyncEventBus {
	return &SyncEventBus{
		logger:                       logging.Default().WithComponent("sync_event_bus"),
		sessionCompletedHandlers:     make([]func(events.SessionCompletedEvent), 0),
		sessionFailedHandlers:        make([]func(events.SessionFailedEvent), 0),
		sessionCancelledHandlers:     make([]func(events.SessionCancelledEvent), 0),
		instanceSyncFinishedHandlers: make([]func(events.InstanceSyncFinishedEvent), 0),
	}
}

// Subscribe methods for each event type

func (bus *SyncEventBus) OnSessionCompleted(handler func(events.SessionCompletedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.sessionCompletedHandlers = append(bus.sessionCompletedHandlers, handler)
}

func (bus *SyncEventBus) OnSessionFailed(handler func(events.SessionFailedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.sessionFailedHandlers = append(bus.sessionFailedHandlers, handler)
}

func (bus *SyncEventBus) OnSessionCancelled(handler func(events.SessionCancelledEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.sessionCancelledHandlers = append(bus.sessionCancelledHandlers, handler)
}

func (bus *SyncEventBus) OnInstanceSyncFinished(handler func(events.InstanceSyncFinishedEvent)) {
	bus.mu.Lock()
	defer bus.mu.Unlock()
	bus.instanceSyncFinishedHandlers = append(bus.instanceSyncFinishedHandlers, handler)
}

// Publish methods for each event type

func (bus *SyncEventBus) PublishSessionCompleted(event events.SessionCompletedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.SessionCompletedEvent), len(bus.sessionCompletedHandlers))
	copy(handlers, bus.sessionCompletedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.SessionCompletedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in SessionCompleted",
						"session_id", event.Session.SessionID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *SyncEventBus) PublishSessionFailed(event events.SessionFailedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.SessionFailedEvent), len(bus.sessionFailedHandlers))
	copy(handlers, bus.sessionFailedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.SessionFailedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in SessionFailed",
						"session_id", event.Session.SessionID,
						"error", event.Error,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *SyncEventBus) PublishSessionCancelled(event events.SessionCancelledEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.SessionCancelledEvent), len(bus.sessionCancelledHandlers))
	copy(handlers, bus.sessionCancelledHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.SessionCancelledEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in SessionCancelled",
						"session_id", event.Session.SessionID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}

func (bus *SyncEventBus) PublishInstanceSyncFinished(event events.InstanceSyncFinishedEvent) {
	bus.mu.RLock()
	handlers := make([]func(events.InstanceSyncFinishedEvent), len(bus.instanceSyncFinishedHandlers))
	copy(handlers, bus.instanceSyncFinishedHandlers)
	bus.mu.RUnlock()

	for _, handler := range handlers {
		go func(h func(events.InstanceSyncFinishedEvent)) {
			defer func() {
				if r := recover(); r != nil {
					bus.logger.Error("Event handler panicked in InstanceSyncFinished",
						"record_id", event.Record.RecordID,
						"panic", r)
				}
			}()
			h(event)
		}(handler)
	}
}
