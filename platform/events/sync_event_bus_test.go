package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"whalefall/domain/events"
	"whalefall/domain/sync"
)

func createTestSession(status sync.SessionStatus) *sync.SyncSession {
	factory := &sync.SessionFactory{}
	session := factory.NewSession(sync.SyncTypeBatch, sync.SyncCategoryAccounts, "tester")
	session.Status = status
	return session
}

func TestSyncEventBus_PublishSessionCompleted_Success(t *testing.T) {
	// Arrange
	eventBus := NewSyncEventBus()
	session := createTestSession(sync.SessionStatusCompleted)

	done := make(chan events.SessionCompletedEvent, 1)

	// Subscribe to the event
	eventBus.OnSessionCompleted(func(event events.SessionCompletedEvent) {
		done <- event
	})

	// Act
	testEvent := events.SessionCompletedEvent{
		Session:   session,
		Timestamp: time.Now(),
	}
	eventBus.PublishSessionCompleted(testEvent)

	// Assert
	select {
	case receivedEvent := <-done:
		assert.Equal(t, testEvent.Session.SessionID, receivedEvent.Session.SessionID)
		assert.Equal(t, testEvent.Session.Status, receivedEvent.Session.Status)
		assert.False(t, receivedEvent.Timestamp.IsZero())
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Handler was not called within timeout")
	}
}

func TestSyncEventBus_PublishSessionFailed_Success(t *testing.T) {
	// Arrange
	eventBus := NewSyncEventBus()
	session := createTestSession(sync.SessionStatusFailed)

	done := make(chan events.SessionFailedEvent, 1)

	eventBus.OnSessionFailed(func(event events.SessionFailedEvent) {
		done <- event
	})

	// Act
	testEvent := events.SessionFailedEvent{
		Session:   session,
		Error:     "Test error message",
		Timestamp: time.Now(),
	}
	eventBus.PublishSessionFailed(testEvent)

	// Assert
	select {
	case receivedEvent := <-done:
		assert.Equal(t, session.SessionID, receivedEvent.Session.SessionID)
		assert.Equal(t, "Test error message", receivedEvent.Error)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Handler was not called within timeout")
	}
}

func TestSyncEventBus_MultipleHandlersAllCalled(t *testing.T) {
	eventBus := NewSyncEventBus()
	session := createTestSession(sync.SessionStatusCompleted)

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)

	eventBus.OnSessionCompleted(func(events.SessionCompletedEvent) { first <- struct{}{} })
	eventBus.OnSessionCompleted(func(events.SessionCompletedEvent) { second <- struct{}{} })

	eventBus.PublishSessionCompleted(events.SessionCompletedEvent{Session: session, Timestamp: time.Now()})

	for _, ch := range []chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("Handler was not called within timeout")
		}
	}
}

func TestSyncEventBus_PanickingHandlerIsIsolated(t *testing.T) {
	eventBus := NewSyncEventBus()
	session := createTestSession(sync.SessionStatusCancelled)

	done := make(chan struct{}, 1)

	eventBus.OnSessionCancelled(func(events.SessionCancelledEvent) {
		panic("handler bug")
	})
	eventBus.OnSessionCancelled(func(events.SessionCancelledEvent) {
		done <- struct{}{}
	})

	eventBus.PublishSessionCancelled(events.SessionCancelledEvent{Session: session, Timestamp: time.Now()})

	select {
	case <-done:
		// Healthy handler still ran despite the panicking sibling.
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Healthy handler was not called within timeout")
	}
}

func TestSyncEventBus_InstanceSyncFinished(t *testing.T) {
	eventBus := NewSyncEventBus()

	done := make(chan events.InstanceSyncFinishedEvent, 1)
	eventBus.OnInstanceSyncFinished(func(event events.InstanceSyncFinishedEvent) {
		done <- event
	})

	record := &sync.SyncInstanceRecord{
		RecordID:   "rec-1",
		SessionID:  "sess-1",
		InstanceID: "inst-1",
		Status:     sync.RecordStatusCompleted,
	}
	eventBus.PublishInstanceSyncFinished(events.InstanceSyncFinishedEvent{Record: record, Timestamp: time.Now()})

	select {
	case receivedEvent := <-done:
		assert.Equal(t, "rec-1", receivedEvent.Record.RecordID)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Handler was not called within timeout")
	}
}
