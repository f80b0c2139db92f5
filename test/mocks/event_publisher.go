package mocks

import (
	"github.com/stretchr/testify/mock"

	"whalefall/domain/events"
)

// MockSyncEventPublisher is a mock implementation of SyncEventPublisher for testing
type MockSyncEventPublisher struct {
	mock.Mock
}

func (m *MockSyncEventPublisher) PublishSessionCompleted(event events.SessionCompletedEvent) {
	m.Called(event)
}

func (m *MockSyncEventPublisher) PublishSessionFailed(event events.SessionFailedEvent) {
	m.Called(event)
}

func (m *MockSyncEventPublisher) PublishSessionCancelled(event events.SessionCancelledEvent) {
	m.Called(event)
}

func (m *MockSyncEventPublisher) PublishInstanceSyncFinished(event events.InstanceSyncFinishedEvent) {
	m.Called(event)
}
