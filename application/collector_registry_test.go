package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
	"whalefall/test/mocks"
)

func TestCollectorRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewCollectorRegistry()
	registry.RegisterCollector(&mocks.MockCollector{Vendor: dbaccount.DbTypeMySQL})
	registry.RegisterCollector(&mocks.MockCollector{Vendor: dbaccount.DbTypePostgres})

	collector, err := registry.GetCollector(dbaccount.DbTypeMySQL)
	require.NoError(t, err)
	assert.Equal(t, dbaccount.DbTypeMySQL, collector.DbType())

	assert.True(t, registry.IsSupported(dbaccount.DbTypePostgres))
	assert.False(t, registry.IsSupported(dbaccount.DbTypeOracle))
	assert.ElementsMatch(t,
		[]dbaccount.DbType{dbaccount.DbTypeMySQL, dbaccount.DbTypePostgres},
		registry.SupportedDbTypes())
}

func TestCollectorRegistry_UnknownVendor(t *testing.T) {
	registry := NewCollectorRegistry()

	_, err := registry.GetCollector(dbaccount.DbTypeSQLServer)

	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrNoCollector)
}

func TestCollectorRegistry_LastRegistrationWins(t *testing.T) {
	first := &mocks.MockCollector{Vendor: dbaccount.DbTypeMySQL}
	second := &mocks.MockCollector{Vendor: dbaccount.DbTypeMySQL}
	registry := NewCollectorRegistry()
	registry.RegisterCollector(first)
	registry.RegisterCollector(second)

	collector, err := registry.GetCollector(dbaccount.DbTypeMySQL)
	require.NoError(t, err)
	assert.Same(t, second, collector)
	assert.Len(t, registry.SupportedDbTypes(), 1)
}

func TestSyncInstanceByID_CollectorErrorCarriesInstanceScope(t *testing.T) {
	instance := testInstance("inst-1", dbaccount.DbTypeMySQL)
	instanceRepo := &mocks.MockInstanceRepository{}
	instanceRepo.On("GetInstance", mock.Anything, "inst-1").Return(instance, nil)

	collector := &mocks.MockCollector{Vendor: dbaccount.DbTypeMySQL}
	collector.On("Collect", mock.Anything, instance).Return(nil, assert.AnError)

	registry := NewCollectorRegistry()
	registry.RegisterCollector(collector)

	coordinator := NewSessionCoordinator(&mocks.MockSessionRepository{})
	classifier := NewClassificationService(&mocks.MockClassificationRepository{})
	service := NewSyncService(instanceRepo, &mocks.MockAccountRepository{}, registry,
		classifier, coordinator, &mocks.MockSyncEventPublisher{}, DefaultSyncOptions())

	_, err := service.SyncInstanceByID(context.Background(), "inst-1")

	require.Error(t, err)
	var collectorErr *contracts.CollectorError
	require.ErrorAs(t, err, &collectorErr)
	assert.Equal(t, "inst-1", collectorErr.InstanceID)
	assert.Equal(t, dbaccount.DbTypeMySQL, collectorErr.DbType)
	collector.AssertExpectations(t)
}

func TestSyncInstanceByID_UnknownInstance(t *testing.T) {
	instanceRepo := &mocks.MockInstanceRepository{}
	instanceRepo.On("GetInstance", mock.Anything, "missing").Return(nil, contracts.ErrInstanceNotFound)

	coordinator := NewSessionCoordinator(&mocks.MockSessionRepository{})
	classifier := NewClassificationService(&mocks.MockClassificationRepository{})
	service := NewSyncService(instanceRepo, &mocks.MockAccountRepository{}, NewCollectorRegistry(),
		classifier, coordinator, &mocks.MockSyncEventPublisher{}, DefaultSyncOptions())

	_, err := service.SyncInstanceByID(context.Background(), "missing")

	assert.ErrorIs(t, err, contracts.ErrInstanceNotFound)
}
