package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"whalefall/domain/dbaccount"
)

// MockCollector is a mock implementation of Collector for testing
type MockCollector struct {
	mock.Mock

	Vendor dbaccount.DbType
}

func (m *MockCollector) DbType() dbaccount.DbType {
	return m.Vendor
}

func (m *MockCollector) Collect(ctx context.Context, instance *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
	args := m.Called(ctx, instance)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbaccount.InstanceSnapshot), args.Error(1)
}
