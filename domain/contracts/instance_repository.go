package contracts

import (
	"context"

	"whalefall/domain/dbaccount"
)

// InstanceRepository defines storage operations for managed database
// instances.
type InstanceRepository interface {
	GetInstance(ctx context.Context, instanceID string) (*dbaccount.Instance, error)
	ListActiveInstances(ctx context.Context) ([]*dbaccount.Instance, error)
	CountActiveInstances(ctx context.Context) (int, error)

	// IncrementSyncCount bumps the instance's sync counter after a
	// successful account sync.
	IncrementSyncCount(ctx context.Context, instanceID string) error
}
