package contracts

import (
	"context"
	"fmt"

	"whalefall/domain/dbaccount"
)

// Collector connects to a remote database instance and returns a raw
// account/permission snapshot. One implementation exists per vendor; the
// engine treats them as external collaborators behind this interface. A
// collector must always either return a versioned snapshot or a typed
// error, never partial data.
type Collector interface {
	DbType() dbaccount.DbType
	Collect(ctx context.Context, instance *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error)
}

// CollectorError is the typed failure a collector reports: the remote side
// was unreachable, timed out, or returned garbage. It is always scoped to
// one instance and never escalates past that instance's sync record.
type CollectorError struct {
	DbType     dbaccount.DbType
	InstanceID string
	Err        error
}

func (e *CollectorError) Error() string {
	return fmt.Sprintf("collector %s: instance %s: %v", e.DbType, e.InstanceID, e.Err)
}

func (e *CollectorError) Unwrap() error {
	return e.Err
}
