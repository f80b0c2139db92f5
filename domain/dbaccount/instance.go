package dbaccount

import (
	"fmt"
	"time"
)

// Instance represents a managed database instance registered in the console.
type Instance struct {
	ID        string
	Name      string
	Host      string
	Port      int
	DbType    DbType
	IsActive  bool
	SyncCount int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address returns the host:port pair for display and diagnostics.
func (i *Instance) Address() string {
	if i.Port == 0 {
		return i.Host
	}
	return fmt.Sprintf("%s:%d", i.Host, i.Port)
}
