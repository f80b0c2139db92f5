package dbaccount

import "time"

// Account represents a database account discovered on a managed instance.
// Identity is the (instance, username, vendor) triple; facts are recomputed
// on every sync and replace the prior value.
type Account struct {
	ID           string
	InstanceID   string
	Username     string
	DbType       DbType
	IsSuperuser  bool
	IsLocked     bool
	LastSyncedAt *time.Time
}

// Key returns the stable identity string for the account within an instance.
func (a *Account) Key() string {
	return a.InstanceID + "/" + a.Username
}
