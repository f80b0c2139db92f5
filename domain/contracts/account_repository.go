package contracts

import (
	"context"

	"whalefall/domain/dbaccount"
)

// AccountRepository defines storage operations for database accounts and
// their normalized permission facts.
type AccountRepository interface {
	// UpsertAccount creates or updates the account identified by
	// (instance, username) and fills in the account ID.
	UpsertAccount(ctx context.Context, account *dbaccount.Account) error

	GetAccount(ctx context.Context, instanceID, username string) (*dbaccount.Account, error)
	ListAccountsForInstance(ctx context.Context, instanceID string) ([]*dbaccount.Account, error)

	// ReplaceFacts overwrites the stored facts for an account. Facts are
	// recomputed per sync, never diffed.
	ReplaceFacts(ctx context.Context, accountID string, facts *dbaccount.PermissionFacts) error
	GetFacts(ctx context.Context, accountID string) (*dbaccount.PermissionFacts, error)
}
