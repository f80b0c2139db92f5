package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"whalefall/database"
	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
)

// SqliteAccountRepository implements AccountRepository over SQLite. Facts are
// stored as a JSON document per account and replaced wholesale on every sync.
type SqliteAccountRepository struct {
	*BaseRepository
}

// NewSqliteAccountRepository creates an account repository.
func NewSqliteAccountRepository(db *database.Database) contracts.AccountRepository {
	return &SqliteAccountRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *SqliteAccountRepository) UpsertAccount(ctx context.Context, account *dbaccount.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}

	// The (instance, username) pair is the natural key; a conflict keeps the
	// existing row's ID so the caller's account carries the stored identity.
	_, err := r.WriteDB().ExecContext(ctx, `
		INSERT INTO accounts (account_id, instance_id, username, db_type, is_superuser, is_locked, last_synced_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (instance_id, username) DO UPDATE SET
			db_type = excluded.db_type,
			is_superuser = excluded.is_superuser,
			is_locked = excluded.is_locked,
			last_synced_at = excluded.last_synced_at`,
		account.ID, account.InstanceID, account.Username, string(account.DbType),
		account.IsSuperuser, account.IsLocked, r.ToNullTime(account.LastSyncedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert account %s: %w", account.Key(), err)
	}

	var storedID string
	err = r.ReadDB().QueryRowContext(ctx,
		`SELECT account_id FROM accounts WHERE instance_id = ? AND username = ?`,
		account.InstanceID, account.Username).Scan(&storedID)
	if err != nil {
		return fmt.Errorf("failed to resolve account id for %s: %w", account.Key(), err)
	}
	account.ID = storedID
	return nil
}

func (r *SqliteAccountRepository) GetAccount(ctx context.Context, instanceID, username string) (*dbaccount.Account, error) {
	row := r.ReadDB().QueryRowContext(ctx, `
		SELECT account_id, instance_id, username, db_type, is_superuser, is_locked, last_synced_at
		FROM accounts WHERE instance_id = ? AND username = ?`, instanceID, username)

	account, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("account %s/%s not found", instanceID, username)
	}
	return account, err
}

func (r *SqliteAccountRepository) ListAccountsForInstance(ctx context.Context, instanceID string) ([]*dbaccount.Account, error) {
	rows, err := r.ReadDB().QueryContext(ctx, `
		SELECT account_id, instance_id, username, db_type, is_superuser, is_locked, last_synced_at
		FROM accounts WHERE instance_id = ? ORDER BY username`, instanceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*dbaccount.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *SqliteAccountRepository) ReplaceFacts(ctx context.Context, accountID string, facts *dbaccount.PermissionFacts) error {
	encoded, err := facts.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode facts for account %s: %w", accountID, err)
	}

	_, err = r.WriteDB().ExecContext(ctx, `
		INSERT INTO account_permission_facts (account_id, facts, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (account_id) DO UPDATE SET
			facts = excluded.facts,
			updated_at = CURRENT_TIMESTAMP`,
		accountID, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to store facts for account %s: %w", accountID, err)
	}
	return nil
}

func (r *SqliteAccountRepository) GetFacts(ctx context.Context, accountID string) (*dbaccount.PermissionFacts, error) {
	var encoded string
	err := r.ReadDB().QueryRowContext(ctx,
		`SELECT facts FROM account_permission_facts WHERE account_id = ?`, accountID).Scan(&encoded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no facts stored for account %s", accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load facts for account %s: %w", accountID, err)
	}

	return dbaccount.DecodeFacts([]byte(encoded))
}

func scanAccount(row rowScanner) (*dbaccount.Account, error) {
	var account dbaccount.Account
	var dbType string
	var lastSynced sql.NullTime

	err := row.Scan(&account.ID, &account.InstanceID, &account.Username,
		&dbType, &account.IsSuperuser, &account.IsLocked, &lastSynced)
	if err != nil {
		return nil, err
	}

	account.DbType = dbaccount.DbType(dbType)
	if lastSynced.Valid {
		account.LastSyncedAt = &lastSynced.Time
	}
	return &account, nil
}
