package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"whalefall/database"
	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
)

// SqliteInstanceRepository implements InstanceRepository over SQLite.
type SqliteInstanceRepository struct {
	*BaseRepository
}

// NewSqliteInstanceRepository creates an instance repository.
func NewSqliteInstanceRepository(db *database.Database) contracts.InstanceRepository {
	return &SqliteInstanceRepository{BaseRepository: NewBaseRepository(db)}
}

const instanceColumns = `instance_id, name, host, port, db_type, is_active, sync_count, created_at, updated_at`

func (r *SqliteInstanceRepository) GetInstance(ctx context.Context, instanceID string) (*dbaccount.Instance, error) {
	row := r.ReadDB().QueryRowContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE instance_id = ?`, instanceID)

	instance, err := scanInstance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrInstanceNotFound
	}
	return instance, err
}

func (r *SqliteInstanceRepository) ListActiveInstances(ctx context.Context) ([]*dbaccount.Instance, error) {
	rows, err := r.ReadDB().QueryContext(ctx,
		`SELECT `+instanceColumns+` FROM instances WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}
	defer rows.Close()

	var instances []*dbaccount.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}
	return instances, rows.Err()
}

func (r *SqliteInstanceRepository) CountActiveInstances(ctx context.Context) (int, error) {
	var count int
	err := r.ReadDB().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM instances WHERE is_active = 1`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active instances: %w", err)
	}
	return count, nil
}

func (r *SqliteInstanceRepository) IncrementSyncCount(ctx context.Context, instanceID string) error {
	result, err := r.WriteDB().ExecContext(ctx, `
		UPDATE instances SET sync_count = sync_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE instance_id = ?`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to increment sync count: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return contracts.ErrInstanceNotFound
	}
	return nil
}

func scanInstance(row rowScanner) (*dbaccount.Instance, error) {
	var instance dbaccount.Instance
	var dbType string

	err := row.Scan(&instance.ID, &instance.Name, &instance.Host, &instance.Port,
		&dbType, &instance.IsActive, &instance.SyncCount,
		&instance.CreatedAt, &instance.UpdatedAt)
	if err != nil {
		return nil, err
	}

	instance.DbType = dbaccount.DbType(dbType)
	return &instance, nil
}
