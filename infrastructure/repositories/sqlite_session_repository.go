package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"whalefall/database"
	"whalefall/domain/contracts"
	syncdom "whalefall/domain/sync"
)

// SqliteSessionRepository implements SessionRepository over SQLite. Status
// transitions are single UPDATE statements guarded by the expected current
// status; the affected-row count is the compare-and-set result.
type SqliteSessionRepository struct {
	*BaseRepository
}

// NewSqliteSessionRepository creates a session repository.
func NewSqliteSessionRepository(db *database.Database) contracts.SessionRepository {
	return &SqliteSessionRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *SqliteSessionRepository) CreateSession(ctx context.Context, session *syncdom.SyncSession) error {
	_, err := r.WriteDB().ExecContext(ctx, `
		INSERT INTO sync_sessions (session_id, sync_type, sync_category, status, total_instances, created_by, error_message, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, string(session.SyncType), string(session.SyncCategory),
		string(session.Status), session.TotalInstances, session.CreatedBy,
		session.ErrorMessage, session.StartedAt, r.ToNullTime(session.CompletedAt))
	if err != nil {
		return fmt.Errorf("failed to insert sync session: %w", err)
	}
	return nil
}

func (r *SqliteSessionRepository) GetSession(ctx context.Context, sessionID string) (*syncdom.SyncSession, error) {
	row := r.ReadDB().QueryRowContext(ctx, `
		SELECT session_id, sync_type, sync_category, status, total_instances, created_by, error_message, started_at, completed_at
		FROM sync_sessions WHERE session_id = ?`, sessionID)

	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrSessionNotFound
	}
	return session, err
}

func (r *SqliteSessionRepository) ListRecentSessions(ctx context.Context, limit int) ([]*syncdom.SyncSession, error) {
	rows, err := r.ReadDB().QueryContext(ctx, `
		SELECT session_id, sync_type, sync_category, status, total_instances, created_by, error_message, started_at, completed_at
		FROM sync_sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*syncdom.SyncSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

func (r *SqliteSessionRepository) SetTotalInstances(ctx context.Context, sessionID string, total int) error {
	result, err := r.WriteDB().ExecContext(ctx,
		`UPDATE sync_sessions SET total_instances = ? WHERE session_id = ?`, total, sessionID)
	if err != nil {
		return fmt.Errorf("failed to set total instances: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return contracts.ErrSessionNotFound
	}
	return nil
}

func (r *SqliteSessionRepository) TransitionSession(ctx context.Context, sessionID string, from, to syncdom.SessionStatus, errorMessage string) (bool, error) {
	// Every transition out of running is terminal, so completed_at is
	// stamped unconditionally.
	result, err := r.WriteDB().ExecContext(ctx, `
		UPDATE sync_sessions SET status = ?, error_message = ?, completed_at = ?
		WHERE session_id = ? AND status = ?`,
		string(to), errorMessage, time.Now(), sessionID, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SqliteSessionRepository) CreateInstanceRecords(ctx context.Context, records []*syncdom.SyncInstanceRecord) error {
	return r.WithTx(func(tx *sql.Tx) error {
		for i, record := range records {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sync_instance_records (record_id, session_id, instance_id, status, items_synced, error_message, sync_details, seq)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
				record.RecordID, record.SessionID, record.InstanceID,
				string(record.Status), record.ItemsSynced, record.ErrorMessage,
				record.SyncDetails, i)
			if err != nil {
				return fmt.Errorf("failed to insert instance record %s: %w", record.RecordID, err)
			}
		}
		return nil
	})
}

func (r *SqliteSessionRepository) GetInstanceRecord(ctx context.Context, recordID string) (*syncdom.SyncInstanceRecord, error) {
	row := r.ReadDB().QueryRowContext(ctx, `
		SELECT record_id, session_id, instance_id, status, items_synced, error_message, sync_details, started_at, completed_at
		FROM sync_instance_records WHERE record_id = ?`, recordID)

	record, err := scanInstanceRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contracts.ErrRecordNotFound
	}
	return record, err
}

func (r *SqliteSessionRepository) ListInstanceRecords(ctx context.Context, sessionID string) ([]*syncdom.SyncInstanceRecord, error) {
	rows, err := r.ReadDB().QueryContext(ctx, `
		SELECT record_id, session_id, instance_id, status, items_synced, error_message, sync_details, started_at, completed_at
		FROM sync_instance_records WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query instance records: %w", err)
	}
	defer rows.Close()

	var records []*syncdom.SyncInstanceRecord
	for rows.Next() {
		record, err := scanInstanceRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *SqliteSessionRepository) TransitionInstanceRecord(ctx context.Context, recordID string, from, to syncdom.RecordStatus, itemsSynced int, errorMessage, details string) (bool, error) {
	var result sql.Result
	var err error
	if to == syncdom.RecordStatusRunning {
		result, err = r.WriteDB().ExecContext(ctx, `
			UPDATE sync_instance_records SET status = ?, started_at = ?
			WHERE record_id = ? AND status = ?`,
			string(to), time.Now(), recordID, string(from))
	} else {
		result, err = r.WriteDB().ExecContext(ctx, `
			UPDATE sync_instance_records SET status = ?, items_synced = ?, error_message = ?, sync_details = ?, completed_at = ?
			WHERE record_id = ? AND status = ?`,
			string(to), itemsSynced, errorMessage, details, time.Now(), recordID, string(from))
	}
	if err != nil {
		return false, fmt.Errorf("failed to transition instance record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

func (r *SqliteSessionRepository) CountTerminalRecords(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.ReadDB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sync_instance_records
		WHERE session_id = ? AND status IN ('completed', 'failed')`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count terminal records: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*syncdom.SyncSession, error) {
	var session syncdom.SyncSession
	var syncType, syncCategory, status string
	var completedAt sql.NullTime

	err := row.Scan(&session.SessionID, &syncType, &syncCategory, &status,
		&session.TotalInstances, &session.CreatedBy, &session.ErrorMessage,
		&session.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	session.SyncType = syncdom.SyncType(syncType)
	session.SyncCategory = syncdom.SyncCategory(syncCategory)
	session.Status = syncdom.SessionStatus(status)
	if completedAt.Valid {
		session.CompletedAt = &completedAt.Time
	}
	return &session, nil
}

func scanInstanceRecord(row rowScanner) (*syncdom.SyncInstanceRecord, error) {
	var record syncdom.SyncInstanceRecord
	var status string
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&record.RecordID, &record.SessionID, &record.InstanceID,
		&status, &record.ItemsSynced, &record.ErrorMessage, &record.SyncDetails,
		&startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	record.Status = syncdom.RecordStatus(status)
	if startedAt.Valid {
		record.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		record.CompletedAt = &completedAt.Time
	}
	return &record, nil
}
