package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"whalefall/database"
	"whalefall/domain/classify"
	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
)

// SqliteClassificationRepository implements ClassificationRepository over
// SQLite. Assignments are soft-deleted; a partial unique index enforces at
// most one active row per (account, classification) pair.
type SqliteClassificationRepository struct {
	*BaseRepository
}

// NewSqliteClassificationRepository creates a classification repository.
func NewSqliteClassificationRepository(db *database.Database) contracts.ClassificationRepository {
	return &SqliteClassificationRepository{BaseRepository: NewBaseRepository(db)}
}

func (r *SqliteClassificationRepository) ListActiveRules(ctx context.Context) ([]*classify.ClassificationRule, error) {
	rows, err := r.ReadDB().QueryContext(ctx, `
		SELECT rule_id, classification_id, name, db_type, expression, risk_level, priority, is_active
		FROM classification_rules WHERE is_active = 1 ORDER BY priority, rule_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query classification rules: %w", err)
	}
	defer rows.Close()

	var rules []*classify.ClassificationRule
	for rows.Next() {
		var rule classify.ClassificationRule
		var dbType string
		err := rows.Scan(&rule.ID, &rule.ClassificationID, &rule.Name, &dbType,
			&rule.Expression, &rule.RiskLevel, &rule.Priority, &rule.IsActive)
		if err != nil {
			return nil, err
		}
		rule.DbType = dbaccount.DbType(dbType)
		rules = append(rules, &rule)
	}
	return rules, rows.Err()
}

func (r *SqliteClassificationRepository) ListAssignments(ctx context.Context, accountID string) ([]*classify.Assignment, error) {
	rows, err := r.ReadDB().QueryContext(ctx, `
		SELECT assignment_id, account_id, classification_id, matched_rule_id, rationale, is_active, assigned_at, revoked_at
		FROM classification_assignments WHERE account_id = ? ORDER BY assignment_id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*classify.Assignment
	for rows.Next() {
		var assignment classify.Assignment
		var revokedAt sql.NullTime
		err := rows.Scan(&assignment.ID, &assignment.AccountID,
			&assignment.ClassificationID, &assignment.MatchedRuleID,
			&assignment.Rationale, &assignment.IsActive,
			&assignment.AssignedAt, &revokedAt)
		if err != nil {
			return nil, err
		}
		if revokedAt.Valid {
			assignment.RevokedAt = &revokedAt.Time
		}
		assignments = append(assignments, &assignment)
	}
	return assignments, rows.Err()
}

func (r *SqliteClassificationRepository) CreateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	result, err := r.WriteDB().ExecContext(ctx, `
		INSERT INTO classification_assignments (account_id, classification_id, matched_rule_id, rationale, is_active, assigned_at, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		assignment.AccountID, assignment.ClassificationID, assignment.MatchedRuleID,
		assignment.Rationale, assignment.IsActive, assignment.AssignedAt,
		r.ToNullTime(assignment.RevokedAt))
	if err != nil {
		return fmt.Errorf("failed to insert assignment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read assignment id: %w", err)
	}
	assignment.ID = id
	return nil
}

func (r *SqliteClassificationRepository) UpdateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	_, err := r.WriteDB().ExecContext(ctx, `
		UPDATE classification_assignments
		SET matched_rule_id = ?, rationale = ?, is_active = ?, assigned_at = ?, revoked_at = ?
		WHERE assignment_id = ?`,
		assignment.MatchedRuleID, assignment.Rationale, assignment.IsActive,
		assignment.AssignedAt, r.ToNullTime(assignment.RevokedAt), assignment.ID)
	if err != nil {
		return fmt.Errorf("failed to update assignment %d: %w", assignment.ID, err)
	}
	return nil
}
