package classify

import (
	"time"

	"whalefall/domain/dbaccount"
)

// ClassificationRule matches accounts to a classification based on a
// structured predicate over their permission facts. Expression holds the
// JSON-encoded RuleExpression; a rule whose expression fails to decode is
// skipped during evaluation, never fatal.
type ClassificationRule struct {
	ID               string
	ClassificationID string
	Name             string
	DbType           dbaccount.DbType // empty matches any vendor
	Expression       string
	RiskLevel        string
	Priority         int
	IsActive         bool
}

// AppliesTo reports whether the rule is eligible for an account of the given
// vendor. Vendor-agnostic rules (empty DbType) apply to all.
func (r *ClassificationRule) AppliesTo(dbType dbaccount.DbType) bool {
	return r.DbType == "" || r.DbType == dbType
}

// Assignment links an account to a classification. At most one active
// assignment exists per (account, classification) pair; revocation is a
// soft-delete so the audit trail survives.
type Assignment struct {
	ID               int64
	AccountID        string
	ClassificationID string
	MatchedRuleID    string
	Rationale        string
	IsActive         bool
	AssignedAt       time.Time
	RevokedAt        *time.Time
}
