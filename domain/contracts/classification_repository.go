package contracts

import (
	"context"

	"whalefall/domain/classify"
)

// ClassificationRepository defines storage operations for classification
// rules and account assignments.
type ClassificationRepository interface {
	ListActiveRules(ctx context.Context) ([]*classify.ClassificationRule, error)

	ListAssignments(ctx context.Context, accountID string) ([]*classify.Assignment, error)
	CreateAssignment(ctx context.Context, assignment *classify.Assignment) error

	// UpdateAssignment persists activation state, matched rule, and
	// rationale for an existing assignment row.
	UpdateAssignment(ctx context.Context, assignment *classify.Assignment) error
}
