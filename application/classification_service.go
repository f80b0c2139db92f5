package application

import (
	"context"
	"fmt"
	"time"

	"whalefall/domain/classify"
	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
	"whalefall/logging"
)

// ClassificationService applies the active rule set to an account's
// permission facts and reconciles its classification assignments.
type ClassificationService struct {
	repo      contracts.ClassificationRepository
	evaluator *classify.Evaluator
	logger    *logging.Logger
}

// NewClassificationService creates a classification service.
func NewClassificationService(repo contracts.ClassificationRepository) *ClassificationService {
	return &ClassificationService{
		repo:      repo,
		evaluator: classify.NewEvaluator(),
		logger:    logging.Default().WithComponent("classification_service"),
	}
}

// ClassificationResult summarizes one reconciliation pass for an account.
type ClassificationResult struct {
	AccountID    string
	Matched      []classify.MatchedClassification
	Created      int
	Reactivated  int
	Deactivated  int
	Unchanged    int
	SkippedRules []classify.RuleError
}

// ClassifyAccount evaluates all active rules for the account's vendor
// against its facts and converges stored assignments to the match set.
// Running it twice with the same inputs leaves assignments untouched on the
// second pass. Malformed rules are skipped and reported, never fatal.
func (s *ClassificationService) ClassifyAccount(ctx context.Context, account *dbaccount.Account, facts *dbaccount.PermissionFacts) (*ClassificationResult, error) {
	rules, err := s.repo.ListActiveRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load classification rules: %w", err)
	}

	existing, err := s.repo.ListAssignments(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assignments: %w", err)
	}

	recon := s.evaluator.Evaluate(account, facts, rules, existing)

	for _, skipped := range recon.Skipped {
		s.logger.Warn("Skipping malformed classification rule",
			"rule_id", skipped.RuleID,
			"account_id", account.ID,
			"error", skipped.Err.Error())
	}

	now := time.Now()

	for _, assignment := range recon.ToCreate {
		assignment.AssignedAt = now
		if err := s.repo.CreateAssignment(ctx, assignment); err != nil {
			return nil, fmt.Errorf("failed to create assignment: %w", err)
		}
	}

	for _, assignment := range recon.ToReactivate {
		assignment.IsActive = true
		assignment.RevokedAt = nil
		assignment.AssignedAt = now
		if err := s.repo.UpdateAssignment(ctx, assignment); err != nil {
			return nil, fmt.Errorf("failed to reactivate assignment: %w", err)
		}
	}

	for _, assignment := range recon.ToDeactivate {
		assignment.IsActive = false
		revoked := now
		assignment.RevokedAt = &revoked
		if err := s.repo.UpdateAssignment(ctx, assignment); err != nil {
			return nil, fmt.Errorf("failed to deactivate assignment: %w", err)
		}
	}

	if len(recon.ToCreate)+len(recon.ToReactivate)+len(recon.ToDeactivate) > 0 {
		s.logger.Classification("Assignments reconciled",
			"account_id", account.ID,
			"created", len(recon.ToCreate),
			"reactivated", len(recon.ToReactivate),
			"deactivated", len(recon.ToDeactivate))
	}

	return &ClassificationResult{
		AccountID:    account.ID,
		Matched:      recon.Matched,
		Created:      len(recon.ToCreate),
		Reactivated:  len(recon.ToReactivate),
		Deactivated:  len(recon.ToDeactivate),
		Unchanged:    len(recon.Unchanged),
		SkippedRules: recon.Skipped,
	}, nil
}
