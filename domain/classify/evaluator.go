package classify

import (
	"sort"
	"time"

	"whalefall/domain/dbaccount"
)

// RuleError records a rule that could not be evaluated. Callers log these;
// a bad rule never aborts evaluation of the remaining rules.
type RuleError struct {
	RuleID string
	Err    error
}

// MatchedClassification is one classification an account earned, with the
// winning rule and the rationale the expression produced.
type MatchedClassification struct {
	ClassificationID string
	RuleID           string
	RiskLevel        string
	Rationale        string
}

// Reconciliation is the idempotent diff between the classifications the
// rules justify and the assignments the account currently holds. Applying
// the same reconciliation twice is a no-op.
type Reconciliation struct {
	Matched      []MatchedClassification
	ToCreate     []*Assignment
	ToReactivate []*Assignment
	Unchanged    []*Assignment
	ToDeactivate []*Assignment
	Skipped      []RuleError
}

// Evaluator matches classification rules against permission facts.
type Evaluator struct{}

// NewEvaluator creates a rule evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs every eligible rule against the account's facts and
// reconciles the outcome with the existing assignments. Matches accumulate:
// an account can carry multiple classifications. When several rules justify
// the same classification, the highest-priority rule provides the rationale.
// Assignments no longer justified by any rule are deactivated, not deleted.
func (ev *Evaluator) Evaluate(
	account *dbaccount.Account,
	facts *dbaccount.PermissionFacts,
	rules []*ClassificationRule,
	existing []*Assignment,
) *Reconciliation {
	result := &Reconciliation{}

	eligible := make([]*ClassificationRule, 0, len(rules))
	for _, rule := range rules {
		if rule.IsActive && rule.AppliesTo(account.DbType) {
			eligible = append(eligible, rule)
		}
	}
	// Lower priority value wins ties for the rationale-providing rule.
	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Priority < eligible[j].Priority
	})

	matchedBy := map[string]MatchedClassification{}
	var matchedOrder []string
	for _, rule := range eligible {
		expr, err := ParseExpression(rule.Expression)
		if err != nil {
			result.Skipped = append(result.Skipped, RuleError{RuleID: rule.ID, Err: err})
			continue
		}
		ok, rationale := expr.Matches(account, facts)
		if !ok {
			continue
		}
		if _, seen := matchedBy[rule.ClassificationID]; seen {
			continue
		}
		matchedBy[rule.ClassificationID] = MatchedClassification{
			ClassificationID: rule.ClassificationID,
			RuleID:           rule.ID,
			RiskLevel:        rule.RiskLevel,
			Rationale:        rationale,
		}
		matchedOrder = append(matchedOrder, rule.ClassificationID)
	}
	for _, id := range matchedOrder {
		result.Matched = append(result.Matched, matchedBy[id])
	}

	// Index existing assignments; at most one active row per classification
	// is the store invariant, inactive history rows may repeat.
	activeByClassification := map[string]*Assignment{}
	var latestInactive = map[string]*Assignment{}
	for _, assignment := range existing {
		if assignment.IsActive {
			activeByClassification[assignment.ClassificationID] = assignment
		} else {
			prev := latestInactive[assignment.ClassificationID]
			if prev == nil || assignment.AssignedAt.After(prev.AssignedAt) {
				latestInactive[assignment.ClassificationID] = assignment
			}
		}
	}

	now := time.Now()
	for _, id := range matchedOrder {
		match := matchedBy[id]
		if active, ok := activeByClassification[id]; ok {
			result.Unchanged = append(result.Unchanged, active)
			continue
		}
		if inactive, ok := latestInactive[id]; ok {
			inactive.IsActive = true
			inactive.RevokedAt = nil
			inactive.MatchedRuleID = match.RuleID
			inactive.Rationale = match.Rationale
			result.ToReactivate = append(result.ToReactivate, inactive)
			continue
		}
		result.ToCreate = append(result.ToCreate, &Assignment{
			AccountID:        account.ID,
			ClassificationID: id,
			MatchedRuleID:    match.RuleID,
			Rationale:        match.Rationale,
			IsActive:         true,
			AssignedAt:       now,
		})
	}

	for classificationID, active := range activeByClassification {
		if _, stillJustified := matchedBy[classificationID]; !stillJustified {
			result.ToDeactivate = append(result.ToDeactivate, active)
		}
	}
	sort.Slice(result.ToDeactivate, func(i, j int) bool {
		return result.ToDeactivate[i].ClassificationID < result.ToDeactivate[j].ClassificationID
	})

	return result
}

// ActiveClassificationIDs returns the classification set that will be active
// after the reconciliation is applied, sorted for stable comparison.
func (r *Reconciliation) ActiveClassificationIDs() []string {
	ids := make([]string, 0, len(r.Matched))
	for _, match := range r.Matched {
		ids = append(ids, match.ClassificationID)
	}
	sort.Strings(ids)
	return ids
}
