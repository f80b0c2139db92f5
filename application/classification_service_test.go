package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalefall/domain/classify"
	"whalefall/domain/dbaccount"
)

type fakeClassificationRepo struct {
	mu          sync.Mutex
	rules       []*classify.ClassificationRule
	assignments map[string][]*classify.Assignment
	nextID      int64
}

func newFakeClassificationRepo(rules ...*classify.ClassificationRule) *fakeClassificationRepo {
	return &fakeClassificationRepo{
		rules:       rules,
		assignments: map[string][]*classify.Assignment{},
	}
}

func (r *fakeClassificationRepo) ListActiveRules(ctx context.Context) ([]*classify.ClassificationRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rules, nil
}

func (r *fakeClassificationRepo) ListAssignments(ctx context.Context, accountID string) ([]*classify.Assignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.assignments[accountID], nil
}

func (r *fakeClassificationRepo) CreateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	assignment.ID = r.nextID
	r.assignments[assignment.AccountID] = append(r.assignments[assignment.AccountID], assignment)
	return nil
}

func (r *fakeClassificationRepo) UpdateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.assignments[assignment.AccountID] {
		if existing.ID == assignment.ID {
			r.assignments[assignment.AccountID][i] = assignment
			return nil
		}
	}
	return nil
}

func superuserRule(id, classificationID string, priority int) *classify.ClassificationRule {
	return &classify.ClassificationRule{
		ID:               id,
		ClassificationID: classificationID,
		Name:             "superuser accounts",
		Expression:       `{"any_capability": ["SUPERUSER"]}`,
		RiskLevel:        "high",
		Priority:         priority,
		IsActive:         true,
	}
}

func superuserFacts(t *testing.T) *dbaccount.PermissionFacts {
	t.Helper()
	facts := dbaccount.NewPermissionFacts(dbaccount.DbTypeMySQL, true, false)
	facts.AddCapability(dbaccount.CapabilitySuperuser, "is_superuser=True")
	return facts
}

func TestClassificationService_CreatesAssignmentOnMatch(t *testing.T) {
	repo := newFakeClassificationRepo(superuserRule("rule-1", "class-admin", 10))
	service := NewClassificationService(repo)
	account := &dbaccount.Account{ID: "acct-1", DbType: dbaccount.DbTypeMySQL}

	result, err := service.ClassifyAccount(context.Background(), account, superuserFacts(t))

	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	require.Len(t, result.Matched, 1)
	assert.Equal(t, "class-admin", result.Matched[0].ClassificationID)
	assert.NotEmpty(t, result.Matched[0].Rationale)

	stored, err := repo.ListAssignments(context.Background(), "acct-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].IsActive)
	assert.Equal(t, "rule-1", stored[0].MatchedRuleID)
	assert.Nil(t, stored[0].RevokedAt)
}

func TestClassificationService_SecondRunIsNoOp(t *testing.T) {
	repo := newFakeClassificationRepo(superuserRule("rule-1", "class-admin", 10))
	service := NewClassificationService(repo)
	account := &dbaccount.Account{ID: "acct-1", DbType: dbaccount.DbTypeMySQL}
	facts := superuserFacts(t)

	_, err := service.ClassifyAccount(context.Background(), account, facts)
	require.NoError(t, err)

	result, err := service.ClassifyAccount(context.Background(), account, facts)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 0, result.Reactivated)
	assert.Equal(t, 0, result.Deactivated)
	assert.Equal(t, 1, result.Unchanged)

	stored, _ := repo.ListAssignments(context.Background(), "acct-1")
	assert.Len(t, stored, 1)
}

func TestClassificationService_DeactivatesWhenNoLongerJustified(t *testing.T) {
	repo := newFakeClassificationRepo(superuserRule("rule-1", "class-admin", 10))
	service := NewClassificationService(repo)
	account := &dbaccount.Account{ID: "acct-1", DbType: dbaccount.DbTypeMySQL}

	_, err := service.ClassifyAccount(context.Background(), account, superuserFacts(t))
	require.NoError(t, err)

	// Privileges were revoked upstream; the next sync carries plain facts.
	plain := dbaccount.NewPermissionFacts(dbaccount.DbTypeMySQL, false, false)
	result, err := service.ClassifyAccount(context.Background(), account, plain)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deactivated)

	stored, _ := repo.ListAssignments(context.Background(), "acct-1")
	require.Len(t, stored, 1)
	assert.False(t, stored[0].IsActive)
	require.NotNil(t, stored[0].RevokedAt)
}

func TestClassificationService_ReactivatesRevokedAssignment(t *testing.T) {
	repo := newFakeClassificationRepo(superuserRule("rule-1", "class-admin", 10))
	service := NewClassificationService(repo)
	account := &dbaccount.Account{ID: "acct-1", DbType: dbaccount.DbTypeMySQL}
	facts := superuserFacts(t)

	_, err := service.ClassifyAccount(context.Background(), account, facts)
	require.NoError(t, err)
	plain := dbaccount.NewPermissionFacts(dbaccount.DbTypeMySQL, false, false)
	_, err = service.ClassifyAccount(context.Background(), account, plain)
	require.NoError(t, err)

	result, err := service.ClassifyAccount(context.Background(), account, facts)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 1, result.Reactivated)

	stored, _ := repo.ListAssignments(context.Background(), "acct-1")
	require.Len(t, stored, 1, "reactivation reuses the revoked row instead of growing history")
	assert.True(t, stored[0].IsActive)
	assert.Nil(t, stored[0].RevokedAt)
}

func TestClassificationService_MalformedRuleIsSkippedNotFatal(t *testing.T) {
	repo := newFakeClassificationRepo(
		&classify.ClassificationRule{
			ID:               "rule-bad",
			ClassificationID: "class-x",
			Expression:       `{not json`,
			Priority:         1,
			IsActive:         true,
		},
		superuserRule("rule-good", "class-admin", 10),
	)
	service := NewClassificationService(repo)
	account := &dbaccount.Account{ID: "acct-1", DbType: dbaccount.DbTypeMySQL}

	result, err := service.ClassifyAccount(context.Background(), account, superuserFacts(t))

	require.NoError(t, err)
	require.Len(t, result.SkippedRules, 1)
	assert.Equal(t, "rule-bad", result.SkippedRules[0].RuleID)
	assert.Equal(t, 1, result.Created)
}
