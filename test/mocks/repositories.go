package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"whalefall/domain/classify"
	"whalefall/domain/dbaccount"
	syncdom "whalefall/domain/sync"
)

// MockSessionRepository implements SessionRepository for testing
type MockSessionRepository struct {
	mock.Mock
}

func (m *MockSessionRepository) CreateSession(ctx context.Context, session *syncdom.SyncSession) error {
	args := m.Called(ctx, session)
	return args.Error(0)
}

func (m *MockSessionRepository) GetSession(ctx context.Context, sessionID string) (*syncdom.SyncSession, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdom.SyncSession), args.Error(1)
}

func (m *MockSessionRepository) ListRecentSessions(ctx context.Context, limit int) ([]*syncdom.SyncSession, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdom.SyncSession), args.Error(1)
}

func (m *MockSessionRepository) SetTotalInstances(ctx context.Context, sessionID string, total int) error {
	args := m.Called(ctx, sessionID, total)
	return args.Error(0)
}

func (m *MockSessionRepository) TransitionSession(ctx context.Context, sessionID string, from, to syncdom.SessionStatus, errorMessage string) (bool, error) {
	args := m.Called(ctx, sessionID, from, to, errorMessage)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) CreateInstanceRecords(ctx context.Context, records []*syncdom.SyncInstanceRecord) error {
	args := m.Called(ctx, records)
	return args.Error(0)
}

func (m *MockSessionRepository) GetInstanceRecord(ctx context.Context, recordID string) (*syncdom.SyncInstanceRecord, error) {
	args := m.Called(ctx, recordID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*syncdom.SyncInstanceRecord), args.Error(1)
}

func (m *MockSessionRepository) ListInstanceRecords(ctx context.Context, sessionID string) ([]*syncdom.SyncInstanceRecord, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*syncdom.SyncInstanceRecord), args.Error(1)
}

func (m *MockSessionRepository) TransitionInstanceRecord(ctx context.Context, recordID string, from, to syncdom.RecordStatus, itemsSynced int, errorMessage, details string) (bool, error) {
	args := m.Called(ctx, recordID, from, to, itemsSynced, errorMessage, details)
	return args.Bool(0), args.Error(1)
}

func (m *MockSessionRepository) CountTerminalRecords(ctx context.Context, sessionID string) (int, error) {
	args := m.Called(ctx, sessionID)
	return args.Int(0), args.Error(1)
}

// MockInstanceRepository implements InstanceRepository for testing
type MockInstanceRepository struct {
	mock.Mock
}

func (m *MockInstanceRepository) GetInstance(ctx context.Context, instanceID string) (*dbaccount.Instance, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbaccount.Instance), args.Error(1)
}

func (m *MockInstanceRepository) ListActiveInstances(ctx context.Context) ([]*dbaccount.Instance, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbaccount.Instance), args.Error(1)
}

func (m *MockInstanceRepository) CountActiveInstances(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockInstanceRepository) IncrementSyncCount(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

// MockAccountRepository implements AccountRepository for testing
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) UpsertAccount(ctx context.Context, account *dbaccount.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) GetAccount(ctx context.Context, instanceID, username string) (*dbaccount.Account, error) {
	args := m.Called(ctx, instanceID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbaccount.Account), args.Error(1)
}

func (m *MockAccountRepository) ListAccountsForInstance(ctx context.Context, instanceID string) ([]*dbaccount.Account, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*dbaccount.Account), args.Error(1)
}

func (m *MockAccountRepository) ReplaceFacts(ctx context.Context, accountID string, facts *dbaccount.PermissionFacts) error {
	args := m.Called(ctx, accountID, facts)
	return args.Error(0)
}

func (m *MockAccountRepository) GetFacts(ctx context.Context, accountID string) (*dbaccount.PermissionFacts, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dbaccount.PermissionFacts), args.Error(1)
}

// MockClassificationRepository implements ClassificationRepository for testing
type MockClassificationRepository struct {
	mock.Mock
}

func (m *MockClassificationRepository) ListActiveRules(ctx context.Context) ([]*classify.ClassificationRule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*classify.ClassificationRule), args.Error(1)
}

func (m *MockClassificationRepository) ListAssignments(ctx context.Context, accountID string) ([]*classify.Assignment, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*classify.Assignment), args.Error(1)
}

func (m *MockClassificationRepository) CreateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}

func (m *MockClassificationRepository) UpdateAssignment(ctx context.Context, assignment *classify.Assignment) error {
	args := m.Called(ctx, assignment)
	return args.Error(0)
}
