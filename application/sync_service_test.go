package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
	"whalefall/domain/events"
	syncdom "whalefall/domain/sync"
)

// In-memory fakes with real compare-and-set transition semantics. The batch
// supervisor's guarantees depend on CAS behavior at the store, so mocks that
// just return canned booleans would not exercise the interesting paths.

type fakeSessionRepo struct {
	mu        sync.Mutex
	lifecycle syncdom.SessionLifecycle
	sessions  map[string]*syncdom.SyncSession
	records   map[string]*syncdom.SyncInstanceRecord
	order     []string
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{
		sessions: map[string]*syncdom.SyncSession{},
		records:  map[string]*syncdom.SyncInstanceRecord{},
	}
}

func (r *fakeSessionRepo) CreateSession(ctx context.Context, session *syncdom.SyncSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *session
	r.sessions[session.SessionID] = &clone
	return nil
}

func (r *fakeSessionRepo) GetSession(ctx context.Context, sessionID string) (*syncdom.SyncSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, contracts.ErrSessionNotFound
	}
	clone := *session
	return &clone, nil
}

func (r *fakeSessionRepo) ListRecentSessions(ctx context.Context, limit int) ([]*syncdom.SyncSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*syncdom.SyncSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		clone := *session
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeSessionRepo) SetTotalInstances(ctx context.Context, sessionID string, total int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return contracts.ErrSessionNotFound
	}
	session.TotalInstances = total
	return nil
}

func (r *fakeSessionRepo) TransitionSession(ctx context.Context, sessionID string, from, to syncdom.SessionStatus, errorMessage string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[sessionID]
	if !ok {
		return false, contracts.ErrSessionNotFound
	}
	if session.Status != from {
		return false, nil
	}
	switch to {
	case syncdom.SessionStatusCompleted:
		return r.lifecycle.CompleteSession(session), nil
	case syncdom.SessionStatusFailed:
		return r.lifecycle.FailSession(session, errorMessage), nil
	case syncdom.SessionStatusCancelled:
		return r.lifecycle.CancelSession(session), nil
	}
	return false, nil
}

func (r *fakeSessionRepo) CreateInstanceRecords(ctx context.Context, records []*syncdom.SyncInstanceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, record := range records {
		clone := *record
		r.records[record.RecordID] = &clone
		r.order = append(r.order, record.RecordID)
	}
	return nil
}

func (r *fakeSessionRepo) GetInstanceRecord(ctx context.Context, recordID string) (*syncdom.SyncInstanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[recordID]
	if !ok {
		return nil, contracts.ErrRecordNotFound
	}
	clone := *record
	return &clone, nil
}

func (r *fakeSessionRepo) ListInstanceRecords(ctx context.Context, sessionID string) ([]*syncdom.SyncInstanceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*syncdom.SyncInstanceRecord
	for _, recordID := range r.order {
		record := r.records[recordID]
		if record.SessionID == sessionID {
			clone := *record
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *fakeSessionRepo) TransitionInstanceRecord(ctx context.Context, recordID string, from, to syncdom.RecordStatus, itemsSynced int, errorMessage, details string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[recordID]
	if !ok {
		return false, contracts.ErrRecordNotFound
	}
	if record.Status != from {
		return false, nil
	}
	switch to {
	case syncdom.RecordStatusRunning:
		return r.lifecycle.StartRecord(record), nil
	case syncdom.RecordStatusCompleted:
		return r.lifecycle.CompleteRecord(record, itemsSynced, details), nil
	case syncdom.RecordStatusFailed:
		return r.lifecycle.FailRecord(record, errorMessage, details), nil
	}
	return false, nil
}

func (r *fakeSessionRepo) CountTerminalRecords(ctx context.Context, sessionID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, record := range r.records {
		if record.SessionID == sessionID && record.IsTerminal() {
			count++
		}
	}
	return count, nil
}

type fakeInstanceRepo struct {
	mu        sync.Mutex
	instances []*dbaccount.Instance
	syncCount map[string]int
}

func newFakeInstanceRepo(instances ...*dbaccount.Instance) *fakeInstanceRepo {
	return &fakeInstanceRepo{instances: instances, syncCount: map[string]int{}}
}

func (r *fakeInstanceRepo) GetInstance(ctx context.Context, instanceID string) (*dbaccount.Instance, error) {
	for _, instance := range r.instances {
		if instance.ID == instanceID {
			return instance, nil
		}
	}
	return nil, contracts.ErrInstanceNotFound
}

func (r *fakeInstanceRepo) ListActiveInstances(ctx context.Context) ([]*dbaccount.Instance, error) {
	var out []*dbaccount.Instance
	for _, instance := range r.instances {
		if instance.IsActive {
			out = append(out, instance)
		}
	}
	return out, nil
}

func (r *fakeInstanceRepo) CountActiveInstances(ctx context.Context) (int, error) {
	active, _ := r.ListActiveInstances(ctx)
	return len(active), nil
}

func (r *fakeInstanceRepo) IncrementSyncCount(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.syncCount[instanceID]++
	return nil
}

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*dbaccount.Account
	facts    map[string]*dbaccount.PermissionFacts
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: map[string]*dbaccount.Account{},
		facts:    map[string]*dbaccount.PermissionFacts{},
	}
}

func (r *fakeAccountRepo) UpsertAccount(ctx context.Context, account *dbaccount.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = account.Key()
	r.accounts[account.ID] = account
	return nil
}

func (r *fakeAccountRepo) GetAccount(ctx context.Context, instanceID, username string) (*dbaccount.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[instanceID+"/"+username]
	if !ok {
		return nil, errors.New("account not found")
	}
	return account, nil
}

func (r *fakeAccountRepo) ListAccountsForInstance(ctx context.Context, instanceID string) ([]*dbaccount.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*dbaccount.Account
	for _, account := range r.accounts {
		if account.InstanceID == instanceID {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) ReplaceFacts(ctx context.Context, accountID string, facts *dbaccount.PermissionFacts) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[accountID] = facts
	return nil
}

func (r *fakeAccountRepo) GetFacts(ctx context.Context, accountID string) (*dbaccount.PermissionFacts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	facts, ok := r.facts[accountID]
	if !ok {
		return nil, errors.New("facts not found")
	}
	return facts, nil
}

type fakeCollector struct {
	dbType  dbaccount.DbType
	collect func(ctx context.Context, instance *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error)
}

func (c *fakeCollector) DbType() dbaccount.DbType { return c.dbType }

func (c *fakeCollector) Collect(ctx context.Context, instance *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
	return c.collect(ctx, instance)
}

type capturingPublisher struct {
	mu               sync.Mutex
	completed        []events.SessionCompletedEvent
	failed           []events.SessionFailedEvent
	cancelled        []events.SessionCancelledEvent
	instanceFinished []events.InstanceSyncFinishedEvent
}

func (p *capturingPublisher) PublishSessionCompleted(event events.SessionCompletedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, event)
}

func (p *capturingPublisher) PublishSessionFailed(event events.SessionFailedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed = append(p.failed, event)
}

func (p *capturingPublisher) PublishSessionCancelled(event events.SessionCancelledEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = append(p.cancelled, event)
}

func (p *capturingPublisher) PublishInstanceSyncFinished(event events.InstanceSyncFinishedEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.instanceFinished = append(p.instanceFinished, event)
}

func (p *capturingPublisher) completedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.completed)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func testInstance(id string, dbType dbaccount.DbType) *dbaccount.Instance {
	return &dbaccount.Instance{
		ID:       id,
		Name:     id,
		Host:     "db-" + id,
		Port:     3306,
		DbType:   dbType,
		IsActive: true,
	}
}

func mysqlSnapshot(instanceID string, accounts ...dbaccount.AccountSnapshot) *dbaccount.InstanceSnapshot {
	return &dbaccount.InstanceSnapshot{
		InstanceID:  instanceID,
		DbType:      dbaccount.DbTypeMySQL,
		CollectedAt: time.Now(),
		Accounts:    accounts,
	}
}

func mysqlAccount(username string, superuser bool, globalPrivileges ...string) dbaccount.AccountSnapshot {
	privs, _ := json.Marshal(globalPrivileges)
	empty := json.RawMessage(`[]`)
	return dbaccount.AccountSnapshot{
		Username:    username,
		IsSuperuser: superuser,
		Permissions: dbaccount.NewSnapshot(dbaccount.DbTypeMySQL, map[string]json.RawMessage{
			dbaccount.CategoryMySQLGlobalPrivileges: privs,
			dbaccount.CategoryMySQLGrantedRoles:     empty,
			dbaccount.CategoryMySQLDefaultRoles:     empty,
		}),
	}
}

func newTestSyncService(
	instanceRepo *fakeInstanceRepo,
	accountRepo *fakeAccountRepo,
	sessionRepo *fakeSessionRepo,
	publisher events.SyncEventPublisher,
	opts SyncOptions,
	collectors ...contracts.Collector,
) (*SyncService, *SessionCoordinator) {
	registry := NewCollectorRegistry()
	for _, collector := range collectors {
		registry.RegisterCollector(collector)
	}
	coordinator := NewSessionCoordinator(sessionRepo)
	classifier := NewClassificationService(newFakeClassificationRepo())
	service := NewSyncService(instanceRepo, accountRepo, registry, classifier, coordinator, publisher, opts)
	return service, coordinator
}

func TestSyncService_SyncInstance_StoresAccountsAndFacts(t *testing.T) {
	instance := testInstance("inst-1", dbaccount.DbTypeMySQL)
	instanceRepo := newFakeInstanceRepo(instance)
	accountRepo := newFakeAccountRepo()
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			return mysqlSnapshot(inst.ID,
				mysqlAccount("root", true, "SELECT", "GRANT OPTION"),
				mysqlAccount("app_rw", false, "SELECT", "INSERT"),
			), nil
		},
	}

	service, _ := newTestSyncService(instanceRepo, accountRepo, newFakeSessionRepo(),
		&capturingPublisher{}, DefaultSyncOptions(), collector)

	result, err := service.SyncInstance(context.Background(), instance)

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 2, result.SyncedCount)
	assert.True(t, result.ContractOk)
	assert.Equal(t, 2, result.CapabilityCount)
	assert.Equal(t, 1, instanceRepo.syncCount["inst-1"])

	root, err := accountRepo.GetAccount(context.Background(), "inst-1", "root")
	require.NoError(t, err)
	facts, err := accountRepo.GetFacts(context.Background(), root.ID)
	require.NoError(t, err)
	assert.True(t, facts.HasCapability(dbaccount.CapabilitySuperuser))
	assert.True(t, facts.HasCapability(dbaccount.CapabilityGrantAdmin))
	assert.True(t, facts.Meta.SnapshotContractOk)

	app, err := accountRepo.GetAccount(context.Background(), "inst-1", "app_rw")
	require.NoError(t, err)
	appFacts, err := accountRepo.GetFacts(context.Background(), app.ID)
	require.NoError(t, err)
	assert.False(t, appFacts.HasCapability(dbaccount.CapabilitySuperuser))
	assert.True(t, appFacts.HasPrivilege(dbaccount.ScopeGlobal, "INSERT"))
}

func TestSyncService_SyncInstance_NoCollectorRegistered(t *testing.T) {
	instance := testInstance("inst-1", dbaccount.DbTypeOracle)
	service, _ := newTestSyncService(newFakeInstanceRepo(instance), newFakeAccountRepo(),
		newFakeSessionRepo(), &capturingPublisher{}, DefaultSyncOptions())

	_, err := service.SyncInstance(context.Background(), instance)

	require.Error(t, err)
	assert.ErrorIs(t, err, contracts.ErrNoCollector)
}

func TestSyncService_BatchWithNoInstancesCompletesImmediately(t *testing.T) {
	publisher := &capturingPublisher{}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(), newFakeAccountRepo(),
		sessionRepo, publisher, DefaultSyncOptions())

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")

	require.NoError(t, err)
	session, err := coordinator.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, syncdom.SessionStatusCompleted, session.Status)
	assert.Equal(t, 0, session.TotalInstances)

	progress, err := coordinator.GetProgressPercentage(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, progress)
	assert.Equal(t, 1, publisher.completedCount())
}

func TestSyncService_BatchCompletesDespitePerInstanceFailure(t *testing.T) {
	instances := []*dbaccount.Instance{
		testInstance("inst-ok-1", dbaccount.DbTypeMySQL),
		testInstance("inst-bad", dbaccount.DbTypeMySQL),
		testInstance("inst-ok-2", dbaccount.DbTypeMySQL),
	}
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			if inst.ID == "inst-bad" {
				return nil, errors.New("connection refused")
			}
			return mysqlSnapshot(inst.ID, mysqlAccount("root", true)), nil
		},
	}
	publisher := &capturingPublisher{}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instances...), newFakeAccountRepo(),
		sessionRepo, publisher, DefaultSyncOptions(), collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	waitFor(t, "session to complete", func() bool {
		session, err := coordinator.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == syncdom.SessionStatusCompleted
	})

	records, err := coordinator.ListInstanceRecords(context.Background(), sessionID)
	require.NoError(t, err)
	require.Len(t, records, 3)

	byInstance := map[string]*syncdom.SyncInstanceRecord{}
	for _, record := range records {
		byInstance[record.InstanceID] = record
	}
	assert.Equal(t, syncdom.RecordStatusCompleted, byInstance["inst-ok-1"].Status)
	assert.Equal(t, syncdom.RecordStatusCompleted, byInstance["inst-ok-2"].Status)
	assert.Equal(t, syncdom.RecordStatusFailed, byInstance["inst-bad"].Status)
	assert.Contains(t, byInstance["inst-bad"].ErrorMessage, "connection refused")
	assert.Equal(t, 1, byInstance["inst-ok-1"].ItemsSynced)

	var badDetails syncdom.SyncDetailsData
	require.NoError(t, json.Unmarshal([]byte(byInstance["inst-bad"].SyncDetails), &badDetails))
	assert.Equal(t, "collector_error", badDetails.ErrorCode)

	progress, err := coordinator.GetProgressPercentage(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, progress)
}

func TestSyncService_AllInstancesFailingStillCompletesSession(t *testing.T) {
	instances := []*dbaccount.Instance{
		testInstance("inst-1", dbaccount.DbTypeMySQL),
		testInstance("inst-2", dbaccount.DbTypeMySQL),
	}
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			return nil, errors.New("auth failed")
		},
	}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instances...), newFakeAccountRepo(),
		sessionRepo, &capturingPublisher{}, DefaultSyncOptions(), collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	waitFor(t, "session to complete", func() bool {
		session, err := coordinator.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == syncdom.SessionStatusCompleted
	})

	records, err := coordinator.ListInstanceRecords(context.Background(), sessionID)
	require.NoError(t, err)
	for _, record := range records {
		assert.Equal(t, syncdom.RecordStatusFailed, record.Status)
	}
}

func TestSyncService_CollectTimeoutFailsOnlyThatInstance(t *testing.T) {
	instances := []*dbaccount.Instance{
		testInstance("inst-fast", dbaccount.DbTypeMySQL),
		testInstance("inst-slow", dbaccount.DbTypeMySQL),
	}
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			if inst.ID == "inst-slow" {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return mysqlSnapshot(inst.ID, mysqlAccount("root", false)), nil
		},
	}
	opts := SyncOptions{WorkerCount: 2, CollectTimeout: 20 * time.Millisecond}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instances...), newFakeAccountRepo(),
		sessionRepo, &capturingPublisher{}, opts, collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	waitFor(t, "session to complete", func() bool {
		session, err := coordinator.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == syncdom.SessionStatusCompleted
	})

	records, err := coordinator.ListInstanceRecords(context.Background(), sessionID)
	require.NoError(t, err)
	byInstance := map[string]*syncdom.SyncInstanceRecord{}
	for _, record := range records {
		byInstance[record.InstanceID] = record
	}
	assert.Equal(t, syncdom.RecordStatusCompleted, byInstance["inst-fast"].Status)
	assert.Equal(t, syncdom.RecordStatusFailed, byInstance["inst-slow"].Status)
	assert.Contains(t, byInstance["inst-slow"].ErrorMessage, "context deadline exceeded")
}

func TestSyncService_CancelStopsDispatchButFinishesInFlight(t *testing.T) {
	instances := []*dbaccount.Instance{
		testInstance("inst-1", dbaccount.DbTypeMySQL),
		testInstance("inst-2", dbaccount.DbTypeMySQL),
		testInstance("inst-3", dbaccount.DbTypeMySQL),
	}
	gate := make(chan struct{})
	started := make(chan string, len(instances))
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			started <- inst.ID
			<-gate
			return mysqlSnapshot(inst.ID, mysqlAccount("root", false)), nil
		},
	}
	opts := SyncOptions{WorkerCount: 1, CollectTimeout: 5 * time.Second}
	publisher := &capturingPublisher{}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instances...), newFakeAccountRepo(),
		sessionRepo, publisher, opts, collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	// Wait until exactly one instance is in flight, then cancel.
	firstInstance := <-started
	ok, err := service.CancelSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	close(gate)

	waitFor(t, "in-flight record to finish", func() bool {
		records, err := coordinator.ListInstanceRecords(context.Background(), sessionID)
		if err != nil {
			return false
		}
		for _, record := range records {
			if record.InstanceID == firstInstance {
				return record.IsTerminal()
			}
		}
		return false
	})

	session, err := coordinator.GetSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, syncdom.SessionStatusCancelled, session.Status)

	// Give the supervisor a moment to (wrongly) dispatch more work; it must
	// not. The undispatched records stay pending.
	waitFor(t, "dispatch loop to wind down", func() bool {
		records, _ := coordinator.ListInstanceRecords(context.Background(), sessionID)
		terminal := 0
		for _, record := range records {
			if record.IsTerminal() {
				terminal++
			}
		}
		return terminal == 1
	})
	records, err := coordinator.ListInstanceRecords(context.Background(), sessionID)
	require.NoError(t, err)
	pending := 0
	for _, record := range records {
		if record.Status == syncdom.RecordStatusPending {
			pending++
		}
		if record.InstanceID == firstInstance {
			assert.Equal(t, syncdom.RecordStatusCompleted, record.Status,
				"in-flight instance finishes naturally after cancel")
		}
	}
	assert.Equal(t, 2, pending)

	// Cancelling again is a no-op on a terminal session.
	ok, err = service.CancelSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSyncService_SupervisorPanicFailsSession(t *testing.T) {
	publisher := &capturingPublisher{}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(), newFakeAccountRepo(),
		sessionRepo, publisher, DefaultSyncOptions())

	session, err := coordinator.CreateSession(context.Background(), syncdom.SyncTypeBatch, syncdom.SyncCategoryAccounts, "operator")
	require.NoError(t, err)
	records, err := coordinator.AddInstanceRecords(context.Background(), session.SessionID, []string{"inst-ghost"})
	require.NoError(t, err)

	// A record whose instance vanished from the dispatch set trips the
	// supervisor's panic path; the session must fail, not hang in running.
	service.runBatch(context.Background(), session, records, map[string]*dbaccount.Instance{})

	stored, err := coordinator.GetSession(context.Background(), session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, syncdom.SessionStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorMessage, "internal error")

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.failed, 1)
	assert.Equal(t, session.SessionID, publisher.failed[0].Session.SessionID)
}

func TestSyncService_InstanceFinishedEventsPublished(t *testing.T) {
	instance := testInstance("inst-1", dbaccount.DbTypeMySQL)
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			return mysqlSnapshot(inst.ID, mysqlAccount("root", false)), nil
		},
	}
	publisher := &capturingPublisher{}
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instance), newFakeAccountRepo(),
		newFakeSessionRepo(), publisher, DefaultSyncOptions(), collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	waitFor(t, "session to complete", func() bool {
		session, err := coordinator.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == syncdom.SessionStatusCompleted
	})

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	require.Len(t, publisher.instanceFinished, 1)
	record := publisher.instanceFinished[0].Record
	assert.Equal(t, "inst-1", record.InstanceID)
	assert.Equal(t, syncdom.RecordStatusCompleted, record.Status)

	var details syncdom.SyncDetailsData
	require.NoError(t, json.Unmarshal([]byte(record.SyncDetails), &details))
	assert.Equal(t, string(dbaccount.DbTypeMySQL), details.Vendor)
	assert.True(t, details.ContractOk)
}

func TestSyncService_WorkerCountBoundsConcurrency(t *testing.T) {
	const total = 6
	var instances []*dbaccount.Instance
	for i := 0; i < total; i++ {
		instances = append(instances, testInstance(fmt.Sprintf("inst-%d", i), dbaccount.DbTypeMySQL))
	}

	var mu sync.Mutex
	inFlight, maxInFlight := 0, 0
	collector := &fakeCollector{
		dbType: dbaccount.DbTypeMySQL,
		collect: func(ctx context.Context, inst *dbaccount.Instance) (*dbaccount.InstanceSnapshot, error) {
			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()
			time.Sleep(20 * time.Millisecond)
			mu.Lock()
			inFlight--
			mu.Unlock()
			return mysqlSnapshot(inst.ID, mysqlAccount("root", false)), nil
		},
	}
	opts := SyncOptions{WorkerCount: 2, CollectTimeout: time.Second}
	sessionRepo := newFakeSessionRepo()
	service, coordinator := newTestSyncService(newFakeInstanceRepo(instances...), newFakeAccountRepo(),
		sessionRepo, &capturingPublisher{}, opts, collector)

	sessionID, err := service.SyncAllActiveInstances(context.Background(), "operator")
	require.NoError(t, err)

	waitFor(t, "session to complete", func() bool {
		session, err := coordinator.GetSession(context.Background(), sessionID)
		return err == nil && session.Status == syncdom.SessionStatusCompleted
	})

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, maxInFlight, 2)
	assert.GreaterOrEqual(t, maxInFlight, 1)
}
