package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"whalefall/domain/contracts"
	"whalefall/domain/dbaccount"
	"whalefall/domain/events"
	syncdom "whalefall/domain/sync"
	"whalefall/logging"
)

// SyncOptions tunes batch sync execution.
type SyncOptions struct {
	// WorkerCount bounds how many instances sync concurrently in a batch.
	WorkerCount int
	// CollectTimeout caps one collector call against one instance. A slow
	// instance fails its own record and never stalls the batch.
	CollectTimeout time.Duration
	// ClassifyOnSync runs rule evaluation for each account right after its
	// facts are stored.
	ClassifyOnSync bool
}

// DefaultSyncOptions returns production defaults.
func DefaultSyncOptions() SyncOptions {
	return SyncOptions{
		WorkerCount:    5,
		CollectTimeout: 60 * time.Second,
		ClassifyOnSync: true,
	}
}

// SyncResult summarizes one instance sync. ContractOk is false when any
// account's snapshot violated the collector contract; the facts themselves
// record the per-account detail.
type SyncResult struct {
	Success         bool
	Message         string
	SyncedCount     int
	ContractOk      bool
	CapabilityCount int
}

// SyncService orchestrates account synchronization: single-instance syncs
// and cancellable batch sessions fanning out over every active instance.
type SyncService struct {
	instances   contracts.InstanceRepository
	accounts    contracts.AccountRepository
	registry    *CollectorRegistry
	normalizer  *dbaccount.Normalizer
	classifier  *ClassificationService
	coordinator *SessionCoordinator
	publisher   events.SyncEventPublisher
	opts        SyncOptions
	logger      *logging.Logger

	mu              sync.Mutex
	runningSessions map[string]context.CancelFunc
}

// NewSyncService creates the sync orchestrator.
func NewSyncService(
	instances contracts.InstanceRepository,
	accounts contracts.AccountRepository,
	registry *CollectorRegistry,
	classifier *ClassificationService,
	coordinator *SessionCoordinator,
	publisher events.SyncEventPublisher,
	opts SyncOptions,
) *SyncService {
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = DefaultSyncOptions().WorkerCount
	}
	if opts.CollectTimeout <= 0 {
		opts.CollectTimeout = DefaultSyncOptions().CollectTimeout
	}
	return &SyncService{
		instances:       instances,
		accounts:        accounts,
		registry:        registry,
		normalizer:      dbaccount.NewNormalizer(),
		classifier:      classifier,
		coordinator:     coordinator,
		publisher:       publisher,
		opts:            opts,
		logger:          logging.Default().WithComponent("sync_service"),
		runningSessions: make(map[string]context.CancelFunc),
	}
}

// SyncInstance collects accounts from one instance, normalizes each
// account's permissions into facts, stores them, and optionally classifies.
// Collector failures surface as the returned error; a malformed snapshot is
// not a failure, it becomes facts with lowered contract flags.
func (s *SyncService) SyncInstance(ctx context.Context, instance *dbaccount.Instance) (*SyncResult, error) {
	collector, err := s.registry.GetCollector(instance.DbType)
	if err != nil {
		return nil, err
	}

	collectCtx, cancel := context.WithTimeout(ctx, s.opts.CollectTimeout)
	defer cancel()

	start := time.Now()
	snapshot, err := collector.Collect(collectCtx, instance)
	if err != nil {
		return nil, &contracts.CollectorError{
			DbType:     instance.DbType,
			InstanceID: instance.ID,
			Err:        err,
		}
	}
	s.logger.Collector("Snapshot collected",
		"instance_id", instance.ID,
		"db_type", instance.DbType,
		"accounts", len(snapshot.Accounts),
		"duration_ms", time.Since(start).Milliseconds())

	synced := 0
	contractOk := true
	capabilityCount := 0
	for i := range snapshot.Accounts {
		accountSnapshot := &snapshot.Accounts[i]

		facts := s.normalizer.Normalize(instance.DbType,
			accountSnapshot.IsSuperuser, accountSnapshot.IsLocked,
			accountSnapshot.Permissions)
		if !facts.Meta.SnapshotContractOk || !facts.Meta.TypeSpecificContractOk {
			contractOk = false
		}
		capabilityCount += len(facts.Capabilities)

		now := time.Now()
		account := &dbaccount.Account{
			InstanceID:   instance.ID,
			Username:     accountSnapshot.Username,
			DbType:       instance.DbType,
			IsSuperuser:  accountSnapshot.IsSuperuser,
			IsLocked:     accountSnapshot.IsLocked,
			LastSyncedAt: &now,
		}
		if err := s.accounts.UpsertAccount(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to upsert account %s: %w", account.Key(), err)
		}
		if err := s.accounts.ReplaceFacts(ctx, account.ID, facts); err != nil {
			return nil, fmt.Errorf("failed to store facts for %s: %w", account.Key(), err)
		}
		synced++

		if s.opts.ClassifyOnSync && s.classifier != nil {
			if _, err := s.classifier.ClassifyAccount(ctx, account, facts); err != nil {
				// Classification is best-effort per account; the facts are
				// already stored and a later run converges.
				s.logger.Warn("Classification failed after sync",
					"account_id", account.ID,
					"instance_id", instance.ID,
					"error", err.Error())
			}
		}
	}

	if err := s.instances.IncrementSyncCount(ctx, instance.ID); err != nil {
		s.logger.Warn("Failed to bump instance sync count",
			"instance_id", instance.ID, "error", err.Error())
	}

	return &SyncResult{
		Success:         true,
		Message:         fmt.Sprintf("synced %d accounts from %s", synced, instance.Address()),
		SyncedCount:     synced,
		ContractOk:      contractOk,
		CapabilityCount: capabilityCount,
	}, nil
}

// SyncInstanceByID resolves the instance and syncs it.
func (s *SyncService) SyncInstanceByID(ctx context.Context, instanceID string) (*SyncResult, error) {
	instance, err := s.instances.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return s.SyncInstance(ctx, instance)
}

// SyncAllActiveInstances starts a batch session over every active instance
// and returns its ID immediately; the fan-out runs in the background. A
// batch with no active instances completes on the spot.
func (s *SyncService) SyncAllActiveInstances(ctx context.Context, createdBy string) (string, error) {
	instances, err := s.instances.ListActiveInstances(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list active instances: %w", err)
	}

	session, err := s.coordinator.CreateSession(ctx, syncdom.SyncTypeBatch, syncdom.SyncCategoryAccounts, createdBy)
	if err != nil {
		return "", err
	}

	if len(instances) == 0 {
		if _, err := s.coordinator.CompleteSession(ctx, session.SessionID); err != nil {
			return "", err
		}
		s.publishSessionCompleted(ctx, session.SessionID)
		return session.SessionID, nil
	}

	if err := s.coordinator.SetTotalInstances(ctx, session.SessionID, len(instances)); err != nil {
		return "", err
	}
	session.TotalInstances = len(instances)

	instanceIDs := make([]string, 0, len(instances))
	byID := make(map[string]*dbaccount.Instance, len(instances))
	for _, instance := range instances {
		instanceIDs = append(instanceIDs, instance.ID)
		byID[instance.ID] = instance
	}

	records, err := s.coordinator.AddInstanceRecords(ctx, session.SessionID, instanceIDs)
	if err != nil {
		return "", err
	}

	// The batch outlives the request that started it.
	batchCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.runningSessions[session.SessionID] = cancel
	s.mu.Unlock()

	go s.runBatch(batchCtx, session, records, byID)

	s.logger.Sync("Batch sync started", session.SessionID,
		slog.Int("total_instances", len(instances)),
		slog.Int("workers", s.opts.WorkerCount))

	return session.SessionID, nil
}

// CancelSession requests cooperative cancellation of a running batch.
// The instance currently syncing finishes naturally; records not yet started
// stay pending. Returns false for an already-terminal session.
func (s *SyncService) CancelSession(ctx context.Context, sessionID string) (bool, error) {
	ok, err := s.coordinator.CancelSession(ctx, sessionID)
	if err != nil || !ok {
		return ok, err
	}

	if session, err := s.coordinator.GetSession(ctx, sessionID); err == nil {
		s.publisher.PublishSessionCancelled(events.SessionCancelledEvent{
			Session:   session,
			Timestamp: time.Now(),
		})
	}
	return true, nil
}

// Shutdown cancels every running batch context. Sessions interrupted this
// way transition to cancelled as their supervisors unwind.
func (s *SyncService) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cancel := range s.runningSessions {
		cancel()
	}
}

// runBatch supervises one batch session: dispatches instances to a bounded
// worker pool, watches for cancellation between dispatches, and closes the
// session out when the pool drains. A panic anywhere in the supervisor fails
// the session rather than leaving it running forever.
func (s *SyncService) runBatch(ctx context.Context, session *syncdom.SyncSession, records []*syncdom.SyncInstanceRecord, instances map[string]*dbaccount.Instance) {
	defer func() {
		s.mu.Lock()
		delete(s.runningSessions, session.SessionID)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error during batch sync: %v", r)
			s.logger.SyncError("Batch sync panicked", fmt.Errorf("%v", r), session.SessionID)
			if ok, _ := s.coordinator.FailSession(context.Background(), session.SessionID, msg); ok {
				s.publishSessionFailed(session.SessionID, msg)
			}
		}
	}()

	sem := make(chan struct{}, s.opts.WorkerCount)
	var wg sync.WaitGroup

	for _, record := range records {
		sem <- struct{}{}

		// Cancellation is checked before each dispatch, never mid-instance:
		// the instance currently syncing finishes naturally and records not
		// yet dispatched stay pending.
		if ctx.Err() != nil {
			<-sem
			break
		}
		if cancelled, err := s.coordinator.IsCancelled(context.Background(), session.SessionID); err == nil && cancelled {
			<-sem
			break
		}

		instance, ok := instances[record.InstanceID]
		if !ok {
			// Record set and instance set come from the same snapshot of
			// storage; a miss here is an orchestration bug.
			panic(fmt.Sprintf("no instance for sync record %s", record.RecordID))
		}

		wg.Add(1)
		go func(record *syncdom.SyncInstanceRecord, instance *dbaccount.Instance) {
			defer wg.Done()
			defer func() { <-sem }()
			s.syncRecord(ctx, record, instance)
		}(record, instance)
	}

	wg.Wait()
	s.finishBatch(ctx, session.SessionID)
}

// syncRecord runs one instance's sync under its session record. Record
// bookkeeping uses a background context so that cancelling the batch cannot
// corrupt an in-flight record's state transitions.
func (s *SyncService) syncRecord(ctx context.Context, record *syncdom.SyncInstanceRecord, instance *dbaccount.Instance) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("internal error syncing instance: %v", r)
			details := (&syncdom.SyncDetailsData{Vendor: string(instance.DbType), Note: msg}).Encode()
			s.coordinator.FailInstanceSync(context.Background(), record.RecordID, msg, details)
		}
	}()

	started, err := s.coordinator.StartInstanceSync(context.Background(), record.RecordID)
	if err != nil {
		s.logger.SyncError("Failed to start instance record", err, record.SessionID,
			slog.String("record_id", record.RecordID))
		return
	}
	if !started {
		// Already dispatched by a competing worker.
		return
	}

	start := time.Now()
	result, err := s.SyncInstance(ctx, instance)
	details := syncdom.SyncDetailsData{
		Vendor:     string(instance.DbType),
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		details.Note = "sync failed"
		var collectorErr *contracts.CollectorError
		if errors.As(err, &collectorErr) {
			details.ErrorCode = "collector_error"
		} else {
			details.ErrorCode = "internal_error"
		}
		s.coordinator.FailInstanceSync(context.Background(), record.RecordID, err.Error(), details.Encode())
		s.logger.SyncError("Instance sync failed", err, record.SessionID,
			slog.String("instance_id", instance.ID))
	} else {
		details.ContractOk = result.ContractOk
		details.CapabilityCount = result.CapabilityCount
		details.CollectedAt = start
		s.coordinator.CompleteInstanceSync(context.Background(), record.RecordID, result.SyncedCount, details.Encode())
		s.logger.Sync("Instance sync completed", record.SessionID,
			slog.String("instance_id", instance.ID),
			slog.Int("items_synced", result.SyncedCount))
	}

	if fresh, err := s.coordinator.GetInstanceRecord(context.Background(), record.RecordID); err == nil {
		s.publisher.PublishInstanceSyncFinished(events.InstanceSyncFinishedEvent{
			Record:    fresh,
			Timestamp: time.Now(),
		})
	}
}

// finishBatch closes the session after the worker pool drains. An
// operator-cancelled session is already terminal; a context cancelled by
// shutdown transitions it here. Otherwise the session completes even when
// every instance failed, per-record failures are the record's story.
func (s *SyncService) finishBatch(ctx context.Context, sessionID string) {
	if cancelled, err := s.coordinator.IsCancelled(context.Background(), sessionID); err == nil && cancelled {
		return
	}

	if ctx.Err() != nil {
		if ok, _ := s.coordinator.CancelSession(context.Background(), sessionID); ok {
			if session, err := s.coordinator.GetSession(context.Background(), sessionID); err == nil {
				s.publisher.PublishSessionCancelled(events.SessionCancelledEvent{
					Session:   session,
					Timestamp: time.Now(),
				})
			}
		}
		return
	}

	if ok, err := s.coordinator.CompleteSession(context.Background(), sessionID); err != nil {
		s.logger.SyncError("Failed to complete session", err, sessionID)
	} else if ok {
		s.publishSessionCompleted(context.Background(), sessionID)
	}
}

func (s *SyncService) publishSessionCompleted(ctx context.Context, sessionID string) {
	session, err := s.coordinator.GetSession(ctx, sessionID)
	if err != nil {
		return
	}
	s.publisher.PublishSessionCompleted(events.SessionCompletedEvent{
		Session:   session,
		Timestamp: time.Now(),
	})
}

func (s *SyncService) publishSessionFailed(sessionID, message string) {
	session, err := s.coordinator.GetSession(context.Background(), sessionID)
	if err != nil {
		return
	}
	s.publisher.PublishSessionFailed(events.SessionFailedEvent{
		Session:   session,
		Error:     message,
		Timestamp: time.Now(),
	})
}
