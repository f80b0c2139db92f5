package sync

import (
	"time"

	"github.com/google/uuid"
)

// SessionFactory creates sessions and instance records with proper
// initialization. Session IDs are opaque and never reused.
type SessionFactory struct{}

// NewSession creates a fresh session in running state. TotalInstances starts
// at zero; the caller sets it once the instance set is known, before fan-out.
func (sf *SessionFactory) NewSession(syncType SyncType, syncCategory SyncCategory, createdBy string) *SyncSession {
	return &SyncSession{
		SessionID:    uuid.NewString(),
		SyncType:     syncType,
		SyncCategory: syncCategory,
		Status:       SessionStatusRunning,
		CreatedBy:    createdBy,
		StartedAt:    time.Now(),
	}
}

// NewInstanceRecords bulk-creates pending records, one per instance,
// preserving the input order.
func (sf *SessionFactory) NewInstanceRecords(sessionID string, instanceIDs []string) []*SyncInstanceRecord {
	records := make([]*SyncInstanceRecord, 0, len(instanceIDs))
	for _, instanceID := range instanceIDs {
		records = append(records, &SyncInstanceRecord{
			RecordID:   uuid.NewString(),
			SessionID:  sessionID,
			InstanceID: instanceID,
			Status:     RecordStatusPending,
		})
	}
	return records
}
