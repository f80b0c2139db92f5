package sync

import (
	"encoding/json"
	"time"
)

// RecordStatus represents the status of a per-instance sync record.
type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusRunning   RecordStatus = "running"
	RecordStatusCompleted RecordStatus = "completed"
	RecordStatusFailed    RecordStatus = "failed"
)

// SyncInstanceRecord tracks one instance's sync outcome within a session.
// A record moves pending → running → {completed, failed} exactly once;
// duplicate transition calls are no-ops, tolerating retried callbacks.
type SyncInstanceRecord struct {
	RecordID     string
	SessionID    string
	InstanceID   string
	Status       RecordStatus
	ItemsSynced  int
	ErrorMessage string
	SyncDetails  string
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// IsTerminal returns true once the record reached a final state.
func (r *SyncInstanceRecord) IsTerminal() bool {
	return r.Status == RecordStatusCompleted || r.Status == RecordStatusFailed
}

// SyncDetailsData is the diagnostic payload stored on a record as JSON.
type SyncDetailsData struct {
	Vendor          string    `json:"vendor,omitempty"`
	CollectedAt     time.Time `json:"collected_at,omitempty"`
	DurationMs      int64     `json:"duration_ms"`
	ContractOk      bool      `json:"contract_ok"`
	CapabilityCount int       `json:"capability_count"`
	ErrorCode       string    `json:"error_code,omitempty"`
	Note            string    `json:"note,omitempty"`
}

// Encode serializes the details for storage on the record.
func (d *SyncDetailsData) Encode() string {
	data, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(data)
}
