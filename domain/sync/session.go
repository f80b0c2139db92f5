package sync

import "time"

// SessionStatus represents the status of a sync session.
type SessionStatus string

const (
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// SyncType identifies how a sync run was initiated.
type SyncType string

const (
	SyncTypeManual    SyncType = "manual"
	SyncTypeBatch     SyncType = "batch"
	SyncTypeScheduled SyncType = "scheduled"
)

// SyncCategory identifies what a sync run collects.
type SyncCategory string

const (
	SyncCategoryAccounts SyncCategory = "accounts"
)

// SyncSession is one batch-sync run spanning multiple instances, tracked
// start to finish. Sessions are created in running state, reach exactly one
// terminal state, and are never deleted: they are the audit trail.
type SyncSession struct {
	SessionID      string
	SyncType       SyncType
	SyncCategory   SyncCategory
	Status         SessionStatus
	TotalInstances int
	CreatedBy      string
	ErrorMessage   string
	StartedAt      time.Time
	CompletedAt    *time.Time
}

// IsRunning returns true while the session can still accept transitions.
func (s *SyncSession) IsRunning() bool {
	return s.Status == SessionStatusRunning
}

// IsTerminal returns true once the session reached a final state.
func (s *SyncSession) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	}
	return false
}

// Duration returns how long the session has been running, or total duration
// once terminal.
func (s *SyncSession) Duration() time.Duration {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}

// ProgressPercentage computes batch progress from terminal record counts.
// A terminal zero-instance session is vacuously complete; a running session
// with no instances yet has made no progress.
func (s *SyncSession) ProgressPercentage(terminalRecords int) float64 {
	if s.TotalInstances == 0 {
		if s.IsTerminal() {
			return 100
		}
		return 0
	}
	return float64(terminalRecords) / float64(s.TotalInstances) * 100
}
