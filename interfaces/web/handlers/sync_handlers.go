package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"whalefall/application"
	"whalefall/domain/contracts"
	syncdom "whalefall/domain/sync"
	"whalefall/logging"
)

// SyncAPI is the slice of the sync layer the HTTP handlers need.
type SyncAPI interface {
	SyncInstanceByID(ctx context.Context, instanceID string) (*application.SyncResult, error)
	SyncAllActiveInstances(ctx context.Context, createdBy string) (string, error)
	CancelSession(ctx context.Context, sessionID string) (bool, error)
}

// SessionQueries is the read side for session status endpoints.
type SessionQueries interface {
	GetSession(ctx context.Context, sessionID string) (*syncdom.SyncSession, error)
	ListRecentSessions(ctx context.Context, limit int) ([]*syncdom.SyncSession, error)
	ListInstanceRecords(ctx context.Context, sessionID string) ([]*syncdom.SyncInstanceRecord, error)
	GetProgressPercentage(ctx context.Context, sessionID string) (float64, error)
}

// SyncHandlers handles sync-related HTTP endpoints. Thin orchestration only;
// all session semantics live in the application layer.
type SyncHandlers struct {
	syncAPI  SyncAPI
	sessions SessionQueries
	logger   *logging.Logger
}

// NewSyncHandlers creates a new sync handlers instance.
func NewSyncHandlers(syncAPI SyncAPI, sessions SessionQueries) *SyncHandlers {
	return &SyncHandlers{
		syncAPI:  syncAPI,
		sessions: sessions,
		logger:   logging.Default().WithComponent("sync_handler"),
	}
}

// RegisterRoutes mounts the sync API onto the router.
func (h *SyncHandlers) RegisterRoutes(r chi.Router) {
	r.Post("/api/sync/batch", h.StartBatchSync)
	r.Post("/api/sync/instances/{instanceID}", h.SyncInstance)
	r.Get("/api/sync/sessions", h.ListSessions)
	r.Get("/api/sync/sessions/{sessionID}", h.GetSession)
	r.Post("/api/sync/sessions/{sessionID}/cancel", h.CancelSession)
}

type batchSyncRequest struct {
	CreatedBy string `json:"created_by"`
}

// StartBatchSync kicks off a batch session over all active instances and
// returns its ID immediately.
func (h *SyncHandlers) StartBatchSync(w http.ResponseWriter, r *http.Request) {
	// An absent or malformed body means an anonymous operator.
	var req batchSyncRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	sessionID, err := h.syncAPI.SyncAllActiveInstances(r.Context(), req.CreatedBy)
	if err != nil {
		h.logger.Error("Failed to start batch sync", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start batch sync")
		return
	}

	h.logger.Info("Batch sync requested", "session_id", sessionID, "created_by", req.CreatedBy)
	writeJSON(w, http.StatusAccepted, map[string]any{"session_id": sessionID})
}

// SyncInstance synchronously syncs a single instance.
func (h *SyncHandlers) SyncInstance(w http.ResponseWriter, r *http.Request) {
	instanceID := chi.URLParam(r, "instanceID")
	if instanceID == "" {
		writeError(w, http.StatusBadRequest, "missing instance ID")
		return
	}

	result, err := h.syncAPI.SyncInstanceByID(r.Context(), instanceID)
	if err != nil {
		h.logger.Error("Instance sync failed", "instance_id", instanceID, "error", err)
		switch {
		case errors.Is(err, contracts.ErrInstanceNotFound):
			writeError(w, http.StatusNotFound, "instance not found")
		case errors.Is(err, contracts.ErrNoCollector):
			writeError(w, http.StatusUnprocessableEntity, "no collector registered for this database type")
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      result.Success,
		"message":      result.Message,
		"synced_count": result.SyncedCount,
	})
}

type sessionResponse struct {
	SessionID      string           `json:"session_id"`
	SyncType       string           `json:"sync_type"`
	Status         string           `json:"status"`
	TotalInstances int              `json:"total_instances"`
	CreatedBy      string           `json:"created_by,omitempty"`
	ErrorMessage   string           `json:"error_message,omitempty"`
	Progress       float64          `json:"progress"`
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	Records        []recordResponse `json:"records"`
}

type recordResponse struct {
	RecordID     string     `json:"record_id"`
	InstanceID   string     `json:"instance_id"`
	Status       string     `json:"status"`
	ItemsSynced  int        `json:"items_synced"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// ListSessions returns the most recent sessions, newest first.
func (h *SyncHandlers) ListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	sessions, err := h.sessions.ListRecentSessions(r.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, map[string]any{
			"session_id":      session.SessionID,
			"sync_type":       string(session.SyncType),
			"status":          string(session.Status),
			"total_instances": session.TotalInstances,
			"started_at":      session.StartedAt,
			"completed_at":    session.CompletedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// GetSession returns a session with its per-instance records and progress.
func (h *SyncHandlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	session, err := h.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, contracts.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("Failed to load session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	records, err := h.sessions.ListInstanceRecords(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to load session records", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session records")
		return
	}

	progress, err := h.sessions.GetProgressPercentage(r.Context(), sessionID)
	if err != nil {
		h.logger.Error("Failed to compute progress", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute progress")
		return
	}

	resp := sessionResponse{
		SessionID:      session.SessionID,
		SyncType:       string(session.SyncType),
		Status:         string(session.Status),
		TotalInstances: session.TotalInstances,
		CreatedBy:      session.CreatedBy,
		ErrorMessage:   session.ErrorMessage,
		Progress:       progress,
		StartedAt:      session.StartedAt,
		CompletedAt:    session.CompletedAt,
		Records:        make([]recordResponse, 0, len(records)),
	}
	for _, record := range records {
		resp.Records = append(resp.Records, recordResponse{
			RecordID:     record.RecordID,
			InstanceID:   record.InstanceID,
			Status:       string(record.Status),
			ItemsSynced:  record.ItemsSynced,
			ErrorMessage: record.ErrorMessage,
			StartedAt:    record.StartedAt,
			CompletedAt:  record.CompletedAt,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// CancelSession requests cooperative cancellation of a running session.
func (h *SyncHandlers) CancelSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "missing session ID")
		return
	}

	ok, err := h.syncAPI.CancelSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, contracts.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("Failed to cancel session", "session_id", sessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to cancel session")
		return
	}

	h.logger.Info("Session cancellation requested", "session_id", sessionID, "cancelled", ok)
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"cancelled":  ok,
	})
}
