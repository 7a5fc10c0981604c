// Package status records the sync heartbeat: an advisory status file written
// at cycle start and end. It is a status trail for supervisors and UIs, not
// a lock.
package status

import (
	"errors"
	"io/fs"
	"time"

	"github.com/arkeo-network/arkeo-cache-sync/internal/storage"
)

// ArtifactName is the heartbeat artifact inside the cache directory,
// written as _sync_status.json.
const ArtifactName = "_sync_status"

// SyncStatus is the heartbeat document. Each write replaces the file
// wholesale; a start write therefore clears the previous cycle's end fields.
type SyncStatus struct {
	// InProgress is true between cycle start and end.
	InProgress bool `json:"in_progress"`

	// CycleID uniquely identifies the cycle for log correlation.
	CycleID string `json:"cycle_id,omitempty"`

	// StartedAt is when the current (or last) cycle began.
	StartedAt string `json:"started_at,omitempty"`

	// FinishedAt is when the last cycle ended.
	FinishedAt string `json:"finished_at,omitempty"`

	// LastSuccess is the finish time of the most recent successful cycle.
	LastSuccess string `json:"last_success,omitempty"`

	// LastError describes the most recent failure, if any.
	LastError string `json:"last_error,omitempty"`
}

// Recorder persists heartbeat transitions through the artifact store.
type Recorder struct {
	store storage.Store
}

// NewRecorder creates a heartbeat recorder writing into the given store.
func NewRecorder(store storage.Store) *Recorder {
	return &Recorder{store: store}
}

// MarkStart records the beginning of a cycle. Persistence failures are
// returned but callers treat the heartbeat as best-effort.
func (r *Recorder) MarkStart(cycleID string, startedAt time.Time) error {
	return r.store.WriteArtifact(ArtifactName, &SyncStatus{
		InProgress: true,
		CycleID:    cycleID,
		StartedAt:  startedAt.UTC().Format(time.RFC3339),
	})
}

// MarkEnd records the end of a cycle, stamping last_success on success or
// last_error with the failure description otherwise.
func (r *Recorder) MarkEnd(cycleID string, finishedAt time.Time, syncErr string) error {
	finished := finishedAt.UTC().Format(time.RFC3339)
	st := &SyncStatus{
		InProgress: false,
		CycleID:    cycleID,
		FinishedAt: finished,
	}
	if syncErr == "" {
		st.LastSuccess = finished
	} else {
		st.LastError = syncErr
	}
	return r.store.WriteArtifact(ArtifactName, st)
}

// Load returns the persisted heartbeat, or an empty one when none exists.
func (r *Recorder) Load() (*SyncStatus, error) {
	var st SyncStatus
	if err := r.store.ReadArtifact(ArtifactName, &st); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run, nothing recorded yet.
			return &SyncStatus{}, nil
		}
		return nil, err
	}
	return &st, nil
}
