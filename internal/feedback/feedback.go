// Package feedback keeps operator review verdicts for exported anomalies.
// Verdicts live in memory and are mirrored to a JSON file so they survive a
// restart; persistence is best-effort and never fails a request.
package feedback

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Review statuses an operator can assign to an anomaly.
const (
	StatusConfirmed  = "confirmed"
	StatusDismissed  = "dismissed"
	StatusUnreviewed = "unreviewed"
)

// ErrInvalidStatus is returned when a verdict carries an unknown status.
var ErrInvalidStatus = errors.New("status must be confirmed, dismissed or unreviewed")

// Entry is one recorded verdict.
type Entry struct {
	AnomalyID string    `json:"anomalyId"`
	Status    string    `json:"status"`
	Comment   string    `json:"comment,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Registry stores verdicts keyed by anomaly id.
type Registry struct {
	mu      sync.Mutex
	entries map[string]Entry
	path    string // empty disables persistence
	clock   clockwork.Clock
	logger  *zap.Logger
}

// NewRegistry creates a Registry. path may be empty to keep verdicts only in
// memory. An existing file at path is loaded; a malformed file is logged and
// ignored.
func NewRegistry(path string, clock clockwork.Clock, logger *zap.Logger) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries: make(map[string]Entry),
		path:    path,
		clock:   clock,
		logger:  logger,
	}
	r.load()
	return r
}

// ValidStatus reports whether s is a recognized review status.
func ValidStatus(s string) bool {
	switch s {
	case StatusConfirmed, StatusDismissed, StatusUnreviewed:
		return true
	}
	return false
}

// Record stores a verdict for the anomaly and persists the registry.
// Returns the stored entry.
func (r *Registry) Record(anomalyID, status, comment string) (Entry, error) {
	if !ValidStatus(status) {
		return Entry{}, ErrInvalidStatus
	}
	entry := Entry{
		AnomalyID: anomalyID,
		Status:    status,
		Comment:   comment,
		UpdatedAt: r.clock.Now().UTC(),
	}

	r.mu.Lock()
	r.entries[anomalyID] = entry
	r.mu.Unlock()

	r.persist()
	return entry, nil
}

// Get returns the verdict for an anomaly. Unknown anomalies report
// StatusUnreviewed, which is also the implicit state of every anomaly that
// was never reviewed.
func (r *Registry) Get(anomalyID string) Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[anomalyID]; ok {
		return e
	}
	return Entry{AnomalyID: anomalyID, Status: StatusUnreviewed}
}

// All returns every recorded verdict sorted by anomaly id.
func (r *Registry) All() []Entry {
	r.mu.Lock()
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AnomalyID < out[j].AnomalyID })
	return out
}

func (r *Registry) load() {
	if r.path == "" {
		return
	}
	data, err := os.ReadFile(r.path)
	if err != nil {
		if !os.IsNotExist(err) {
			r.logger.Warn("feedback file unreadable", zap.String("path", r.path), zap.Error(err))
		}
		return
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		r.logger.Warn("feedback file malformed, starting empty", zap.String("path", r.path), zap.Error(err))
		return
	}
	for _, e := range entries {
		if e.AnomalyID != "" && ValidStatus(e.Status) {
			r.entries[e.AnomalyID] = e
		}
	}
}

func (r *Registry) persist() {
	if r.path == "" {
		return
	}
	entries := r.All()
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		r.logger.Warn("feedback marshal failed", zap.Error(err))
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.logger.Warn("feedback write failed", zap.String("path", tmp), zap.Error(err))
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.logger.Warn("feedback rename failed", zap.String("path", r.path), zap.Error(err))
	}
}
