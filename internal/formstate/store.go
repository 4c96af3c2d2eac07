// Package formstate keeps visitors' in-progress form input ("drafts") and the
// set of forms they have submitted, persisted so a visitor can resume a form
// after a reload or a server restart.
//
// A Store holds the state of one visitor. Every mutation writes the whole
// state as JSON under the store's key:
//
//	{"formData": {"<formID>": {...}}, "submittedForms": ["<formID>", ...]}
//
// A missing or malformed value rehydrates as empty state. If a write fails
// the store logs a warning and keeps working from memory only.
package formstate

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/conneroisu/brokerage/internal/logging"
)

// DefaultNamespace prefixes every store key.
const DefaultNamespace = "form-state"

// writeTimeout bounds a single write-through.
const writeTimeout = 5 * time.Second

// Key returns the storage key for a visitor session.
func Key(namespace, sessionID string) string {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + ":" + sessionID
}

type persisted struct {
	FormData       map[string]map[string]any `json:"formData"`
	SubmittedForms []string                  `json:"submittedForms"`
}

// Snapshot is a point-in-time copy of a store's state.
type Snapshot struct {
	FormData       map[string]map[string]any `json:"formData"`
	SubmittedForms []string                  `json:"submittedForms"`
}

// Store is the form state of one visitor. It is safe for concurrent use.
type Store struct {
	storage Storage
	key     string
	logger  logging.Logger

	mu        sync.Mutex
	formData  map[string]map[string]any
	submitted []string
	degraded  bool
	touched   time.Time
}

// New builds a store over storage and rehydrates it from key. A nil storage
// gives a memory-only store.
func New(storage Storage, key string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.NewNop()
	}

	s := &Store{
		storage:  storage,
		key:      key,
		logger:   logger.WithComponent("formstate"),
		formData: make(map[string]map[string]any),
		touched:  time.Now(),
	}
	if storage == nil {
		s.degraded = true
		return s
	}

	s.rehydrate(context.Background())
	return s
}

func (s *Store) rehydrate(ctx context.Context) {
	raw, err := s.storage.Get(ctx, s.key)
	if stderrors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		s.logger.Warn(ctx, err, "reading form state, starting empty", "key", s.key)
		return
	}

	var state persisted
	if err := json.Unmarshal(raw, &state); err != nil {
		s.logger.Warn(ctx, err, "malformed form state, starting empty", "key", s.key)
		return
	}

	for formID, record := range state.FormData {
		if record == nil {
			continue
		}
		s.formData[formID] = record
	}
	for _, formID := range state.SubmittedForms {
		if !slices.Contains(s.submitted, formID) {
			s.submitted = append(s.submitted, formID)
		}
	}
}

// SaveFormData replaces the record for formID with data as it reads back
// from JSON: numbers become float64, typed maps and slices become
// map[string]any and []any. The store keeps no reference to data. A value
// JSON cannot encode is rejected and leaves the store unchanged.
func (s *Store) SaveFormData(formID string, data map[string]any) error {
	record, err := normalizeRecord(data)
	if err != nil {
		return fmt.Errorf("form %q: %w", formID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.formData[formID] = record
	s.persistLocked()
	return nil
}

// GetSavedFormData returns a copy of the record for formID. ok is false when
// nothing is saved for it.
func (s *Store) GetSavedFormData(formID string) (data map[string]any, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touched = time.Now()
	record, ok := s.formData[formID]
	if !ok {
		return nil, false
	}

	return copyRecord(record), true
}

// MarkFormAsSubmitted adds formID to the submitted set. Marking twice keeps a
// single entry.
func (s *Store) MarkFormAsSubmitted(formID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.submitted, formID) {
		s.touched = time.Now()
		return
	}
	s.submitted = append(s.submitted, formID)
	s.persistLocked()
}

// IsFormSubmitted reports whether formID is in the submitted set.
func (s *Store) IsFormSubmitted(formID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.touched = time.Now()
	return slices.Contains(s.submitted, formID)
}

// ClearFormData removes the record for formID, if any.
func (s *Store) ClearFormData(formID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.formData[formID]; !ok {
		s.touched = time.Now()
		return
	}
	delete(s.formData, formID)
	s.persistLocked()
}

// ClearAllFormData empties both the records and the submitted set.
func (s *Store) ClearAllFormData() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.formData = make(map[string]map[string]any)
	s.submitted = nil
	s.persistLocked()
}

// Snapshot returns a deep copy of the whole state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		FormData:       make(map[string]map[string]any, len(s.formData)),
		SubmittedForms: slices.Clone(s.submitted),
	}
	if snap.SubmittedForms == nil {
		snap.SubmittedForms = []string{}
	}
	for formID, record := range s.formData {
		snap.FormData[formID] = copyRecord(record)
	}

	return snap
}

// Degraded reports whether the store is running from memory only.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.degraded
}

// Key returns the storage key the store persists under.
func (s *Store) Key() string {
	return s.key
}

// lastUsed reports when the store was last read or written.
func (s *Store) lastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.touched
}

// flush retries the write-through of a degraded store and clears the
// degraded flag when it succeeds.
func (s *Store) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.storage == nil {
		return stderrors.New("store has no storage")
	}
	if err := s.writeLocked(); err != nil {
		return err
	}
	s.degraded = false
	return nil
}

// persistLocked writes the full state through to storage. s.mu must be held.
func (s *Store) persistLocked() {
	s.touched = time.Now()
	if s.degraded {
		return
	}

	if err := s.writeLocked(); err != nil {
		s.degraded = true
		s.logger.Warn(context.Background(), err, "form state write failed, continuing in memory only", "key", s.key)
	}
}

func (s *Store) writeLocked() error {
	state := persisted{
		FormData:       s.formData,
		SubmittedForms: s.submitted,
	}
	if state.SubmittedForms == nil {
		state.SubmittedForms = []string{}
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	return s.storage.Set(ctx, s.key, raw)
}

// normalizeRecord round-trips data through JSON so memory holds exactly what
// a rehydrated store would.
func normalizeRecord(data map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var record map[string]any
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, err
	}
	if record == nil {
		record = map[string]any{}
	}
	return record, nil
}

// copyRecord deep-copies a normalized record, which only holds JSON values.
func copyRecord(record map[string]any) map[string]any {
	if record == nil {
		return map[string]any{}
	}

	out := make(map[string]any, len(record))
	for k, v := range record {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return copyRecord(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
