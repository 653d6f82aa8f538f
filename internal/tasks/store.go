// Package tasks tracks agent tasks through their lifecycle with a
// priority-ordered pending queue and best-effort snapshot persistence.
package tasks

import (
	"encoding/json"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory task registry. Every mutation persists a
// snapshot as a side effect; persistence failures are logged, never
// raised, and in-memory state stays authoritative.
type Store struct {
	mu    sync.RWMutex
	path  string
	tasks map[string]*Task
	queue []string // pending task IDs, priority order
}

type snapshot struct {
	Tasks map[string]*Task `json:"tasks"`
	Queue []string         `json:"queue"`
}

// NewStore creates a task store. If path is non-empty, a previous
// snapshot is loaded from it and every mutation writes it back.
func NewStore(path string) *Store {
	s := &Store{
		path:  path,
		tasks: make(map[string]*Task),
	}
	s.load()
	return s
}

// Create registers a new pending task and enqueues it by priority.
func (s *Store) Create(description string, priority Priority, payloads []string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:          uuid.New().String(),
		Description: description,
		Payloads:    slices.Clone(payloads),
		Status:      StatusPending,
		Priority:    priority,
		CreatedAt:   time.Now(),
	}
	s.tasks[t.ID] = t
	s.enqueueLocked(t.ID)
	s.persistLocked()
	return t.ID
}

// enqueueLocked inserts a task ID before the first queued task of
// strictly lower priority, keeping insertion order among equals.
func (s *Store) enqueueLocked(id string) {
	t := s.tasks[id]
	at := len(s.queue)
	for i, existing := range s.queue {
		if t.Priority.rank() < s.tasks[existing].Priority.rank() {
			at = i
			break
		}
	}
	s.queue = slices.Insert(s.queue, at, id)
}

// Start transitions a pending task to running and records the start
// time. It returns false, changing nothing, for any other state —
// including a second Start on the same task.
func (s *Store) Start(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != StatusPending {
		return false
	}
	now := time.Now()
	t.Status = StatusRunning
	t.StartedAt = &now
	s.removeFromQueueLocked(id)
	s.persistLocked()
	return true
}

// Complete moves a running task to completed with a result.
func (s *Store) Complete(id, result string) bool {
	return s.finish(id, StatusCompleted, result, "")
}

// Fail moves a running task to failed with an error description.
func (s *Store) Fail(id, errText string) bool {
	return s.finish(id, StatusFailed, "", errText)
}

// Cancel moves a pending or running task to cancelled.
func (s *Store) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status.Terminal() {
		return false
	}
	now := time.Now()
	t.Status = StatusCancelled
	t.CompletedAt = &now
	s.removeFromQueueLocked(id)
	s.persistLocked()
	return true
}

func (s *Store) finish(id string, status Status, result, errText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.Status != StatusRunning {
		return false
	}
	now := time.Now()
	t.Status = status
	t.CompletedAt = &now
	t.Result = result
	t.Error = errText
	s.removeFromQueueLocked(id)
	s.persistLocked()
	return true
}

func (s *Store) removeFromQueueLocked(id string) {
	s.queue = slices.DeleteFunc(s.queue, func(q string) bool { return q == id })
}

// NextPending returns a copy of the highest-priority pending task, or
// nil. Queue entries whose stored status drifted from pending are
// skipped; this is a defensive scan, not an error.
func (s *Store) NextPending() *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.queue {
		if t, ok := s.tasks[id]; ok && t.Status == StatusPending {
			c := t.clone()
			return &c
		}
	}
	return nil
}

// Get returns a copy of the task with the given ID.
func (s *Store) Get(id string) (Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.clone(), true
}

// All returns copies of every tracked task.
func (s *Store) All() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.clone())
	}
	return out
}

// Pending returns copies of all pending tasks in queue order.
func (s *Store) Pending() []Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Task
	for _, id := range s.queue {
		if t, ok := s.tasks[id]; ok && t.Status == StatusPending {
			out = append(out, t.clone())
		}
	}
	return out
}

// Running returns a copy of the currently running task, if any.
func (s *Store) Running() *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Status == StatusRunning {
			c := t.clone()
			return &c
		}
	}
	return nil
}

// FindDuplicate returns a copy of a task with the same description and,
// when payloads are given, an identical payload list.
func (s *Store) FindDuplicate(description string, payloads []string) *Task {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tasks {
		if t.Description != description {
			continue
		}
		if payloads != nil && !slices.Equal(t.Payloads, payloads) {
			continue
		}
		c := t.clone()
		return &c
	}
	return nil
}

// HasPendingDuplicate reports whether an identical task is already
// queued. This is the gate against re-creating an already-scheduled
// task.
func (s *Store) HasPendingDuplicate(description string, payloads []string) bool {
	d := s.FindDuplicate(description, payloads)
	return d != nil && d.Status == StatusPending
}

// ClearFinished removes all terminal tasks and returns how many were
// dropped.
func (s *Store) ClearFinished() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, t := range s.tasks {
		if t.Status.Terminal() {
			delete(s.tasks, id)
			s.removeFromQueueLocked(id)
			removed++
		}
	}
	if removed > 0 {
		s.persistLocked()
	}
	return removed
}

func (t *Task) clone() Task {
	c := *t
	c.Payloads = slices.Clone(t.Payloads)
	return c
}

// persistLocked writes the full snapshot. Failure is logged only;
// in-memory state remains authoritative for the process lifetime.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(snapshot{Tasks: s.tasks, Queue: s.queue}, "", "  ")
	if err != nil {
		log.Printf("[tasks] snapshot marshal failed: %v", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0600); err != nil {
		log.Printf("[tasks] snapshot write failed: %v", err)
	}
}

// load restores a snapshot, dropping queue entries whose task no longer
// exists.
func (s *Store) load() {
	if s.path == "" {
		return
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("[tasks] snapshot read failed: %v", err)
		}
		return
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("[tasks] snapshot corrupt, starting empty: %v", err)
		return
	}
	if snap.Tasks != nil {
		s.tasks = snap.Tasks
	}
	s.queue = s.queue[:0]
	for _, id := range snap.Queue {
		if _, ok := s.tasks[id]; ok {
			s.queue = append(s.queue, id)
		}
	}
}
