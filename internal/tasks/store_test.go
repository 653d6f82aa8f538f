package tasks

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_CreateAndGet(t *testing.T) {
	s := NewStore("")

	id := s.Create("install nginx", PriorityMedium, []string{"apt install nginx"})

	task, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, "install nginx", task.Description)
	assert.Equal(t, []string{"apt install nginx"}, task.Payloads)
	assert.False(t, task.CreatedAt.IsZero())

	// The new task is discoverable via the queue.
	next := s.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, id, next.ID)
}

func TestStore_StartTransition(t *testing.T) {
	s := NewStore("")
	id := s.Create("check disk", PriorityMedium, nil)

	assert.True(t, s.Start(id))

	task, _ := s.Get(id)
	assert.Equal(t, StatusRunning, task.Status)
	require.NotNil(t, task.StartedAt)

	// No longer discoverable as pending.
	assert.Nil(t, s.NextPending())

	// Second start returns false and changes nothing.
	assert.False(t, s.Start(id))
	task, _ = s.Get(id)
	assert.Equal(t, StatusRunning, task.Status)
}

func TestStore_CompleteOnlyFromRunning(t *testing.T) {
	s := NewStore("")
	id := s.Create("uptime", PriorityMedium, nil)

	// Cannot complete a pending task.
	assert.False(t, s.Complete(id, "done"))

	require.True(t, s.Start(id))
	assert.True(t, s.Complete(id, "all actions executed"))

	task, _ := s.Get(id)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, "all actions executed", task.Result)
	assert.Empty(t, task.Error)
	require.NotNil(t, task.CompletedAt)

	// Terminal state is final.
	assert.False(t, s.Fail(id, "late failure"))
}

func TestStore_Fail(t *testing.T) {
	s := NewStore("")
	id := s.Create("bad task", PriorityMedium, nil)
	require.True(t, s.Start(id))

	assert.True(t, s.Fail(id, "shell write failed"))

	task, _ := s.Get(id)
	assert.Equal(t, StatusFailed, task.Status)
	assert.Equal(t, "shell write failed", task.Error)
	assert.Empty(t, task.Result)
}

func TestStore_Cancel(t *testing.T) {
	s := NewStore("")
	id := s.Create("long task", PriorityMedium, nil)
	require.True(t, s.Start(id))

	assert.True(t, s.Cancel(id))
	task, _ := s.Get(id)
	assert.Equal(t, StatusCancelled, task.Status)
	assert.False(t, s.Cancel(id))
}

func TestStore_QueuePriorityOrder(t *testing.T) {
	s := NewStore("")

	low := s.Create("low", PriorityLow, nil)
	urgent1 := s.Create("urgent one", PriorityUrgent, nil)
	medium := s.Create("medium", PriorityMedium, nil)
	urgent2 := s.Create("urgent two", PriorityUrgent, nil)

	pending := s.Pending()
	require.Len(t, pending, 4)

	// Stable within priority: urgent one stays ahead of urgent two.
	assert.Equal(t, urgent1, pending[0].ID)
	assert.Equal(t, urgent2, pending[1].ID)
	assert.Equal(t, medium, pending[2].ID)
	assert.Equal(t, low, pending[3].ID)
}

func TestStore_NextPendingSkipsDrifted(t *testing.T) {
	s := NewStore("")
	first := s.Create("first", PriorityMedium, nil)
	second := s.Create("second", PriorityMedium, nil)

	require.True(t, s.Start(first))

	next := s.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, second, next.ID)
}

func TestStore_DuplicateDetection(t *testing.T) {
	s := NewStore("")
	payloads := []string{"apt install nginx"}
	id := s.Create("install nginx", PriorityMedium, payloads)

	assert.True(t, s.HasPendingDuplicate("install nginx", payloads))
	assert.False(t, s.HasPendingDuplicate("install nginx", []string{"other"}))
	assert.False(t, s.HasPendingDuplicate("install apache", payloads))

	// Description-only match when payloads are nil.
	assert.NotNil(t, s.FindDuplicate("install nginx", nil))

	// No longer a pending duplicate once the task finishes.
	require.True(t, s.Start(id))
	require.True(t, s.Complete(id, "done"))
	assert.False(t, s.HasPendingDuplicate("install nginx", payloads))
}

func TestStore_ClearFinished(t *testing.T) {
	s := NewStore("")
	done := s.Create("done", PriorityMedium, nil)
	s.Create("still pending", PriorityMedium, nil)

	require.True(t, s.Start(done))
	require.True(t, s.Complete(done, "ok"))

	assert.Equal(t, 1, s.ClearFinished())
	assert.Len(t, s.All(), 1)
}

func TestStore_Running(t *testing.T) {
	s := NewStore("")
	assert.Nil(t, s.Running())

	id := s.Create("task", PriorityMedium, nil)
	require.True(t, s.Start(id))

	running := s.Running()
	require.NotNil(t, running)
	assert.Equal(t, id, running.ID)
}

func TestStore_PersistenceRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	s := NewStore(path)
	kept := s.Create("kept", PriorityHigh, []string{"uname -a"})
	started := s.Create("started", PriorityLow, nil)
	require.True(t, s.Start(started))

	reloaded := NewStore(path)

	task, ok := reloaded.Get(kept)
	require.True(t, ok)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, []string{"uname -a"}, task.Payloads)

	task, ok = reloaded.Get(started)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, task.Status)

	next := reloaded.NextPending()
	require.NotNil(t, next)
	assert.Equal(t, kept, next.ID)
}

func TestStore_LoadDropsOrphanQueueEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")

	s := NewStore(path)
	id := s.Create("task", PriorityMedium, nil)

	// Forge a snapshot with a queue entry that has no backing task.
	s.mu.Lock()
	s.queue = append(s.queue, "ghost-task-id")
	s.persistLocked()
	s.mu.Unlock()

	reloaded := NewStore(path)
	assert.Equal(t, []string{id}, reloaded.queue)
}

func TestStore_MutationsAreCopies(t *testing.T) {
	s := NewStore("")
	id := s.Create("task", PriorityMedium, []string{"ls"})

	task, _ := s.Get(id)
	task.Payloads[0] = "tampered"
	task.Status = StatusFailed

	fresh, _ := s.Get(id)
	assert.Equal(t, "ls", fresh.Payloads[0])
	assert.Equal(t, StatusPending, fresh.Status)
}
