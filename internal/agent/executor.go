// Package agent drives a remote shell on behalf of a language model:
// it extracts actions from model text, runs them sequentially against
// the shell, classifies the resulting output, and auto-resolves or
// escalates interactive prompts.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shellpilot/agent/internal/actions"
	"github.com/shellpilot/agent/internal/interaction"
	"github.com/shellpilot/agent/internal/shell"
	"github.com/shellpilot/agent/internal/tasks"
)

// ErrStuckLoop marks a task that exceeded the escalation depth bound
// while the remote side kept re-prompting.
var ErrStuckLoop = errors.New("stuck in interactive loop")

// errEscalated is a deliberate escalation exit: the task stops making
// automatic progress and waits for an external decision to arrive as a
// new instruction. Not a failure.
var errEscalated = errors.New("waiting for external decision")

// Options are the executor tuning knobs.
type Options struct {
	// InterActionPause is the fixed settle delay after every action.
	InterActionPause time.Duration
	// QuiescenceTimeout is how long the output stream must stay silent
	// before a command is treated as finished. This is a heuristic, not
	// a completion signal from the remote side: a slow but silent
	// command will be treated as complete.
	QuiescenceTimeout time.Duration
	// ReadPoll is the output polling granularity during capture.
	ReadPoll time.Duration
	// SettleDelay is the pause before re-reading output after an
	// interaction response.
	SettleDelay time.Duration
	// MonitorInterval and MonitorCeiling configure the progress monitor.
	MonitorInterval time.Duration
	MonitorCeiling  time.Duration
	// MaxEscalationDepth bounds chained interaction escalations before
	// the task fails with ErrStuckLoop.
	MaxEscalationDepth int
	// DecisionTimeout bounds one decision-maker call.
	DecisionTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.InterActionPause == 0 {
		o.InterActionPause = 500 * time.Millisecond
	}
	if o.QuiescenceTimeout == 0 {
		o.QuiescenceTimeout = 5 * time.Second
	}
	if o.ReadPoll == 0 {
		o.ReadPoll = 100 * time.Millisecond
	}
	if o.SettleDelay == 0 {
		o.SettleDelay = time.Second
	}
	if o.MonitorInterval == 0 {
		o.MonitorInterval = 2 * time.Second
	}
	if o.MonitorCeiling == 0 {
		o.MonitorCeiling = 5 * time.Minute
	}
	if o.MaxEscalationDepth == 0 {
		o.MaxEscalationDepth = 10
	}
	if o.DecisionTimeout == 0 {
		o.DecisionTimeout = time.Minute
	}
	return o
}

// Executor owns the single-flight execution of agent tasks against one
// shared shell. One Executor instance serves one shell session; it never
// runs two tasks' actions concurrently.
type Executor struct {
	transport shell.Transport
	store     *tasks.Store
	emitter   Emitter
	decider   Decider // may be nil; defaults then resolve interactions
	opts      Options

	mu        sync.Mutex
	executing bool
	taskID    string
	stop      atomic.Bool
}

// New creates an executor. decider may be nil, in which case detected
// interactions are resolved with catalog default responses only.
func New(transport shell.Transport, store *tasks.Store, emitter Emitter, decider Decider, opts Options) *Executor {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &Executor{
		transport: transport,
		store:     store,
		emitter:   emitter,
		decider:   decider,
		opts:      opts.withDefaults(),
	}
}

// Submit extracts actions from model text and, if any are present,
// creates and starts a task for them. It returns false when the text
// carries no actions, when a task is already executing (busy rejection,
// with a notification), or when an identical pending task exists
// (silent duplicate suppression).
func (e *Executor) Submit(message, sessionID string) bool {
	acts := actions.Parse(message)
	if len(acts) == 0 {
		return false
	}

	payloads := actions.Payloads(acts)

	e.mu.Lock()
	if e.executing {
		e.mu.Unlock()
		log.Printf("[agent] busy, rejecting new task request")
		e.emitter.Emit(EventAgentError, map[string]any{
			"error":      "a task is already executing; wait for it to finish",
			"session_id": sessionID,
		})
		return false
	}
	if e.store.HasPendingDuplicate(message, payloads) {
		e.mu.Unlock()
		log.Printf("[agent] identical pending task exists, skipping")
		e.emitter.Emit(EventThinking, map[string]any{
			"thinking":   "an identical task is already queued; not re-creating it",
			"session_id": sessionID,
		})
		return false
	}
	e.executing = true
	e.stop.Store(false)
	e.mu.Unlock()

	taskID := e.store.Create(message, tasks.PriorityMedium, payloads)
	e.mu.Lock()
	e.taskID = taskID
	e.mu.Unlock()

	e.emitter.Emit(EventTaskCreated, map[string]any{
		"task_id":     taskID,
		"description": message,
		"actions":     len(acts),
		"session_id":  sessionID,
	})

	go e.run(taskID, acts, sessionID)
	return true
}

// run executes one task's actions in order. The single-flight guard is
// released unconditionally.
func (e *Executor) run(taskID string, acts []actions.Action, sessionID string) {
	defer func() {
		e.mu.Lock()
		e.executing = false
		e.taskID = ""
		e.mu.Unlock()
	}()

	if !e.store.Start(taskID) {
		log.Printf("[agent] could not start task %s", taskID)
		e.emitter.Emit(EventAgentError, map[string]any{
			"error":      fmt.Sprintf("could not start task %s", taskID),
			"session_id": sessionID,
		})
		return
	}

	log.Printf("[agent] running task %s with %d actions", taskID, len(acts))

	escalatedAt := -1
	for i, act := range acts {
		if e.stop.Load() {
			log.Printf("[agent] stop requested, cancelling task %s", taskID)
			e.store.Cancel(taskID)
			e.emitter.Emit(EventAgentError, map[string]any{
				"error":      "execution stopped by request",
				"task_id":    taskID,
				"session_id": sessionID,
			})
			return
		}

		log.Printf("[agent] action %d/%d: %s %s", i+1, len(acts), act.Kind, act.Payload())
		err := e.dispatch(act, sessionID)
		if errors.Is(err, errEscalated) {
			escalatedAt = i
			break
		}
		if err != nil {
			e.store.Fail(taskID, err.Error())
			e.emitter.Emit(EventAgentError, map[string]any{
				"error":      err.Error(),
				"task_id":    taskID,
				"session_id": sessionID,
			})
			return
		}

		// Let transient output settle before the next dispatch.
		time.Sleep(e.opts.InterActionPause)
	}

	summary := summarize(acts, escalatedAt)
	e.store.Complete(taskID, summary)
	e.emitter.Emit(EventTaskCompleted, map[string]any{
		"task_id":    taskID,
		"session_id": sessionID,
	})
	e.emitter.Emit(EventAnalysis, map[string]any{
		"analysis":   summary,
		"session_id": sessionID,
	})
}

// dispatch routes one action by kind.
func (e *Executor) dispatch(act actions.Action, sessionID string) error {
	switch act.Kind {
	case actions.KindRunCommand:
		return e.runCommand(act.Command, sessionID)
	case actions.KindSendKeys:
		return e.sendKeys(act.Keys, sessionID)
	case actions.KindWait:
		e.wait(act.Seconds)
		return nil
	default:
		return fmt.Errorf("unknown action kind %q", act.Kind)
	}
}

// runCommand sends a command, captures output up to quiescence, and
// branches on the interaction classification.
func (e *Executor) runCommand(command, sessionID string) error {
	if err := e.transport.Send(command + "\n"); err != nil {
		return fmt.Errorf("send command: %w", err)
	}

	output := e.capture()
	if output != "" {
		e.emitter.Emit(EventCommandOutput, map[string]any{
			"output":     output,
			"session_id": sessionID,
		})
	}

	cat, ok := interaction.Classify(output)
	if !ok {
		return nil
	}
	switch cat {
	case interaction.Progress:
		return e.watchProgress(sessionID)
	case interaction.Completion:
		return nil
	default:
		return e.resolveInteraction(cat, output, sessionID, 0)
	}
}

// sendKeys converts key tokens to control sequences and writes them as
// one write, forwarding any resulting output.
func (e *Executor) sendKeys(keys []string, sessionID string) error {
	e.emitter.Emit(EventCommandOutput, map[string]any{
		"output":     fmt.Sprintf("\n[agent keys] %s\n", strings.Join(keys, " + ")),
		"session_id": sessionID,
	})
	if err := e.transport.Send(actions.KeySequence(keys)); err != nil {
		return fmt.Errorf("send keys: %w", err)
	}

	time.Sleep(e.opts.SettleDelay)
	if output := e.transport.ReadAvailable(); output != "" {
		e.emitter.Emit(EventCommandOutput, map[string]any{
			"output":     output,
			"session_id": sessionID,
		})
	}
	return nil
}

// wait suspends this run only, never the whole process.
func (e *Executor) wait(seconds float64) {
	time.Sleep(time.Duration(seconds * float64(time.Second)))
}

// capture reads output until the stream stays silent for the quiescence
// timeout, or a stop is requested.
func (e *Executor) capture() string {
	var b strings.Builder
	last := time.Now()
	for {
		if chunk := e.transport.ReadAvailable(); chunk != "" {
			b.WriteString(chunk)
			last = time.Now()
		}
		if time.Since(last) >= e.opts.QuiescenceTimeout || e.stop.Load() {
			return b.String()
		}
		time.Sleep(e.opts.ReadPoll)
	}
}

// resolveInteraction handles one detected prompt: ask the decision-maker
// (honoring only SEND_KEYS and WAIT from its reply), fall back to the
// category default, then re-read and re-classify once. Chained prompts
// recurse up to MaxEscalationDepth.
func (e *Executor) resolveInteraction(cat interaction.Category, output, sessionID string, depth int) error {
	if depth >= e.opts.MaxEscalationDepth {
		return fmt.Errorf("%w: %d consecutive prompts unresolved", ErrStuckLoop, depth)
	}

	e.emitter.Emit(EventInteractionDetected, map[string]any{
		"category":   string(cat),
		"output":     output,
		"session_id": sessionID,
	})

	if cat == interaction.Credential {
		// Never auto-answer credentials. Surface the request and stop
		// automatic progress; the decision arrives as a new instruction.
		log.Printf("[agent] credential prompt detected, escalating to user")
		e.emitter.Emit(EventAnalysis, map[string]any{
			"analysis":   "A password is required. Provide it to continue; it will not be guessed.",
			"session_id": sessionID,
		})
		return errEscalated
	}

	if !e.applyDecision(cat, output, sessionID) {
		def := interaction.DefaultResponse(cat)
		if def == "" {
			return errEscalated
		}
		log.Printf("[agent] applying default response for %s", cat)
		if err := e.transport.Send(def); err != nil {
			return fmt.Errorf("send default response: %w", err)
		}
		e.emitter.Emit(EventCommandOutput, map[string]any{
			"output":     fmt.Sprintf("[auto-response] %s\n", strings.TrimSpace(def)),
			"session_id": sessionID,
		})
	}

	time.Sleep(e.opts.SettleDelay)
	follow := e.transport.ReadAvailable()
	if follow == "" {
		return nil
	}
	e.emitter.Emit(EventCommandOutput, map[string]any{
		"output":     follow,
		"session_id": sessionID,
	})

	next, ok := interaction.Classify(follow)
	if !ok || interaction.Informational(next) {
		return nil
	}
	return e.resolveInteraction(next, follow, sessionID, depth+1)
}

// applyDecision asks the decision-maker to resolve the prompt and
// applies the SEND_KEYS/WAIT actions from its reply. It reports whether
// a response was applied.
func (e *Executor) applyDecision(cat interaction.Category, output, sessionID string) bool {
	if e.decider == nil {
		return false
	}

	e.emitter.Emit(EventThinking, map[string]any{
		"thinking":   fmt.Sprintf("detected %s prompt, deciding how to respond", cat),
		"session_id": sessionID,
	})

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.DecisionTimeout)
	defer cancel()

	reply, err := e.decider.Decide(ctx, sessionID, interactionPrompt(cat, output))
	if err != nil {
		log.Printf("[agent] decision call failed, falling back to default: %v", err)
		return false
	}
	e.emitter.Emit(EventAnalysis, map[string]any{
		"analysis":   reply,
		"session_id": sessionID,
	})
	if !actions.HasActions(reply) {
		return false
	}

	applied := false
	for _, act := range actions.Parse(reply) {
		switch act.Kind {
		case actions.KindRunCommand:
			// An interaction reply must not open a new command.
			log.Printf("[agent] RUN_COMMAND in interaction reply skipped: %s", act.Command)
		case actions.KindSendKeys:
			if err := e.transport.Send(actions.KeySequence(act.Keys)); err != nil {
				log.Printf("[agent] interaction keys failed: %v", err)
				continue
			}
			applied = true
		case actions.KindWait:
			e.wait(act.Seconds)
			applied = true
		}
	}
	return applied
}

// watchProgress hands the output stream to the progress monitor for the
// duration of one long-running operation.
func (e *Executor) watchProgress(sessionID string) error {
	e.emitter.Emit(EventThinking, map[string]any{
		"thinking":   "long-running operation detected, monitoring progress",
		"session_id": sessionID,
	})

	m := &Monitor{
		Transport: e.transport,
		Emitter:   e.emitter,
		Interval:  e.opts.MonitorInterval,
		Ceiling:   e.opts.MonitorCeiling,
		Stop:      &e.stop,
	}
	res := m.Watch(sessionID)
	switch res.Outcome {
	case MonitorCompleted, MonitorStopped:
		return nil
	case MonitorInteraction:
		return e.resolveInteraction(res.Category, res.LastOutput, sessionID, 0)
	default:
		// Timeout is reported, not treated as a command failure.
		e.emitter.Emit(EventAnalysis, map[string]any{
			"analysis":   fmt.Sprintf("Progress monitoring timed out after %s; the operation may still be running.", e.opts.MonitorCeiling),
			"session_id": sessionID,
		})
		return nil
	}
}

// Stop sends an interrupt to the shell and raises the stop flag. The
// running task observes the flag at its next checkpoint.
func (e *Executor) Stop() bool {
	e.mu.Lock()
	executing := e.executing
	e.mu.Unlock()
	if !executing {
		return false
	}
	e.stop.Store(true)
	if err := e.transport.Send("\x03"); err != nil {
		log.Printf("[agent] interrupt send failed: %v", err)
		return false
	}
	return true
}

// Status describes the executor's current state.
type Status struct {
	Executing    bool        `json:"is_executing"`
	CurrentTask  *tasks.Task `json:"current_task,omitempty"`
	PendingTasks int         `json:"pending_tasks_count"`
	TotalTasks   int         `json:"total_tasks_count"`
}

// Status reports the current execution state.
func (e *Executor) Status() Status {
	e.mu.Lock()
	executing := e.executing
	e.mu.Unlock()

	return Status{
		Executing:    executing,
		CurrentTask:  e.store.Running(),
		PendingTasks: len(e.store.Pending()),
		TotalTasks:   len(e.store.All()),
	}
}

// summarize builds the synthesized completion result for a task.
// escalatedAt is the index of the action that escalated, or -1.
func summarize(acts []actions.Action, escalatedAt int) string {
	var b strings.Builder
	if escalatedAt >= 0 {
		b.WriteString(fmt.Sprintf("Stopped for external input at action %d/%d:\n", escalatedAt+1, len(acts)))
	} else {
		b.WriteString(fmt.Sprintf("Executed %d actions:\n", len(acts)))
	}
	for i, act := range acts {
		if i == 5 {
			b.WriteString(fmt.Sprintf("... and %d more\n", len(acts)-i))
			break
		}
		b.WriteString("- " + act.Payload() + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
