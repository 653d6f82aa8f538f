package ai

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/shellpilot/agent/internal/agent"
)

// EventResponse carries the full assistant reply to observers.
const EventResponse = "ai_response"

// Submitter receives assistant text and starts a task when it carries
// action markers.
type Submitter interface {
	Submit(message, sessionID string) bool
}

// Processor ties conversations to the execution engine: user messages
// go through the model, replies are shown to observers, and any action
// markers in them are handed to the submitter. It also serves as the
// executor's decision-maker for interactive prompts.
type Processor struct {
	client   *Client
	sessions *SessionManager
	emitter  agent.Emitter
	facts    func() string // remote host facts for the prompt, may be nil

	submitter Submitter
}

// NewProcessor creates a processor. The submitter is attached separately
// with SetSubmitter because the executor is constructed with the
// processor as its decision-maker.
func NewProcessor(client *Client, sessions *SessionManager, emitter agent.Emitter, facts func() string) *Processor {
	if emitter == nil {
		emitter = agent.EmitterFunc(func(string, map[string]any) {})
	}
	return &Processor{
		client:   client,
		sessions: sessions,
		emitter:  emitter,
		facts:    facts,
	}
}

// SetSubmitter attaches the execution engine.
func (p *Processor) SetSubmitter(s Submitter) { p.submitter = s }

// ProcessUserMessage runs one conversation turn: record the message,
// ask the model, surface the reply, and submit any actions it carries.
// The reply text is returned either way.
func (p *Processor) ProcessUserMessage(ctx context.Context, message, sessionID string) (string, error) {
	sess := p.sessions.Get(sessionID)
	sess.AddUser(message)

	p.emitter.Emit(agent.EventThinking, map[string]any{
		"thinking":   "analysing the request",
		"session_id": sessionID,
	})

	reply, err := p.client.Chat(ctx, p.promptMessages(sess))
	if err != nil {
		p.emitter.Emit(agent.EventAgentError, map[string]any{
			"error":      fmt.Sprintf("model call failed: %v", err),
			"session_id": sessionID,
		})
		return "", fmt.Errorf("chat: %w", err)
	}
	sess.AddAssistant(reply)

	p.emitter.Emit(EventResponse, map[string]any{
		"response":   reply,
		"session_id": sessionID,
	})

	if p.submitter != nil {
		p.submitter.Submit(reply, sessionID)
	}
	return reply, nil
}

// Decide resolves an interactive prompt on behalf of the executor. The
// escalation prompt rides on the session history so the model sees what
// led to the prompt.
func (p *Processor) Decide(ctx context.Context, sessionID, prompt string) (string, error) {
	sess := p.sessions.Get(sessionID)
	sess.AddUser(prompt)

	reply, err := p.client.Chat(ctx, p.promptMessages(sess))
	if err != nil {
		return "", fmt.Errorf("decision chat: %w", err)
	}
	sess.AddAssistant(reply)
	return reply, nil
}

// RecordShellOutput feeds executed command output back into the
// conversation so later turns can reason about it. Failed commands are
// tagged with an error class.
func (p *Processor) RecordShellOutput(command, output, sessionID string) {
	sess := p.sessions.Get(sessionID)
	sess.AddShellOutput(command, output)

	if kind, failed := ClassifyError(output); failed {
		log.Printf("[ai] command output looks like a %s: %s", kind, command)
		sess.add("system", fmt.Sprintf("[shell] the previous command appears to have failed (%s)", kind))
	}
}

// promptMessages is the trimmed history plus current host facts.
func (p *Processor) promptMessages(sess *Session) []Message {
	msgs := sess.Recent(20)
	if p.facts != nil {
		if facts := p.facts(); facts != "" {
			msgs = append(msgs, Message{
				Role:    "system",
				Content: "Remote host facts:\n" + facts,
			})
		}
	}
	return msgs
}

// Status describes the processor for the status endpoint.
type Status struct {
	Sessions int    `json:"active_sessions"`
	Model    string `json:"model"`
}

// Status reports conversation state.
func (p *Processor) Status() Status {
	return Status{
		Sessions: p.sessions.Count(),
		Model:    p.client.Model(),
	}
}

// ErrorKind names a recognized command failure class.
type ErrorKind string

const (
	ErrPermission      ErrorKind = "permission_error"
	ErrCommandNotFound ErrorKind = "command_not_found"
	ErrFileNotFound    ErrorKind = "file_not_found"
	ErrConnection      ErrorKind = "connection_error"
	ErrTimeout         ErrorKind = "timeout_error"
	ErrGeneral         ErrorKind = "general_error"
)

var errorIndicators = []string{
	"error:", "failed", "permission denied", "command not found",
	"no such file", "connection refused", "timeout",
}

// ClassifyError reports whether output looks like a command failure and,
// if so, which class of failure.
func ClassifyError(output string) (ErrorKind, bool) {
	lower := strings.ToLower(output)

	matched := false
	for _, ind := range errorIndicators {
		if strings.Contains(lower, ind) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	switch {
	case strings.Contains(lower, "permission denied"):
		return ErrPermission, true
	case strings.Contains(lower, "command not found"):
		return ErrCommandNotFound, true
	case strings.Contains(lower, "no such file"):
		return ErrFileNotFound, true
	case strings.Contains(lower, "connection"):
		return ErrConnection, true
	case strings.Contains(lower, "timeout"):
		return ErrTimeout, true
	default:
		return ErrGeneral, true
	}
}
