package agent

// Event names emitted to the observer sink. Delivery is fire-and-forget.
const (
	EventTaskCreated         = "task_created"
	EventTaskCompleted       = "task_completed"
	EventAgentError          = "agent_error"
	EventCommandOutput       = "command_output"
	EventInteractionDetected = "interaction_detected"
	EventDownloadProgress    = "download_progress"
	EventDownloadComplete    = "download_complete"
	EventThinking            = "ai_thinking"
	EventAnalysis            = "ai_analysis"
)

// Emitter is the observer/notification sink. Implementations must not
// block; no acknowledgment is awaited.
type Emitter interface {
	Emit(event string, payload map[string]any)
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(event string, payload map[string]any)

func (f EmitterFunc) Emit(event string, payload map[string]any) { f(event, payload) }

type nopEmitter struct{}

func (nopEmitter) Emit(string, map[string]any) {}
