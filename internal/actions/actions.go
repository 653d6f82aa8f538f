package actions

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the type of an agent action.
type Kind string

const (
	KindRunCommand Kind = "run_command"
	KindSendKeys   Kind = "send_keys"
	KindWait       Kind = "wait"
)

// Action is one atomic instruction extracted from model text.
// Actions are immutable once created.
type Action struct {
	Kind      Kind      `json:"kind"`
	Command   string    `json:"command,omitempty"`
	Keys      []string  `json:"keys,omitempty"`
	Seconds   float64   `json:"seconds,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Payload returns a stable string form of the action's content, used for
// task de-duplication and summaries.
func (a Action) Payload() string {
	switch a.Kind {
	case KindRunCommand:
		return a.Command
	case KindSendKeys:
		return "keys: " + strings.Join(a.Keys, "+")
	case KindWait:
		return fmt.Sprintf("wait %gs", a.Seconds)
	}
	return ""
}

// Marker re-serializes the action into its source marker form.
// Parse(Marker()) yields an equal action.
func (a Action) Marker() string {
	switch a.Kind {
	case KindRunCommand:
		return fmt.Sprintf("RUN_COMMAND{%s}", a.Command)
	case KindSendKeys:
		quoted := make([]string, len(a.Keys))
		for i, k := range a.Keys {
			quoted[i] = `"` + k + `"`
		}
		return fmt.Sprintf("SEND_KEYS{%s}", strings.Join(quoted, ","))
	case KindWait:
		return fmt.Sprintf("WAIT{%g}", a.Seconds)
	}
	return ""
}

// Payloads maps a list of actions to their payload strings.
func Payloads(acts []Action) []string {
	out := make([]string, len(acts))
	for i, a := range acts {
		out[i] = a.Payload()
	}
	return out
}

// keySequences maps key tokens to the control sequences the remote PTY
// understands. Unrecognized tokens pass through as literal characters.
var keySequences = map[string]string{
	"enter":     "\r",
	"tab":       "\t",
	"space":     " ",
	"ctrl+c":    "\x03",
	"ctrl+d":    "\x04",
	"ctrl+z":    "\x1a",
	"escape":    "\x1b",
	"backspace": "\x08",
	"delete":    "\x7f",
	"up":        "\x1b[A",
	"down":      "\x1b[B",
	"right":     "\x1b[C",
	"left":      "\x1b[D",
}

// KeySequence converts a list of key tokens into a single write for the
// shell transport.
func KeySequence(keys []string) string {
	var b strings.Builder
	for _, key := range keys {
		if seq, ok := keySequences[strings.ToLower(strings.TrimSpace(key))]; ok {
			b.WriteString(seq)
		} else {
			b.WriteString(key)
		}
	}
	return b.String()
}
