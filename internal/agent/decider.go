package agent

import (
	"context"
	"fmt"

	"github.com/shellpilot/agent/internal/interaction"
)

// Decider is the upstream decision-maker (the language model). It
// consumes a text prompt and returns free text; any action markers in
// the reply are honored per the interaction protocol.
type Decider interface {
	Decide(ctx context.Context, sessionID, prompt string) (string, error)
}

// interactionPrompt builds the escalation prompt for a detected prompt
// in command output.
func interactionPrompt(category interaction.Category, output string) string {
	return fmt.Sprintf(`A command on the remote shell is waiting for an interactive response.

Output:
%s

Detected interaction: %s

Decide how to respond:
1. For a yes/no question, answer with SEND_KEYS{"y","enter"} or SEND_KEYS{"n","enter"} based on the context.
2. For a press-any-key prompt, answer with SEND_KEYS{"enter"}.
3. If a password is required, say so; never guess credentials.
Reply with SEND_KEYS or WAIT markers only. Do not issue RUN_COMMAND here.`, output, category)
}
