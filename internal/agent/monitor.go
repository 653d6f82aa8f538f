package agent

import (
	"log"
	"regexp"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/shellpilot/agent/internal/interaction"
	"github.com/shellpilot/agent/internal/shell"
)

// MonitorOutcome is the terminal result of one progress watch.
type MonitorOutcome int

const (
	// MonitorCompleted means the operation reported completion.
	MonitorCompleted MonitorOutcome = iota
	// MonitorInteraction means a prompt appeared mid-operation and the
	// interaction sub-protocol must take over.
	MonitorInteraction
	// MonitorTimeout means the ceiling elapsed with no resolution. The
	// underlying command may still be running.
	MonitorTimeout
	// MonitorStopped means an external stop request was observed.
	MonitorStopped
)

// MonitorResult carries the outcome of a watch plus the output that
// produced it.
type MonitorResult struct {
	Outcome    MonitorOutcome
	Category   interaction.Category
	LastOutput string
}

// Monitor watches the shell output stream during one long-running
// operation (package install, download), forwarding output and progress
// percentages to the observer until completion, a new prompt, a stop
// request, or the ceiling.
type Monitor struct {
	Transport shell.Transport
	Emitter   Emitter
	Interval  time.Duration
	Ceiling   time.Duration
	Stop      *atomic.Bool
}

var percentPattern = regexp.MustCompile(`(\d{1,3})%`)

// Watch polls until a terminal outcome. It blocks the caller for the
// duration of the operation.
func (m *Monitor) Watch(sessionID string) MonitorResult {
	emitter := m.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}

	deadline := time.Now().Add(m.Ceiling)
	for time.Now().Before(deadline) {
		if m.Stop != nil && m.Stop.Load() {
			return MonitorResult{Outcome: MonitorStopped}
		}
		time.Sleep(m.Interval)

		output := m.Transport.ReadAvailable()
		if output == "" {
			continue
		}
		emitter.Emit(EventCommandOutput, map[string]any{
			"output":     output,
			"session_id": sessionID,
		})
		if pct, ok := extractPercent(output); ok {
			emitter.Emit(EventDownloadProgress, map[string]any{
				"progress":   pct,
				"session_id": sessionID,
			})
		}

		cat, ok := interaction.Classify(output)
		if !ok {
			continue
		}
		switch cat {
		case interaction.Progress:
			continue
		case interaction.Completion:
			emitter.Emit(EventDownloadComplete, map[string]any{
				"session_id": sessionID,
			})
			return MonitorResult{Outcome: MonitorCompleted, LastOutput: output}
		default:
			log.Printf("[monitor] prompt during long operation: %s", cat)
			return MonitorResult{Outcome: MonitorInteraction, Category: cat, LastOutput: output}
		}
	}
	log.Printf("[monitor] ceiling of %s elapsed without resolution", m.Ceiling)
	return MonitorResult{Outcome: MonitorTimeout}
}

// extractPercent returns the last percentage figure in the output.
func extractPercent(output string) (int, bool) {
	matches := percentPattern.FindAllStringSubmatch(output, -1)
	if len(matches) == 0 {
		return 0, false
	}
	pct, err := strconv.Atoi(matches[len(matches)-1][1])
	if err != nil || pct > 100 {
		return 0, false
	}
	return pct, true
}
