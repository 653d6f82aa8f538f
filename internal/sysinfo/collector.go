// Package sysinfo probes the remote host once per connection so the
// model reasons about the machine it is actually driving.
package sysinfo

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/shellpilot/agent/internal/shell"
)

// probe is one fact-gathering command. Probes are ordered; fast and
// load-bearing ones come first.
type probe struct {
	name    string
	command string
}

var probes = []probe{
	{"os", "uname -a"},
	{"hostname", "hostname"},
	{"user", "whoami"},
	{"pwd", "pwd"},
	{"shell", "echo $SHELL"},
	{"home", "echo $HOME"},
	{"architecture", "uname -m"},
	{"kernel", "uname -r"},
	{"distribution", `cat /etc/os-release 2>/dev/null | head -2 || echo "Unknown"`},
	{"package_manager", `which apt-get yum dnf pacman 2>/dev/null | head -1 | xargs basename 2>/dev/null || echo "unknown"`},
	{"memory", `free -h 2>/dev/null | grep Mem | awk '{print $2}' || echo "Unknown"`},
	{"python", `python3 --version 2>/dev/null || echo "Not installed"`},
	{"git", `git --version 2>/dev/null || echo "Not installed"`},
}

// Facts is the collected key/value description of the remote host.
type Facts map[string]string

// Summary renders facts as prompt-ready lines in probe order.
func (f Facts) Summary() string {
	var b strings.Builder
	for _, p := range probes {
		if v, ok := f[p.name]; ok && v != "" {
			b.WriteString(p.name + ": " + v + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// IsRoot reports whether the remote user is root.
func (f Facts) IsRoot() bool { return f["user"] == "root" }

// PackageManager returns the detected package manager, or "unknown".
// An unanswered probe is recorded as "Unknown"; both spellings mean
// none was detected.
func (f Facts) PackageManager() string {
	pm := f["package_manager"]
	if pm == "" || pm == "Unknown" {
		return "unknown"
	}
	return pm
}

// Collector runs the probe set over the shared shell. It must run while
// no task is executing; the caller owns that ordering.
type Collector struct {
	transport shell.Transport
	settle    time.Duration

	mu    sync.Mutex
	facts Facts
}

// NewCollector creates a collector. settle is the per-probe wait for
// output; 0 means 400ms.
func NewCollector(transport shell.Transport, settle time.Duration) *Collector {
	if settle == 0 {
		settle = 400 * time.Millisecond
	}
	return &Collector{transport: transport, settle: settle}
}

// Collect runs every probe and caches the result. Probes that return
// nothing are recorded as "Unknown".
func (c *Collector) Collect() Facts {
	facts := make(Facts, len(probes))
	for _, p := range probes {
		out := c.runProbe(p.command)
		if out == "" {
			out = "Unknown"
		}
		facts[p.name] = out
	}
	log.Printf("[sysinfo] collected %d host facts for %s@%s", len(facts), facts["user"], facts["hostname"])

	c.mu.Lock()
	c.facts = facts
	c.mu.Unlock()
	return facts
}

// Facts returns the cached fact set; nil before the first Collect.
func (c *Collector) Facts() Facts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.facts
}

// Summary returns the cached facts rendered for a prompt, or "" before
// the first Collect.
func (c *Collector) Summary() string {
	f := c.Facts()
	if f == nil {
		return ""
	}
	return f.Summary()
}

func (c *Collector) runProbe(command string) string {
	// Drain anything left over from the previous probe.
	c.transport.ReadAvailable()

	if err := c.transport.Send(command + "\n"); err != nil {
		log.Printf("[sysinfo] probe failed: %v", err)
		return ""
	}
	time.Sleep(c.settle)

	var b strings.Builder
	for {
		chunk := c.transport.ReadAvailable()
		if chunk == "" {
			break
		}
		b.WriteString(chunk)
	}
	return cleanProbeOutput(b.String(), command)
}

// cleanProbeOutput strips the echoed command and shell prompt lines,
// then collapses the rest to one line.
func cleanProbeOutput(output, command string) string {
	var kept []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, command) {
			continue
		}
		if strings.HasSuffix(line, "$") || strings.HasSuffix(line, "#") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(strings.Fields(strings.Join(kept, " ")), " ")
}
