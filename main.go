package main

import (
	"log"

	"github.com/shellpilot/agent/config"
	"github.com/shellpilot/agent/internal/agent"
	"github.com/shellpilot/agent/internal/ai"
	"github.com/shellpilot/agent/internal/cache"
	"github.com/shellpilot/agent/internal/server"
	"github.com/shellpilot/agent/internal/shell"
	"github.com/shellpilot/agent/internal/sysinfo"
	"github.com/shellpilot/agent/internal/system"
	"github.com/shellpilot/agent/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	transport, err := shell.DialSSH(shell.SSHConfig{
		Host:     cfg.SSHHost,
		Port:     cfg.SSHPort,
		User:     cfg.SSHUser,
		Password: cfg.SSHPassword,
		KeyFile:  cfg.SSHKeyFile,
		Timeout:  cfg.SSHTimeout,
	})
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", cfg.SSHTarget(), err)
	}
	defer transport.Close()
	log.Printf("[main] shell connected to %s", cfg.SSHTarget())

	// Probe the remote host before any task can run.
	facts := sysinfo.NewCollector(transport, 0)
	facts.Collect()

	client, err := ai.NewClient(ai.ClientConfig{
		BaseURL: cfg.AIBaseURL,
		APIKey:  cfg.AIAPIKey,
		Model:   cfg.AIModel,
		Timeout: cfg.AITimeout,
	})
	if err != nil {
		log.Fatalf("Failed to configure AI client: %v", err)
	}

	store := tasks.NewStore(cfg.TaskStorePath)
	hub := server.NewHub()
	sessions := ai.NewSessionManager(cfg.SessionTimeout)
	processor := ai.NewProcessor(client, sessions, hub, facts.Summary)

	// Executed command output rides back into the conversation so the
	// model sees what its actions produced.
	emitter := agent.EmitterFunc(func(event string, payload map[string]any) {
		hub.Emit(event, payload)
		if event != agent.EventCommandOutput {
			return
		}
		output, _ := payload["output"].(string)
		sessionID, _ := payload["session_id"].(string)
		if output != "" && sessionID != "" {
			processor.RecordShellOutput("(session output)", output, sessionID)
		}
	})

	executor := agent.New(transport, store, emitter, processor, agent.Options{
		InterActionPause:   cfg.InterActionPause,
		QuiescenceTimeout:  cfg.QuiescenceTimeout,
		SettleDelay:        cfg.SettleDelay,
		MonitorInterval:    cfg.MonitorInterval,
		MonitorCeiling:     cfg.MonitorCeiling,
		MaxEscalationDepth: cfg.MaxEscalationDepth,
		DecisionTimeout:    cfg.AITimeout,
	})
	processor.SetSubmitter(executor)

	metrics := system.NewCollector(cache.NewMetricsCache())
	handlers := server.NewHandlers(cfg, metrics, store, executor, processor, facts, transport, hub)

	srv := server.New(cfg, handlers)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
