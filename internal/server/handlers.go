// Package server exposes the agent over an authenticated HTTP API:
// conversation and task endpoints, host metrics, and an SSE event
// stream.
package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shellpilot/agent/config"
	"github.com/shellpilot/agent/internal/agent"
	"github.com/shellpilot/agent/internal/ai"
	"github.com/shellpilot/agent/internal/system"
	"github.com/shellpilot/agent/internal/tasks"
)

// AgentService is the execution engine surface the API needs.
type AgentService interface {
	Status() agent.Status
	Stop() bool
}

// ChatService is the conversation surface the API needs.
type ChatService interface {
	ProcessUserMessage(ctx context.Context, message, sessionID string) (string, error)
	Status() ai.Status
}

// FactsProvider supplies collected remote host facts.
type FactsProvider interface {
	Summary() string
}

// ShellStatus reports the SSH transport state.
type ShellStatus interface {
	Connected() bool
}

// Handlers carries the dependencies of every route.
type Handlers struct {
	cfg       *config.Config
	metrics   *system.Collector
	store     *tasks.Store
	exec      AgentService
	chat      ChatService
	facts     FactsProvider
	shell     ShellStatus
	hub       *Hub
	startedAt time.Time
}

// NewHandlers wires the route dependencies.
func NewHandlers(cfg *config.Config, metrics *system.Collector, store *tasks.Store, exec AgentService, chat ChatService, facts FactsProvider, shellStatus ShellStatus, hub *Hub) *Handlers {
	return &Handlers{
		cfg:       cfg,
		metrics:   metrics,
		store:     store,
		exec:      exec,
		chat:      chat,
		facts:     facts,
		shell:     shellStatus,
		hub:       hub,
		startedAt: time.Now(),
	}
}

// HealthCheck reports liveness plus the shell connection state. No auth.
func (h *Handlers) HealthCheck(c *gin.Context) {
	connected := false
	if h.shell != nil {
		connected = h.shell.Connected()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"timestamp":       time.Now().UTC(),
		"shell_connected": connected,
		"uptime":          time.Since(h.startedAt).String(),
	})
}

// GetInfo returns host identification and the configured shell target.
func (h *Handlers) GetInfo(c *gin.Context) {
	host, err := h.metrics.Host()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"host":         host,
		"shell_target": h.cfg.SSHTarget(),
		"model":        h.chat.Status().Model,
	})
}

// GetAllMetrics returns a full local metrics snapshot.
func (h *Handlers) GetAllMetrics(c *gin.Context) {
	snap, err := h.metrics.Snapshot()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetCPUMetrics returns a CPU usage sample.
func (h *Handlers) GetCPUMetrics(c *gin.Context) {
	sample, err := h.metrics.CPU()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sample)
}

// GetMemoryMetrics returns a memory usage sample.
func (h *Handlers) GetMemoryMetrics(c *gin.Context) {
	sample, err := h.metrics.Memory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sample)
}

// GetDiskMetrics returns filesystem usage.
func (h *Handlers) GetDiskMetrics(c *gin.Context) {
	mounts, err := h.metrics.Mounts()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"mounts": mounts})
}

type messageRequest struct {
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
}

// PostMessage runs one conversation turn. The reply is returned inline;
// any actions it carries execute in the background and surface over the
// event stream.
func (h *Handlers) PostMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = "default"
	}

	reply, err := h.chat.ProcessUserMessage(c.Request.Context(), req.Message, req.SessionID)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"response":   reply,
		"session_id": req.SessionID,
	})
}

// GetAgentStatus reports executor and conversation state.
func (h *Handlers) GetAgentStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"executor": h.exec.Status(),
		"chat":     h.chat.Status(),
	})
}

// StopAgent interrupts the running task, if any.
func (h *Handlers) StopAgent(c *gin.Context) {
	stopped := h.exec.Stop()
	if !stopped {
		c.JSON(http.StatusConflict, gin.H{"error": "no task is executing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"stopped": true})
}

// ListTasks returns every known task, optionally filtered by status.
func (h *Handlers) ListTasks(c *gin.Context) {
	var list []tasks.Task
	switch c.Query("status") {
	case "pending":
		list = h.store.Pending()
	case "":
		list = h.store.All()
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported status filter"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"tasks": list, "count": len(list)})
}

// GetTask returns one task by id.
func (h *Handlers) GetTask(c *gin.Context) {
	task, ok := h.store.Get(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, task)
}

// CancelTask cancels a pending or running task.
func (h *Handlers) CancelTask(c *gin.Context) {
	id := c.Param("id")
	if !h.store.Cancel(id) {
		c.JSON(http.StatusConflict, gin.H{"error": "task is not cancellable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": id})
}

// ClearFinishedTasks drops completed, failed, and cancelled tasks.
func (h *Handlers) ClearFinishedTasks(c *gin.Context) {
	removed := h.store.ClearFinished()
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// GetRemoteFacts returns the collected remote host facts.
func (h *Handlers) GetRemoteFacts(c *gin.Context) {
	summary := ""
	if h.facts != nil {
		summary = h.facts.Summary()
	}
	if summary == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "remote facts not collected yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"facts": summary})
}

// StreamEvents streams agent events over SSE until the client goes
// away.
func (h *Handlers) StreamEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	events, cancel := h.hub.Subscribe()
	defer cancel()

	ctx := c.Request.Context()
	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case e := <-events:
			data, _ := json.Marshal(e)
			c.SSEvent(e.Name, string(data))
			return true
		case <-heartbeat.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-ctx.Done():
			return false
		}
	})
}
