// Package handler exposes the agent's operations to the editor plugin
// over localhost HTTP. Responses are JSON; errors map the API client's
// typed failures onto HTTP status codes.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/svenbledt/invoiceninja-vscode/internal/client"
	"github.com/svenbledt/invoiceninja-vscode/internal/models"
	"github.com/svenbledt/invoiceninja-vscode/internal/service"
	"github.com/svenbledt/invoiceninja-vscode/internal/tracker"
)

type AgentHandler struct {
	agent  *service.Agent
	hub    *service.NotificationHub
	logger *zap.Logger
}

func NewAgentHandler(agent *service.Agent, hub *service.NotificationHub, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{
		agent:  agent,
		hub:    hub,
		logger: logger,
	}
}

// State returns the full agent snapshot the sidebar renders from.
func (h *AgentHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.agent.State()
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, state)
}

func (h *AgentHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input models.LoginInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	session, err := h.agent.Login(input)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"accountLabel": session.AccountLabel,
		"accountKey":   session.AccountKey,
		"baseUrl":      session.BaseURL,
	})
}

func (h *AgentHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.agent.Logout(); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ActiveDocument ingests an editor focus snapshot for workspace
// tracking. Always succeeds; label resolution cannot fail.
func (h *AgentHandler) ActiveDocument(w http.ResponseWriter, r *http.Request) {
	var doc tracker.ActiveDocument
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	h.agent.ReportActiveDocument(doc)
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) RefreshTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Search *string `json:"search"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := h.agent.RefreshTasks(req.Search); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) SetFilters(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StatusID  string `json:"statusId"`
		ProjectID string `json:"projectId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.agent.SetFilters(req.StatusID, req.ProjectID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) SelectTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.agent.SelectTask(req.TaskID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Description == "" {
		http.Error(w, "Missing description", http.StatusBadRequest)
		return
	}

	created, err := h.agent.CreateTask(req.Description)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

func (h *AgentHandler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string           `json:"taskId"`
		Patch  models.TaskPatch `json:"patch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		http.Error(w, "Missing taskId", http.StatusBadRequest)
		return
	}

	updated, err := h.agent.UpdateTask(req.TaskID, req.Patch)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *AgentHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("taskId")
	if taskID == "" {
		http.Error(w, "Missing taskId parameter", http.StatusBadRequest)
		return
	}

	if err := h.agent.DeleteTask(taskID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) ArchiveTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		http.Error(w, "Missing taskId", http.StatusBadRequest)
		return
	}

	if err := h.agent.ArchiveTask(req.TaskID); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) StartTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	active, err := h.agent.StartTimer(req.TaskID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, active)
}

func (h *AgentHandler) StopTimer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID string `json:"taskId"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	updated, err := h.agent.StopTimer(req.TaskID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, updated)
}

func (h *AgentHandler) CreateReminder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TaskID  string `json:"taskId"`
		Value   string `json:"value"`
		Minutes int    `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TaskID == "" {
		http.Error(w, "Missing taskId", http.StatusBadRequest)
		return
	}

	var created *models.TaskReminder
	var err error
	if req.Value != "" {
		created, err = h.agent.CreateReminder(req.TaskID, req.Value)
	} else {
		created, err = h.agent.CreateReminderMinutes(req.TaskID, req.Minutes)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, created)
}

// Notifications lists fired reminders waiting for the plugin.
func (h *AgentHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": h.hub.Pending(),
	})
}

// RespondNotification resolves a pending notification with the user's
// chosen action.
func (h *AgentHandler) RespondNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     string `json:"id"`
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.hub.Respond(req.ID, req.Action); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AgentHandler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps service and API failures to HTTP statuses. The error
// text is passed through so the plugin can show it to the user.
func (h *AgentHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrNoActiveTimer), errors.Is(err, service.ErrTimerConflict):
		status = http.StatusConflict
	case errors.Is(err, service.ErrTaskNotFound), client.IsNotFound(err):
		status = http.StatusNotFound
	case client.IsAuthError(err):
		status = http.StatusUnauthorized
	}

	h.logger.Warn("Request failed", zap.Int("status", status), zap.Error(err))
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
