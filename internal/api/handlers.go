package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/api996/AIHeuristicLearningApp-sub001/internal/models"
	"github.com/api996/AIHeuristicLearningApp-sub001/internal/prompt"
)

// recoverInternal turns a handler panic into a 500 response.
func recoverInternal(w http.ResponseWriter, handler string) {
	if r := recover(); r != nil {
		slog.Error("Server: handler panic", "handler", handler, "panic", r, "stack", string(debug.Stack()))
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

// analyzeConversationHandler handles POST /analyze-conversation.
func (s *Server) analyzeConversationHandler(w http.ResponseWriter, r *http.Request) {
	defer recoverInternal(w, "analyzeConversation")

	var req models.AnalyzeConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.analyzeConversationHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.analyzeConversationHandler: validation failed", "error", err, "conversationID", req.ConversationID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	analysis := s.analyzer.Classify(r.Context(), req.ConversationID, req.Messages)
	slog.Info("Server.analyzeConversationHandler: conversation analyzed",
		"conversationID", req.ConversationID, "phase", analysis.Phase, "confidence", analysis.Confidence)
	writeJSONResponse(w, http.StatusOK, analysis)
}

// generatePromptHandler handles POST /generate-prompt.
func (s *Server) generatePromptHandler(w http.ResponseWriter, r *http.Request) {
	defer recoverInternal(w, "generatePrompt")

	var req models.GeneratePromptRequest
	if err := decodeJSON(r, &req); err != nil {
		slog.Warn("Server.generatePromptHandler: failed to decode JSON", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid JSON format")
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.generatePromptHandler: validation failed", "error", err, "modelID", req.ModelID)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	out := s.prompts.BuildPrompt(r.Context(), prompt.BuildRequest{
		ModelID:         req.ModelID,
		ConversationID:  req.ConversationID,
		UserInput:       req.UserInput,
		ContextMemories: textItems(req.ContextMemories),
		SearchResults:   textItems(req.SearchResults),
	})
	slog.Debug("Server.generatePromptHandler: prompt generated", "conversationID", req.ConversationID, "modelID", req.ModelID, "length", len(out))
	writeJSONResponse(w, http.StatusOK, models.GeneratePromptResponse{Success: true, Prompt: out})
}

// textItems turns an optional free-text field into at most one list item.
func textItems(s string) []string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return []string{s}
}

// listModulesHandler handles GET /prompt-modules.
func (s *Server) listModulesHandler(w http.ResponseWriter, r *http.Request) {
	if s.modules == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Prompt modules are not configured"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(s.modules.List()))
}

// updateModuleHandler handles PUT /prompt-modules/{id}.
func (s *Server) updateModuleHandler(w http.ResponseWriter, r *http.Request) {
	if s.modules == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Prompt modules are not configured"))
		return
	}
	id := r.PathValue("id")
	var upd prompt.ModuleUpdate
	if err := decodeJSON(r, &upd); err != nil {
		slog.Warn("Server.updateModuleHandler: failed to decode JSON", "error", err, "id", id)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if upd.Content == nil && upd.Enabled == nil && len(upd.ModelOverrides) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Nothing to update"))
		return
	}

	m, err := s.modules.Update(id, upd)
	if errors.Is(err, prompt.ErrModuleNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error(fmt.Sprintf("Prompt module %q not found", id)))
		return
	}
	if err != nil {
		slog.Error("Server.updateModuleHandler: update failed", "error", err, "id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to update prompt module"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Prompt module updated", m))
}

// statsHandler handles GET /stats.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	report := make(map[string]any, len(s.stats)+1)
	report["uptime"] = time.Since(s.started).Round(time.Second).String()
	for name, fn := range s.stats {
		report[name] = fn()
	}
	writeJSONResponse(w, http.StatusOK, models.Success(report))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("healthy", nil))
}
