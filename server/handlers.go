package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/becomeliminal/memkit/memory"
)

type createRequest struct {
	Text         string            `json:"text,omitempty"`
	Conversation []memory.Turn     `json:"conversation,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UserID       string            `json:"user_id,omitempty"`
}

func (r createRequest) input() memory.Input {
	return memory.Input{Text: r.Text, Conversation: r.Conversation}
}

type batchRequest struct {
	Items []createRequest `json:"items"`
}

type queryRequest struct {
	Query  string `json:"query"`
	TopK   int    `json:"top_k,omitempty"`
	UserID string `json:"user_id,omitempty"`
}

type updateRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.mgr.Create(r.Context(), req.input(), req.Metadata, req.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "batch is empty")
		return
	}

	inputs := make([]memory.Input, len(req.Items))
	metadatas := make([]map[string]string, len(req.Items))
	userIDs := make([]string, len(req.Items))
	for i, item := range req.Items {
		inputs[i] = item.input()
		metadatas[i] = item.Metadata
		userIDs[i] = item.UserID
	}

	results, err := s.mgr.CreateBatch(r.Context(), inputs, metadatas, userIDs)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	result, err := s.mgr.Query(r.Context(), req.Query, req.TopK, req.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	memories, err := s.mgr.List(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": memories})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	err := s.mgr.Update(r.Context(), chi.URLParam(r, "id"), req.Text, req.UserID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	found, err := s.mgr.Delete(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("user_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "memory not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	health, err := s.mgr.Health(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// writeFailure maps engine errors to status codes: validation errors are
// the caller's fault, not-found is a distinct branchable outcome, and
// anything else is a store failure with no safe fallback.
func writeFailure(w http.ResponseWriter, err error) {
	switch {
	case memory.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, memory.ErrNotFound):
		writeError(w, http.StatusNotFound, "memory not found")
	default:
		log.Printf("[SERVER] Operation failed: %v", err)
		writeError(w, http.StatusBadGateway, "memory store unavailable")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[SERVER] Write response: %v", err)
	}
}
