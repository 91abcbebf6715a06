package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"docintel/internal/view"

	"github.com/go-chi/chi/v5"
)

// ========== Workspace State ==========

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, s.render(s.store.Snapshot()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.ServeWS(w, r)
}

// ========== Conversation ==========

type askRequest struct {
	Question string `json:"question"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		jsonErr(w, "question is required", http.StatusBadRequest)
		return
	}

	op := s.conversation.Ask(r.Context(), req.Question)
	if op.Skipped {
		jsonErr(w, "No document uploaded", http.StatusConflict)
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]interface{}{"status": "pending"})
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "messageID")
	for _, m := range s.store.Snapshot().Messages {
		if m.ID != id {
			continue
		}
		if !m.Intelligence.HasIntelligence() {
			jsonErr(w, "Message has no intelligence details", http.StatusUnprocessableEntity)
			return
		}
		jsonResp(w, map[string]interface{}{"id": id, "open": s.toggles.Toggle(id)})
		return
	}
	jsonErr(w, "Message not found", http.StatusNotFound)
}

// ========== Chunks ==========

func (s *Server) handleChunks(w http.ResponseWriter, r *http.Request) {
	snap := s.store.Snapshot()
	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	if strings.TrimSpace(query) == "" && limit <= 0 {
		jsonResp(w, view.Chunks(snap.Chunks))
		return
	}

	// the subscriber may not have caught up with this snapshot yet
	if err := s.index.Rebuild(snap.DocumentID, snap.Chunks); err != nil {
		jsonErr(w, "Failed to index chunks: "+err.Error(), http.StatusInternalServerError)
		return
	}
	hits, err := s.index.Search(query, limit)
	if err != nil {
		jsonErr(w, err.Error(), http.StatusBadRequest)
		return
	}
	positions := make([]int, len(hits))
	for i, h := range hits {
		positions[i] = h.Position
	}
	jsonResp(w, view.SelectChunks(snap.Chunks, positions))
}
