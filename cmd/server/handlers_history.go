package main

import (
	"errors"
	"net/http"

	"docintel/internal/history"
	"docintel/internal/view"

	"github.com/go-chi/chi/v5"
)

// ========== History Endpoints ==========

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		jsonResp(w, []history.Session{})
		return
	}
	jsonResp(w, s.history.List())
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		jsonErr(w, "History is disabled", http.StatusNotFound)
		return
	}
	id := chi.URLParam(r, "sessionID")
	sess, err := s.history.Get(id)
	if err != nil {
		jsonErr(w, "Session not found", http.StatusNotFound)
		return
	}
	msgs, err := s.history.LoadMessages(id)
	if err != nil {
		jsonErr(w, "Failed to load messages: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResp(w, map[string]interface{}{
		"session":  sess,
		"messages": view.Chat(msgs, nil, s.md),
	})
}

func (s *Server) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		jsonErr(w, "History is disabled", http.StatusNotFound)
		return
	}
	err := s.history.Delete(chi.URLParam(r, "sessionID"))
	if errors.Is(err, history.ErrNotFound) {
		jsonErr(w, "Session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		jsonErr(w, "Failed to delete session: "+err.Error(), http.StatusInternalServerError)
		return
	}
	jsonResp(w, map[string]string{"status": "deleted"})
}
