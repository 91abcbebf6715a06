package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"docintel/internal/controller"
	"docintel/internal/view"
)

// ========== Schema & Extraction ==========

func (s *Server) handleProposeSchema(w http.ResponseWriter, r *http.Request) {
	op := s.extraction.ProposeSchema(r.Context())
	if op.Skipped {
		jsonErr(w, "No document uploaded or a proposal is already running", http.StatusConflict)
		return
	}
	jsonStatus(w, http.StatusAccepted, map[string]interface{}{"status": "generating"})
}

type schemaRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleSetSchema(w http.ResponseWriter, r *http.Request) {
	var req schemaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	s.extraction.SetSchemaText(req.Text)
	jsonResp(w, view.Panel(s.store.Snapshot()))
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	op := s.extraction.Extract(r.Context())
	switch {
	case errors.Is(op.Rejected, controller.ErrInvalidSchema):
		jsonErr(w, controller.InvalidSchemaText, http.StatusUnprocessableEntity)
	case op.Skipped:
		jsonErr(w, "Nothing to extract: upload a document and provide a schema", http.StatusConflict)
	default:
		jsonStatus(w, http.StatusAccepted, map[string]interface{}{"status": "extracting"})
	}
}
