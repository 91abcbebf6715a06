package main

import (
	"errors"
	"io"
	"net/http"

	"docintel/internal/preflight"
)

// multipart framing allowance on top of the file size limit
const formOverhead = 1 << 20

// ========== Upload ==========

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if max := s.cfg.Upload.MaxBytes; max > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, max+formOverhead)
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		jsonErr(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		jsonErr(w, "No file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		jsonErr(w, "Failed to read upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	op := s.uploads.Upload(r.Context(), header.Filename, content)
	if op.Rejected != nil {
		code := http.StatusBadRequest
		if errors.Is(op.Rejected, preflight.ErrTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		jsonErr(w, op.Rejected.Error(), code)
		return
	}

	jsonStatus(w, http.StatusAccepted, map[string]interface{}{
		"status": "processing",
		"file":   header.Filename,
		"token":  uint64(op.Token),
	})
}
