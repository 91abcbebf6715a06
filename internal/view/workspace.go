// Package view turns workspace snapshots into render-ready models. Everything
// here is a pure function of a snapshot plus presentation-only state.
package view

import (
	"strings"

	"docintel/internal/workspace"
)

const (
	ProposeLabel    = "Auto-Generate Schema"
	GeneratingLabel = "Generating..."
	ExtractLabel    = "Extract Data"
	ExtractingLabel = "Extracting..."
)

// DocumentInfo is the file status header.
type DocumentInfo struct {
	ID          string               `json:"id"`
	ShortID     string               `json:"short_id"`
	ChunksCount int                  `json:"chunks_count"`
	FileName    string               `json:"file_name,omitempty"`
	Status      workspace.FileStatus `json:"status,omitempty"`
	MIME        string               `json:"mime,omitempty"`
	Ext         string               `json:"ext,omitempty"`
	Pages       int                  `json:"pages,omitempty"`
	Preview     string               `json:"preview,omitempty"`
}

// ExtractionPanel is the extraction view.
type ExtractionPanel struct {
	SchemaText    string `json:"schema_text"`
	ResultText    string `json:"result_text"`
	Error         string `json:"error,omitempty"`
	ProposeButton string `json:"propose_button"`
	ExtractButton string `json:"extract_button"`
	CanPropose    bool   `json:"can_propose"`
	CanExtract    bool   `json:"can_extract"`
}

// Workspace is the full page model.
type Workspace struct {
	Revision   uint64          `json:"revision"`
	Document   *DocumentInfo   `json:"document,omitempty"`
	Processing bool            `json:"processing"`
	CanChat    bool            `json:"can_chat"`
	Messages   []ChatMessage   `json:"messages"`
	Chunks     ChunkList       `json:"chunks"`
	Panel      ExtractionPanel `json:"panel"`
}

// ShortID abbreviates a document handle to its first eight characters.
func ShortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8] + "..."
}

// Build renders snap. toggles and md may be nil.
func Build(snap workspace.Snapshot, toggles *Toggles, md *Markdown) Workspace {
	w := Workspace{
		Revision:   snap.Revision,
		Processing: snap.Processing,
		CanChat:    snap.HasDocument() && !snap.Processing,
		Messages:   Chat(snap.Messages, toggles, md),
		Chunks:     Chunks(snap.Chunks),
		Panel:      Panel(snap),
	}
	if snap.HasDocument() || snap.File != nil {
		info := &DocumentInfo{
			ID:          snap.DocumentID,
			ShortID:     ShortID(snap.DocumentID),
			ChunksCount: snap.ChunksCount,
		}
		if f := snap.File; f != nil {
			info.FileName, info.Status = f.Name, f.Status
			info.MIME, info.Ext, info.Pages, info.Preview = f.MIME, f.Ext, f.Pages, f.Preview
		}
		w.Document = info
	}
	return w
}

// Panel renders the extraction view.
func Panel(snap workspace.Snapshot) ExtractionPanel {
	p := snap.Panel
	ready := snap.HasDocument() && !snap.Processing
	out := ExtractionPanel{
		SchemaText:    p.SchemaText,
		ResultText:    p.ResultText,
		Error:         p.Error,
		ProposeButton: ProposeLabel,
		ExtractButton: ExtractLabel,
		CanPropose:    ready && !p.Generating(),
		CanExtract:    ready && !p.Extracting() && strings.TrimSpace(p.SchemaText) != "",
	}
	if p.Generating() {
		out.ProposeButton = GeneratingLabel
	}
	if p.Extracting() {
		out.ExtractButton = ExtractingLabel
	}
	return out
}
