// Package preflight inspects a file before it is sent to the backend: it
// detects the content type, rejects empty or oversized files, counts pages
// for PDF and DOCX and builds a short text preview.
package preflight

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
)

const (
	MIMEPDF  = "application/pdf"
	MIMEDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

	// DOCX has no physical pages; paragraphs are grouped into blocks of
	// about this many characters.
	charsPerPage = 3000
	previewChars = 280
)

var (
	ErrEmpty    = errors.New("file is empty")
	ErrTooLarge = errors.New("file exceeds upload limit")
)

// Report is what preflight learned about a file. Pages is 0 when the format
// has no page notion or could not be parsed.
type Report struct {
	Name    string `json:"name"`
	Ext     string `json:"ext,omitempty"`
	MIME    string `json:"mime"`
	Size    int64  `json:"size"`
	Pages   int    `json:"pages,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// Inspector checks uploads against a size limit. A zero MaxBytes disables
// the limit.
type Inspector struct {
	MaxBytes int64
}

// Inspect never fails for unknown or unparsable formats; only empty and
// oversized files are rejected.
func (in *Inspector) Inspect(name string, content []byte) (Report, error) {
	size := int64(len(content))
	if size == 0 {
		return Report{}, fmt.Errorf("%s: %w", name, ErrEmpty)
	}
	if in.MaxBytes > 0 && size > in.MaxBytes {
		return Report{}, fmt.Errorf("%s: %w (%d > %d bytes)", name, ErrTooLarge, size, in.MaxBytes)
	}

	mt := mimetype.Detect(content)
	rep := Report{Name: name, Ext: strings.ToLower(filepath.Ext(name)), MIME: mt.String(), Size: size}

	var text string
	switch {
	case mt.Is(MIMEPDF):
		rep.MIME = MIMEPDF
		rep.Pages, text = pdfInfo(content)
	case mt.Is(MIMEDOCX):
		rep.MIME = MIMEDOCX
		rep.Pages, text = docxInfo(content)
	}
	if text != "" {
		rep.Preview = preview(text)
	}
	if rep.Preview == "" && strings.HasPrefix(rep.MIME, "text/") {
		rep.Preview = preview(string(content))
	}
	return rep, nil
}

// pdfInfo counts pages and returns the text of the first page that has any.
// Later pages are not decoded.
func pdfInfo(content []byte) (pages int, text string) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if recover() != nil {
			pages, text = 0, ""
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, ""
	}
	pages = r.NumPage()
	for i := 1; i <= pages && text == ""; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		if t, err := p.GetPlainText(nil); err == nil {
			text = strings.TrimSpace(t)
		}
	}
	return pages, text
}

func docxInfo(content []byte) (int, string) {
	r, err := docx.ReadDocxFromMemory(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, ""
	}
	defer r.Close()
	pages := groupParagraphs(splitParagraphs(r.Editable().GetContent()), charsPerPage)
	if len(pages) == 0 {
		return 0, ""
	}
	return len(pages), pages[0]
}

// groupParagraphs packs paragraphs into logical pages of roughly limit
// characters. A single paragraph longer than limit gets a page of its own.
func groupParagraphs(paragraphs []string, limit int) []string {
	var pages []string
	var buf strings.Builder
	for _, para := range paragraphs {
		text := strings.TrimSpace(para)
		if text == "" {
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(text) > limit {
			pages = append(pages, buf.String())
			buf.Reset()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		buf.WriteString(text)
	}
	if buf.Len() > 0 {
		pages = append(pages, buf.String())
	}
	return pages
}

// splitParagraphs splits WordprocessingML on <w:p> and strips the markup.
func splitParagraphs(xml string) []string {
	var out []string
	for _, part := range strings.Split(xml, "<w:p") {
		if cleaned := strings.TrimSpace(stripTags(part)); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return out
}

func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= previewChars {
		return s
	}
	return string(r[:previewChars]) + "..."
}
