package backend

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Fallbacks shown when a chunk carries no classification or page.
const (
	DefaultSection = "misc"
	UnknownPage    = "?"
)

// PageNumber is a page reference as the backend sent it. The backend emits
// integers, but string pages ("iv", "12") come through document loaders too.
// The empty value means "absent"; a numeric 0 decodes as absent.
type PageNumber string

func (p *PageNumber) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch x := v.(type) {
	case nil:
		*p = ""
	case float64:
		if x == 0 {
			*p = ""
		} else if x == float64(int64(x)) {
			*p = PageNumber(strconv.FormatInt(int64(x), 10))
		} else {
			*p = PageNumber(strconv.FormatFloat(x, 'f', -1, 64))
		}
	case string:
		*p = PageNumber(x)
	default:
		return fmt.Errorf("page_number: unsupported JSON value %s", string(data))
	}
	return nil
}

func (p PageNumber) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(p), 10, 64); err == nil {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	return json.Marshal(string(p))
}

// ChunkMetadata is the nested metadata block some chunk records carry.
type ChunkMetadata struct {
	SectionType string     `json:"section_type,omitempty"`
	PageNumber  PageNumber `json:"page_number,omitempty"`
	Text        string     `json:"text,omitempty"`
	DocumentID  string     `json:"document_id,omitempty"`
}

// Chunk is one unit of document content. The backend sends either the flat
// shape ({text, section_type, page_number}) or the nested one
// ({page_content, metadata: {...}}); both decode into this struct and the
// accessors below resolve them.
type Chunk struct {
	Text        string         `json:"text,omitempty"`
	PageContent string         `json:"page_content,omitempty"`
	SectionType string         `json:"section_type,omitempty"`
	PageNumber  PageNumber     `json:"page_number,omitempty"`
	Metadata    *ChunkMetadata `json:"metadata,omitempty"`
}

// Section resolves the section classification: nested metadata first, then the
// flat field, then DefaultSection.
func (c Chunk) Section() string {
	if c.Metadata != nil && c.Metadata.SectionType != "" {
		return c.Metadata.SectionType
	}
	if c.SectionType != "" {
		return c.SectionType
	}
	return DefaultSection
}

// Page resolves the page number with the same precedence as Section, falling
// back to UnknownPage.
func (c Chunk) Page() string {
	if c.Metadata != nil && c.Metadata.PageNumber != "" {
		return string(c.Metadata.PageNumber)
	}
	if c.PageNumber != "" {
		return string(c.PageNumber)
	}
	return UnknownPage
}

// Body resolves the chunk text: text, then page_content, then empty.
func (c Chunk) Body() string {
	if c.Text != "" {
		return c.Text
	}
	return c.PageContent
}

// UploadResponse is the body of POST /upload.
// ProposedSchema and Extraction are nil when the backend omitted them or sent null.
type UploadResponse struct {
	DocumentID     string          `json:"document_id"`
	ChunksCount    int             `json:"chunks_count"`
	Chunks         []Chunk         `json:"chunks"`
	ProposedSchema json.RawMessage `json:"proposed_schema,omitempty"`
	Extraction     json.RawMessage `json:"extraction,omitempty"`
	Message        string          `json:"message,omitempty"`
}

// ConfidenceMetrics are fractions in [0,1].
type ConfidenceMetrics struct {
	FinalConfidence float64 `json:"final_confidence"`
	SchemaScore     float64 `json:"schema_score"`
	SemanticScore   float64 `json:"semantic_score"`
	Status          string  `json:"status,omitempty"` // "accepted" or "refused"
}

// Mapping links a question to an extracted schema field.
type Mapping struct {
	Field      string  `json:"field"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// SourceMetadata describes where a retrieved excerpt came from.
type SourceMetadata struct {
	PageNumber  PageNumber `json:"page_number,omitempty"`
	SectionType string     `json:"section_type,omitempty"`
	Text        string     `json:"text,omitempty"`
	DocumentID  string     `json:"document_id,omitempty"`
}

// Source is one ranked excerpt returned with an answer.
type Source struct {
	Metadata SourceMetadata `json:"metadata"`
	Score    float64        `json:"score,omitempty"`
}

// AskResponse is the body of POST /ask. Everything beside Answer is optional
// and makes up the answer's intelligence payload.
type AskResponse struct {
	Answer            string             `json:"answer"`
	ConfidenceMetrics *ConfidenceMetrics `json:"confidence_metrics,omitempty"`
	Mappings          []Mapping          `json:"mappings,omitempty"`
	Sources           []Source           `json:"sources,omitempty"`
}

// HasIntelligence reports whether any intelligence sub-field is present.
// Empty lists count as absent.
func (r *AskResponse) HasIntelligence() bool {
	if r == nil {
		return false
	}
	return r.ConfidenceMetrics != nil || len(r.Mappings) > 0 || len(r.Sources) > 0
}

type askRequest struct {
	Question   string `json:"question"`
	DocumentID string `json:"document_id"`
}

type proposeRequest struct {
	DocumentID string `json:"document_id"`
}

type extractRequest struct {
	DocumentID       string          `json:"document_id"`
	SchemaDefinition json.RawMessage `json:"schema_definition"`
}

// normalizeRaw maps absent and JSON null values to nil.
func normalizeRaw(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return nil
	}
	return raw
}
