package view

import (
	"fmt"
	"math"
	"sync"

	"docintel/internal/backend"
	"docintel/internal/workspace"
)

// MaxSources is how many source excerpts the details panel lists.
const MaxSources = 3

// Percent converts a fraction to a whole percentage, rounding halves up.
func Percent(fraction float64) int {
	return int(math.Floor(fraction*100 + 0.5))
}

type Metrics struct {
	Final  int    `json:"final"`
	Schema int    `json:"schema"`
	Vector int    `json:"vector"`
	Status string `json:"status,omitempty"`
}

type FieldMatch struct {
	Field   string `json:"field"`
	Percent int    `json:"percent"`
	Reason  string `json:"reason,omitempty"`
}

type SourceRef struct {
	Page    string `json:"page"`
	Section string `json:"section"`
}

// Intelligence is the collapsible details panel of an answer. Nil sections
// are not rendered.
type Intelligence struct {
	Metrics  *Metrics     `json:"metrics,omitempty"`
	Mappings []FieldMatch `json:"mappings,omitempty"`
	Sources  []SourceRef  `json:"sources,omitempty"`
	Open     bool         `json:"open"`
}

// ChatMessage is one rendered transcript entry.
type ChatMessage struct {
	ID           string        `json:"id"`
	Role         string        `json:"role"`
	Text         string        `json:"text"`
	HTML         string        `json:"html,omitempty"`
	Loading      bool          `json:"loading"`
	Intelligence *Intelligence `json:"intelligence,omitempty"`
}

// Toggles remembers which answers have their details panel open. It is
// presentation state and never lives in the workspace store.
type Toggles struct {
	mu   sync.Mutex
	open map[string]bool
}

func NewToggles() *Toggles {
	return &Toggles{open: make(map[string]bool)}
}

// Toggle flips the panel of message id and returns the new state.
func (t *Toggles) Toggle(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open[id] = !t.open[id]
	return t.open[id]
}

func (t *Toggles) IsOpen(id string) bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open[id]
}

// BuildIntelligence returns nil when the answer carries no intelligence, so
// no empty panel is shown.
func BuildIntelligence(resp *backend.AskResponse) *Intelligence {
	if !resp.HasIntelligence() {
		return nil
	}
	in := &Intelligence{}
	if m := resp.ConfidenceMetrics; m != nil {
		in.Metrics = &Metrics{
			Final:  Percent(m.FinalConfidence),
			Schema: Percent(m.SchemaScore),
			Vector: Percent(m.SemanticScore),
			Status: m.Status,
		}
	}
	for _, mp := range resp.Mappings {
		in.Mappings = append(in.Mappings, FieldMatch{Field: mp.Field, Percent: Percent(mp.Confidence), Reason: mp.Reason})
	}
	for i, s := range resp.Sources {
		if i == MaxSources {
			break
		}
		page, section := string(s.Metadata.PageNumber), s.Metadata.SectionType
		if page == "" {
			page = backend.UnknownPage
		}
		if section == "" {
			section = backend.DefaultSection
		}
		in.Sources = append(in.Sources, SourceRef{Page: page, Section: section})
	}
	return in
}

// Lines renders the panel as plain text.
func (in *Intelligence) Lines() []string {
	if in == nil {
		return nil
	}
	var lines []string
	if m := in.Metrics; m != nil {
		lines = append(lines,
			fmt.Sprintf("System Confidence: %d%%", m.Final),
			fmt.Sprintf("Schema: %d%%  Vector: %d%%", m.Schema, m.Vector))
	}
	if len(in.Mappings) > 0 {
		lines = append(lines, "Mapped Fields:")
		for _, mp := range in.Mappings {
			lines = append(lines, fmt.Sprintf("• %s (%d%% match)", mp.Field, mp.Percent))
		}
	}
	if len(in.Sources) > 0 {
		lines = append(lines, "Top Sources:")
		for _, s := range in.Sources {
			lines = append(lines, fmt.Sprintf("• Page %s (%s)", s.Page, s.Section))
		}
	}
	return lines
}

// Chat renders the transcript. md may be nil to skip HTML rendering.
func Chat(msgs []workspace.Message, toggles *Toggles, md *Markdown) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := ChatMessage{
			ID:      m.ID,
			Role:    string(m.Role),
			Text:    m.Text,
			Loading: m.IsLoading(),
		}
		if m.Role == workspace.RoleBot && !cm.Loading {
			if md != nil {
				cm.HTML = md.Render(m.Text)
			}
			if in := BuildIntelligence(m.Intelligence); in != nil {
				in.Open = toggles.IsOpen(m.ID)
				cm.Intelligence = in
			}
		}
		out = append(out, cm)
	}
	return out
}
