package workspace

import (
	"sync/atomic"
	"time"

	"docintel/internal/backend"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Token identifies one pending request. The zero Token means "none".
type Token uint64

// Sequence hands out strictly increasing tokens. Safe for concurrent use.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() Token {
	return Token(s.n.Add(1))
}

// Current returns the most recently issued token.
func (s *Sequence) Current() Token {
	return Token(s.n.Load())
}

// Message is one transcript entry. A bot message with a non-zero Pending token
// is a loading placeholder for the request holding that token.
type Message struct {
	ID           string               `json:"id"`
	Role         Role                 `json:"type"`
	Text         string               `json:"text"`
	Intelligence *backend.AskResponse `json:"intelligence,omitempty"`
	Pending      Token                `json:"pending,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
}

func (m Message) IsLoading() bool {
	return m.Pending != 0
}

func NewUserMessage(text string) Message {
	return Message{ID: uuid.NewString(), Role: RoleUser, Text: text, CreatedAt: time.Now()}
}

func NewBotMessage(text string, intelligence *backend.AskResponse) Message {
	return Message{ID: uuid.NewString(), Role: RoleBot, Text: text, Intelligence: intelligence, CreatedAt: time.Now()}
}

// NewPlaceholder returns a loading bot message owned by token.
func NewPlaceholder(text string, token Token) Message {
	m := NewBotMessage(text, nil)
	m.Pending = token
	return m
}

// WithoutPending returns msgs minus the placeholder owned by token. Other
// placeholders and the relative order of everything else are kept.
func WithoutPending(msgs []Message, token Token) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if token != 0 && m.Pending == token {
			continue
		}
		out = append(out, m)
	}
	return out
}

// Settled returns msgs without any loading placeholders.
func Settled(msgs []Message) []Message {
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		if !m.IsLoading() {
			out = append(out, m)
		}
	}
	return out
}
