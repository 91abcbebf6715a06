package view

import (
	"bytes"
	"html"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// Markdown renders answer text to HTML. Raw HTML in the source is escaped.
// Rendered output is cached by source text.
type Markdown struct {
	md    goldmark.Markdown
	cache *cache.Cache
}

func NewMarkdown() *Markdown {
	return &Markdown{
		md:    goldmark.New(goldmark.WithExtensions(extension.GFM)),
		cache: cache.New(30*time.Minute, 10*time.Minute),
	}
}

func (m *Markdown) Render(src string) string {
	if v, ok := m.cache.Get(src); ok {
		return v.(string)
	}
	var buf bytes.Buffer
	out := ""
	if err := m.md.Convert([]byte(src), &buf); err != nil {
		out = "<p>" + html.EscapeString(src) + "</p>"
	} else {
		out = buf.String()
	}
	m.cache.Set(src, out, cache.DefaultExpiration)
	return out
}
