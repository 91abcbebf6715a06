package view

import (
	"fmt"

	"docintel/internal/backend"
)

const NoChunksText = "No chunks found."

// ChunkCard is one entry of the chunk browser. Ordinal is 1-based and always
// refers to the chunk's position in the document, also in filtered lists.
type ChunkCard struct {
	Ordinal int    `json:"ordinal"`
	Section string `json:"section"`
	Page    string `json:"page"`
	Label   string `json:"label"`
	Text    string `json:"text"`
}

// ChunkList is the chunk browser's content.
type ChunkList struct {
	Cards     []ChunkCard `json:"cards"`
	Total     int         `json:"total"`
	EmptyText string      `json:"empty_text,omitempty"`
}

// Chunks renders every chunk in document order.
func Chunks(chunks []backend.Chunk) ChunkList {
	positions := make([]int, len(chunks))
	for i := range positions {
		positions[i] = i
	}
	return SelectChunks(chunks, positions)
}

// SelectChunks renders the chunks at positions, in the given order.
// Out-of-range positions are skipped.
func SelectChunks(chunks []backend.Chunk, positions []int) ChunkList {
	list := ChunkList{Cards: make([]ChunkCard, 0, len(positions)), Total: len(chunks)}
	for _, pos := range positions {
		if pos < 0 || pos >= len(chunks) {
			continue
		}
		list.Cards = append(list.Cards, card(chunks[pos], pos))
	}
	if len(list.Cards) == 0 {
		list.EmptyText = NoChunksText
	}
	return list
}

func card(c backend.Chunk, pos int) ChunkCard {
	page := c.Page()
	return ChunkCard{
		Ordinal: pos + 1,
		Section: c.Section(),
		Page:    page,
		Label:   fmt.Sprintf("Page %s • Chunk %d", page, pos+1),
		Text:    c.Body(),
	}
}
