package workspace

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"docintel/internal/backend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.C:
		require.True(t, ok, "subscription closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return Snapshot{}
	}
}

func TestNewStore_Empty(t *testing.T) {
	s := NewStore()
	snap := s.Snapshot()
	assert.False(t, snap.HasDocument())
	assert.Empty(t, snap.Chunks)
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Processing)
	assert.Equal(t, uint64(0), snap.Revision)
}

func TestSetDocument_ReplacesWholesale(t *testing.T) {
	s := NewStore()
	s.SetDocument(Document{
		ID:             "first",
		Chunks:         []backend.Chunk{{Text: "A"}, {Text: "B"}},
		ChunksCount:    2,
		ProposedSchema: json.RawMessage(`{"a":"string"}`),
		Extraction:     json.RawMessage(`{"a":"x"}`),
	})
	s.SetDocument(Document{
		ID:          "second",
		Chunks:      []backend.Chunk{{Text: "C"}},
		ChunksCount: 1,
	})

	snap := s.Snapshot()
	assert.Equal(t, "second", snap.DocumentID)
	require.Len(t, snap.Chunks, 1)
	assert.Equal(t, "C", snap.Chunks[0].Text)
	assert.Equal(t, 1, snap.ChunksCount)
	assert.Nil(t, snap.ProposedSchema, "schema must not leak from the previous document")
	assert.Nil(t, snap.Extraction)
	assert.Empty(t, snap.Panel.SchemaText)
	assert.Empty(t, snap.Panel.ResultText)
}

func TestSetDocument_ClearsBusyFlagsOfPreviousDocument(t *testing.T) {
	s := NewStore()
	s.SetDocument(Document{ID: "old"})
	s.UpdatePanel(func(p *Panel) { p.GeneratingFor, p.ExtractingFor = "old", "old" })
	require.True(t, s.Snapshot().Panel.Extracting())

	s.SetDocument(Document{ID: "new"})
	panel := s.Snapshot().Panel
	assert.False(t, panel.Generating())
	assert.False(t, panel.Extracting())
}

func TestSetDocument_InstallsFileInSameTransition(t *testing.T) {
	s := NewStore()
	s.SetFile(File{Name: "a.pdf", Status: FileProcessing})
	s.SetFile(File{Name: "rejected.txt", Status: FileError})

	sub := s.Subscribe()
	defer sub.Close()
	receive(t, sub) // initial

	s.SetDocument(Document{ID: "abc123", File: &File{Name: "a.pdf", Status: FileReady}})
	snap := receive(t, sub)
	assert.Equal(t, "abc123", snap.DocumentID)
	require.NotNil(t, snap.File)
	assert.Equal(t, "a.pdf", snap.File.Name)
	assert.Equal(t, FileReady, snap.File.Status)

	s.SetDocument(Document{ID: "def456"})
	assert.Equal(t, "a.pdf", s.Snapshot().File.Name, "a nil File keeps the current status")
}

func TestSetDocument_IsOneTransition(t *testing.T) {
	s := NewStore()
	sub := s.Subscribe()
	defer sub.Close()
	receive(t, sub) // initial

	s.SetDocument(Document{ID: "abc123", Chunks: []backend.Chunk{{Text: "A"}}, ChunksCount: 1})

	snap := receive(t, sub)
	assert.Equal(t, "abc123", snap.DocumentID)
	assert.Len(t, snap.Chunks, 1)
	assert.Equal(t, uint64(1), snap.Revision)
}

func TestSetDocument_PrettyPrintsPanelTexts(t *testing.T) {
	s := NewStore()
	s.SetDocument(Document{ID: "d", ProposedSchema: json.RawMessage(`{"total":"number"}`)})
	assert.Equal(t, "{\n  \"total\": \"number\"\n}", s.Snapshot().Panel.SchemaText)
}

func TestSetProposedSchemaAndExtraction_Independent(t *testing.T) {
	s := NewStore()
	s.SetExtraction(json.RawMessage(`{"x":1}`))
	s.SetProposedSchema(json.RawMessage(`{"x":"number"}`))

	snap := s.Snapshot()
	assert.JSONEq(t, `{"x":1}`, string(snap.Extraction))
	assert.JSONEq(t, `{"x":"number"}`, string(snap.ProposedSchema))
	assert.Contains(t, snap.Panel.ResultText, `"x": 1`)
	assert.Contains(t, snap.Panel.SchemaText, `"x": "number"`)
}

func TestAppendMessage_DoesNotAliasEarlierSnapshots(t *testing.T) {
	s := NewStore()
	s.AppendMessage(NewUserMessage("one"))
	before := s.Snapshot()

	s.AppendMessage(NewUserMessage("two"))
	s.UpdateMessages(func(msgs []Message) []Message {
		msgs[0].Text = "changed"
		return msgs
	})

	require.Len(t, before.Messages, 1)
	assert.Equal(t, "one", before.Messages[0].Text)
	assert.Equal(t, "changed", s.Snapshot().Messages[0].Text)
}

func TestSetMessages_CopiesInput(t *testing.T) {
	s := NewStore()
	msgs := []Message{NewUserMessage("a")}
	s.SetMessages(msgs)
	msgs[0].Text = "mutated"
	assert.Equal(t, "a", s.Snapshot().Messages[0].Text)
}

func TestWithoutPending_RemovesOnlyOwnPlaceholder(t *testing.T) {
	var seq Sequence
	t1, t2 := seq.Next(), seq.Next()
	msgs := []Message{
		NewUserMessage("q1"),
		NewPlaceholder("Analyzing document...", t1),
		NewUserMessage("q2"),
		NewPlaceholder("Analyzing document...", t2),
	}

	out := WithoutPending(msgs, t1)
	require.Len(t, out, 3)
	assert.Equal(t, "q1", out[0].Text)
	assert.Equal(t, "q2", out[1].Text)
	assert.Equal(t, t2, out[2].Pending)

	assert.Len(t, Settled(msgs), 2)
}

func TestSequence_Increasing(t *testing.T) {
	var seq Sequence
	assert.Equal(t, Token(0), seq.Current())
	a := seq.Next()
	b := seq.Next()
	assert.Less(t, uint64(a), uint64(b))
	assert.Equal(t, b, seq.Current())
}

func TestSubscribe_DeliversEveryChangeInOrder(t *testing.T) {
	s := NewStore()
	sub := s.Subscribe()
	defer sub.Close()

	// Nobody reads while the writes happen; nothing may be dropped.
	const n = 50
	for i := 0; i < n; i++ {
		s.AppendMessage(NewUserMessage("m"))
	}

	first := receive(t, sub)
	assert.Equal(t, uint64(0), first.Revision)
	for i := 1; i <= n; i++ {
		snap := receive(t, sub)
		assert.Equal(t, uint64(i), snap.Revision)
		assert.Len(t, snap.Messages, i)
	}
}

func TestSubscribe_ConcurrentWritersStaySerialized(t *testing.T) {
	s := NewStore()
	sub := s.Subscribe()
	defer sub.Close()
	receive(t, sub)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AppendMessage(NewUserMessage("x"))
		}()
	}
	wg.Wait()

	var last uint64
	for i := 0; i < 20; i++ {
		snap := receive(t, sub)
		assert.Equal(t, last+1, snap.Revision)
		last = snap.Revision
	}
	assert.Len(t, s.Snapshot().Messages, 20)
}

func TestSubscription_Close(t *testing.T) {
	s := NewStore()
	sub := s.Subscribe()
	sub.Close()
	sub.Close() // idempotent

	s.SetProcessing(true)

	select {
	case _, ok := <-sub.C:
		if ok {
			// the initial snapshot may already be in flight; the channel must close right after
			_, ok = <-sub.C
		}
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPretty(t *testing.T) {
	assert.Equal(t, "", Pretty(nil))
	assert.Equal(t, "[\n  1,\n  2\n]", Pretty(json.RawMessage(`[1,2]`)))
	assert.Equal(t, "not json", Pretty(json.RawMessage(`not json`)))
}
