package workspace

import (
	"bytes"
	"encoding/json"
	"sync"

	"docintel/internal/backend"
)

type FileStatus string

const (
	FileProcessing FileStatus = "processing"
	FileReady      FileStatus = "ready"
	FileError      FileStatus = "error"
)

// File describes the most recently submitted upload, as inspected locally
// before it was sent.
type File struct {
	Name    string     `json:"name"`
	Status  FileStatus `json:"status"`
	MIME    string     `json:"mime,omitempty"`
	Ext     string     `json:"ext,omitempty"`
	Size    int64      `json:"size"`
	Pages   int        `json:"pages,omitempty"`
	Preview string     `json:"preview,omitempty"`
}

// Panel is the extraction view's state: the editable schema text, the result
// area, and the two independent busy flags. Each flag holds the handle of the
// document its call was made for and is empty when idle.
type Panel struct {
	SchemaText    string `json:"schema_text"`
	ResultText    string `json:"result_text"`
	Error         string `json:"error,omitempty"`
	GeneratingFor string `json:"generating_for,omitempty"`
	ExtractingFor string `json:"extracting_for,omitempty"`
}

func (p Panel) Generating() bool { return p.GeneratingFor != "" }

func (p Panel) Extracting() bool { return p.ExtractingFor != "" }

// Document is everything a successful upload replaces. File, when set, becomes
// the active file status in the same transition.
type Document struct {
	ID             string
	File           *File
	Chunks         []backend.Chunk
	ChunksCount    int
	ProposedSchema json.RawMessage
	Extraction     json.RawMessage
}

// Snapshot is one immutable view of the workspace. Slices and raw JSON in a
// snapshot are shared with later snapshots and must not be modified.
type Snapshot struct {
	Revision       uint64          `json:"revision"`
	DocumentID     string          `json:"document_id"`
	Chunks         []backend.Chunk `json:"chunks"`
	ChunksCount    int             `json:"chunks_count"`
	ProposedSchema json.RawMessage `json:"proposed_schema,omitempty"`
	Extraction     json.RawMessage `json:"extraction,omitempty"`
	Processing     bool            `json:"processing"`
	Messages       []Message       `json:"messages"`
	File           *File           `json:"file,omitempty"`
	Panel          Panel           `json:"panel"`
}

// HasDocument reports whether a document handle is active.
func (s Snapshot) HasDocument() bool {
	return s.DocumentID != ""
}

// Store is the single writer of workspace state. Every mutation produces a new
// Snapshot with a higher Revision and is delivered, in order, to every
// subscriber. No operation fails.
type Store struct {
	mu      sync.Mutex
	snap    Snapshot
	subs    map[uint64]*Subscription
	nextSub uint64
}

func NewStore() *Store {
	return &Store{
		snap: Snapshot{Chunks: []backend.Chunk{}, Messages: []Message{}},
		subs: make(map[uint64]*Subscription),
	}
}

// Snapshot returns the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// SetDocument replaces every document-scoped field in one transition. Panel
// texts are rebuilt from the new document and are empty when it carries no
// schema or extraction. Busy flags of the previous document are cleared.
func (s *Store) SetDocument(doc Document) {
	chunks := make([]backend.Chunk, len(doc.Chunks))
	copy(chunks, doc.Chunks)
	s.commit(func(next *Snapshot) {
		next.DocumentID = doc.ID
		next.Chunks = chunks
		next.ChunksCount = doc.ChunksCount
		next.ProposedSchema = doc.ProposedSchema
		next.Extraction = doc.Extraction
		next.Panel.SchemaText = Pretty(doc.ProposedSchema)
		next.Panel.ResultText = Pretty(doc.Extraction)
		next.Panel.Error = ""
		next.Panel.GeneratingFor = ""
		next.Panel.ExtractingFor = ""
		if doc.File != nil {
			f := *doc.File
			next.File = &f
		}
	})
}

func (s *Store) SetProcessing(processing bool) {
	s.commit(func(next *Snapshot) {
		next.Processing = processing
	})
}

func (s *Store) SetFile(f File) {
	s.commit(func(next *Snapshot) {
		next.File = &f
	})
}

// SetProposedSchema stores a schema and refreshes the schema text shown for editing.
func (s *Store) SetProposedSchema(schema json.RawMessage) {
	s.commit(func(next *Snapshot) {
		next.ProposedSchema = schema
		if schema != nil {
			next.Panel.SchemaText = Pretty(schema)
		}
	})
}

// SetExtraction stores an extraction result and shows it in the result area.
func (s *Store) SetExtraction(extraction json.RawMessage) {
	s.commit(func(next *Snapshot) {
		next.Extraction = extraction
		if extraction != nil {
			next.Panel.ResultText = Pretty(extraction)
		}
	})
}

// UpdatePanel applies fn to a copy of the panel and commits the result.
func (s *Store) UpdatePanel(fn func(p *Panel)) {
	s.commit(func(next *Snapshot) {
		fn(&next.Panel)
	})
}

// SetMessages replaces the transcript.
func (s *Store) SetMessages(msgs []Message) {
	cp := make([]Message, len(msgs))
	copy(cp, msgs)
	s.commit(func(next *Snapshot) {
		next.Messages = cp
	})
}

// AppendMessage adds msg to the end of the transcript.
func (s *Store) AppendMessage(msg Message) {
	s.commit(func(next *Snapshot) {
		next.Messages = append(next.Messages[:len(next.Messages):len(next.Messages)], msg)
	})
}

// UpdateMessages replaces the transcript with fn(current) atomically, so a
// message appended concurrently is never lost. fn receives a private copy.
func (s *Store) UpdateMessages(fn func(msgs []Message) []Message) {
	s.commit(func(next *Snapshot) {
		cp := make([]Message, len(next.Messages))
		copy(cp, next.Messages)
		next.Messages = fn(cp)
	})
}

func (s *Store) commit(mutate func(next *Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap
	mutate(&next)
	next.Revision = s.snap.Revision + 1
	s.snap = next

	for _, sub := range s.subs {
		sub.push(next)
	}
}

// Subscribe registers a subscriber. The current snapshot is delivered first,
// then every later change in the order it was applied.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	sub := newSubscription(s, s.nextSub)
	s.subs[sub.id] = sub
	sub.push(s.snap)
	return sub
}

func (s *Store) unsubscribe(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// Pretty renders raw JSON indented by two spaces. nil renders as "".
func Pretty(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}
