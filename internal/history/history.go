// Package history persists past workspace sessions: one record per uploaded
// document plus the settled transcript exchanged while it was active.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"docintel/internal/logger"
	"docintel/internal/workspace"

	"github.com/google/uuid"
)

const module = "History"

var ErrNotFound = errors.New("session not found")

// Session is one document's stay in the workspace.
type Session struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	FileName     string    `json:"file_name"`
	ChunkCount   int       `json:"chunk_count"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ==================== Store ====================

// Store keeps session records in sessions.json and each transcript in
// <id>.json under dataDir.
type Store struct {
	mu       sync.RWMutex
	sessions []Session
	dataDir  string
	filePath string
	log      logger.ILogger
}

// NewStore creates dataDir if needed and loads existing sessions.
func NewStore(dataDir string, log logger.ILogger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}

	s := &Store{
		dataDir:  dataDir,
		filePath: filepath.Join(dataDir, "sessions.json"),
		log:      log,
	}
	if data, err := os.ReadFile(s.filePath); err == nil {
		if err := json.Unmarshal(data, &s.sessions); err != nil {
			log.Warn(module, "Ignoring unreadable session index", map[string]interface{}{
				"path": s.filePath, "error": err.Error(),
			})
			s.sessions = nil
		}
	}
	return s, nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.sessions, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.filePath, data, 0644)
}

func (s *Store) messagesPath(id string) string {
	return filepath.Join(s.dataDir, id+".json")
}

// Begin records a new session for a document that just became active.
func (s *Store) Begin(documentID, fileName string, chunkCount int) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sess := Session{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		FileName:   fileName,
		ChunkCount: chunkCount,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if sess.FileName == "" {
		sess.FileName = "Document " + documentID
	}
	if err := os.WriteFile(s.messagesPath(sess.ID), []byte("[]"), 0644); err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	s.sessions = append(s.sessions, sess)
	if err := s.save(); err != nil {
		return nil, err
	}
	return &sess, nil
}

// List returns sessions, newest first.
func (s *Store) List() []Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Session, len(s.sessions))
	copy(out, s.sessions)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.sessions {
		if s.sessions[i].ID == id {
			sess := s.sessions[i]
			return &sess, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	var kept []Session
	for _, sess := range s.sessions {
		if sess.ID == id {
			found = true
			continue
		}
		kept = append(kept, sess)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	s.sessions = kept
	_ = os.Remove(s.messagesPath(id))
	return s.save()
}

// ==================== Messages ====================

func (s *Store) LoadMessages(id string) ([]workspace.Message, error) {
	if _, err := s.Get(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.messagesPath(id))
	if err != nil {
		return nil, err
	}
	var msgs []workspace.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SaveMessages replaces a session's transcript. Loading placeholders are
// never written.
func (s *Store) SaveMessages(id string, msgs []workspace.Message) error {
	msgs = workspace.Settled(msgs)
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID != id {
			continue
		}
		if err := os.WriteFile(s.messagesPath(id), data, 0644); err != nil {
			return err
		}
		s.sessions[i].MessageCount = len(msgs)
		s.sessions[i].UpdatedAt = time.Now()
		return s.save()
	}
	return fmt.Errorf("%w: %s", ErrNotFound, id)
}

// ==================== Recorder ====================

// Run follows the workspace: a new document starts a session, and the
// settled messages that arrive while it is active are persisted. Failures are
// logged. Run returns when ctx is done.
func (s *Store) Run(ctx context.Context, ws *workspace.Store) {
	sub := ws.Subscribe()
	defer sub.Close()

	var (
		docID     string
		sessionID string
		offset    int // settled messages that predate the session
		savedLen  int
		savedLast string
	)
	for {
		var snap workspace.Snapshot
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub.C:
			if !ok {
				return
			}
			snap = next
		}

		settled := workspace.Settled(snap.Messages)
		if snap.DocumentID != docID {
			docID, sessionID = snap.DocumentID, ""
			offset, savedLen, savedLast = len(settled), 0, ""
			if docID != "" {
				name := ""
				if snap.File != nil {
					name = snap.File.Name
				}
				sess, err := s.Begin(docID, name, snap.ChunksCount)
				if err != nil {
					s.log.Error(module, "Failed to start session", map[string]interface{}{
						"document_id": docID, "error": err,
					})
				} else {
					sessionID = sess.ID
				}
			}
		}
		if sessionID == "" || offset > len(settled) {
			continue
		}

		own := settled[offset:]
		last := ""
		if len(own) > 0 {
			last = own[len(own)-1].ID
		}
		if len(own) == savedLen && last == savedLast {
			continue
		}
		if err := s.SaveMessages(sessionID, own); err != nil {
			s.log.Error(module, "Failed to save transcript", map[string]interface{}{
				"session_id": sessionID, "error": err,
			})
			continue
		}
		savedLen, savedLast = len(own), last
	}
}
