package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docintel/internal/backend"
	"docintel/internal/config"
	"docintel/internal/history"
	"docintel/internal/logger"
	"docintel/internal/view"
	"docintel/internal/workspace"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/upload", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"document_id":"abc123","chunks_count":2,"chunks":[
			{"text":"Invoice total 42","section_type":"header","page_number":1},
			{"page_content":"Payment terms","metadata":{"section_type":"table","page_number":2}}
		]}`)
	})
	mux.HandleFunc("/ask", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"answer":"42","confidence_metrics":{"final_confidence":0.91,"schema_score":0.8,"semantic_score":0.95}}`)
	})
	mux.HandleFunc("/propose_schema", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total":"number"}`)
	})
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"total":42}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	be := fakeBackend(t)
	cfg := config.Config{
		Backend: config.BackendConfig{
			BaseURL:         be.URL,
			RequestTimeout:  5 * time.Second,
			UploadTimeout:   5 * time.Second,
			BreakerFailures: 5,
			BreakerCooldown: time.Second,
		},
		Upload: config.UploadConfig{MaxBytes: 1 << 10},
	}
	log := logger.NewNop()
	client := backend.NewClient(cfg.Backend, log)
	t.Cleanup(client.Close)

	hist, err := history.NewStore(t.TempDir(), log)
	require.NoError(t, err)

	srv := NewServer(cfg, log, workspace.NewStore(), client, hist)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv.Start(ctx)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { srv.Close() })
	return srv, ts
}

func upload(t *testing.T, ts *httptest.Server, name string, content []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(t, err)
	fw.Write(content)
	require.NoError(t, mw.Close())

	resp, err := http.Post(ts.URL+"/ui/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func postJSON(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func state(t *testing.T, ts *httptest.Server) view.Workspace {
	t.Helper()
	resp, err := http.Get(ts.URL + "/ui/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var w view.Workspace
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&w))
	return w
}

func waitForDocument(t *testing.T, ts *httptest.Server) view.Workspace {
	t.Helper()
	var w view.Workspace
	require.Eventually(t, func() bool {
		w = state(t, ts)
		return w.Document != nil && w.Document.ID != "" && !w.Processing
	}, 3*time.Second, 20*time.Millisecond)
	return w
}

func TestHealth(t *testing.T) {
	_, ts := testServer(t)
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestUploadAskExtractFlow(t *testing.T) {
	_, ts := testServer(t)

	resp := upload(t, ts, "invoice.pdf", []byte("hello"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	w := waitForDocument(t, ts)
	assert.Equal(t, "abc123", w.Document.ID)
	assert.Equal(t, "invoice.pdf", w.Document.FileName)
	assert.Equal(t, workspace.FileReady, w.Document.Status)
	require.Len(t, w.Chunks.Cards, 2)
	assert.Equal(t, "Page 2 • Chunk 2", w.Chunks.Cards[1].Label)
	assert.True(t, w.CanChat)

	resp = postJSON(t, ts, http.MethodPost, "/ui/ask", `{"question":"What is the total?"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		msgs := state(t, ts).Messages
		return len(msgs) == 3 && !msgs[2].Loading
	}, 3*time.Second, 20*time.Millisecond)

	answer := state(t, ts).Messages[2]
	assert.Equal(t, "42", answer.Text)
	require.NotNil(t, answer.Intelligence)
	assert.Equal(t, 91, answer.Intelligence.Metrics.Final)

	resp = postJSON(t, ts, http.MethodPost, "/ui/messages/"+answer.ID+"/toggle", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, state(t, ts).Messages[2].Intelligence.Open)

	resp = postJSON(t, ts, http.MethodPut, "/ui/schema", `{"text":"{not json"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, http.MethodPost, "/ui/extract", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "Invalid JSON schema", state(t, ts).Panel.Error)

	resp = postJSON(t, ts, http.MethodPut, "/ui/schema", `{"text":"{\"total\":\"number\"}"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, http.MethodPost, "/ui/extract", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		p := state(t, ts).Panel
		return strings.Contains(p.ResultText, `"total": 42`) && p.CanExtract
	}, 3*time.Second, 20*time.Millisecond)
}

func TestUpload_TooLarge(t *testing.T) {
	_, ts := testServer(t)
	resp := upload(t, ts, "big.txt", bytes.Repeat([]byte("a"), 2<<10))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestUpload_MissingFile(t *testing.T) {
	_, ts := testServer(t)
	resp := postJSON(t, ts, http.MethodPost, "/ui/upload", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAsk_WithoutDocument(t *testing.T) {
	_, ts := testServer(t)
	resp := postJSON(t, ts, http.MethodPost, "/ui/ask", `{"question":"hi"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = postJSON(t, ts, http.MethodPost, "/ui/ask", `{"question":"   "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChunks_Filter(t *testing.T) {
	_, ts := testServer(t)
	upload(t, ts, "invoice.pdf", []byte("hello"))
	waitForDocument(t, ts)

	resp, err := http.Get(ts.URL + "/ui/chunks?q=payment")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list view.ChunkList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Cards, 1)
	assert.Equal(t, 2, list.Cards[0].Ordinal)
	assert.Equal(t, "table", list.Cards[0].Section)
}

func TestHistory_RecordsUpload(t *testing.T) {
	_, ts := testServer(t)
	upload(t, ts, "invoice.pdf", []byte("hello"))
	waitForDocument(t, ts)

	var sessions []history.Session
	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.URL + "/ui/history")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		sessions = nil
		return json.NewDecoder(resp.Body).Decode(&sessions) == nil && len(sessions) == 1
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, "abc123", sessions[0].DocumentID)

	resp := postJSON(t, ts, http.MethodDelete, "/ui/history/"+sessions[0].ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = postJSON(t, ts, http.MethodDelete, "/ui/history/"+sessions[0].ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWebSocket_PushesStateAndAlerts(t *testing.T) {
	srv, ts := testServer(t)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ui/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "state", ev.Type)
	require.NotNil(t, ev.State)

	srv.hub.Alert("Upload failed. Please try again.")
	for {
		ev = Event{}
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == "alert" {
			break
		}
	}
	assert.Equal(t, "Upload failed. Please try again.", ev.Message)
}
