package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"docintel/internal/config"
	"docintel/internal/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned without contacting the backend while the circuit
// breaker is open after repeated failures.
var ErrCircuitOpen = errors.New("backend unavailable")

// StatusError is a non-2xx reply from the backend.
type StatusError struct {
	Op         string
	StatusCode int
	Detail     string // FastAPI "detail" string when present
	Body       string // first KiB of the body
}

func (e *StatusError) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Body
	}
	if msg == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, msg)
}

// Reason is the text shown to users for err: the backend's detail message
// when it sent one, otherwise the full error.
func Reason(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Detail != "" {
		return se.Detail
	}
	return err.Error()
}

func newStatusError(op string, code int, body []byte) *StatusError {
	e := &StatusError{Op: op, StatusCode: code, Body: strings.TrimSpace(string(body))}
	var detail struct {
		Detail interface{} `json:"detail"`
	}
	if json.Unmarshal(body, &detail) == nil {
		if s, ok := detail.Detail.(string); ok {
			e.Detail = s
		}
	}
	return e
}

// Client talks to the document-processing backend. It keeps no state about
// earlier calls beyond the circuit breaker's failure counts.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	requestTimeout time.Duration
	uploadTimeout  time.Duration
	breaker        *gobreaker.CircuitBreaker
	log            logger.ILogger
}

func NewClient(cfg config.BackendConfig, log logger.ILogger) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:     &http.Client{},
		requestTimeout: cfg.RequestTimeout,
		uploadTimeout:  cfg.UploadTimeout,
		log:            log,
	}
	failures := uint32(cfg.BreakerFailures)
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return failures > 0 && counts.ConsecutiveFailures >= failures
		},
		// 4xx means the backend is up and rejected the request.
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < 500
			}
			return err == nil
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn("backend", "circuit breaker state change", map[string]interface{}{
				"from": from.String(),
				"to":   to.String(),
			})
		},
	})
	return c
}

// Upload sends the file as multipart field "file".
func (c *Client) Upload(ctx context.Context, fileName string, content []byte) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	data, err := c.post(ctx, "upload", "/upload", mw.FormDataContentType(), body.Bytes(), c.uploadTimeout)
	if err != nil {
		return nil, err
	}

	var resp UploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if resp.DocumentID == "" {
		return nil, fmt.Errorf("upload response missing document_id")
	}
	resp.ProposedSchema = normalizeRaw(resp.ProposedSchema)
	resp.Extraction = normalizeRaw(resp.Extraction)
	return &resp, nil
}

// Ask sends a question about the given document.
func (c *Client) Ask(ctx context.Context, question, documentID string) (*AskResponse, error) {
	data, err := c.postJSON(ctx, "ask", "/ask", askRequest{Question: question, DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	var resp AskResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode ask response: %w", err)
	}
	return &resp, nil
}

// ProposeSchema asks the backend to infer an extraction schema.
func (c *Client) ProposeSchema(ctx context.Context, documentID string) (json.RawMessage, error) {
	data, err := c.postJSON(ctx, "propose_schema", "/propose_schema", proposeRequest{DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode propose_schema response: invalid JSON")
	}
	return json.RawMessage(data), nil
}

// Extract runs structured extraction with the given schema.
func (c *Client) Extract(ctx context.Context, documentID string, schema json.RawMessage) (json.RawMessage, error) {
	data, err := c.postJSON(ctx, "extract", "/extract", extractRequest{DocumentID: documentID, SchemaDefinition: schema})
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("decode extract response: invalid JSON")
	}
	return json.RawMessage(data), nil
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", op, err)
	}
	return c.post(ctx, op, path, "application/json", body, c.requestTimeout)
}

func (c *Client) post(ctx context.Context, op, path, contentType string, body []byte, timeout time.Duration) ([]byte, error) {
	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.roundTrip(ctx, op, path, contentType, body, timeout)
	})

	details := map[string]interface{}{
		"op":          op,
		"path":        path,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%s: %w", op, ErrCircuitOpen)
		}
		details["error"] = err
		c.log.Warn("backend", "request failed", details)
		return nil, err
	}
	c.log.Debug("backend", "request completed", details)
	return out.([]byte), nil
}

func (c *Client) roundTrip(ctx context.Context, op, path, contentType string, body []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, newStatusError(op, resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", op, err)
	}
	return data, nil
}
