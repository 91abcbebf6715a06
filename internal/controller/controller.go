// Package controller drives the workspace workflows: upload, conversation and
// extraction. Each action runs its synchronous part (precondition checks,
// placeholders, busy flags) before returning and performs the network call in
// the background; results are written to the store, never returned to views.
package controller

import (
	"context"
	"encoding/json"
	"errors"

	"docintel/internal/backend"
	"docintel/internal/workspace"
)

// Transport is the backend contract the controllers consume.
type Transport interface {
	Upload(ctx context.Context, fileName string, content []byte) (*backend.UploadResponse, error)
	Ask(ctx context.Context, question, documentID string) (*backend.AskResponse, error)
	ProposeSchema(ctx context.Context, documentID string) (json.RawMessage, error)
	Extract(ctx context.Context, documentID string, schema json.RawMessage) (json.RawMessage, error)
}

// Alerter surfaces blocking, user-visible errors.
type Alerter interface {
	Alert(message string)
}

// AlertFunc adapts a function to Alerter.
type AlertFunc func(message string)

func (f AlertFunc) Alert(message string) { f(message) }

// User-facing texts.
const (
	LoadingText        = "Analyzing document..."
	AskFailedText      = "Sorry, I encountered an error answering that."
	UploadFailedText   = "Upload failed. Please try again."
	SchemaReadyText    = "I've generated a schema based on the document. You can review and edit it in the Extraction tab."
	SchemaFailedText   = "Failed to generate schema."
	InvalidSchemaText  = "Invalid JSON schema"
	ExtractingText     = "Extracting... This may take a moment."
	ExtractErrorPrefix = "Error during extraction: "
)

// ErrInvalidSchema is reported when the schema text does not parse as JSON.
var ErrInvalidSchema = errors.New("invalid schema")

// Op tracks one action. A skipped op did nothing because a precondition was
// not met; a rejected op failed validation before any network call.
type Op struct {
	Token    workspace.Token
	Skipped  bool
	Rejected error

	done chan struct{}
	err  error
}

func newOp(token workspace.Token) *Op {
	return &Op{Token: token, done: make(chan struct{})}
}

func skippedOp() *Op {
	op := &Op{Skipped: true, done: make(chan struct{})}
	close(op.done)
	return op
}

func rejectedOp(err error) *Op {
	op := &Op{Rejected: err, done: make(chan struct{})}
	close(op.done)
	return op
}

func (op *Op) finish(err error) {
	op.err = err
	close(op.done)
}

// Done is closed once the op has settled and the store reflects the outcome.
func (op *Op) Done() <-chan struct{} {
	return op.done
}

// Wait blocks until the op settles and returns the transport error, if any.
// The error has already been surfaced to the user through the store or an alert.
func (op *Op) Wait() error {
	<-op.done
	if op.Rejected != nil {
		return op.Rejected
	}
	return op.err
}

// detach keeps request-scoped values but drops cancellation: in-flight backend
// calls are never aborted once started.
func detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
