package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"

	"docintel/internal/backend"
	"docintel/internal/logger"
	"docintel/internal/workspace"
)

const extractionModule = "Extraction"

// ExtractionController proposes schemas and runs extractions. The two
// actions have separate busy flags, each owned by the document its call was
// made for; a call clears its flag however it ends, unless a new document has
// taken over. Results for a document that is no longer active are dropped.
type ExtractionController struct {
	store     *workspace.Store
	transport Transport
	alerts    Alerter
	log       logger.ILogger

	mu sync.Mutex // guards busy-flag check and set
}

func NewExtractionController(store *workspace.Store, transport Transport, alerts Alerter, log logger.ILogger) *ExtractionController {
	return &ExtractionController{store: store, transport: transport, alerts: alerts, log: log}
}

// SetSchemaText records the user's edit of the schema text.
func (c *ExtractionController) SetSchemaText(text string) {
	c.store.UpdatePanel(func(p *workspace.Panel) {
		p.SchemaText = text
		p.Error = ""
	})
}

// ProposeSchema asks the backend for a schema. It is a no-op without a
// document or while a proposal is already running.
func (c *ExtractionController) ProposeSchema(ctx context.Context) *Op {
	c.mu.Lock()
	snap := c.store.Snapshot()
	if !snap.HasDocument() || snap.Panel.Generating() {
		c.mu.Unlock()
		return skippedOp()
	}
	docID := snap.DocumentID
	c.store.UpdatePanel(func(p *workspace.Panel) { p.GeneratingFor = docID })
	c.mu.Unlock()

	op := newOp(0)
	go func() {
		schema, err := c.transport.ProposeSchema(detach(ctx), docID)

		switch {
		case c.store.Snapshot().DocumentID != docID:
			c.log.Info(extractionModule, "Dropping schema for replaced document", map[string]interface{}{
				"document_id": docID,
			})
			c.store.UpdatePanel(func(p *workspace.Panel) { clearOwned(&p.GeneratingFor, docID) })
		case err != nil:
			c.log.Error(extractionModule, "Schema proposal failed", map[string]interface{}{
				"document_id": docID, "error": err,
			})
			c.store.UpdatePanel(func(p *workspace.Panel) { clearOwned(&p.GeneratingFor, docID) })
			c.alerts.Alert(SchemaFailedText)
		default:
			c.store.SetProposedSchema(schema)
			c.store.UpdatePanel(func(p *workspace.Panel) { clearOwned(&p.GeneratingFor, docID) })
			c.store.AppendMessage(workspace.NewBotMessage(SchemaReadyText, nil))
			c.log.Info(extractionModule, "Schema proposed", map[string]interface{}{
				"document_id": docID, "bytes": len(schema),
			})
		}
		op.finish(err)
	}()
	return op
}

// Extract parses the schema text and runs an extraction with it. Text that is
// not valid JSON is reported in the panel and returns a rejected op carrying
// ErrInvalidSchema; the backend is not called.
func (c *ExtractionController) Extract(ctx context.Context) *Op {
	c.mu.Lock()
	snap := c.store.Snapshot()
	text := strings.TrimSpace(snap.Panel.SchemaText)
	if !snap.HasDocument() || text == "" || snap.Panel.Extracting() {
		c.mu.Unlock()
		return skippedOp()
	}

	var schema bytes.Buffer
	if err := json.Compact(&schema, []byte(text)); err != nil {
		c.store.UpdatePanel(func(p *workspace.Panel) { p.Error = InvalidSchemaText })
		c.mu.Unlock()
		c.log.Warn(extractionModule, "Rejected invalid schema", map[string]interface{}{
			"error": err.Error(),
		})
		return rejectedOp(ErrInvalidSchema)
	}

	docID := snap.DocumentID
	c.store.UpdatePanel(func(p *workspace.Panel) {
		p.ExtractingFor = docID
		p.Error = ""
		p.ResultText = ExtractingText
	})
	c.mu.Unlock()

	op := newOp(0)
	go func() {
		result, err := c.transport.Extract(detach(ctx), docID, json.RawMessage(schema.Bytes()))

		switch {
		case c.store.Snapshot().DocumentID != docID:
			c.log.Info(extractionModule, "Dropping extraction for replaced document", map[string]interface{}{
				"document_id": docID,
			})
			c.store.UpdatePanel(func(p *workspace.Panel) { clearOwned(&p.ExtractingFor, docID) })
		case err != nil:
			c.log.Error(extractionModule, "Extraction failed", map[string]interface{}{
				"document_id": docID, "error": err,
			})
			c.store.UpdatePanel(func(p *workspace.Panel) {
				clearOwned(&p.ExtractingFor, docID)
				p.ResultText = ExtractErrorPrefix + backend.Reason(err)
			})
		default:
			c.store.SetExtraction(result)
			c.store.UpdatePanel(func(p *workspace.Panel) { clearOwned(&p.ExtractingFor, docID) })
			c.log.Info(extractionModule, "Extraction complete", map[string]interface{}{
				"document_id": docID, "bytes": len(result),
			})
		}
		op.finish(err)
	}()
	return op
}

// clearOwned resets a busy flag only while it still belongs to docID.
func clearOwned(flag *string, docID string) {
	if *flag == docID {
		*flag = ""
	}
}
