package controller

import (
	"context"
	"fmt"
	"sync"

	"docintel/internal/backend"
	"docintel/internal/logger"
	"docintel/internal/preflight"
	"docintel/internal/workspace"
)

const uploadModule = "Upload"

// UploadController submits documents and installs the backend's analysis.
// Only the most recent upload may change the workspace; responses to earlier
// uploads that arrive later are dropped.
type UploadController struct {
	store     *workspace.Store
	transport Transport
	alerts    Alerter
	inspector *preflight.Inspector
	log       logger.ILogger

	mu  sync.Mutex // serializes the fence check with the writes it guards
	seq workspace.Sequence
}

// NewUploadController wires an upload controller. inspector may be nil to skip
// local checks.
func NewUploadController(store *workspace.Store, transport Transport, alerts Alerter, inspector *preflight.Inspector, log logger.ILogger) *UploadController {
	return &UploadController{
		store:     store,
		transport: transport,
		alerts:    alerts,
		inspector: inspector,
		log:       log,
	}
}

// Upload validates the file, marks the workspace as processing and sends the
// file in the background.
func (c *UploadController) Upload(ctx context.Context, name string, content []byte) *Op {
	file := workspace.File{Name: name, Status: workspace.FileProcessing, Size: int64(len(content))}
	if c.inspector != nil {
		rep, err := c.inspector.Inspect(name, content)
		if err != nil {
			c.log.Warn(uploadModule, "Preflight rejected file", map[string]interface{}{
				"file": name, "error": err.Error(),
			})
			file.Status = workspace.FileError
			c.store.SetFile(file)
			c.alerts.Alert(fmt.Sprintf("Cannot upload %s: %v", name, err))
			return rejectedOp(err)
		}
		file.MIME, file.Ext, file.Pages, file.Preview = rep.MIME, rep.Ext, rep.Pages, rep.Preview
	}

	c.mu.Lock()
	token := c.seq.Next()
	c.store.SetFile(file)
	c.store.SetProcessing(true)
	c.mu.Unlock()

	c.log.Info(uploadModule, "Uploading document", map[string]interface{}{
		"file": name, "size": file.Size, "mime": file.MIME, "token": uint64(token),
	})

	op := newOp(token)
	go func() {
		resp, err := c.transport.Upload(detach(ctx), name, content)
		op.finish(c.settle(token, file, resp, err))
	}()
	return op
}

func (c *UploadController) settle(token workspace.Token, file workspace.File, resp *backend.UploadResponse, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token != c.seq.Current() {
		c.log.Info(uploadModule, "Discarding superseded upload response", map[string]interface{}{
			"file": file.Name, "token": uint64(token), "latest": uint64(c.seq.Current()),
		})
		return err
	}

	if err != nil {
		c.log.Error(uploadModule, "Upload failed", map[string]interface{}{
			"file": file.Name, "error": err,
		})
		file.Status = workspace.FileError
		c.store.SetFile(file)
		c.store.SetProcessing(false)
		c.alerts.Alert(UploadFailedText)
		return err
	}

	file.Status = workspace.FileReady
	c.store.SetDocument(workspace.Document{
		ID:             resp.DocumentID,
		File:           &file,
		Chunks:         resp.Chunks,
		ChunksCount:    resp.ChunksCount,
		ProposedSchema: resp.ProposedSchema,
		Extraction:     resp.Extraction,
	})
	c.store.SetProcessing(false)
	c.store.AppendMessage(workspace.NewBotMessage(uploadedText(file.Name), nil))

	c.log.Info(uploadModule, "Document ready", map[string]interface{}{
		"file": file.Name, "document_id": resp.DocumentID, "chunks": resp.ChunksCount,
	})
	return nil
}

func uploadedText(name string) string {
	return fmt.Sprintf("Document \"%s\" processed successfully. You can now chat or extract structured data.", name)
}
