package controller

import (
	"context"
	"strings"
	"sync"

	"docintel/internal/logger"
	"docintel/internal/workspace"
)

const conversationModule = "Conversation"

// ConversationController asks questions about the active document. Every ask
// owns one loading placeholder, and only that placeholder is replaced when the
// answer arrives, whatever order answers come back in.
type ConversationController struct {
	store     *workspace.Store
	transport Transport
	log       logger.ILogger

	mu  sync.Mutex // keeps a question and its placeholder adjacent
	seq workspace.Sequence
}

func NewConversationController(store *workspace.Store, transport Transport, log logger.ILogger) *ConversationController {
	return &ConversationController{store: store, transport: transport, log: log}
}

// Ask is a no-op when text is blank or no document is active.
func (c *ConversationController) Ask(ctx context.Context, text string) *Op {
	question := strings.TrimSpace(text)
	if question == "" {
		return skippedOp()
	}
	docID := c.store.Snapshot().DocumentID
	if docID == "" {
		c.log.Debug(conversationModule, "Ignoring question without a document", nil)
		return skippedOp()
	}

	c.mu.Lock()
	token := c.seq.Next()
	c.store.AppendMessage(workspace.NewUserMessage(question))
	c.store.AppendMessage(workspace.NewPlaceholder(LoadingText, token))
	c.mu.Unlock()

	op := newOp(token)
	go func() {
		resp, err := c.transport.Ask(detach(ctx), question, docID)

		reply := workspace.NewBotMessage(AskFailedText, nil)
		if err != nil {
			c.log.Error(conversationModule, "Ask failed", map[string]interface{}{
				"document_id": docID, "error": err,
			})
		} else {
			reply = workspace.NewBotMessage(resp.Answer, resp)
			c.log.Info(conversationModule, "Answer received", map[string]interface{}{
				"document_id": docID, "intelligence": resp.HasIntelligence(),
			})
		}

		c.store.UpdateMessages(func(msgs []workspace.Message) []workspace.Message {
			return append(workspace.WithoutPending(msgs, token), reply)
		})
		op.finish(err)
	}()
	return op
}
