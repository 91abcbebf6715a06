package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docintel/internal/chunkindex"
	"docintel/internal/controller"
	"docintel/internal/logger"
	"docintel/internal/preflight"
	"docintel/internal/view"
	"docintel/internal/workspace"

	"github.com/fatih/color"
)

const helpText = `Commands:
  <question>        ask about the active document
  :upload <path>    upload a document
  :chunks [query]   list chunks, optionally filtered
  :propose          generate an extraction schema
  :schema <json>    replace the schema text
  :extract          run extraction with the current schema
  :details [n]      show intelligence details of answer n (default: last)
  :state            show the workspace status
  :help             show this help
  :quit             exit`

var (
	botColor   = color.New(color.FgGreen)
	metaColor  = color.New(color.FgYellow)
	alertColor = color.New(color.FgRed, color.Bold)
)

// Console is a line-oriented front end over the workspace. Every command
// waits for its action to settle before the next line is read.
type Console struct {
	store        *workspace.Store
	uploads      *controller.UploadController
	conversation *controller.ConversationController
	extraction   *controller.ExtractionController
	index        *chunkindex.Index
	out          io.Writer
	log          logger.ILogger

	printed map[string]bool
}

func NewConsole(store *workspace.Store, transport controller.Transport, maxBytes int64, out io.Writer, log logger.ILogger) *Console {
	c := &Console{
		store:   store,
		index:   chunkindex.New(log),
		out:     out,
		log:     log,
		printed: make(map[string]bool),
	}
	c.uploads = controller.NewUploadController(store, transport, c, &preflight.Inspector{MaxBytes: maxBytes}, log)
	c.conversation = controller.NewConversationController(store, transport, log)
	c.extraction = controller.NewExtractionController(store, transport, c, log)
	return c
}

// Alert implements controller.Alerter.
func (c *Console) Alert(message string) {
	alertColor.Fprintf(c.out, "! %s\n", message)
}

func (c *Console) Close() error {
	return c.index.Close()
}

// Run reads commands from in until EOF or :quit.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	for {
		fmt.Fprint(c.out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(c.out)
			return scanner.Err()
		}
		if quit := c.Exec(ctx, scanner.Text()); quit {
			return nil
		}
	}
}

// Exec runs one command line and reports whether the console should exit.
func (c *Console) Exec(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		c.ask(ctx, line)
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "quit", "q", "exit":
		return true
	case "help", "h":
		fmt.Fprintln(c.out, helpText)
	case "upload", "u":
		c.upload(ctx, arg)
	case "chunks", "c":
		c.chunks(arg)
	case "propose", "p":
		c.propose(ctx)
	case "schema", "s":
		c.extraction.SetSchemaText(arg)
		metaColor.Fprintln(c.out, "Schema updated.")
	case "extract", "x":
		c.extract(ctx)
	case "details", "d":
		c.details(arg)
	case "state":
		c.state()
	default:
		alertColor.Fprintf(c.out, "Unknown command :%s (try :help)\n", cmd)
	}
	return false
}

func (c *Console) ask(ctx context.Context, question string) {
	op := c.conversation.Ask(ctx, question)
	if op.Skipped {
		metaColor.Fprintln(c.out, "Upload a document first (:upload <path>).")
		return
	}
	op.Wait()
	c.flush()
}

func (c *Console) upload(ctx context.Context, path string) {
	if path == "" {
		alertColor.Fprintln(c.out, "Usage: :upload <path>")
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		c.Alert(fmt.Sprintf("Cannot read %s: %v", path, err))
		return
	}
	metaColor.Fprintf(c.out, "Uploading %s...\n", filepath.Base(path))
	if err := c.uploads.Upload(ctx, filepath.Base(path), content).Wait(); err != nil {
		c.log.Debug("Console", "Upload did not complete", map[string]interface{}{"error": err.Error()})
	}
	c.state()
	c.flush()
}

func (c *Console) chunks(query string) {
	snap := c.store.Snapshot()
	list := view.Chunks(snap.Chunks)
	if query != "" {
		if err := c.index.Rebuild(snap.DocumentID, snap.Chunks); err != nil {
			c.Alert(err.Error())
			return
		}
		hits, err := c.index.Search(query, 0)
		if err != nil {
			c.Alert(err.Error())
			return
		}
		positions := make([]int, len(hits))
		for i, h := range hits {
			positions[i] = h.Position
		}
		list = view.SelectChunks(snap.Chunks, positions)
	}

	if list.EmptyText != "" {
		fmt.Fprintln(c.out, list.EmptyText)
		return
	}
	for _, card := range list.Cards {
		metaColor.Fprintf(c.out, "[%s] %s\n", card.Section, card.Label)
		fmt.Fprintln(c.out, card.Text)
	}
}

func (c *Console) propose(ctx context.Context) {
	op := c.extraction.ProposeSchema(ctx)
	if op.Skipped {
		metaColor.Fprintln(c.out, "Upload a document first (:upload <path>).")
		return
	}
	if op.Wait() == nil {
		fmt.Fprintln(c.out, c.store.Snapshot().Panel.SchemaText)
	}
	c.flush()
}

func (c *Console) extract(ctx context.Context) {
	op := c.extraction.Extract(ctx)
	switch {
	case op.Rejected != nil:
		alertColor.Fprintln(c.out, c.store.Snapshot().Panel.Error)
		return
	case op.Skipped:
		metaColor.Fprintln(c.out, "Nothing to extract: upload a document and set a schema (:propose or :schema).")
		return
	}
	metaColor.Fprintln(c.out, controller.ExtractingText)
	op.Wait()
	fmt.Fprintln(c.out, c.store.Snapshot().Panel.ResultText)
}

// details shows the panel of the n-th answer that has one.
func (c *Console) details(arg string) {
	var answers []*view.Intelligence
	for _, m := range view.Chat(c.store.Snapshot().Messages, nil, nil) {
		if m.Intelligence != nil {
			answers = append(answers, m.Intelligence)
		}
	}
	if len(answers) == 0 {
		metaColor.Fprintln(c.out, "No answer has intelligence details yet.")
		return
	}
	n := len(answers)
	if arg != "" {
		v, err := strconv.Atoi(arg)
		if err != nil || v < 1 || v > len(answers) {
			alertColor.Fprintf(c.out, "Pick an answer between 1 and %d.\n", len(answers))
			return
		}
		n = v
	}
	for _, l := range answers[n-1].Lines() {
		fmt.Fprintln(c.out, l)
	}
}

func (c *Console) state() {
	w := view.Build(c.store.Snapshot(), nil, nil)
	if w.Document == nil {
		metaColor.Fprintln(c.out, "No document uploaded.")
		return
	}
	d := w.Document
	metaColor.Fprintf(c.out, "%s  %s  %s  %d chunks\n", d.FileName, d.Status, d.ShortID, d.ChunksCount)
	if d.Pages > 0 {
		fmt.Fprintf(c.out, "  %s, %d pages\n", d.MIME, d.Pages)
	}
	if d.Preview != "" {
		fmt.Fprintf(c.out, "  %s\n", d.Preview)
	}
}

// flush prints transcript entries not shown yet. Loading placeholders are
// never printed.
func (c *Console) flush() {
	for _, m := range workspace.Settled(c.store.Snapshot().Messages) {
		if c.printed[m.ID] {
			continue
		}
		c.printed[m.ID] = true
		if m.Role == workspace.RoleUser {
			continue
		}
		botColor.Fprintln(c.out, m.Text)
		if m.Intelligence.HasIntelligence() {
			metaColor.Fprintln(c.out, "  (:details for intelligence details)")
		}
	}
}
