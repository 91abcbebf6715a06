package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"docintel/internal/chunkindex"
	"docintel/internal/config"
	"docintel/internal/controller"
	"docintel/internal/history"
	"docintel/internal/logger"
	"docintel/internal/preflight"
	"docintel/internal/view"
	"docintel/internal/workspace"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const serverModule = "Server"

// Server holds all shared state. The workspace store is the only state the
// handlers change, and only through the controllers.
type Server struct {
	router chi.Router
	cfg    config.Config
	log    logger.ILogger

	store        *workspace.Store
	uploads      *controller.UploadController
	conversation *controller.ConversationController
	extraction   *controller.ExtractionController

	index   *chunkindex.Index
	history *history.Store // nil when history is disabled
	hub     *Hub
	toggles *view.Toggles
	md      *view.Markdown
}

// NewServer wires controllers around store. hist may be nil.
func NewServer(cfg config.Config, log logger.ILogger, store *workspace.Store, transport controller.Transport, hist *history.Store) *Server {
	s := &Server{
		cfg:     cfg,
		log:     log,
		store:   store,
		index:   chunkindex.New(log),
		history: hist,
		toggles: view.NewToggles(),
		md:      view.NewMarkdown(),
	}
	s.hub = NewHub(store, s.render, log)

	inspector := &preflight.Inspector{MaxBytes: cfg.Upload.MaxBytes}
	s.uploads = controller.NewUploadController(store, transport, s.hub, inspector, log)
	s.conversation = controller.NewConversationController(store, transport, log)
	s.extraction = controller.NewExtractionController(store, transport, s.hub, log)

	s.setupRoutes()
	return s
}

// Start launches the background subscribers. They stop when ctx is done.
func (s *Server) Start(ctx context.Context) {
	go s.hub.Run(ctx)
	go s.index.Run(ctx, s.store)
	if s.history != nil {
		go s.history.Run(ctx, s.store)
	}
}

func (s *Server) Close() error {
	return s.index.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) render(snap workspace.Snapshot) view.Workspace {
	return view.Build(snap, s.toggles, s.md)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)

	r.Route("/ui", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/ws", s.handleWS)

		r.Post("/upload", s.handleUpload)

		r.Post("/ask", s.handleAsk)
		r.Post("/messages/{messageID}/toggle", s.handleToggle)
		r.Get("/chunks", s.handleChunks)

		r.Post("/schema/propose", s.handleProposeSchema)
		r.Put("/schema", s.handleSetSchema)
		r.Post("/extract", s.handleExtract)

		r.Get("/history", s.handleListHistory)
		r.Get("/history/{sessionID}", s.handleGetHistory)
		r.Delete("/history/{sessionID}", s.handleDeleteHistory)
	})

	if dir := s.cfg.App.WebDir; dir != "" {
		r.Handle("/*", http.FileServer(http.Dir(dir)))
	}

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, map[string]string{"status": "ok"})
}

// ========== Middleware ==========

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log logger.ILogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info(serverModule, "request", map[string]interface{}{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
				"request_id":  middleware.GetReqID(r.Context()),
			})
		})
	}
}

// ========== Helpers ==========

func jsonResp(w http.ResponseWriter, v interface{}) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
