// Package server hosts the PQL dashboard: an HTTP API over the catalog,
// generator and practice_query client, plus a WebSocket feed of history and
// schema changes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/atomicdeploy/pql-testkit/pkg/client"
	"github.com/atomicdeploy/pql-testkit/pkg/exporter"
	"github.com/atomicdeploy/pql-testkit/pkg/schema"
	"github.com/atomicdeploy/pql-testkit/pkg/watcher"
	"github.com/atomicdeploy/pql-testkit/web"
)

// Config configures a Server.
type Config struct {
	// SchemaPath is the catalog file to load and watch. Empty uses the
	// built-in catalog and disables watching.
	SchemaPath string
	Client     *client.Client
	Logger     zerolog.Logger
	// AllowedOrigins lists extra WebSocket origins besides same-host ones.
	AllowedOrigins []string
}

// Server represents the HTTP/WebSocket server
type Server struct {
	router     *mux.Router
	httpServer *http.Server
	log        zerolog.Logger

	schemaPath string
	catalog    *schema.Catalog
	catalogMu  sync.RWMutex

	client   *client.Client
	history  *client.History
	exporter *exporter.Exporter
	watcher  *watcher.FileWatcher

	hub *hub
}

// NewServer creates a new server instance
func NewServer(cfg Config) (*Server, error) {
	catalog, err := schema.LoadOrDefault(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, errors.New("server needs a practice query client")
	}

	s := &Server{
		router:     mux.NewRouter(),
		log:        cfg.Logger,
		schemaPath: cfg.SchemaPath,
		catalog:    catalog,
		client:     cfg.Client,
		history:    client.NewHistory(client.DefaultHistorySize),
		exporter:   exporter.NewExporter(),
	}
	s.hub = newHub(cfg.Logger, cfg.AllowedOrigins)

	s.setupRoutes()

	return s, nil
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(recoverer(s.log), requestLogger(s.log))

	s.router.HandleFunc("/", s.handleDashboard).Methods("GET")
	s.router.HandleFunc("/console", s.handleConsole).Methods("GET")
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWebSocket)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/apis", s.handleListAPIs).Methods("GET")
	api.HandleFunc("/apis/{name}", s.handleGetAPI).Methods("GET")
	api.HandleFunc("/apis/{name}/cases", s.handleGenerateCases).Methods("GET")
	api.HandleFunc("/query", s.handleQuery).Methods("POST")
	api.HandleFunc("/send", s.handleSend).Methods("POST")
	api.HandleFunc("/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/history", s.handleClearHistory).Methods("DELETE")
	api.HandleFunc("/examples", s.handleExamples).Methods("GET")
	api.HandleFunc("/export/csv", s.handleExportCSV).Methods("POST")
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Catalog returns the catalog currently served.
func (s *Server) Catalog() *schema.Catalog {
	s.catalogMu.RLock()
	defer s.catalogMu.RUnlock()
	return s.catalog
}

func (s *Server) setCatalog(c *schema.Catalog) {
	s.catalogMu.Lock()
	s.catalog = c
	s.catalogMu.Unlock()
}

// handleDashboard serves the query dashboard
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.DashboardHTML)
}

// handleConsole serves the raw request console
func (s *Server) handleConsole(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(web.ConsoleHTML)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"apis":     s.Catalog().Len(),
		"clients":  s.hub.count(),
		"endpoint": s.client.Endpoint(),
	})
}

// StartWatching reloads the catalog whenever the schema file changes.
func (s *Server) StartWatching(debounce time.Duration) error {
	if s.schemaPath == "" {
		return errors.New("no schema file to watch")
	}

	fw, err := watcher.NewFileWatcher(s.log)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fw.Watch(s.schemaPath, s.reloadSchema, debounce); err != nil {
		fw.Close()
		return fmt.Errorf("failed to watch file: %w", err)
	}
	s.watcher = fw
	fw.Start()

	s.log.Info().Str("schema", s.schemaPath).Dur("debounce", debounce).Msg("watching schema file")
	return nil
}

// reloadSchema swaps in the new catalog. A file that fails to parse keeps
// the previous catalog and is reported to clients.
func (s *Server) reloadSchema(path string) {
	catalog, err := schema.Load(path)
	if err != nil {
		s.log.Error().Err(err).Str("schema", path).Msg("schema reload failed")
		s.hub.broadcast(event{Type: eventSchema, Error: err.Error()})
		return
	}

	s.setCatalog(catalog)
	s.log.Info().Str("schema", path).Int("apis", catalog.Len()).Msg("schema reloaded")
	s.hub.broadcast(event{Type: eventSchema, Data: catalog.Names()})
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Info().Str("addr", addr).Str("endpoint", s.client.Endpoint()).Int("apis", s.Catalog().Len()).Msg("starting server")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.closeAll()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Close cleans up server resources
func (s *Server) Close() error {
	s.hub.closeAll()
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   err.Error(),
	})
}

