// Package httpapi exposes the shipment ledger over a JSON HTTP API.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/cors"

	"github.com/freightdesk/shipledger/history"
	"github.com/freightdesk/shipledger/internal/auth"
	"github.com/freightdesk/shipledger/internal/extraction"
	"github.com/freightdesk/shipledger/internal/filestore"
	"github.com/freightdesk/shipledger/ledger"
	"github.com/freightdesk/shipledger/restore"
)

// Appender is the write surface of the ledger the API needs.
type Appender interface {
	Append(ctx context.Context, event ledger.Event) (int, error)
}

// Server wires the domain services into HTTP handlers.
type Server struct {
	appender       Appender
	history        *history.Service
	restorer       *restore.Orchestrator
	authenticator  *auth.Authenticator
	extractor      *extraction.FieldExtractor
	files          *filestore.Store
	logger         *slog.Logger
	maxUploadBytes int64
	allowedOrigins []string
}

// ServerConfig carries the dependencies of the HTTP server. Extractor
// may be nil; the extract endpoint then reports itself unavailable.
type ServerConfig struct {
	Appender       Appender
	History        *history.Service
	Restorer       *restore.Orchestrator
	Authenticator  *auth.Authenticator
	Extractor      *extraction.FieldExtractor
	Files          *filestore.Store
	Logger         *slog.Logger
	MaxUploadBytes int64
	AllowedOrigins []string
}

// NewServer creates the API server.
func NewServer(cfg ServerConfig) *Server {
	return &Server{
		appender:       cfg.Appender,
		history:        cfg.History,
		restorer:       cfg.Restorer,
		authenticator:  cfg.Authenticator,
		extractor:      cfg.Extractor,
		files:          cfg.Files,
		logger:         cfg.Logger,
		maxUploadBytes: cfg.MaxUploadBytes,
		allowedOrigins: cfg.AllowedOrigins,
	}
}

// Handler builds the full route table with logging, auth, and CORS
// applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	requireAuth := AuthMiddleware(s.authenticator)

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.Handle("GET /api/auth/me", requireAuth(http.HandlerFunc(s.handleMe)))

	mux.Handle("POST /api/shipments/{id}/events", requireAuth(http.HandlerFunc(s.handleAppendEvent)))
	mux.Handle("GET /api/shipments/{id}/history", requireAuth(http.HandlerFunc(s.handleHistory)))
	mux.Handle("GET /api/shipments/{id}/versions/{no}", requireAuth(http.HandlerFunc(s.handleGetVersion)))
	mux.Handle("GET /api/shipments/{id}/events/filter", requireAuth(http.HandlerFunc(s.handleFilterEvents)))
	mux.Handle("POST /api/shipments/{id}/restore", requireAuth(http.HandlerFunc(s.handleRestore)))
	mux.Handle("POST /api/extract", requireAuth(http.HandlerFunc(s.handleExtract)))
	mux.Handle("GET /api/uploads/{name}", requireAuth(http.HandlerFunc(s.handleDownload)))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})

	return LoggingMiddleware(s.logger)(corsHandler.Handler(mux))
}
