// Package server exposes the bridge's HTTP JSON API.
//
// Endpoints:
//
//	GET  /health                → service status and build info
//	POST /memory/store          → persist one conversation turn
//	GET  /memory/retrieve       → recent turns for a session (descending)
//	GET  /memory/summarize      → naive summary plus analysis, 404 when empty
//	GET  /persona/load          → persona profile, 404 when absent
//	POST /persona/switch        → persona transition plan
//	POST /persona/tone-shift    → tone-shift instruction text
//	POST /bridge/import         → import an external conversation (rate limited)
//	GET  /bridge/export         → full ordered conversation state
//	POST /bridge/handoff        → acknowledge a provider handoff
//	GET  /shadow/list           → recent reflection entries for a persona
//	POST /shadow/reflect        → append a reflection entry
//	POST /continuity/handshake  → vow check + recent-tone classification
//	POST /billing/checkout      → create a subscription checkout session
//
// When an API key is configured every route except /health requires the
// X-API-Key header. Request bodies are capped at 1 MiB. Each request gets a
// trace ID that follows it through the pipeline and store.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/templetwo/spiralbridge/common/trace"
	"github.com/templetwo/spiralbridge/common/version"
	"github.com/templetwo/spiralbridge/internal/bridge/analysis"
	"github.com/templetwo/spiralbridge/internal/bridge/billing"
	"github.com/templetwo/spiralbridge/internal/bridge/continuity"
	"github.com/templetwo/spiralbridge/internal/bridge/fault"
	"github.com/templetwo/spiralbridge/internal/bridge/persona"
	"github.com/templetwo/spiralbridge/internal/bridge/pipeline"
	"github.com/templetwo/spiralbridge/internal/bridge/shadow"
	"github.com/templetwo/spiralbridge/internal/bridge/store"
)

// maxBodyBytes caps inbound request bodies to prevent memory exhaustion.
const maxBodyBytes = 1 * 1024 * 1024 // 1 MiB

// DefaultImportRateLimit is the per-caller import budget per minute.
const DefaultImportRateLimit = 30

// Config holds options for the HTTP server.
type Config struct {
	// Addr is the TCP listen address (e.g. ":8080").
	Addr string

	// APIKey, when non-empty, is required in the X-API-Key header on every
	// route except /health. When empty the API is open.
	APIKey string

	// ImportRateLimit is the maximum /bridge/import calls per caller per
	// minute. Defaults to DefaultImportRateLimit when zero.
	ImportRateLimit int
}

// Server handles the bridge HTTP routes.
type Server struct {
	cfg       Config
	mux       *http.ServeMux
	server    *http.Server
	startedAt time.Time

	store    *store.Store
	engine   *analysis.Engine
	registry *persona.Registry
	journal  *shadow.Journal
	checker  *continuity.Checker
	importer *pipeline.Importer
	billing  *billing.Client
	logger   *slog.Logger

	importLimiter *rateLimiter
}

// Deps are the collaborators the server dispatches to.
type Deps struct {
	Store    *store.Store
	Engine   *analysis.Engine
	Registry *persona.Registry
	Journal  *shadow.Journal
	Checker  *continuity.Checker
	Importer *pipeline.Importer
	Billing  *billing.Client
	Logger   *slog.Logger
}

// New creates and configures the server (does not start it).
func New(cfg Config, deps Deps) *Server {
	if cfg.ImportRateLimit <= 0 {
		cfg.ImportRateLimit = DefaultImportRateLimit
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:           cfg,
		mux:           http.NewServeMux(),
		startedAt:     time.Now(),
		store:         deps.Store,
		engine:        deps.Engine,
		registry:      deps.Registry,
		journal:       deps.Journal,
		checker:       deps.Checker,
		importer:      deps.Importer,
		billing:       deps.Billing,
		logger:        logger,
		importLimiter: newRateLimiter(cfg.ImportRateLimit, time.Minute),
	}

	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/memory/store", s.handleMemoryStore)
	s.mux.HandleFunc("/memory/retrieve", s.handleMemoryRetrieve)
	s.mux.HandleFunc("/memory/summarize", s.handleMemorySummarize)
	s.mux.HandleFunc("/persona/load", s.handlePersonaLoad)
	s.mux.HandleFunc("/persona/switch", s.handlePersonaSwitch)
	s.mux.HandleFunc("/persona/tone-shift", s.handlePersonaToneShift)
	s.mux.HandleFunc("/bridge/import", s.handleBridgeImport)
	s.mux.HandleFunc("/bridge/export", s.handleBridgeExport)
	s.mux.HandleFunc("/bridge/handoff", s.handleBridgeHandoff)
	s.mux.HandleFunc("/shadow/list", s.handleShadowList)
	s.mux.HandleFunc("/shadow/reflect", s.handleShadowReflect)
	s.mux.HandleFunc("/continuity/handshake", s.handleContinuityHandshake)
	s.mux.HandleFunc("/billing/checkout", s.handleBillingCheckout)
	return s
}

// ServeHTTP implements http.Handler so the full middleware chain can be
// exercised in tests without a live network listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.withMiddleware(s.mux).ServeHTTP(w, r)
}

// withMiddleware wraps next with API-key enforcement, trace ID injection,
// and request logging. /health stays open so load balancers can probe it.
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey != "" && r.URL.Path != "/health" {
			if r.Header.Get("X-API-Key") != s.cfg.APIKey {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
				return
			}
		}

		traceID := trace.GenerateID()
		ctx := trace.WithTraceID(r.Context(), traceID)
		start := time.Now()

		next.ServeHTTP(w, r.WithContext(ctx))

		s.logger.Debug("request handled",
			"method", r.Method, "path", r.URL.Path,
			"trace_id", traceID, "duration", time.Since(start))
	})
}

// Start begins listening in the background. Blocks until the listener is
// established so the caller knows the port is open before returning.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Addr, err)
	}

	s.server = &http.Server{
		Handler:      s,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.logger.Info("bridge server listening", "addr", ln.Addr().String())
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("bridge server stopped", "err", err)
		}
	}()

	// Shutdown when ctx is cancelled.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("bridge server shutdown error", "err", err)
		}
	}()

	return nil
}

// Stop shuts down the HTTP server.
func (s *Server) Stop() {
	if s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("bridge server shutdown error", "err", err)
	}
}

// handleHealth responds with a simple ok JSON payload.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": version.Version,
		"commit":  version.GitCommit,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

// --- shared helpers ----------------------------------------------------------

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError maps an error's classification to an HTTP status and writes
// the error payload. Internal failures are logged with their trace ID; the
// caller sees only the error message text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(fault.KindOf(err))
	if status >= 500 {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path,
			"trace_id", trace.FromContext(r.Context()), "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFor(kind fault.Kind) int {
	switch kind {
	case fault.KindValidation, fault.KindUnsupportedSource:
		return http.StatusBadRequest
	case fault.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes the request body into dst, enforcing the body size cap.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fault.Newf(fault.KindValidation, "invalid JSON body: %v", err)
	}
	return nil
}

// requireMethod writes a 405 and returns false when the request method does
// not match.
func requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}
