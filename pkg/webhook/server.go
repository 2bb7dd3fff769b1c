package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/flowsmith/flowsmith/pkg/log"
)

const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 30 * time.Second
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 5 * time.Second
	maxBodySize     = 1024 * 1024
)

// Server is the standalone webhook listener used by the executor binary. The
// API binary serves the same Processor through its own routes instead.
type Server struct {
	server    *http.Server
	port      int
	processor *Processor
	logger    *slog.Logger

	mu      sync.Mutex
	started bool
}

func NewServer(port int, processor *Processor) *Server {
	return &Server{
		port:      port,
		processor: processor,
		logger:    log.WithModule("webhook_server").With("port", port),
	}
}

// Start begins serving webhook requests. Shutdown follows ctx cancellation.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/webhook/", s.handleWebhook)
	mux.HandleFunc("/health", s.handleHealth)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	s.started = true

	s.logger.Info("starting webhook server", "addr", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("webhook server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error("webhook server shutdown error", "error", err)
		}
	}()

	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.started = false

	return s.server.Shutdown(ctx)
}

// handleWebhook serves POST /webhook/{organizationId}/{triggerId}.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "only POST allowed")

		return
	}

	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/webhook/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		s.writeError(w, http.StatusBadRequest, "path must be /webhook/{organizationId}/{triggerId}")

		return
	}
	organizationID, triggerID := parts[0], parts[1]

	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "error reading request body")

		return
	}

	headers := make(map[string]string, len(r.Header))
	for name, values := range r.Header {
		headers[name] = strings.Join(values, ", ")
	}

	result, err := s.processor.ProcessWebhook(r.Context(), organizationID, triggerID, r.Method, headers, body)
	if err != nil {
		if IsValidationError(err) {
			s.writeJSON(w, http.StatusNotFound, result)

			return
		}
		s.logger.Error("error processing webhook", "trigger_id", triggerID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "error processing webhook")

		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]any{
		"success": false,
		"message": message,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("error encoding response", "error", err)
	}
}
