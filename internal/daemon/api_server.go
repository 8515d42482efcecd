package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketintel/internal/api"
	"marketintel/internal/config"
	"marketintel/internal/logging"
	"marketintel/internal/payload"
	"marketintel/internal/queue"
	"marketintel/internal/services"
)

// maxRequestBody bounds submission bodies.
const maxRequestBody = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	handler http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}

	routes := http.NewServeMux()
	routes.HandleFunc("POST /api/requests", srv.handleSubmit)
	routes.HandleFunc("GET /api/requests/{scope}", srv.handleReport)
	routes.HandleFunc("GET /api/requests/{scope}/items", srv.handleTree)
	routes.HandleFunc("GET /api/queue", srv.handleQueue)
	routes.HandleFunc("GET /api/queue/stats", srv.handleQueueStats)
	routes.HandleFunc("GET /api/queue/health", srv.handleQueueHealth)
	routes.HandleFunc("GET /api/status", srv.handleStatus)

	mux := http.NewServeMux()
	mux.Handle("/api/", authMiddleware(strings.TrimSpace(cfg.Paths.APIToken), routes))
	if cfg.Metrics.Enabled && d.gatherer != nil {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(d.gatherer, promhttp.HandlerOpts{}))
	}
	srv.handler = mux

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}
	if len(body) > maxRequestBody {
		s.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	var req payload.Request
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request json: "+err.Error())
		return
	}

	result, err := s.daemon.Service().Submit(r.Context(), req)
	if err != nil {
		if services.IsPermanent(err) {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		logging.ErrorWithContext(s.log(), "submission failed", "submission_failed", logging.ErrorAttrs(err)...)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log().Info("request accepted",
		logging.String(logging.FieldEventType, "request_submitted"),
		logging.String(logging.FieldScope, result.ScopeKey),
		logging.String(logging.FieldSequence, result.SequenceKey),
	)
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *apiServer) handleReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.daemon.Service().Report(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *apiServer) handleTree(w http.ResponseWriter, r *http.Request) {
	items, err := s.daemon.Service().Tree(r.Context(), r.PathValue("scope"))
	if err != nil {
		s.writeLookupError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	var filter queue.ListFilter
	if value := strings.TrimSpace(query.Get("stage")); value != "" {
		st, ok := queue.ParseStage(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown stage "+strconv.Quote(value))
			return
		}
		filter.Stage = st
	}
	for _, value := range query["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := queue.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(trimmed))
			return
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if value := strings.TrimSpace(query.Get("limit")); value != "" {
		limit, err := strconv.Atoi(value)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	items, err := s.daemon.Service().List(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueListResponse{Items: items})
}

func (s *apiServer) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.daemon.Service().Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.QueueStatsResponse{Counts: counts})
}

func (s *apiServer) handleQueueHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.daemon.DatabaseHealth(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		APIAddress:   status.APIAddress,
		QueueDBPath:  status.QueueDBPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, api.ErrScopeNotFound) {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error())
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
