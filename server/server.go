// Package server exposes the supervisor over HTTP: the agent card, the
// blocking and streaming task endpoints, the team management surface,
// and the health and metrics endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roundtable-ai/roundtable/a2a"
	"github.com/roundtable-ai/roundtable/config"
	"github.com/roundtable-ai/roundtable/supervisor"
	"github.com/roundtable-ai/roundtable/team"
)

// streamDone terminates an SSE stream, mirroring the remote agent
// protocol so the supervisor's callers can reuse their client code.
const streamDone = "[DONE]"

// Server is the supervisor's HTTP front end.
type Server struct {
	httpServer *http.Server
	handler    *supervisor.Handler
	manager    *team.Manager
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
}

// New creates a server bound per config. gatherer may be nil to disable
// the metrics endpoint.
func New(cfg *config.ServerConfig, handler *supervisor.Handler, manager *team.Manager,
	gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		handler:  handler,
		manager:  manager,
		gatherer: gatherer,
		logger:   logger,
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/.well-known/agent.json", s.handleCard)
	r.Post("/task", s.handleTask)
	r.Post("/task/stream", s.handleTaskStream)

	r.Route("/team", func(r chi.Router) {
		r.Post("/add", s.handleTeamAdd)
		r.Post("/remove", s.handleTeamRemove)
		r.Get("/list", s.handleTeamList)
		r.Get("/info/{name}", s.handleTeamInfo)
		r.Post("/reconnect", s.handleTeamReconnect)
		r.Get("/status", s.handleTeamStatus)
		r.Post("/batch/add", s.handleTeamBatchAdd)
		r.Post("/batch/remove", s.handleTeamBatchRemove)
	})

	r.Get("/healthz", s.handleHealth)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ============================================================================
// TASK ENDPOINTS
// ============================================================================

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.handler.Card())
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	var req a2a.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task request: "+err.Error(), "")
		return
	}
	resp := s.handler.Handle(r.Context(), &req)
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTaskStream(w http.ResponseWriter, r *http.Request) {
	var req a2a.TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task request: "+err.Error(), "")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.handler.HandleStream(r.Context(), &req) {
		data, err := json.Marshal(ev)
		if err != nil {
			s.logger.Error("failed to marshal stream event", "error", err)
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	fmt.Fprintf(w, "data: %s\n\n", streamDone)
	flusher.Flush()
}

// ============================================================================
// TEAM MANAGEMENT ENDPOINTS
// ============================================================================

func (s *Server) handleTeamAdd(w http.ResponseWriter, r *http.Request) {
	var req team.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "agent_url is required", "")
		return
	}
	info, err := s.manager.Add(r.Context(), req)
	if err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTeamRemove(w http.ResponseWriter, r *http.Request) {
	var req team.RemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	if req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "agent_name is required", "")
		return
	}
	if err := s.manager.Remove(r.Context(), req.Name); err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, team.MemberResult{Success: true, Agent: req.Name})
}

func (s *Server) handleTeamList(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.List())
}

func (s *Server) handleTeamInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.manager.Info(chi.URLParam(r, "name"))
	if err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTeamReconnect(w http.ResponseWriter, r *http.Request) {
	var req team.RemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	info, err := s.manager.Reconnect(r.Context(), req.Name)
	if err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleTeamStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.manager.Status())
}

func (s *Server) handleTeamBatchAdd(w http.ResponseWriter, r *http.Request) {
	var reqs []team.AddRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	result, err := s.manager.BatchAdd(r.Context(), reqs)
	if err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTeamBatchRemove(w http.ResponseWriter, r *http.Request) {
	var reqs []team.RemoveRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request: "+err.Error(), "")
		return
	}
	result, err := s.manager.BatchRemove(r.Context(), reqs)
	if err != nil {
		s.writeTeamError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "duration", time.Since(start))
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, code string) {
	body := map[string]string{"error": message}
	if code != "" {
		body["code"] = code
	}
	s.writeJSON(w, status, body)
}

// writeTeamError maps team error codes onto HTTP status codes.
func (s *Server) writeTeamError(w http.ResponseWriter, err error) {
	code := team.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case team.CodeNotFound:
		status = http.StatusNotFound
	case team.CodeProtected:
		status = http.StatusForbidden
	case team.CodeNameConflict:
		status = http.StatusConflict
	case team.CodeInvalidRequest:
		status = http.StatusBadRequest
	case team.CodeConnectionFailed:
		status = http.StatusBadGateway
	case team.CodeNoAgents:
		status = http.StatusServiceUnavailable
	}
	s.writeError(w, status, err.Error(), string(code))
}
