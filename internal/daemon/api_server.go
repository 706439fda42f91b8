package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shipflow/internal/api"
	"shipflow/internal/config"
	"shipflow/internal/logging"
	"shipflow/internal/queue"
	"shipflow/internal/services"
)

const maxReplayBody = 1 << 20

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	token := cfg.Paths.APIToken

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/status", srv.handleStatus)
	mux.HandleFunc("GET /api/phases", srv.handlePhases)
	mux.HandleFunc("GET /api/deadletters", srv.handleDeadLetters)
	mux.HandleFunc("POST /api/deadletters/replay", authMiddleware(token, srv.handleReplay))
	mux.HandleFunc("POST /api/shipments/{id}/wake", authMiddleware(token, srv.handleWake))
	srv.handler = mux

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

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
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handlePhases(w http.ResponseWriter, r *http.Request) {
	resp, err := s.daemon.Phases(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	name := strings.TrimSpace(query.Get("queue"))
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "queue parameter is required")
		return
	}
	filter, err := parseDeadLetterFilter(query.Get("reason"), query.Get("since"), query.Get("until"), query.Get("limit"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.daemon.DeadLetters(r.Context(), name, filter)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleReplay(w http.ResponseWriter, r *http.Request) {
	var req api.ReplayRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplayBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid replay request: "+err.Error())
		return
	}
	req.Queue = strings.TrimSpace(req.Queue)
	if req.Queue == "" || len(req.IDs) == 0 {
		s.writeError(w, http.StatusBadRequest, "queue and ids are required")
		return
	}
	resp, err := s.daemon.Replay(r.Context(), req)
	if err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleWake(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "shipment id is required")
		return
	}
	if err := s.daemon.Wake(r.Context(), id); err != nil {
		s.writeError(w, statusFor(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, api.WakeResponse{ShipmentID: id, Woken: true})
}

// parseDeadLetterFilter reads the dead-letter query parameters. Timestamps
// are RFC3339.
func parseDeadLetterFilter(reason, since, until, limit string) (queue.DeadLetterFilter, error) {
	filter := queue.DeadLetterFilter{Reason: strings.TrimSpace(reason)}
	var err error
	if since = strings.TrimSpace(since); since != "" {
		if filter.Since, err = time.Parse(time.RFC3339, since); err != nil {
			return filter, fmt.Errorf("invalid since: %w", err)
		}
	}
	if until = strings.TrimSpace(until); until != "" {
		if filter.Until, err = time.Parse(time.RFC3339, until); err != nil {
			return filter, fmt.Errorf("invalid until: %w", err)
		}
	}
	if limit = strings.TrimSpace(limit); limit != "" {
		if filter.Limit, err = strconv.Atoi(limit); err != nil || filter.Limit < 0 {
			return filter, fmt.Errorf("invalid limit %q", limit)
		}
	}
	return filter, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, api.ErrUnknownQueue):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
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
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
