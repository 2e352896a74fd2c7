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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"roastmachine/internal/api"
	"roastmachine/internal/config"
	"roastmachine/internal/logging"
	"roastmachine/internal/services"
)

// multipartOverhead is the body allowance on top of the audio limit for form
// boundaries and the text fields.
const multipartOverhead = 1 << 20

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	policy  api.UploadPolicy
	handler http.Handler
	server  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:   strings.TrimSpace(cfg.Paths.APIBind),
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		policy: api.NewUploadPolicy(cfg.Ingress),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/process-audio", srv.handleProcessAudio)
	mux.HandleFunc("GET /api/runs/{id}", srv.handleRun)
	mux.HandleFunc("POST /api/user/init", srv.handleUserInit)
	mux.HandleFunc("GET /api/user/stats", srv.handleUserStats)
	mux.HandleFunc("POST /api/user/intensity", srv.handleUserIntensity)
	mux.HandleFunc("POST /api/user/reset", srv.handleUserReset)
	mux.HandleFunc("GET /api/health", srv.handleHealth)
	srv.handler = srv.withRequestContext(withCORS(mux))

	// process-audio blocks for the whole await budget.
	awaitBudget := cfg.AwaitPollInterval() * time.Duration(cfg.Pipeline.AwaitMaxPolls)
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      awaitBudget + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	s.listener = nil
	s.mu.Unlock()
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return s.bind
	}
	return s.listener.Addr().String()
}

type userRequest struct {
	UserID    string `json:"userId"`
	Intensity string `json:"intensity,omitempty"`
}

func (s *apiServer) handleProcessAudio(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}

	run, err := s.daemon.service.Process(r.Context(), req)
	if err != nil {
		var data any
		if run.ID != "" {
			data = map[string]string{"runId": run.ID, "status": run.Status}
		}
		s.writeError(w, started, err, data)
		return
	}
	switch run.Status {
	case "complete":
		s.writeData(w, started, run.Output)
	case "terminated":
		s.writeJSON(w, http.StatusConflict, envelopeFailure(started, "run was terminated", "state", run))
	default:
		s.writeJSON(w, http.StatusInternalServerError, envelopeFailure(started, run.ErrorMessage, "state", run))
	}
}

func (s *apiServer) readUpload(w http.ResponseWriter, r *http.Request) (api.SubmitRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.policy.MaxBytes+multipartOverhead)
	if err := r.ParseMultipartForm(s.policy.MaxBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return api.SubmitRequest{}, services.Wrap(services.ErrValidation, "ingress", "",
				fmt.Sprintf("upload exceeds %d bytes", s.policy.MaxBytes), nil)
		}
		return api.SubmitRequest{}, services.Wrap(services.ErrValidation, "ingress", "", "malformed multipart form", err)
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		return api.SubmitRequest{}, services.Wrap(services.ErrValidation, "ingress", "", "no audio file provided", nil)
	}
	defer file.Close()

	contentType, err := s.policy.Validate(header.Header.Get("Content-Type"), header.Size)
	if err != nil {
		return api.SubmitRequest{}, err
	}
	data, err := io.ReadAll(io.LimitReader(file, s.policy.MaxBytes+1))
	if err != nil {
		return api.SubmitRequest{}, services.Wrap(services.ErrValidation, "ingress", "", "read audio", err)
	}
	if _, err := s.policy.Validate(contentType, int64(len(data))); err != nil {
		return api.SubmitRequest{}, err
	}

	userID := strings.TrimSpace(r.FormValue("userId"))
	if userID == "" {
		return api.SubmitRequest{}, services.Wrap(services.ErrValidation, "ingress", "", "userId is required", nil)
	}
	return api.SubmitRequest{
		UserID:      userID,
		Intensity:   r.FormValue("intensity"),
		SessionID:   r.FormValue("sessionId"),
		ContentType: contentType,
		Audio:       data,
	}, nil
}

func (s *apiServer) handleRun(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	run, err := s.daemon.service.Poll(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	s.writeData(w, started, run)
}

func (s *apiServer) handleUserInit(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, err := decodeUserRequest(r)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	current, err := s.daemon.service.InitSession(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	s.writeData(w, started, current)
}

func (s *apiServer) handleUserStats(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	stats, err := s.daemon.service.Stats(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	s.writeData(w, started, stats)
}

func (s *apiServer) handleUserIntensity(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, err := decodeUserRequest(r)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	updated, err := s.daemon.service.SetIntensity(r.Context(), req.UserID, req.Intensity)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	s.writeData(w, started, map[string]any{"userId": updated.UserID, "intensity": updated.Intensity})
}

func (s *apiServer) handleUserReset(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, err := decodeUserRequest(r)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	deleted, err := s.daemon.service.Reset(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, started, err, nil)
		return
	}
	s.writeData(w, started, map[string]any{"userId": strings.TrimSpace(req.UserID), "reset": deleted})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	status := s.daemon.Status(r.Context())
	depStatuses := make([]api.DependencyStatus, len(status.Dependencies))
	for i, dep := range status.Dependencies {
		depStatuses[i] = api.DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	payload := api.DaemonStatus{
		Status:       "healthy",
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		SessionCount: status.SessionCount,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: depStatuses,
	}
	if !status.Healthy() {
		payload.Status = "degraded"
	}
	if !status.StartedAt.IsZero() {
		payload.Uptime = time.Since(status.StartedAt).Round(time.Second).String()
	}
	s.writeData(w, started, payload)
}

func decodeUserRequest(r *http.Request) (userRequest, error) {
	var req userRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	if err := decoder.Decode(&req); err != nil {
		return req, services.Wrap(services.ErrValidation, "api", "", "request body must be JSON", err)
	}
	if strings.TrimSpace(req.UserID) == "" {
		return req, services.Wrap(services.ErrValidation, "api", "", "userId is required", nil)
	}
	return req, nil
}

func envelopeFailure(started time.Time, message, kind string, data any) api.Envelope {
	return api.Envelope{
		Success:          false,
		Data:             data,
		Error:            message,
		ErrorKind:        kind,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	}
}

func (s *apiServer) writeData(w http.ResponseWriter, started time.Time, data any) {
	s.writeJSON(w, http.StatusOK, api.Envelope{
		Success:          true,
		Data:             data,
		Timestamp:        time.Now().UTC().Format(time.RFC3339Nano),
		ProcessingTimeMs: time.Since(started).Milliseconds(),
	})
}

func (s *apiServer) writeError(w http.ResponseWriter, started time.Time, err error, data any) {
	details := services.Details(err)
	status := statusForKind(details.Kind)
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		logging.ErrorWithContext(s.logger, "api request failed", "api_request_failed",
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.String(logging.FieldErrorHint, details.Hint),
			logging.Error(err),
		)
	}
	s.writeJSON(w, status, envelopeFailure(started, details.Message, string(details.Kind), data))
}

func statusForKind(kind services.ErrorKind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := w.Header()
		header.Set("Access-Control-Allow-Origin", "*")
		header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		header.Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *apiServer) withRequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		started := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Debug("api request",
			logging.String(logging.FieldCorrelationID, requestID),
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Duration("elapsed", time.Since(started)),
		)
	})
}
