package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dyike/agenttrader/internal/service"
	"github.com/dyike/agenttrader/internal/storage"
	"github.com/dyike/agenttrader/models"
	"github.com/kataras/golog"
)

// Service is what the HTTP layer needs from the analyzer.
type Service interface {
	Analyze(ctx context.Context, req models.AnalyzeRequest) (*models.AnalyzeResponse, error)
	Stream(ctx context.Context, req models.AnalyzeRequest, emit func(models.StreamEvent)) error
	History(ctx context.Context, limit int) ([]models.SessionRecord, error)
	Run(ctx context.Context, sessionID string) (*service.RunDetail, error)
}

// Server exposes the analyzer over HTTP. The source is consulted on every
// request so a reloaded analyzer is picked up without restarting.
type Server struct {
	source func() Service
	mux    *http.ServeMux
}

func NewServer(source func() Service) *Server {
	s := &Server{source: source, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /analyze", s.handleAnalyze)
	s.mux.HandleFunc("POST /analyze/stream", s.handleAnalyzeStream)
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /runs", s.handleRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleRun)
	return s
}

func (s *Server) Handler() http.Handler {
	return logRequests(allowCORS(s.mux))
}

// call runs fn on the current service. A config reload can close the
// service between lookup and use; fn is then retried once on its successor.
func (s *Server) call(fn func(Service) error) error {
	err := fn(s.source())
	if errors.Is(err, service.ErrClosed) {
		golog.Debugf("http: service closed mid-request, retrying on the current one")
		err = fn(s.source())
	}
	return err
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		golog.Infof("http: listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var resp *models.AnalyzeResponse
	err = s.call(func(svc Service) (err error) {
		resp, err = svc.Analyze(r.Context(), req)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(ev models.StreamEvent) {
		data, err := json.Marshal(ev)
		if err != nil {
			golog.Warnf("encode stream event: %v", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
	// run failures travel in the terminal event; a closed service emits nothing
	err = s.call(func(svc Service) error {
		return svc.Stream(r.Context(), req, send)
	})
	if errors.Is(err, service.ErrClosed) {
		send(models.StreamEvent{Done: true, Error: err.Error(), AnalyzeResponse: &models.AnalyzeResponse{}})
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	var sessions []models.SessionRecord
	err := s.call(func(svc Service) (err error) {
		sessions, err = svc.History(r.Context(), limit)
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if sessions == nil {
		sessions = []models.SessionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": sessions})
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var detail *service.RunDetail
	err := s.call(func(svc Service) (err error) {
		detail, err = svc.Run(r.Context(), r.PathValue("id"))
		return err
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func decodeRequest(r *http.Request) (models.AnalyzeRequest, error) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoHistory), errors.Is(err, service.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		golog.Warnf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		golog.Infof("http: %s %s %d %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}

// allowCORS lets browser dashboards on other origins call the API. Preflight
// requests are answered here.
func allowCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
