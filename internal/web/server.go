package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hpungsan/saiten/internal/logging"
	"github.com/hpungsan/saiten/internal/ops"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

// NewServer creates the HTTP server for the review UI and JSON API.
func NewServer(b *ops.Backend, logger *slog.Logger, version, bind string, port int) (*http.Server, error) {
	logger = logging.OrDiscard(logger)

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		backend:  b,
		renderer: NewRenderer(templateSub, version, logger),
		log:      logger,
	}

	mux := http.NewServeMux()
	h.routes(mux)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           logRequests(logger, securityHeaders(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

func (h *Handlers) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/assignments", http.StatusFound)
	})

	// HTML pages
	mux.HandleFunc("GET /assignments", h.HandleAssignments)
	mux.HandleFunc("POST /assignments", h.HandleUploadForm)
	mux.HandleFunc("GET /assignments/{aid}", h.HandleList)
	mux.HandleFunc("POST /assignments/{aid}/auto-check-all", h.HandleAutoCheckAllForm)
	mux.HandleFunc("GET /assignments/{aid}/students/{sid}", h.HandleDetail)
	mux.HandleFunc("POST /assignments/{aid}/students/{sid}/feedback", h.HandleFeedbackForm)
	mux.HandleFunc("POST /assignments/{aid}/students/{sid}/auto-check", h.HandleAutoCheckForm)

	// JSON API
	mux.HandleFunc("GET /api/assignments", h.APIAssignments)
	mux.HandleFunc("POST /api/assignments/upload", h.APIUpload)
	mux.HandleFunc("DELETE /api/assignments/{aid}", h.APIDelete)
	mux.HandleFunc("GET /api/assignments/{aid}/students", h.APIStudents)
	mux.HandleFunc("GET /api/assignments/{aid}/students/{sid}", h.APIStudent)
	mux.HandleFunc("POST /api/assignments/{aid}/students/{sid}/feedback", h.APIFeedback)
	mux.HandleFunc("POST /api/assignments/{aid}/students/{sid}/auto-check", h.APIAutoCheck)
	mux.HandleFunc("POST /api/assignments/{aid}/auto-check-all", h.APIAutoCheckAll)
	mux.HandleFunc("GET /api/assignments/{aid}/auto-check-status", h.APIAutoCheckStatus)
	mux.HandleFunc("GET /api/assignments/{aid}/export/csv", h.APIExportCSV)
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'; script-src 'self'; style-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// logRequests logs one line per request.
func logRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		level := slog.LevelInfo
		if rec.status >= 500 {
			level = slog.LevelError
		}
		logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	logger.Info("saiten UI running", "url", "http://"+srv.Addr)
	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		logger.Warn("server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		logger.Info("shutting down")
		// Running auto-check batches get time to finish.
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
