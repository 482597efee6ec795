// Package server exposes redaction over HTTP.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"time"

	"github.com/andresmejia3/docmask/internal/imageio"
	"github.com/andresmejia3/docmask/internal/mask"
	"github.com/andresmejia3/docmask/internal/redactor"
	"github.com/andresmejia3/docmask/internal/store"
	"github.com/andresmejia3/docmask/internal/types"
	"github.com/andresmejia3/docmask/internal/utils"
	"github.com/andresmejia3/docmask/internal/worker"
	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Auditor records redaction runs. *store.Store satisfies it.
type Auditor interface {
	EnsureDocument(ctx context.Context, id, path string, width, height int) error
	InsertRun(ctx context.Context, run *store.Run) error
}

// Options configures a Server.
type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	DefaultStyle   mask.Style
	Audit          Auditor // optional
	Logger         *log.Logger
}

// Server handles redaction requests. OCR engines are borrowed from pool, so
// at most pool.Size() documents are recognized at once.
type Server struct {
	redactor *redactor.Redactor
	pool     *worker.Pool
	opts     Options
	log      *log.Logger
}

// New returns a Server. Zero limits fall back to 10 MiB and 60s.
func New(r *redactor.Redactor, pool *worker.Pool, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = utils.WithPrefix("server")
	}
	return &Server{redactor: r, pool: pool, opts: opts, log: opts.Logger}
}

// Router builds the HTTP routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	// Browser front ends on other origins call the API directly.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/process", s.handleProcess)
		r.Get("/health", s.handleHealth)
		r.Get("/styles", s.handleStyles)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "Backend is running")
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, mask.StyleNames())
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Upload exceeds %d bytes", s.opts.MaxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, "Malformed multipart request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil || header.Size == 0 {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	if !imageio.AcceptedContentType(header.Header.Get("Content-Type")) {
		writeError(w, http.StatusBadRequest, "Invalid image type")
		return
	}

	style := s.opts.DefaultStyle
	if mode := r.FormValue("mode"); mode != "" {
		if style, err = mask.ParseStyle(mode); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Unable to read upload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.opts.RequestTimeout)
	defer cancel()

	resp, err := s.process(ctx, header.Filename, data, style)
	if err != nil {
		status := statusFor(err)
		s.log.Error("processing failed", "file", header.Filename, "status", status, "err", err)
		writeError(w, status, "Processing failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) process(ctx context.Context, name string, data []byte, style mask.Style) (*types.ProcessResponse, error) {
	img, _, err := imageio.DecodeBytes(data)
	if err != nil {
		return nil, err
	}

	var tokens []types.Token
	err = s.pool.Do(ctx, func(wk *worker.Worker) error {
		var err error
		tokens, err = wk.Recognize(ctx, img)
		return err
	})
	if err != nil {
		return nil, err
	}

	out, report, err := s.redactor.Redact(img, tokens, style)
	if err != nil {
		return nil, err
	}
	png, err := imageio.EncodeBytes(out, imageio.PNG)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	resp := &types.ProcessResponse{
		Status:    "success",
		Message:   "Image processed successfully",
		ImageData: base64.StdEncoding.EncodeToString(png),
		Style:     style.String(),
		Flagged:   report.Classification.Count(),
		Regions:   len(report.Regions),
	}
	if s.opts.Audit != nil {
		resp.RunID = s.audit(ctx, utils.DocumentIDFromBytes(data), name, img.Bounds(), report)
	}
	return resp, nil
}

// audit records the run. Failures are logged and never fail the request.
func (s *Server) audit(ctx context.Context, docID, name string, bounds image.Rectangle, report *redactor.Report) string {
	if err := s.opts.Audit.EnsureDocument(ctx, docID, name, bounds.Dx(), bounds.Dy()); err != nil {
		s.log.Warn("audit: register document failed", "doc", docID, "err", err)
		return ""
	}
	run := store.NewRun(docID, name, "", report)
	if err := s.opts.Audit.InsertRun(ctx, run); err != nil {
		s.log.Warn("audit: insert run failed", "doc", docID, "err", err)
		return ""
	}
	return run.ID.String()
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, types.ErrOCRUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}
	// ErrMaskingFailure and anything unexpected.
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, types.ProcessResponse{Status: "error", Message: msg})
}
