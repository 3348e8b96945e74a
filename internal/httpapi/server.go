// Package httpapi exposes translation sessions and the image proxy over
// HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/valpere/legtrans/internal/language"
	"github.com/valpere/legtrans/internal/logging"
	"github.com/valpere/legtrans/internal/metrics"
	"github.com/valpere/legtrans/internal/ocr"
	"github.com/valpere/legtrans/internal/session"
)

const (
	DefaultMaxBodyBytes  = 64 << 10
	DefaultMaxImageBytes = 16 << 20
)

// Extractor pulls text out of a base64 image.
type Extractor interface {
	Extract(ctx context.Context, image string) (string, error)
}

type Server struct {
	Sessions *session.Registry
	OCR      Extractor
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// Ready reports whether backing services answer. Nil means always ready.
	Ready func(ctx context.Context) error
	// MaxBodyBytes bounds JSON request bodies and MaxImageBytes the image
	// upload. Zero selects the defaults.
	MaxBodyBytes  int64
	MaxImageBytes int64
}

// NewHandler wires the routes of s.
func NewHandler(s *Server) http.Handler {
	if s.Logger == nil {
		s.Logger = logging.NewNop()
	}
	s.Logger = logging.Component(s.Logger, "http")
	if s.MaxBodyBytes <= 0 {
		s.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if s.MaxImageBytes <= 0 {
		s.MaxImageBytes = DefaultMaxImageBytes
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(middleware.Recoverer)
	r.Use(enableCORS)

	r.Get("/healthz", s.health)
	if s.Metrics != nil {
		r.Handle("/metrics", s.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/languages", s.languages)
		r.With(middleware.RequestSize(s.MaxImageBytes)).Post("/translate-image", s.translateImage)

		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.RequestSize(s.MaxBodyBytes))
			r.Post("/", s.createSession)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getSession)
				r.Delete("/", s.deleteSession)
				r.Post("/text", s.changeText)
				r.Put("/languages", s.setLanguages)
				r.Get("/events", s.events)
			})
		})
	})

	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.Ready != nil {
		if err := s.Ready(r.Context()); err != nil {
			s.Logger.Warn("health check failed", "error", err)
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

type languagesResponse struct {
	Languages []language.Language `json:"languages"`
	Default   language.Pair       `json:"default"`
}

func (s *Server) languages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Logger, http.StatusOK, languagesResponse{
		Languages: language.Languages,
		Default:   language.DefaultPair(),
	})
}

const ImageTooLargeMessage = "The image is too large."

type imageRequest struct {
	Image string `json:"image"`
}

type imageResponse struct {
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message,omitempty"`
}

func (s *Server) translateImage(w http.ResponseWriter, r *http.Request) {
	var body imageRequest
	if err := decodeJSON(r, &body); err != nil {
		s.Logger.Warn("translate-image: invalid request body", "error", err)
		if tooLarge(err) {
			writeJSON(w, s.Logger, http.StatusRequestEntityTooLarge, imageResponse{Message: ImageTooLargeMessage})
			return
		}
		writeJSON(w, s.Logger, http.StatusBadRequest, imageResponse{Message: "Invalid request body"})
		return
	}

	text, err := s.OCR.Extract(r.Context(), body.Image)
	if err != nil {
		writeJSON(w, s.Logger, ocr.Status(err), imageResponse{Message: ocr.Message(err)})
		return
	}
	writeJSON(w, s.Logger, http.StatusOK, imageResponse{Success: true, Text: text})
}

// decodeJSON reads a JSON body. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func tooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// badBody answers a request whose JSON body could not be read.
func (s *Server) badBody(w http.ResponseWriter, err error) {
	if tooLarge(err) {
		writeError(w, s.Logger, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	writeError(w, s.Logger, http.StatusBadRequest, "Invalid request body")
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, logger *slog.Logger, status int, message string) {
	writeJSON(w, logger, status, errorResponse{Message: message})
}
