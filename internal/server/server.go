// Package server exposes the examdesk operations over a local HTTP API.
// This is the application shell: thin JSON handlers over the exam service,
// the store and the recipient registry.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"examdesk/internal/exam"
	"examdesk/internal/media"
	"examdesk/internal/recipients"
	"examdesk/internal/storage"
	"examdesk/pkg/logx"
)

type Server struct {
	addr string
	log  logx.Logger
	http *http.Server
}

func New(addr string, h *Handler, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))

	r.Route("/api", func(r chi.Router) {
		r.Post("/attempts", h.CreateAttempt)
		r.Get("/attempts", h.ListAttempts)
		r.Post("/attempts/{id}/finish", h.FinishAttempt)
		r.Delete("/attempts/{id}", h.DeleteAttempt)

		r.Post("/questions", h.AddQuestion)
		r.Get("/questions", h.ListQuestions)
		r.Get("/questions/random", h.RandomQuestions)
		r.Delete("/questions/{id}", h.DeleteQuestion)

		r.Post("/responses", h.SaveResponse)
		r.Get("/responses/{id}/audio", h.ResponseAudio)
		r.Delete("/responses/{id}", h.DeleteResponse)
		r.Put("/responses/{id}/rating", h.RateResponse)
		r.Get("/recordings", h.ListRecordings)

		r.Get("/settings/recipients", h.GetRecipients)
		r.Put("/settings/recipients", h.SetRecipients)

		r.Post("/media/audio", h.SaveAudio)
		r.Get("/media/audio/{name}", h.GetAudio)
		r.Post("/media/images", h.SaveImage)
		r.Get("/media/images/{name}", h.GetImage)
	})

	return &Server{
		addr: addr,
		log:  log,
		http: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", logx.String("addr", s.addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func requestLogger(log logx.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				logx.String("method", r.Method),
				logx.String("path", r.URL.Path),
				logx.Int("status", ww.Status()),
				logx.Duration("took", time.Since(start)))
		})
	}
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store    *storage.Store
	files    media.Files
	registry *recipients.Registry
	svc      *exam.Service
	log      logx.Logger
}

func NewHandler(store *storage.Store, files media.Files, registry *recipients.Registry, svc *exam.Service, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{store: store, files: files, registry: registry, svc: svc, log: log}
}
