package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/mind-engage/mindengage-study/internal/logging"
	"github.com/mind-engage/mindengage-study/internal/session"
	"github.com/mind-engage/mindengage-study/internal/storage"
)

type RouterDeps struct {
	Sessions       *Sessions
	Issuer         *session.Issuer
	Extractor      Extractor
	Blobs          storage.BlobStore
	Limits         Limits
	MaxUploadBytes int64
	CORSOrigins    []string
	Metrics        http.Handler                    // nil disables /metrics
	Ready          func(ctx context.Context) error // nil means always ready
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func NewRouter(d RouterDeps) chi.Router {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logging.RequestLogger(log), middleware.Recoverer)
	if d.RequestTimeout > 0 {
		r.Use(middleware.Timeout(d.RequestTimeout))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", APIKeyHeader},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ready != nil {
			if err := d.Ready(r.Context()); err != nil {
				log.Warn("not ready", zap.Error(err))
				http.Error(w, "not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Post("/sessions", CreateSessionHandler(d.Sessions))

	r.Group(func(pr chi.Router) {
		pr.Use(session.Middleware(d.Issuer))

		pr.Get("/session", GetSessionHandler(d.Sessions))
		pr.Post("/session/exam", GenerateExamHandler(d.Sessions, d.Limits))
		pr.Put("/session/answers/{index}", AnswerHandler(d.Sessions))
		pr.Post("/session/navigate", NavigateHandler(d.Sessions))
		pr.Post("/session/submit", SubmitHandler(d.Sessions))
		pr.Post("/session/reset", ResetHandler(d.Sessions))
		pr.Post("/session/readings", ReadingsHandler(d.Sessions))

		pr.Get("/history", ListHistoryHandler(d.Sessions))
		pr.Get("/history/summary", SummaryHandler(d.Sessions))
		pr.Get("/history/{id}", ViewHistoryHandler(d.Sessions))
		pr.Delete("/history/{id}", DeleteHistoryHandler(d.Sessions))
		pr.Post("/quizzes", RecordQuizHandler(d.Sessions))

		pr.Post("/notes", NotesHandler(d.Sessions))
		pr.Post("/flashcards", FlashcardsHandler(d.Sessions))
		if d.Extractor != nil {
			pr.Route("/materials", func(mr chi.Router) {
				MountMaterials(mr, d.Extractor, d.Blobs, d.MaxUploadBytes)
			})
		}
	})
	return r
}
