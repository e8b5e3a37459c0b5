// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/flashmind/card-engine/cmd/card-engine-api/handlers"
	"github.com/flashmind/card-engine/cmd/card-engine-api/middleware"
	"github.com/flashmind/card-engine/internal/cache"
	"github.com/flashmind/card-engine/internal/config"
	"github.com/flashmind/card-engine/internal/extract"
	"github.com/flashmind/card-engine/internal/generate"
	"github.com/flashmind/card-engine/internal/job"
	"github.com/flashmind/card-engine/internal/observability"
	"github.com/flashmind/card-engine/internal/quiz"
	"github.com/flashmind/card-engine/internal/storage"
	"github.com/flashmind/card-engine/internal/stream"
)

// NewRouter wires the service graph and mounts all routes.
func NewRouter(logger *observability.Logger, cfg *config.Config, db storage.DB, cacheClient cache.Client) http.Handler {
	r := chi.NewRouter()

	// Global middleware. No request timeout: the event stream holds
	// connections open for the life of a job.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"card-engine"}`))
	})

	// Service dependencies
	jobRepo := storage.NewJobRepository(db)
	cardRepo := storage.NewCardRepository(db)
	broker := stream.NewBroker(logger)
	manager := job.NewManager(jobRepo, cardRepo, broker, logger)

	extractor := extract.NewExtractor(extract.Config{
		MaxSegmentChars: cfg.Extraction.MaxSegmentChars,
	})
	generator := generate.NewClient(generate.ClientConfig{
		APIKey:         cfg.Generation.APIKey,
		Model:          cfg.Generation.Model,
		RequestTimeout: cfg.Generation.RequestTimeout,
		Retry:          generate.DefaultRetryConfig(),
	}, logger)
	worker := job.NewWorker(manager, extractor, generator, job.WorkerConfig{
		MaxCardsPerJob:     cfg.Generation.MaxCardsPerJob,
		MaxCardsPerSegment: cfg.Generation.MaxCardsPerSegment,
		SegmentRetries:     cfg.Generation.SegmentRetries,
	}, logger)
	synthesizer := quiz.NewSynthesizer(generator, logger)

	// Handlers
	documentsHandler := handlers.NewDocumentsHandler(logger, manager, worker, cacheClient, cfg.Extraction.MaxDocumentBytes)
	jobsHandler := handlers.NewJobsHandler(logger, manager)
	decksHandler := handlers.NewDecksHandler(logger, manager, cacheClient, cfg.Cache.TTL)
	quizHandler := handlers.NewQuizHandler(logger, synthesizer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Principal())

		r.Post("/documents", documentsHandler.Upload)

		r.Route("/jobs/{jobId}", func(r chi.Router) {
			r.Get("/", jobsHandler.Get)
			r.Get("/events", jobsHandler.Events)
		})

		r.Route("/decks", func(r chi.Router) {
			r.Get("/", decksHandler.List)
			r.Route("/{deckId}", func(r chi.Router) {
				r.Get("/", decksHandler.Get)
				r.Delete("/", decksHandler.Delete)
			})
		})

		r.Post("/quiz", quizHandler.Synthesize)
	})

	return r
}
