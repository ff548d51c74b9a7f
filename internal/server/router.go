package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/docsage/internal/api"
	"github.com/cloo-solutions/docsage/internal/api/handlers"
	"github.com/cloo-solutions/docsage/internal/api/middleware"
	"github.com/cloo-solutions/docsage/internal/logger"
)

const (
	defaultMaxQueryBytes  int64 = 1 << 20
	defaultMaxIngestBytes int64 = 32 << 20
)

type RouterConfig struct {
	AskHandler      *handlers.AskHandler
	SearchHandler   *handlers.SearchHandler
	DocumentHandler *handlers.DocumentHandler
	Logger          *logger.Logger
	// MaxQueryBytes caps /ask and /search bodies.
	MaxQueryBytes int64
	// MaxIngestBytes caps POST /documents batches.
	MaxIngestBytes int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxQuery := cfg.MaxQueryBytes
	if maxQuery <= 0 {
		maxQuery = defaultMaxQueryBytes
	}
	maxIngest := cfg.MaxIngestBytes
	if maxIngest <= 0 {
		maxIngest = defaultMaxIngestBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog(cfg.Logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	queryLimit := middleware.BodyLimit(maxQuery, cfg.Logger)
	if cfg.AskHandler != nil {
		r.With(queryLimit).Post("/ask", cfg.AskHandler.Ask)
	}
	if cfg.SearchHandler != nil {
		r.With(queryLimit).Post("/search", cfg.SearchHandler.Search)
	}
	if cfg.DocumentHandler != nil {
		r.Route("/documents", func(r chi.Router) {
			r.With(middleware.BodyLimit(maxIngest, cfg.Logger)).Post("/", cfg.DocumentHandler.Ingest)
			r.Get("/", cfg.DocumentHandler.Get)
			r.Delete("/", cfg.DocumentHandler.Delete)
			r.Get("/raw", cfg.DocumentHandler.Raw)
		})
	}

	return r
}
