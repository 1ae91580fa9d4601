package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
	httpSwagger "github.com/swaggo/http-swagger"
)

// RouterConfig holds what the router needs besides the handler
type RouterConfig struct {
	JWTSecret      string
	AllowedOrigins []string
	Metrics        http.Handler // Served on /metrics when set
	SwaggerFile    string       // Path of swagger.json
}

// NewRouter builds the chi router with every operator route
func NewRouter(h *Handler, cfg RouterConfig, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Operator-ID"},
		ExposedHeaders:   []string{"Location", "Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(OperatorMiddleware(cfg.JWTSecret, logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics)
	}

	swaggerFile := cfg.SwaggerFile
	if swaggerFile == "" {
		swaggerFile = "./docs/swagger.json"
	}
	r.Get("/swagger/doc.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		http.ServeFile(w, r, swaggerFile)
	})
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/entities", h.ListEntities)

		r.Route("/stores", func(r chi.Router) {
			r.Get("/", h.ListStores)
			r.Post("/", h.RegisterStore)
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.StartRun)
			r.Get("/{runID}", h.GetRun)
			r.Get("/{runID}/events", h.RunEvents)
		})

		r.Route("/ledger/{entity}", func(r chi.Router) {
			r.Get("/", h.ListLedger)
			r.Get("/export", h.ExportLedger)
		})
	})

	return r
}
