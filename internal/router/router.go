package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"negotiations/internal/app/negotiations"
	"negotiations/internal/app/pricing"
	"negotiations/internal/handler/http/httpx"
	http_negotiations "negotiations/internal/handler/http/negotiations"
	http_pricing "negotiations/internal/handler/http/pricing"
)

type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

func NewRouter(opts Options, ns negotiations.NegotiationService, ps pricing.PricingService, l *zap.Logger) http.Handler {
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", httpx.HeaderUserID, httpx.HeaderUserRole},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	http_negotiations.RegisterRoutes(r, ns, ps, l)
	http_pricing.RegisterRoutes(r, ps, l)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteErrorCode(w, http.StatusNotFound, "not_found", "route not found")
	})
	return r
}
