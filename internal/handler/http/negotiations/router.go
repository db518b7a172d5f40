package negotiations

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"negotiations/internal/app/negotiations"
	"negotiations/internal/app/pricing"
	"negotiations/internal/handler/http/httpx"
)

func RegisterRoutes(r chi.Router, s negotiations.NegotiationService, p pricing.PricingService, l *zap.Logger) {
	handler := NewNegotiationHandler(s, p, l.With(zap.String("component", "NegotiationHTTPHandler")))

	r.Route("/negotiations", func(r chi.Router) {
		r.Use(httpx.RequireUser)
		r.Post("/", handler.CreateNegotiation)
		r.Get("/", handler.ListNegotiations)
		r.Get("/check", handler.CheckNegotiation)
		r.Get("/{negotiationID}", handler.GetNegotiation)
		r.Patch("/{negotiationID}", handler.ApplyAction)
		r.Get("/{negotiationID}/messages", handler.ListMessages)
		r.Post("/{negotiationID}/messages", handler.SendMessage)
	})
}
