package pricing

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"negotiations/internal/app/pricing"
	"negotiations/internal/domain"
	"negotiations/internal/handler/http/httpx"
)

type PricingHandler struct {
	service pricing.PricingService
	logger  *zap.Logger
}

func NewPricingHandler(s pricing.PricingService, l *zap.Logger) *PricingHandler {
	return &PricingHandler{service: s, logger: l}
}

func (h *PricingHandler) QuoteLine(w http.ResponseWriter, r *http.Request) {
	user, ok := httpx.UserFromContext(r.Context())
	if !ok {
		httpx.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return
	}

	quantity := 1
	if q := r.URL.Query().Get("quantity"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil {
			h.logger.Warn("Invalid quantity in QuoteLine request", zap.String("quantity", q))
			httpx.WriteError(w, h.logger, domain.Validationf("quantity must be an integer"))
			return
		}
		quantity = n
	}

	quote, err := h.service.QuoteLine(r.Context(), user, r.URL.Query().Get("productId"), quantity)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, quote)
}

func RegisterRoutes(r chi.Router, s pricing.PricingService, l *zap.Logger) {
	handler := NewPricingHandler(s, l.With(zap.String("component", "PricingHTTPHandler")))

	r.Route("/cart", func(r chi.Router) {
		r.Use(httpx.RequireUser)
		r.Get("/quote", handler.QuoteLine)
	})
}
