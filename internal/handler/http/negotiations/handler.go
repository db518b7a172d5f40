package negotiations

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"negotiations/internal/app/negotiations"
	"negotiations/internal/app/pricing"
	"negotiations/internal/domain"
	"negotiations/internal/handler/http/httpx"
)

type NegotiationHandler struct {
	service negotiations.NegotiationService
	pricing pricing.PricingService
	logger  *zap.Logger
}

func NewNegotiationHandler(s negotiations.NegotiationService, p pricing.PricingService, l *zap.Logger) *NegotiationHandler {
	return &NegotiationHandler{service: s, pricing: p, logger: l}
}

type CheckResponse struct {
	HasNegotiation bool                              `json:"hasNegotiation"`
	Price          *decimal.Decimal                  `json:"price,omitempty"`
	Negotiation    *negotiations.NegotiationResponse `json:"negotiation,omitempty"`
}

func (h *NegotiationHandler) CreateNegotiation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req negotiations.CreateNegotiationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("Invalid request body for CreateNegotiation", zap.Error(err))
		httpx.WriteError(w, h.logger, err)
		return
	}

	res, err := h.service.CreateNegotiation(r.Context(), user, &req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

// ListNegotiations serves both the caller's own list (?role=) and the seller's
// per-product list (?productId=).
func (h *NegotiationHandler) ListNegotiations(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var (
		res []*negotiations.NegotiationResponse
		err error
	)
	if productID := r.URL.Query().Get("productId"); productID != "" {
		res, err = h.service.ListForProduct(r.Context(), user, productID)
	} else {
		res, err = h.service.ListMine(r.Context(), user, r.URL.Query().Get("role"))
	}
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *NegotiationHandler) GetNegotiation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.service.GetNegotiation(r.Context(), user, chi.URLParam(r, "negotiationID"))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *NegotiationHandler) ApplyAction(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req negotiations.ActionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.logger.Warn("Invalid request body for ApplyAction", zap.Error(err))
		httpx.WriteError(w, h.logger, err)
		return
	}

	res, err := h.service.ApplyAction(r.Context(), user, chi.URLParam(r, "negotiationID"), &req)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *NegotiationHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	res, err := h.service.ListMessages(r.Context(), user, chi.URLParam(r, "negotiationID"))
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, res)
}

func (h *NegotiationHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var req negotiations.MessageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}

	res, err := h.service.SendMessage(r.Context(), user, chi.URLParam(r, "negotiationID"), req.Message)
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}

func (h *NegotiationHandler) CheckNegotiation(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	productID := r.URL.Query().Get("productId")
	if productID == "" {
		httpx.WriteError(w, h.logger, domain.Validationf("productId is required"))
		return
	}

	resolved, err := h.pricing.ResolvePrice(r.Context(), productID, user.UserID())
	if err != nil {
		httpx.WriteError(w, h.logger, err)
		return
	}
	if resolved == nil {
		httpx.WriteJSON(w, http.StatusOK, CheckResponse{HasNegotiation: false})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, CheckResponse{
		HasNegotiation: true,
		Price:          &resolved.Price,
		Negotiation:    negotiations.MapNegotiationToResponse(resolved.Negotiation),
	})
}

func (h *NegotiationHandler) caller(w http.ResponseWriter, r *http.Request) (domain.User, bool) {
	user, ok := httpx.UserFromContext(r.Context())
	if !ok {
		httpx.WriteErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authentication required")
		return nil, false
	}
	return user, true
}
