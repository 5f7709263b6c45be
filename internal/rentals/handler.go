// internal/rentals/handler.go
package rentals

import (
	"errors"
	"net/http"
	"strconv"

	"gamerent/internal/auth"
	"gamerent/internal/entitlement"
	"gamerent/internal/ledger"
	"gamerent/internal/platform/httpx"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Handler struct {
	service Service
	logger  *zap.Logger
}

func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

type rentRequest struct {
	GameUUID uuid.UUID `json:"game_uuid" validate:"required"`
}

// Routes mounts the rentals API. Every route acts on behalf of the token's
// subject.
func (h *Handler) Routes(issuer *auth.Issuer) chi.Router {
	r := chi.NewRouter()
	r.Use(issuer.Middleware)

	r.Post("/rentals", h.handleCreate)
	r.Get("/rentals", h.handleActive)
	r.Get("/rentals/history", h.handleHistory)
	r.Get("/rentals/{id}", h.handleGet)
	r.Post("/rentals/{id}/return", h.handleReturn)
	r.Get("/rentals/{id}/events", h.handleTimeline)
	r.Get("/quotes/{gameUUID}", h.handleQuote)
	r.Post("/subscriptions", h.handleSubscribe)
	r.Get("/entitlement", h.handleEntitlement)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req rentRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	receipt, err := h.service.CreateRental(r.Context(), p.UserID, req.GameUUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	receipt, err := h.service.ReturnRental(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleActive(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	views, err := h.service.ActiveRentals(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, views)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.service.History(r.Context(), p.UserID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, recs)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	view, err := h.service.GetRental(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	id, ok := parseUUID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.service.Timeline(r.Context(), p.UserID, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, events)
}

func (h *Handler) handleQuote(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	gameUUID, ok := parseUUID(w, r, "gameUUID")
	if !ok {
		return
	}
	q, err := h.service.Quote(r.Context(), p.UserID, gameUUID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, q)
}

func (h *Handler) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	receipt, err := h.service.StartSubscription(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	summary, err := h.service.Entitlement(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, summary)
}

func parseUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case httpx.IsBadRequest(err):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds):
		httpx.WriteError(w, http.StatusPaymentRequired, "insufficient_funds", err.Error())
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrGameNotFound), errors.Is(err, ErrRentalNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ledger.ErrInvalidGame),
		errors.Is(err, ledger.ErrAlreadyReturned),
		errors.Is(err, entitlement.ErrNoActiveSubscription),
		errors.Is(err, entitlement.ErrEntitlementExhausted),
		errors.Is(err, ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error("rentals request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
