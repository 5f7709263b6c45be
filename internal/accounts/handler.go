// internal/accounts/handler.go
package accounts

import (
	"errors"
	"net/http"
	"strconv"

	"gamerent/internal/auth"
	"gamerent/internal/money"
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

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Name     string `json:"name" validate:"required,max=100"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type depositRequest struct {
	Amount money.Money `json:"amount" validate:"gt=0,lte=999999999999"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=client admin"`
}

// Routes mounts the accounts API.
func (h *Handler) Routes(issuer *auth.Issuer) chi.Router {
	r := chi.NewRouter()
	r.Post("/users", h.handleRegister)
	r.Post("/sessions", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(issuer.Middleware)
		r.Get("/users/me", h.handleMe)
		r.Post("/users/me/deposits", h.handleDeposit)
		r.Get("/users/me/wallet", h.handleWalletHistory)

		r.With(auth.RequireRole(RoleAdmin)).Get("/users/{id}", h.handleGetUser)
		r.With(auth.RequireRole(RoleAdmin)).Put("/users/{id}/role", h.handleSetRole)
	})
	return r
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	session, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), p.UserID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	var req depositRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.Deposit(r.Context(), p.UserID, req.Amount)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleWalletHistory(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.FromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.WalletHistory(r.Context(), p.UserID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid user id")
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid user id")
		return
	}
	var req roleRequest
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	user, err := h.service.SetRole(r.Context(), id, req.Role)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case httpx.IsBadRequest(err), errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrWalletLimit),
		errors.Is(err, ErrInvalidRole):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		httpx.WriteError(w, http.StatusUnauthorized, "unauthenticated", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrEmailTaken), errors.Is(err, ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, ErrRateLimited):
		httpx.WriteError(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	default:
		h.logger.Error("accounts request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
