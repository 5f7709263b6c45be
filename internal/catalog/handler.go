// internal/catalog/handler.go
package catalog

import (
	"errors"
	"net/http"
	"strconv"

	"gamerent/internal/accounts"
	"gamerent/internal/auth"
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

// Routes mounts the catalog API. Reads are public, writes need an admin token.
func (h *Handler) Routes(issuer *auth.Issuer) chi.Router {
	r := chi.NewRouter()
	r.Get("/games", h.handleListGames)
	r.Get("/games/{id}", h.handleGetGame)

	r.Group(func(r chi.Router) {
		r.Use(issuer.Middleware, auth.RequireRole(accounts.RoleAdmin))
		r.Post("/games", h.handleAddGame)
		r.Patch("/games/{id}", h.handleUpdateGame)
		r.Delete("/games/{id}", h.handleRemoveGame)
	})
	return r
}

func (h *Handler) handleListGames(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Query: q.Get("q")}
	filter.IncludeRetired, _ = strconv.ParseBool(q.Get("include_retired"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	games, err := h.service.ListGames(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, games)
}

func (h *Handler) handleGetGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	game, err := h.service.GetGame(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, game)
}

func (h *Handler) handleAddGame(w http.ResponseWriter, r *http.Request) {
	var req NewGame
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	game, err := h.service.AddGame(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, game)
}

func (h *Handler) handleUpdateGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req GameUpdate
	if err := httpx.Decode(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	game, err := h.service.UpdateGame(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, game)
}

func (h *Handler) handleRemoveGame(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveGame(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid game id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case httpx.IsBadRequest(err):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ErrInvalidInput):
		httpx.WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
	case errors.Is(err, ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.WriteError(w, http.StatusConflict, "conflict", err.Error())
	default:
		h.logger.Error("catalog request failed", zap.Error(err))
		httpx.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
