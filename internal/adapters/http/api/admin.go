package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/okian/rsvp/internal/domain/model"
	"github.com/okian/rsvp/pkg/logger"
)

// AdminHandler serves the read-only admin routes.
type AdminHandler struct {
	deps   Reader
	logger logger.Logger
}

// NewAdminHandler creates a new admin handler.
func NewAdminHandler(deps Reader, log logger.Logger) *AdminHandler {
	return &AdminHandler{deps: deps, logger: log}
}

type listResponse struct {
	Items []model.Guest `json:"items"`
	Count int           `json:"count"`
}

// HandleList handles GET /rsvps?q=&limit=&offset=.
func (h *AdminHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_rsvps"

	q := r.URL.Query()
	limit, err := nonNegative(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, WrapKind(op, ErrBadRequest, fmt.Errorf("limit: %w", err)))
		return
	}
	offset, err := nonNegative(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, WrapKind(op, ErrBadRequest, fmt.Errorf("offset: %w", err)))
		return
	}

	items, err := h.deps.List(r.Context(), model.Filter{Query: q.Get("q"), Limit: limit, Offset: offset})
	if err != nil {
		err = WrapKind(op, ErrRead, err)
		h.logger.Error(r.Context(), "list rsvps failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if items == nil {
		items = []model.Guest{}
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Count: len(items)})
}

// HandleStats handles GET /rsvps/stats.
func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	const op = "api.rsvp_stats"

	st, err := h.deps.Stats(r.Context())
	if err != nil {
		err = WrapKind(op, ErrRead, err)
		h.logger.Error(r.Context(), "rsvp stats failed", logger.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// nonNegative parses an optional non-negative integer. Empty means zero.
func nonNegative(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("must be an integer")
	}
	if n < 0 {
		return 0, errors.New("must not be negative")
	}
	return n, nil
}
