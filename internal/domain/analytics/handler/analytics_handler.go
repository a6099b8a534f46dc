package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/FACorreiaa/smart-finance-ingest/internal/domain/analytics"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/interceptors"
	"github.com/FACorreiaa/smart-finance-ingest/pkg/response"
)

// AnalyticsHandler serves the cached aggregate queries.
type AnalyticsHandler struct {
	svc    *analytics.Service
	logger *slog.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(svc *analytics.Service, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{svc: svc, logger: logger}
}

// Register mounts the routes on mux.
func (h *AnalyticsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/analytics/expenses-by-category", h.ExpensesByCategory)
	mux.HandleFunc("GET /api/v1/analytics/expenses-by-date", h.ExpensesByDate)
	mux.HandleFunc("GET /api/v1/analytics/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/analytics/top-merchants", h.TopMerchants)
}

func query(r *http.Request) analytics.Query {
	q := r.URL.Query()
	return analytics.Query{From: q.Get("from"), To: q.Get("to")}
}

func (h *AnalyticsHandler) ExpensesByCategory(w http.ResponseWriter, r *http.Request) {
	userID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	res, err := h.svc.ExpensesByCategory(r.Context(), userID, query(r))
	h.respond(w, "expenses by category", res, err)
}

func (h *AnalyticsHandler) ExpensesByDate(w http.ResponseWriter, r *http.Request) {
	userID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	interval := analytics.Interval(r.URL.Query().Get("interval"))
	res, err := h.svc.ExpensesByDate(r.Context(), userID, interval, query(r))
	h.respond(w, "expenses by date", res, err)
}

func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	res, err := h.svc.Summary(r.Context(), userID, query(r))
	h.respond(w, "summary", res, err)
}

func (h *AnalyticsHandler) TopMerchants(w http.ResponseWriter, r *http.Request) {
	userID, ok := interceptors.GetUserIDFromContext(r.Context())
	if !ok {
		response.Error(w, http.StatusUnauthorized, "unauthenticated")
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	res, err := h.svc.TopMerchants(r.Context(), userID, query(r), limit)
	h.respond(w, "top merchants", res, err)
}

func (h *AnalyticsHandler) respond(w http.ResponseWriter, what string, res any, err error) {
	switch {
	case err == nil:
		response.JSON(w, http.StatusOK, res)
	case errors.Is(err, analytics.ErrInvalidRange), errors.Is(err, analytics.ErrInvalidInterval):
		response.Error(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("failed to compute "+what, slog.Any("error", err))
		response.Error(w, http.StatusInternalServerError, "failed to fetch "+what)
	}
}
