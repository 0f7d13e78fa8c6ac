package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"nebcli/internal/analytics"
	apierrors "nebcli/internal/errors"
	"nebcli/internal/services"
)

// defaultWindow is the moving-average window when none is requested.
const defaultWindow = 7

// AnalyticsHandler handles derived-metric HTTP requests
type AnalyticsHandler struct {
	service      *services.AnalyticsService
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewAnalyticsHandler creates a new analytics handler
func NewAnalyticsHandler(service *services.AnalyticsService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *AnalyticsHandler {
	return &AnalyticsHandler{
		service:      service,
		logger:       logger.With(slog.String("component", "analytics_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the analytics routes
func (h *AnalyticsHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/moving-average", h.MovingAverage)
	r.Get("/period-change", h.PeriodChange)
	r.Get("/aggregate", h.Aggregate)
	r.Get("/compare", h.Compare)
	r.Get("/summary", h.Summary)

	return r
}

// MovingAverage handles GET /api/analytics/moving-average?window=N
func (h *AnalyticsHandler) MovingAverage(w http.ResponseWriter, r *http.Request) {
	window := defaultWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrValidation("window", "must be an integer"))
			return
		}
		window = parsed
	}
	if window < 1 {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("window", "must be at least 1"))
		return
	}

	sess := SessionFromContext(r.Context())
	values, err := h.service.MovingAverage(r.Context(), sess, window)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"window": window,
		"values": values,
	})
}

// PeriodChange handles GET /api/analytics/period-change
func (h *AnalyticsHandler) PeriodChange(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	values, err := h.service.PeriodChange(r.Context(), sess)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"values": values,
	})
}

// Aggregate handles GET /api/analytics/aggregate?group_by=column. Without a
// group column the whole table aggregates under the "ALL" key.
func (h *AnalyticsHandler) Aggregate(w http.ResponseWriter, r *http.Request) {
	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = r.URL.Query().Get("by") // short alias
	}

	sess := SessionFromContext(r.Context())
	groups, err := h.service.Aggregate(r.Context(), sess, groupBy)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.classify(err))
		return
	}

	render.JSON(w, r, map[string]interface{}{
		"by":     groupBy,
		"groups": groups,
	})
}

// Compare handles GET /api/analytics/compare?a=KeyA&b=KeyB&on=column
func (h *AnalyticsHandler) Compare(w http.ResponseWriter, r *http.Request) {
	keyA := r.URL.Query().Get("a")
	keyB := r.URL.Query().Get("b")
	on := r.URL.Query().Get("on")
	if keyA == "" || keyB == "" || on == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("a,b,on", "comparison keys and column are required"))
		return
	}

	sess := SessionFromContext(r.Context())
	comparison, err := h.service.Compare(r.Context(), sess, keyA, keyB, on)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.classify(err))
		return
	}

	render.JSON(w, r, comparison)
}

// Summary handles GET /api/analytics/summary
func (h *AnalyticsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	summary, err := h.service.Summary(r.Context(), sess)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, summary)
}

func (h *AnalyticsHandler) classify(err error) error {
	if errors.Is(err, analytics.ErrUnknownColumn) {
		return apierrors.ErrValidation("column", err.Error())
	}
	return err
}
