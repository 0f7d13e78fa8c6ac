package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "nebcli/internal/errors"
	"nebcli/internal/ingest"
	"nebcli/internal/services"
	"nebcli/pkg/contracts/domain"
)

// DatasetHandler handles dataset lifecycle HTTP requests with RFC 7807 compliance
type DatasetHandler struct {
	service        *services.DatasetService
	logger         *slog.Logger
	errorHandler   *apierrors.ErrorHandler
	validate       *validator.Validate
	maxUploadBytes int64
}

// NewDatasetHandler creates a new dataset handler
func NewDatasetHandler(service *services.DatasetService, logger *slog.Logger, errorHandler *apierrors.ErrorHandler, maxUploadBytes int64) *DatasetHandler {
	v := validator.New()

	// Use JSON tag names in error messages
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &DatasetHandler{
		service:        service,
		logger:         logger.With(slog.String("component", "dataset_handler")),
		errorHandler:   errorHandler,
		validate:       v,
		maxUploadBytes: maxUploadBytes,
	}
}

// Routes returns the dataset routes
func (h *DatasetHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/load", h.Load)
	r.Post("/upload", h.Upload)
	r.Get("/rows", h.Rows)
	r.Post("/rows", h.AppendRow)
	r.Get("/export", h.Export)

	return r
}

// LoadRequest is the body of POST /api/dataset/load.
type LoadRequest struct {
	URL     string `json:"url" validate:"omitempty,url"`
	Refresh bool   `json:"refresh"`
}

// Bind implements render.Binder
func (req *LoadRequest) Bind(r *http.Request) error {
	return nil
}

// Load handles POST /api/dataset/load
func (h *DatasetHandler) Load(w http.ResponseWriter, r *http.Request) {
	req := &LoadRequest{}
	if r.ContentLength > 0 {
		if err := render.Bind(r, req); err != nil {
			h.errorHandler.HandleError(w, r, apierrors.ErrInvalidRequest)
			return
		}
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("url", "must be a valid URL"))
		return
	}

	if req.Refresh {
		h.service.InvalidateSource(req.URL)
	}

	sess := SessionFromContext(r.Context())
	summary, err := h.service.LoadFromURL(r.Context(), sess, req.URL)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.classifyLoadError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, summary)
}

// Upload handles POST /api/dataset/upload (multipart form, field "file")
func (h *DatasetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("file", "multipart file field is required"))
		return
	}
	defer file.Close()

	sess := SessionFromContext(r.Context())
	summary, err := h.service.Upload(r.Context(), sess, header.Filename, file)
	if err != nil {
		h.errorHandler.HandleError(w, r, h.classifyLoadError(err))
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, summary)
}

// RowsResponse is the body of GET /api/dataset/rows.
type RowsResponse struct {
	Columns []string                 `json:"columns"`
	Roles   map[string]string        `json:"roles"`
	Total   int                      `json:"total"`
	Rows    []map[string]interface{} `json:"rows"`
}

// Rows handles GET /api/dataset/rows with optional offset/limit pagination
func (h *DatasetHandler) Rows(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	snapshot, err := h.service.Snapshot(sess)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	offset, limit, err := paginationParams(r, snapshot.Len())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	resp := &RowsResponse{
		Columns: snapshot.Columns,
		Roles:   rolesJSON(snapshot.Roles),
		Total:   snapshot.Len(),
		Rows:    make([]map[string]interface{}, 0, limit),
	}
	for _, row := range snapshot.Rows[offset : offset+limit] {
		resp.Rows = append(resp.Rows, rowJSON(row, snapshot))
	}

	render.JSON(w, r, resp)
}

// AppendRowRequest is the body of POST /api/dataset/rows.
type AppendRowRequest struct {
	Date      string `json:"date" validate:"required"`
	Primary   string `json:"primary" validate:"required"`
	Secondary string `json:"secondary"`
	Category  string `json:"category"`
	Region    string `json:"region"`
}

// Bind implements render.Binder
func (req *AppendRowRequest) Bind(r *http.Request) error {
	return nil
}

// AppendRow handles POST /api/dataset/rows
func (h *DatasetHandler) AppendRow(w http.ResponseWriter, r *http.Request) {
	req := &AppendRowRequest{}
	if err := render.Bind(r, req); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.ErrInvalidRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		h.errorHandler.HandleError(w, r, validationAPIError(err))
		return
	}

	sess := SessionFromContext(r.Context())
	count, err := h.service.AppendRow(r.Context(), sess, ingest.RowInput{
		Date:      req.Date,
		Primary:   req.Primary,
		Secondary: req.Secondary,
		Category:  req.Category,
		Region:    req.Region,
	})
	if err != nil {
		if errors.Is(err, services.ErrInvalidInput) {
			h.errorHandler.HandleError(w, r, apierrors.New(http.StatusUnprocessableEntity, "VALIDATION_FAILED", err.Error()))
			return
		}
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, map[string]interface{}{"rows": count})
}

// Export handles GET /api/dataset/export, streaming canonical CSV
func (h *DatasetHandler) Export(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	filename := r.URL.Query().Get("filename")
	if filename == "" {
		filename = fmt.Sprintf("dataset_%s.csv", time.Now().UTC().Format("20060102_150405"))
	} else {
		filename = filepath.Base(filename)
		if !strings.HasSuffix(filename, ".csv") {
			filename += ".csv"
		}
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))

	if err := h.service.ExportCSV(r.Context(), sess, w); err != nil {
		// Headers may already be written; fall back to problem JSON only
		// when nothing has been streamed yet.
		h.errorHandler.HandleError(w, r, err)
	}
}

func (h *DatasetHandler) classifyLoadError(err error) error {
	switch {
	case errors.Is(err, services.ErrFetchFailed):
		return apierrors.NewWithDetails(http.StatusBadGateway, "SOURCE_FETCH_FAILED", "Failed to fetch the source URL", err.Error())
	case errors.Is(err, services.ErrNoSourceURL):
		return apierrors.ErrValidation("url", "no source URL configured or provided")
	case errors.Is(err, services.ErrUnknownFile):
		return apierrors.ErrValidation("file", err.Error())
	default:
		return err
	}
}

func paginationParams(r *http.Request, total int) (offset, limit int, err error) {
	offset, limit = 0, total

	if raw := r.URL.Query().Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, apierrors.ErrValidation("offset", "must be a non-negative integer")
		}
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return 0, 0, apierrors.ErrValidation("limit", "must be a non-negative integer")
		}
	}

	if offset > total {
		offset = total
	}
	if offset+limit > total {
		limit = total - offset
	}
	return offset, limit, nil
}

func rolesJSON(roles domain.RoleMap) map[string]string {
	out := make(map[string]string, len(roles))
	for role, column := range roles {
		out[string(role)] = column
	}
	return out
}

// rowJSON renders a row keyed by original column names with typed values for
// role columns and raw strings for passthrough columns.
func rowJSON(row domain.Row, d *domain.Dataset) map[string]interface{} {
	out := make(map[string]interface{}, len(d.Columns))
	for _, column := range d.Columns {
		switch column {
		case d.Roles.Column(domain.RoleDate):
			out[column] = row.Date.Format("2006-01-02")
		case d.Roles.Column(domain.RolePrimaryMetric):
			out[column] = row.Primary
		case d.Roles.Column(domain.RoleSecondaryMetric):
			out[column] = row.Secondary
		case d.Roles.Column(domain.RoleDiscount):
			out[column] = row.Discount
		case d.Roles.Column(domain.RoleCategory):
			out[column] = row.Category
		case d.Roles.Column(domain.RoleRegion):
			out[column] = row.Region
		default:
			out[column] = row.Extra[column]
		}
	}
	return out
}

func validationAPIError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return apierrors.ErrValidationFailed
	}
	fields := make([]apierrors.ValidationError, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, apierrors.ValidationError{
			Field:   fe.Field(),
			Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		})
	}
	return apierrors.NewValidationErrors(fields)
}
