package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"retailsales/internal/config"
	apierrors "retailsales/internal/errors"
	mw "retailsales/internal/middleware"
	"retailsales/internal/services"
	api "retailsales/pkg/contracts/api/v1"
)

// RetailHandler serves the retail sales tables as JSON, workbook and CSV
type RetailHandler struct {
	service      RetailServiceInterface
	validator    *mw.RequestValidator
	defaults     config.CensusConfig
	now          func() time.Time
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

// NewRetailHandler creates a new retail handler. defaults fill the years a
// request leaves out.
func NewRetailHandler(service RetailServiceInterface, defaults config.CensusConfig, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *RetailHandler {
	return &RetailHandler{
		service:      service,
		validator:    mw.NewRequestValidator(),
		defaults:     defaults,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "retail_handler")),
		errorHandler: errorHandler,
	}
}

// Routes returns the retail routes
func (h *RetailHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(render.SetContentType(render.ContentTypeJSON)).Get("/tables", h.GetTables)
	r.With(render.SetContentType(render.ContentTypeJSON)).Get("/view", h.GetView)
	r.Get("/export", h.DownloadWorkbook)
	r.Get("/tables/{table}/csv", h.DownloadTableCSV)

	return r
}

// GetTables handles GET /api/retail/tables
func (h *RetailHandler) GetTables(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	names, err := h.service.Tables(r.Context(), loadRequest(q.DatasetQuery))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, api.TablesResponse{Tables: names})
}

// GetView handles GET /api/retail/view
func (h *RetailHandler) GetView(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "building view",
		slog.String("request_id", middleware.GetReqID(r.Context())),
		slog.String("table", q.Table),
		slog.String("view", q.View),
		slog.Int("from", q.From),
		slog.Int("to", q.To))

	vm, err := h.service.View(r.Context(), viewRequest(q))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	render.JSON(w, r, vm)
}

// DownloadWorkbook handles GET /api/retail/export
func (h *RetailHandler) DownloadWorkbook(w http.ResponseWriter, r *http.Request) {
	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	dl, err := h.service.Export(r.Context(), loadRequest(q.DatasetQuery))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.serveDownload(w, r, dl)
}

// DownloadTableCSV handles GET /api/retail/tables/{table}/csv
func (h *RetailHandler) DownloadTableCSV(w http.ResponseWriter, r *http.Request) {
	table, err := url.PathUnescape(chi.URLParam(r, "table"))
	if err != nil || strings.TrimSpace(table) == "" {
		h.errorHandler.HandleError(w, r, apierrors.ErrValidation("table", "table name is required"))
		return
	}

	q, err := h.parseQuery(r.URL.Query())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	dl, err := h.service.ExportTable(r.Context(), loadRequest(q.DatasetQuery), table)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.serveDownload(w, r, dl)
}

func (h *RetailHandler) serveDownload(w http.ResponseWriter, r *http.Request, dl *services.Download) {
	w.Header().Set("Content-Type", dl.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", dl.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(dl.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(dl.Data); err != nil {
		h.logger.WarnContext(r.Context(), "download interrupted",
			slog.String("file", dl.Name),
			slog.String("error", err.Error()))
		return
	}

	h.logger.InfoContext(r.Context(), "download served",
		slog.String("file", dl.Name),
		slog.Int("bytes", len(dl.Data)))
}

// parseQuery reads the dataset and view parameters, fills missing years
// with the configured defaults and validates the result
func (h *RetailHandler) parseQuery(values url.Values) (api.ViewQuery, error) {
	return parseViewQuery(values, h.defaults.DefaultFromYear, h.now(), h.validator)
}

func parseViewQuery(values url.Values, defaultFrom int, now time.Time, v *mw.RequestValidator) (api.ViewQuery, error) {
	var q api.ViewQuery
	var fieldErrs []apierrors.ValidationError

	for _, p := range []struct {
		name string
		dst  *int
	}{{"from", &q.From}, {"to", &q.To}} {
		raw := strings.TrimSpace(values.Get(p.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fieldErrs = append(fieldErrs, apierrors.ValidationError{
				Field:   p.name,
				Message: fmt.Sprintf("%s must be a year", p.name),
			})
			continue
		}
		*p.dst = n
	}
	if len(fieldErrs) > 0 {
		return q, apierrors.NewValidationErrors(fieldErrs)
	}

	if q.From == 0 {
		q.From = defaultFrom
	}
	if q.To == 0 {
		q.To = now.Year()
	}
	q.Adjusted = strings.ToLower(strings.TrimSpace(values.Get("adjusted")))
	q.Table = strings.TrimSpace(values.Get("table"))
	q.View = strings.ToLower(strings.TrimSpace(values.Get("view")))

	if err := v.ValidateStruct(q); err != nil {
		return q, err
	}
	return q, nil
}

func loadRequest(q api.DatasetQuery) services.LoadRequest {
	return services.LoadRequest{From: q.From, To: q.To, Adjusted: q.Adjusted}
}

func viewRequest(q api.ViewQuery) services.ViewRequest {
	return services.ViewRequest{
		LoadRequest: loadRequest(q.DatasetQuery),
		Table:       q.Table,
		Mode:        services.ViewMode(q.View),
	}
}
