package http

import (
	"bytes"
	"embed"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"retailsales/internal/config"
	apierrors "retailsales/internal/errors"
	"retailsales/internal/lookup"
	mw "retailsales/internal/middleware"
	"retailsales/internal/services"
	api "retailsales/pkg/contracts/api/v1"
)

//go:embed templates/index.html
var templates embed.FS

var indexTemplate = template.Must(template.ParseFS(templates, "templates/index.html"))

// PageHandler renders the single-page UI on the server
type PageHandler struct {
	service      RetailServiceInterface
	palette      *lookup.Palette
	validator    *mw.RequestValidator
	defaults     config.CensusConfig
	now          func() time.Time
	logger       *slog.Logger
	errorHandler *apierrors.ErrorHandler
}

type headerCell struct {
	Name  string
	Title string
	Color string
}

type pageRow struct {
	Label string
	Cells []string
}

type pageData struct {
	From      int
	To        int
	Adjusted  string
	View      *services.ViewModel
	IndexName string
	Headers   []headerCell
	Rows      []pageRow
	Notices   []string
	Error     string
	ExportURL string
	CSVURL    string
}

// NewPageHandler creates the page handler. A nil palette colours every header black.
func NewPageHandler(service RetailServiceInterface, palette *lookup.Palette, defaults config.CensusConfig, logger *slog.Logger, errorHandler *apierrors.ErrorHandler) *PageHandler {
	return &PageHandler{
		service:      service,
		palette:      palette,
		validator:    mw.NewRequestValidator(),
		defaults:     defaults,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "page_handler")),
		errorHandler: errorHandler,
	}
}

// ServeIndex handles GET /. Without load=1 it shows the empty form; with it
// the requested table is fetched and rendered, or the error shown in its place.
func (h *PageHandler) ServeIndex(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	data := pageData{
		From:     h.defaults.DefaultFromYear,
		To:       h.now().Year(),
		Adjusted: "yes",
	}

	if values.Get("load") == "" {
		h.render(w, r, http.StatusOK, data)
		return
	}

	q, err := parseViewQuery(values, h.defaults.DefaultFromYear, h.now(), h.validator)
	data.From, data.To = q.From, q.To
	if q.Adjusted != "" {
		data.Adjusted = q.Adjusted
	}
	if err != nil {
		h.renderError(w, r, data, err)
		return
	}

	vm, err := h.service.View(r.Context(), viewRequest(q))
	if err != nil {
		h.renderError(w, r, data, err)
		return
	}

	data.Adjusted = vm.Adjusted
	data.View = vm
	data.Notices = vm.Notices
	data.IndexName = vm.Table.IndexName
	for j, col := range vm.Table.Columns {
		data.Headers = append(data.Headers, headerCell{Name: col, Title: vm.Labels[col], Color: h.palette.Color(j)})
	}
	for i, label := range vm.Table.Index {
		row := pageRow{Label: label, Cells: make([]string, len(vm.Table.Columns))}
		for j := range vm.Table.Columns {
			row.Cells[j] = vm.Table.FormatCell(j, vm.Table.Rows[i][j])
		}
		data.Rows = append(data.Rows, row)
	}

	dataset := datasetValues(q.DatasetQuery)
	data.ExportURL = "/api/retail/export?" + dataset.Encode()
	data.CSVURL = "/api/retail/tables/" + url.PathEscape(vm.Selected) + "/csv?" + dataset.Encode()

	h.render(w, r, http.StatusOK, data)
}

func (h *PageHandler) renderError(w http.ResponseWriter, r *http.Request, data pageData, err error) {
	problem := h.errorHandler.ErrorToProblem(err, r)
	h.logger.WarnContext(r.Context(), "page load failed",
		slog.Int("status", problem.Status),
		slog.String("error", err.Error()))

	data.Error = problem.Message()
	h.render(w, r, problem.Status, data)
}

// render executes the template into a buffer so a failed render never
// leaves a half-written page
func (h *PageHandler) render(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, data); err != nil {
		h.logger.ErrorContext(r.Context(), "page render failed", slog.String("error", err.Error()))
		http.Error(w, "Error rendering page", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func datasetValues(q api.DatasetQuery) url.Values {
	v := url.Values{}
	v.Set("from", strconv.Itoa(q.From))
	v.Set("to", strconv.Itoa(q.To))
	if q.Adjusted != "" {
		v.Set("adjusted", q.Adjusted)
	}
	return v
}
