package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"retailsales/internal/census"
	"retailsales/internal/config"
	"retailsales/internal/dataprocessing"
	apperrors "retailsales/internal/errors"
	"retailsales/internal/exporter"
	"retailsales/internal/infrastructure"
	"retailsales/internal/lookup"
	"retailsales/pkg/contracts/domain"
	"retailsales/pkg/contracts/events"
)

// RetailService runs the fetch, reshape, metrics and export pipeline for
// one request at a time. It keeps no state between calls; repeated loads
// are served by the fetcher's cache.
type RetailService struct {
	fetcher     census.Fetcher
	categories  *lookup.Categories
	censusCfg   config.CensusConfig
	pipelineCfg config.PipelineConfig
	notifier    census.Notifier
	workbook    *exporter.WorkbookWriter
	csv         *exporter.CSVWriter
	metrics     *infrastructure.BusinessMetrics
	now         func() time.Time
	logger      *slog.Logger
}

// RetailOption configures a RetailService
type RetailOption func(*RetailService)

// WithStatusNotifier sends progress messages to n
func WithStatusNotifier(n census.Notifier) RetailOption {
	return func(s *RetailService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithBusinessMetrics records export counters on m
func WithBusinessMetrics(m *infrastructure.BusinessMetrics) RetailOption {
	return func(s *RetailService) { s.metrics = m }
}

// WithClock overrides the clock used to default the end year
func WithClock(now func() time.Time) RetailOption {
	return func(s *RetailService) { s.now = now }
}

// NewRetailService creates the pipeline service
func NewRetailService(fetcher census.Fetcher, categories *lookup.Categories, cfg *config.Config, logger *slog.Logger, opts ...RetailOption) *RetailService {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if categories == nil {
		categories = lookup.DefaultCategories()
	}
	logger = infrastructure.WithComponent(logger, "retail_service")

	s := &RetailService{
		fetcher:     fetcher,
		categories:  categories,
		censusCfg:   cfg.Census,
		pipelineCfg: cfg.Pipeline,
		notifier:    census.NotifierFunc(func(context.Context, events.Notification) {}),
		workbook:    exporter.NewWorkbookWriter(logger),
		csv:         exporter.NewCSVWriter(),
		now:         time.Now,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	logger.Info("RetailService initialized",
		slog.Int("categories", categories.Len()),
		slog.String("adjusted", cfg.Pipeline.Adjusted),
		slog.String("unmapped", cfg.Pipeline.Unmapped))

	return s
}

// Load fetches the MARTS table and derives the full bundle. On error no
// part of the dataset is returned.
func (s *RetailService) Load(ctx context.Context, req LoadRequest) (*Dataset, error) {
	q := s.query(req)
	if q.To < q.From {
		return nil, apperrors.NewAppValidationError(fmt.Sprintf("end year %d precedes start year %d", q.To, q.From))
	}

	opts := dataprocessing.DefaultReshapeOptions(s.pipelineCfg, s.categories)
	if req.Adjusted != "" {
		opts.Adjusted = req.Adjusted
	}

	var notices []string
	if q.APIKey == "" {
		notices = append(notices, census.MsgMissingKey)
	}

	raw, err := s.fetcher.Fetch(ctx, q)
	if err != nil {
		s.logger.ErrorContext(ctx, "dataset fetch failed",
			slog.Int("from", q.From),
			slog.Int("to", q.To),
			slog.String("error", err.Error()))
		s.notify(ctx, events.LevelError, "Data request failed: "+userMessage(err))
		return nil, fmt.Errorf("fetch MARTS data: %w", err)
	}

	s.notify(ctx, events.LevelInfo, MsgTransformStarted)
	wide, report, err := dataprocessing.Reshape(raw, opts)
	if err != nil {
		s.logger.ErrorContext(ctx, "reshape failed", slog.String("error", err.Error()))
		s.notify(ctx, events.LevelError, "Data transformation failed: "+err.Error())
		return nil, fmt.Errorf("reshape MARTS data: %w", err)
	}
	if len(report.Unmapped) > 0 {
		msg := MsgUnmappedPrefix + strings.Join(report.Unmapped, ", ")
		notices = append(notices, msg)
		s.notify(ctx, events.LevelWarning, msg)
	}

	bundle := dataprocessing.BuildBundle(wide)
	s.notify(ctx, events.LevelSuccess, MsgTransformComplete)

	s.logger.InfoContext(ctx, "dataset built",
		slog.Int("from", q.From),
		slog.Int("to", q.To),
		slog.Int("rows_in", report.RowsIn),
		slog.Int("months", report.Months),
		slog.Int("columns", report.Columns),
		slog.Int("tables", len(bundle)))

	adjusted := opts.Adjusted
	if adjusted == "" {
		adjusted = domain.SeasonallyAdjusted
	}
	return &Dataset{
		From:     q.From,
		To:       q.To,
		Adjusted: adjusted,
		Wide:     wide,
		Bundle:   bundle,
		Report:   report,
		Notices:  notices,
	}, nil
}

// View loads the dataset and returns one table of it. An empty table name
// selects the first table; an empty mode shows the most recent row.
func (s *RetailService) View(ctx context.Context, req ViewRequest) (*ViewModel, error) {
	mode := req.Mode
	switch mode {
	case "":
		mode = ViewLatest
	case ViewLatest, ViewAll:
	default:
		return nil, apperrors.NewAppError(apperrors.ErrTypeValidation,
			fmt.Sprintf("view must be %s or %s, got %q", ViewLatest, ViewAll, req.Mode), ErrInvalidViewMode)
	}

	ds, err := s.Load(ctx, req.LoadRequest)
	if err != nil {
		return nil, err
	}

	name := req.Table
	if name == "" {
		name = ds.Bundle[0].Name
	}
	t, err := tableOf(ds, name)
	if err != nil {
		return nil, err
	}
	if mode == ViewLatest {
		t = t.Latest()
	}

	return &ViewModel{
		Tables:   ds.Bundle.Names(),
		Selected: name,
		Mode:     mode,
		Table:    t,
		Labels:   s.labels(t.Columns),
		Unmapped: ds.Report.Unmapped,
		Notices:  ds.Notices,
		From:     ds.From,
		To:       ds.To,
		Adjusted: ds.Adjusted,
	}, nil
}

// Tables returns the table names in display order
func (s *RetailService) Tables(ctx context.Context, req LoadRequest) ([]string, error) {
	ds, err := s.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	return ds.Bundle.Names(), nil
}

// Export renders the whole bundle as one workbook
func (s *RetailService) Export(ctx context.Context, req LoadRequest) (*Download, error) {
	ds, err := s.Load(ctx, req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.workbook.Bytes(ctx, ds.Bundle)
	infrastructure.RecordExport(ctx, s.metrics, "xlsx", len(data), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &Download{Name: exporter.WorkbookFileName, MIME: exporter.WorkbookMIME, Data: data}, nil
}

// ExportTable renders one table as CSV
func (s *RetailService) ExportTable(ctx context.Context, req LoadRequest, table string) (*Download, error) {
	ds, err := s.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	t, err := tableOf(ds, table)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var buf bytes.Buffer
	err = s.csv.WriteTable(&buf, t, exporter.CSVOptions{BOMPrefix: true})
	infrastructure.RecordExport(ctx, s.metrics, "csv", buf.Len(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	return &Download{Name: CSVFileName(table), MIME: exporter.CSVMIME, Data: buf.Bytes()}, nil
}

// CSVFileName derives a download name from a table name
func CSVFileName(table string) string {
	return strings.ReplaceAll(exporter.SanitizeSheetName(table), " ", "_") + ".csv"
}

func (s *RetailService) query(req LoadRequest) census.Query {
	q := census.Query{APIKey: strings.TrimSpace(req.APIKey), From: req.From, To: req.To}
	if q.APIKey == "" {
		q.APIKey = s.censusCfg.APIKey
	}
	return q.Normalize(s.censusCfg.DefaultFromYear, s.now())
}

func (s *RetailService) notify(ctx context.Context, level events.Level, msg string) {
	s.notifier.Notify(ctx, events.Notification{
		Level:   level,
		Message: msg,
		Source:  "pipeline",
		TraceID: infrastructure.GetTraceID(ctx),
		Time:    s.now(),
	})
}

// labels resolves column names back to the long category descriptions
func (s *RetailService) labels(columns []string) map[string]string {
	out := make(map[string]string, len(columns))
	for _, col := range columns {
		if cat, ok := s.categories.ByShort(col); ok {
			out[col] = cat.Long
		}
	}
	return out
}

// userMessage is the browser-facing text of err. Classified errors show
// their message only; causes can carry the upstream URL.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return infrastructure.RedactKey(err.Error())
}

func tableOf(ds *Dataset, name string) (*domain.Table, error) {
	t, ok := ds.Bundle.Get(name)
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrTypeNotFound,
			fmt.Sprintf("table %q not found", name), ErrTableNotFound).
			WithContext("tables", ds.Bundle.Names())
	}
	return t, nil
}
