package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/xuri/excelize/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"retailsales/internal/census"
	"retailsales/internal/config"
	"retailsales/internal/dataprocessing"
	apperrors "retailsales/internal/errors"
	"retailsales/internal/exporter"
	"retailsales/internal/infrastructure"
	"retailsales/internal/shared/testutil"
	"retailsales/pkg/contracts/domain"
	"retailsales/pkg/contracts/events"
)

var fixedNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

type RetailServiceSuite struct {
	suite.Suite
	fetcher  *MockFetcher
	notes    *recorder
	cfg      *config.Config
	service  *RetailService
	defaultQ census.Query
}

func (s *RetailServiceSuite) SetupTest() {
	logger, _ := testutil.NewTestLogger(s.T())
	s.fetcher = &MockFetcher{}
	s.notes = &recorder{}
	s.cfg = config.Default()
	s.cfg.Census.APIKey = "cfg-key"
	s.service = NewRetailService(s.fetcher, testCategories(), s.cfg, logger,
		WithStatusNotifier(s.notes),
		WithClock(func() time.Time { return fixedNow }))
	s.defaultQ = census.Query{APIKey: "cfg-key", From: s.cfg.Census.DefaultFromYear, To: 2026}
}

func (s *RetailServiceSuite) TearDownTest() {
	s.fetcher.AssertExpectations(s.T())
}

func TestRetailServiceSuite(t *testing.T) {
	suite.Run(t, new(RetailServiceSuite))
}

func (s *RetailServiceSuite) TestLoad_BuildsBundle() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{})
	s.Require().NoError(err)

	s.Equal([]string{"RetailTotal", "AutoParts"}, ds.Wide.Columns)
	s.Len(ds.Wide.Index, 14)
	s.Equal("2023-01-01", ds.Wide.Index[0])
	s.Len(ds.Bundle, 10)
	s.Equal(dataprocessing.SheetRetailSales, ds.Bundle[0].Name)
	s.Equal(2000, ds.From)
	s.Equal(2026, ds.To)
	s.Equal(domain.SeasonallyAdjusted, ds.Adjusted)
	s.Empty(ds.Notices)

	s.Equal([]string{MsgTransformStarted, MsgTransformComplete}, s.notes.messages())
	s.Equal(events.LevelSuccess, s.notes.last().Level)
	s.Equal("pipeline", s.notes.last().Source)
}

func (s *RetailServiceSuite) TestLoad_RequestOverridesDefaults() {
	q := census.Query{APIKey: "mine", From: 2020, To: 2024}
	s.fetcher.On("Fetch", mock.Anything, q).Return(salesFixture(s.T()), nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{APIKey: " mine ", From: 2020, To: 2024})
	s.Require().NoError(err)
	s.Equal(2020, ds.From)
	s.Equal(2024, ds.To)
}

func (s *RetailServiceSuite) TestLoad_NotAdjusted() {
	raw := testutil.NewRawTable(
		testutil.MARTSRow("SM", "yes", "441", "2024-01", "100"),
		testutil.MARTSRow("SM", "no", "441", "2024-01", "90"),
	)
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(raw, nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{Adjusted: "no"})
	s.Require().NoError(err)
	s.Equal(domain.V(90), ds.Wide.Rows[0][0])
	s.Equal("no", ds.Adjusted)
}

func (s *RetailServiceSuite) TestLoad_MissingKeyNotice() {
	s.cfg.Census.APIKey = ""
	s.service = NewRetailService(s.fetcher, testCategories(), s.cfg, nil,
		WithStatusNotifier(s.notes),
		WithClock(func() time.Time { return fixedNow }))
	q := s.defaultQ
	q.APIKey = ""
	s.fetcher.On("Fetch", mock.Anything, q).Return(salesFixture(s.T()), nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{})
	s.Require().NoError(err)
	s.Equal([]string{census.MsgMissingKey}, ds.Notices)
}

func (s *RetailServiceSuite) TestLoad_UnmappedCodesWarn() {
	raw := salesFixture(s.T())
	raw.Rows = append(raw.Rows, testutil.MARTSRow("SM", "yes", "999", "2023-01", "7"))
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(raw, nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{})
	s.Require().NoError(err)
	s.Equal([]string{"999"}, ds.Report.Unmapped)
	s.Equal([]string{MsgUnmappedPrefix + "999"}, ds.Notices)
	s.Contains(s.notes.messages(), MsgUnmappedPrefix+"999")
	s.NotContains(ds.Wide.Columns, "999")
}

func (s *RetailServiceSuite) TestLoad_FetchErrorLeavesNothing() {
	upstream := apperrors.NewNetworkError("census api request failed",
		&census.StatusError{StatusCode: 500, Body: "boom"}).WithContext("upstream_status", 500)
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(nil, upstream).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{})
	s.Require().Error(err)
	s.Nil(ds)
	s.True(apperrors.IsType(err, apperrors.ErrTypeNetwork))

	var statusErr *census.StatusError
	s.Require().True(errors.As(err, &statusErr))
	s.Equal(500, statusErr.StatusCode)

	s.Equal(events.LevelError, s.notes.last().Level)
	s.NotContains(s.notes.messages(), MsgTransformStarted)
}

func (s *RetailServiceSuite) TestLoad_ReshapeErrorLeavesNothing() {
	raw := testutil.NewRawTable(testutil.MARTSRow("SM", "yes", "441", "2024-01", "12.5"))
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(raw, nil).Once()

	ds, err := s.service.Load(context.Background(), LoadRequest{})
	s.Require().Error(err)
	s.Nil(ds)
	s.True(apperrors.IsType(err, apperrors.ErrTypeParsing))
	s.NotContains(s.notes.messages(), MsgTransformComplete)
}

func (s *RetailServiceSuite) TestLoad_InvertedRangeSkipsFetch() {
	_, err := s.service.Load(context.Background(), LoadRequest{From: 2024, To: 2020})
	s.Require().Error(err)
	s.True(apperrors.IsType(err, apperrors.ErrTypeValidation))
	s.fetcher.AssertNotCalled(s.T(), "Fetch", mock.Anything, mock.Anything)
}

func (s *RetailServiceSuite) TestView_DefaultsToLatestOfFirstTable() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	vm, err := s.service.View(context.Background(), ViewRequest{})
	s.Require().NoError(err)
	s.Equal(dataprocessing.SheetRetailSales, vm.Selected)
	s.Equal(ViewLatest, vm.Mode)
	s.Len(vm.Tables, 10)
	s.Equal([]string{"2024-02-01"}, vm.Table.Index)
	s.Equal([]domain.Value{domain.V(550), domain.V(112)}, vm.Table.Rows[0])
	s.Equal(map[string]string{
		"RetailTotal": "Retail and Food Services: Total",
		"AutoParts":   "Motor Vehicle and Parts Dealers",
	}, vm.Labels)
}

func (s *RetailServiceSuite) TestView_AllRowsOfNamedTable() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	vm, err := s.service.View(context.Background(), ViewRequest{Table: "M-M Pct Change", Mode: ViewAll})
	s.Require().NoError(err)
	s.Equal("M-M Pct Change", vm.Selected)
	s.Equal(domain.FormatFloat, vm.Table.Format)
	s.Len(vm.Table.Rows, 14)
	s.False(vm.Table.Rows[0][0].Valid)
	s.InDelta(505.0/500.0-1, vm.Table.Rows[1][0].Num, 1e-12)
}

func (s *RetailServiceSuite) TestView_UnknownTable() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	vm, err := s.service.View(context.Background(), ViewRequest{Table: "Weekly"})
	s.Require().Error(err)
	s.Nil(vm)
	s.ErrorIs(err, ErrTableNotFound)
	s.True(apperrors.IsType(err, apperrors.ErrTypeNotFound))
}

func (s *RetailServiceSuite) TestView_InvalidModeSkipsFetch() {
	_, err := s.service.View(context.Background(), ViewRequest{Mode: "some"})
	s.Require().Error(err)
	s.ErrorIs(err, ErrInvalidViewMode)
	s.True(apperrors.IsType(err, apperrors.ErrTypeValidation))
	s.fetcher.AssertNotCalled(s.T(), "Fetch", mock.Anything, mock.Anything)
}

func (s *RetailServiceSuite) TestTables() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	names, err := s.service.Tables(context.Background(), LoadRequest{})
	s.Require().NoError(err)
	s.Equal([]string{
		"Retail Sales",
		"M-M Pct Change", "M-M Change",
		"Q-Q Pct Change", "Q-Q Change",
		"Y-Y Pct Change", "Y-Y Change",
		"OHLC MM", "OHLC QQ", "OHLC YY",
	}, names)
}

func (s *RetailServiceSuite) TestExport_Workbook() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	dl, err := s.service.Export(context.Background(), LoadRequest{})
	s.Require().NoError(err)
	s.Equal(exporter.WorkbookFileName, dl.Name)
	s.Equal(exporter.WorkbookMIME, dl.MIME)

	f, err := excelize.OpenReader(bytes.NewReader(dl.Data))
	s.Require().NoError(err)
	defer f.Close()
	s.Len(f.GetSheetList(), 10)
	s.Equal("Retail Sales", f.GetSheetList()[0])

	v, err := f.GetCellValue("Retail Sales", "B15")
	s.Require().NoError(err)
	s.Equal("550", v)
}

func (s *RetailServiceSuite) TestExport_FailedFetchHasNoDownload() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).
		Return(nil, apperrors.NewNetworkError("census api request failed", &census.StatusError{StatusCode: 500})).Once()

	dl, err := s.service.Export(context.Background(), LoadRequest{})
	s.Require().Error(err)
	s.Nil(dl)
}

func (s *RetailServiceSuite) TestExportTable_CSV() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	dl, err := s.service.ExportTable(context.Background(), LoadRequest{}, "Retail Sales")
	s.Require().NoError(err)
	s.Equal("Retail_Sales.csv", dl.Name)
	s.Equal(exporter.CSVMIME, dl.MIME)

	body := strings.TrimPrefix(string(dl.Data), "\ufeff")
	lines := strings.Split(strings.TrimSpace(body), "\n")
	s.Equal("Date,RetailTotal,AutoParts", strings.TrimSpace(lines[0]))
	s.Equal("2023-01-01,500,100", strings.TrimSpace(lines[1]))
	s.Len(lines, 15)
}

func (s *RetailServiceSuite) TestExportTable_UnknownTable() {
	s.fetcher.On("Fetch", mock.Anything, s.defaultQ).Return(salesFixture(s.T()), nil).Once()

	_, err := s.service.ExportTable(context.Background(), LoadRequest{}, "nope")
	s.ErrorIs(err, ErrTableNotFound)
}

func TestRetailService_FetchFailureHidesKey(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	logger, logs := testutil.NewTestLogger(t)
	cfg := config.Default()
	cfg.Census.BaseURL = addr
	cfg.Census.APIKey = "SUPERSECRETKEY123"
	cfg.Census.RateLimitRPS = 0

	notes := &recorder{}
	client := census.NewClient(cfg.Census, census.WithLogger(logger), census.WithNotifier(notes))
	svc := NewRetailService(client, testCategories(), cfg, logger, WithStatusNotifier(notes))

	_, err := svc.Load(context.Background(), LoadRequest{From: 2020, To: 2021})
	require.Error(t, err)

	require.NotEmpty(t, notes.messages())
	for _, msg := range notes.messages() {
		assert.NotContains(t, msg, "SUPERSECRETKEY123")
	}
	assert.Equal(t, "Data request failed: census api unreachable", notes.last().Message)
	for _, rec := range logs.GetRecords() {
		assert.NotContains(t, fmt.Sprint(rec.Attrs), "SUPERSECRETKEY123")
	}
}

func TestRetailService_RecordsExportMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := infrastructure.CreateBusinessMetrics(provider.Meter("test"))
	require.NoError(t, err)

	fetcher := &MockFetcher{}
	fetcher.On("Fetch", mock.Anything, mock.Anything).Return(salesFixture(t), nil)
	svc := NewRetailService(fetcher, testCategories(), config.Default(), nil, WithBusinessMetrics(metrics))

	_, err = svc.Export(context.Background(), LoadRequest{})
	require.NoError(t, err)
	_, err = svc.ExportTable(context.Background(), LoadRequest{}, "OHLC MM")
	require.NoError(t, err)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	formats := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "retail_exports_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				f, _ := dp.Attributes.Value("format")
				formats[f.AsString()] += dp.Value
			}
		}
	}
	assert.Equal(t, map[string]int64{"xlsx": 1, "csv": 1}, formats)
}

func TestCSVFileName(t *testing.T) {
	tests := []struct {
		table string
		want  string
	}{
		{"Retail Sales", "Retail_Sales.csv"},
		{"M-M Pct Change", "M-M_Pct_Change.csv"},
		{"a/b", "a_b.csv"},
		{"", "Sheet.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.table, func(t *testing.T) {
			assert.Equal(t, tt.want, CSVFileName(tt.table))
		})
	}
}
