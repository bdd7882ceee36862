package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"retailsales/internal/census"
	"retailsales/internal/config"
	"retailsales/internal/shared/testutil"
	"retailsales/pkg/contracts"
)

var fixedNow = func() time.Time { return time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC) }

func newStubConfig(t *testing.T, status int) *config.Config {
	t.Helper()

	rows := testutil.SalesSeries(t, "44X72", "2024-01", 500, 510, 520, 530)
	body := testutil.CensusJSON(t, testutil.NewRawTable(rows...))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Census.BaseURL = srv.URL
	cfg.Census.RateLimitRPS = 0
	return cfg
}

func TestParseFlags(t *testing.T) {
	cfg := config.Default()

	tests := []struct {
		name    string
		args    []string
		want    options
		wantErr string
	}{
		{
			name: "defaults",
			args: nil,
			want: options{from: 2000, to: 2026, adjusted: "yes", out: "Retail_Sales_Data.xlsx", table: "Retail Sales"},
		},
		{
			name: "csv output name follows table",
			args: []string{"-csv", "-table", "Y-Y Pct Change", "-adjusted", "NO"},
			want: options{from: 2000, to: 2026, adjusted: "no", out: "Y-Y_Pct_Change.csv", table: "Y-Y Pct Change", csv: true},
		},
		{
			name:    "year before series",
			args:    []string{"-from", "1985"},
			wantErr: "-from",
		},
		{
			name:    "inverted range",
			args:    []string{"-from", "2020", "-to", "2010"},
			wantErr: "-to",
		},
		{
			name:    "bad adjusted",
			args:    []string{"-adjusted", "maybe"},
			wantErr: "-adjusted",
		},
		{
			name:    "stray argument",
			args:    []string{"extra"},
			wantErr: "unexpected arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stderr bytes.Buffer
			got, err := parseFlags(tt.args, cfg, fixedNow(), &stderr)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_WritesWorkbook(t *testing.T) {
	cfg := newStubConfig(t, http.StatusOK)
	logger, _ := testutil.NewTestLogger(t)
	out := filepath.Join(t.TempDir(), "nested", "marts.xlsx")

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-from", "2024", "-out", out}, cfg, logger, &stderr, fixedNow)
	require.NoError(t, err)

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.Len(t, f.GetSheetList(), 10)

	msgs := stderr.String()
	assert.Contains(t, msgs, "[warning] "+census.MsgMissingKey)
	assert.Contains(t, msgs, census.MsgRequestComplete)
	assert.Contains(t, msgs, "wrote "+out)
}

func TestRun_WritesTableCSV(t *testing.T) {
	cfg := newStubConfig(t, http.StatusOK)
	logger, _ := testutil.NewTestLogger(t)
	out := filepath.Join(t.TempDir(), "mm.csv")

	var stderr bytes.Buffer
	err := run(context.Background(),
		[]string{"-key", "abc", "-from", "2024", "-csv", "-table", "M-M Change", "-out", out},
		cfg, logger, &stderr, fixedNow)
	require.NoError(t, err)
	assert.NotContains(t, stderr.String(), census.MsgMissingKey)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	records, err := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "\ufeff"))).ReadAll()
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, "RetailTotal", records[0][1])
}

func TestRun_UpstreamError(t *testing.T) {
	cfg := newStubConfig(t, http.StatusInternalServerError)
	logger, _ := testutil.NewTestLogger(t)
	out := filepath.Join(t.TempDir(), "never.xlsx")

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-from", "2024", "-out", out}, cfg, logger, &stderr, fixedNow)
	require.Error(t, err)
	assert.Contains(t, stderr.String(), "[error] Data request failed")
	assert.NoFileExists(t, out)
}

func TestRun_Version(t *testing.T) {
	cfg := config.Default()
	logger, _ := testutil.NewTestLogger(t)

	var stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version", "-from", "1900"}, cfg, logger, &stderr, fixedNow))
	assert.Contains(t, stderr.String(), "martsexport "+contracts.Version)
}

func TestRun_UnknownTable(t *testing.T) {
	cfg := newStubConfig(t, http.StatusOK)
	logger, _ := testutil.NewTestLogger(t)

	var stderr bytes.Buffer
	err := run(context.Background(), []string{"-from", "2024", "-csv", "-table", "Nope", "-out", filepath.Join(t.TempDir(), "x.csv")},
		cfg, logger, &stderr, fixedNow)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Nope")
}
