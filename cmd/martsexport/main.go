// Command martsexport fetches the MARTS retail sales series once and writes
// the derived tables to an Excel workbook, or a single table to CSV.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"retailsales/internal/census"
	"retailsales/internal/config"
	apierrors "retailsales/internal/errors"
	"retailsales/internal/exporter"
	"retailsales/internal/infrastructure"
	"retailsales/internal/lookup"
	mw "retailsales/internal/middleware"
	"retailsales/internal/services"
	"retailsales/pkg/contracts"
	api "retailsales/pkg/contracts/api/v1"
	"retailsales/pkg/contracts/events"
)

// options holds the parsed command line
type options struct {
	key      string
	from     int
	to       int
	adjusted string
	out      string
	table    string
	csv      bool
	version  bool
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}
	defer infrastructure.CloseLogFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], cfg, logger, os.Stderr, time.Now); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, cfg *config.Config, now time.Time, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("martsexport", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.key, "key", "", "Census API key (defaults to MARTS_CENSUS_API_KEY)")
	fs.IntVar(&o.from, "from", cfg.Census.DefaultFromYear, "first year to request")
	fs.IntVar(&o.to, "to", now.Year(), "last year to request")
	fs.StringVar(&o.adjusted, "adjusted", cfg.Pipeline.Adjusted, "seasonally adjusted series: yes | no")
	fs.StringVar(&o.out, "out", "", "output path (defaults to "+exporter.WorkbookFileName+" or <table>.csv)")
	fs.StringVar(&o.table, "table", "Retail Sales", "table to write with -csv")
	fs.BoolVar(&o.csv, "csv", false, "write one table as CSV instead of the workbook")
	fs.BoolVar(&o.version, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() > 0 {
		return o, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if o.version {
		return o, nil
	}

	o.adjusted = strings.ToLower(strings.TrimSpace(o.adjusted))
	q := api.DatasetQuery{From: o.from, To: o.to, Adjusted: o.adjusted}
	if err := mw.NewRequestValidator().ValidateStruct(q); err != nil {
		return o, flagError(err)
	}

	if o.out == "" {
		o.out = exporter.WorkbookFileName
		if o.csv {
			o.out = services.CSVFileName(o.table)
		}
	}
	return o, nil
}

// flagError lists the failed fields of a validation error on one line
func flagError(err error) error {
	details, ok := apierrors.ValidationDetails(err)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(details.Errors))
	for _, fe := range details.Errors {
		msgs = append(msgs, "-"+fe.Field+": "+fe.Message)
	}
	return fmt.Errorf("invalid flags: %s", strings.Join(msgs, "; "))
}

func run(ctx context.Context, args []string, cfg *config.Config, logger *slog.Logger, stderr io.Writer, now func() time.Time) error {
	o, err := parseFlags(args, cfg, now(), stderr)
	if err != nil {
		return err
	}
	if o.version {
		fmt.Fprintln(stderr, contracts.VersionString("martsexport"))
		return nil
	}
	ctx = infrastructure.EnsureTraceID(ctx)

	categories, err := lookup.LoadCategories(cfg.Assets.CategoriesFile)
	if err != nil {
		return err
	}

	status := census.NotifierFunc(func(_ context.Context, n events.Notification) {
		fmt.Fprintf(stderr, "[%s] %s\n", n.Level, n.Message)
	})

	client := census.NewClient(cfg.Census,
		census.WithNotifier(status),
		census.WithLogger(logger),
		census.WithNow(now))
	svc := services.NewRetailService(client, categories, cfg, logger,
		services.WithStatusNotifier(status),
		services.WithClock(now))

	req := services.LoadRequest{APIKey: o.key, From: o.from, To: o.to, Adjusted: o.adjusted}

	var dl *services.Download
	if o.csv {
		dl, err = svc.ExportTable(ctx, req, o.table)
	} else {
		dl, err = svc.Export(ctx, req)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(o.out); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}
	if err := os.WriteFile(o.out, dl.Data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", o.out, err)
	}

	logger.InfoContext(ctx, "export written",
		slog.String("path", o.out),
		slog.Int("bytes", len(dl.Data)))
	fmt.Fprintf(stderr, "wrote %s (%d bytes)\n", o.out, len(dl.Data))
	return nil
}
