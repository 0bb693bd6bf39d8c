package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/aluiziolira/go-scrape-excerpts/browser"
	"github.com/aluiziolira/go-scrape-excerpts/config"
	"github.com/aluiziolira/go-scrape-excerpts/models"
	"github.com/aluiziolira/go-scrape-excerpts/operator"
	"github.com/aluiziolira/go-scrape-excerpts/pipeline"
	"github.com/aluiziolira/go-scrape-excerpts/scraper"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const sampleSize = 5

// flagValues holds every override flag; only flags the user set are applied.
var flagValues struct {
	startURL    string
	baseURL     string
	pages       int
	step        int
	pageFormat  string
	output      string
	format      string
	minDelay    time.Duration
	maxDelay    time.Duration
	engine      string
	headless    bool
	strict      bool
	metricsAddr string
}

var crawlCmd = &cobra.Command{
	Use:   "crawl",
	Short: "Walks the listing pages in a browser and exports the collected stories.",
	Args:  cobra.NoArgs,
	RunE:  runCrawl,
}

func init() {
	defaults := config.DefaultConfig()
	f := crawlCmd.Flags()
	f.StringVar(&flagValues.startURL, "start-url", defaults.StartURL, "First listing page")
	f.StringVar(&flagValues.baseURL, "base-url", defaults.BaseURL, "Base URL for resolving story links")
	f.IntVar(&flagValues.pages, "pages", defaults.MaxPages, "Maximum listing pages to visit")
	f.IntVar(&flagValues.step, "step", defaults.PageStep, "Items per listing page (offset step)")
	f.StringVar(&flagValues.pageFormat, "page-format", defaults.PageURLFormat, "Page URL format using {start}, {offset} and {page}")
	f.StringVar(&flagValues.output, "output", defaults.OutputFile, "Output file path")
	f.StringVar(&flagValues.format, "format", defaults.OutputFormat, "Output formats, comma-separated: xlsx, csv, json")
	f.DurationVar(&flagValues.minDelay, "min-delay", defaults.MinDelay.Duration, "Minimum delay between pages")
	f.DurationVar(&flagValues.maxDelay, "max-delay", defaults.MaxDelay.Duration, "Maximum delay between pages")
	f.StringVar(&flagValues.engine, "engine", defaults.Engine, "Browser engine: playwright, chromedp or static")
	f.BoolVar(&flagValues.headless, "headless", defaults.Headless, "Run the browser without a window")
	f.BoolVar(&flagValues.strict, "strict", defaults.StrictAdjacency, "Require labels to touch their numbers")
	f.StringVar(&flagValues.metricsAddr, "metrics-addr", defaults.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	rootCmd.AddCommand(crawlCmd)
}

// applyFlags copies changed flags onto c. Flags the command does not define are ignored.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("start-url") {
		c.StartURL = flagValues.startURL
	}
	if fs.Changed("base-url") {
		c.BaseURL = flagValues.baseURL
	}
	if fs.Changed("pages") {
		c.MaxPages = flagValues.pages
	}
	if fs.Changed("step") {
		c.PageStep = flagValues.step
	}
	if fs.Changed("page-format") {
		c.PageURLFormat = flagValues.pageFormat
	}
	if fs.Changed("output") {
		c.OutputFile = flagValues.output
	}
	if fs.Changed("format") {
		c.OutputFormat = flagValues.format
	}
	if fs.Changed("min-delay") {
		c.MinDelay = config.DurationFrom(flagValues.minDelay)
	}
	if fs.Changed("max-delay") {
		c.MaxDelay = config.DurationFrom(flagValues.maxDelay)
	}
	if fs.Changed("engine") {
		c.Engine = flagValues.engine
	}
	if fs.Changed("headless") {
		c.Headless = flagValues.headless
	}
	if fs.Changed("strict") {
		c.StrictAdjacency = flagValues.strict
	}
	if fs.Changed("metrics-addr") {
		c.MetricsAddr = flagValues.metricsAddr
	}
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	slog.Info("starting crawl",
		slog.String("start_url", cfg.StartURL),
		slog.Int("pages", cfg.MaxPages),
		slog.Int("step", cfg.PageStep),
		slog.String("engine", cfg.Engine),
	)

	session, err := browser.Launch(ctx, browser.Options{
		Engine:            cfg.Engine,
		Headless:          cfg.Headless,
		NavigationTimeout: cfg.NavigationTimeout.Duration,
	})
	if err != nil {
		return fmt.Errorf("launch browser: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	page, err := session.NewPage(ctx, cfg.UserAgent)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}

	gate := operator.NewTerminal(cmd.InOrStdin(), cmd.OutOrStdout())
	crawler, err := scraper.NewCrawler(cfg, page, gate)
	if err != nil {
		return fmt.Errorf("initialising crawler: %w", err)
	}

	stopMetrics := startMetricsServer(cfg.MetricsAddr, crawler.Metrics)
	defer stopMetrics()

	result, runErr := crawler.Run(ctx)
	return finishCrawl(ctx, cmd.OutOrStdout(), result, runErr)
}

// finishCrawl exports the accumulated stories and prints the report. A navigation failure
// aborts without export; an interrupted crawl still exports what it collected.
func finishCrawl(ctx context.Context, out io.Writer, result *models.CrawlResult, runErr error) error {
	if runErr != nil {
		slog.Error("crawl stopped early", slog.Any("error", runErr))
	}
	if result == nil {
		return runErr
	}
	if runErr != nil && ctx.Err() == nil && result.StopReason == models.StopFailed {
		slog.Error("navigation failed, nothing exported",
			slog.Int("discarded", len(result.Stories)),
			slog.String("last_url", result.LastURL),
		)
		return runErr
	}

	if len(result.Stories) == 0 {
		slog.Info("no stories collected", slog.String("stop_reason", string(result.StopReason)))
		printSummary(out, result, nil, nil)
		return runErr
	}

	paths, stats, err := export(result.Stories)
	if err != nil {
		return errors.Join(runErr, err)
	}
	printSample(out, result.Stories, sampleSize)
	printSummary(out, result, paths, stats)
	return runErr
}

// export writes stories to every configured format and returns the written paths.
func export(stories []*models.Story) ([]string, map[string]interface{}, error) {
	writer, err := pipeline.NewMultiWriter(cfg.OutputFile, cfg.Formats()...)
	if err != nil {
		return nil, nil, fmt.Errorf("creating writer: %w", err)
	}

	p, err := pipeline.NewPipeline(writer, pipeline.Options{
		BatchSize:     cfg.BatchSize,
		DedupeMaxSize: cfg.DedupeMaxSize,
	})
	if err != nil {
		writer.Close()
		return nil, nil, err
	}

	if err := p.Process(stories...); err != nil {
		return nil, nil, errors.Join(err, p.Close())
	}
	if err := p.Close(); err != nil {
		return nil, nil, fmt.Errorf("pipeline shutdown failed: %w", err)
	}
	if err := writer.Validate(); err != nil {
		return nil, nil, fmt.Errorf("output validation failed: %w", err)
	}

	p.LogSummary()
	return writer.Paths(), p.GetMetrics(), nil
}

func startMetricsServer(addr string, metrics *scraper.Metrics) func() {
	if addr == "" || metrics == nil {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server failed", slog.Any("error", err))
		}
	}()
	slog.Info("metrics server enabled", slog.String("addr", addr))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
	}
}
