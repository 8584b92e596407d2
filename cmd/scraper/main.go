package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-book-warehouse/config"
	"github.com/aluiziolira/go-book-warehouse/fetcher"
	"github.com/aluiziolira/go-book-warehouse/models"
	"github.com/aluiziolira/go-book-warehouse/scraper"
	"github.com/aluiziolira/go-book-warehouse/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}

	baseURL := flag.String("base-url", cfg.BaseURL, "Catalog base URL to crawl")
	parallelism := flag.Int("parallel", cfg.Parallelism, "Concurrent book-detail fetches per page")
	timeout := flag.Duration("timeout", cfg.Timeout, "Per-request timeout")
	maxAttempts := flag.Int("max-attempts", cfg.MaxAttempts, "Request attempts before giving up")
	retryBackoff := flag.Duration("retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	retryBackoffMax := flag.Duration("retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	requestRate := flag.Float64("rate", cfg.RequestRate, "Requests per second (0 = unlimited)")
	metricsAddr := flag.String("metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")
	flag.Parse()

	cfg.BaseURL = *baseURL
	cfg.Parallelism = *parallelism
	cfg.Timeout = *timeout
	cfg.MaxAttempts = *maxAttempts
	cfg.RetryBackoff = *retryBackoff
	cfg.RetryBackoffMax = *retryBackoffMax
	cfg.RequestRate = *requestRate
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.TransactionalDSN())
	if err != nil {
		slog.Error("connecting to store", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	st := store.New(pool)
	if err := st.CreateSchema(ctx); err != nil {
		slog.Error("creating schema", slog.Any("error", err))
		os.Exit(1)
	}

	policy := fetcher.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.MaxAttempts
	policy.Backoff = cfg.RetryBackoff
	policy.BackoffMax = cfg.RetryBackoffMax
	f := fetcher.New(cfg.Timeout, policy, cfg.UserAgent)

	crawler, err := scraper.New(cfg, f, st)
	if err != nil {
		slog.Error("initialising crawler", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(crawler.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	slog.Info("starting crawl",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("parallel", cfg.Parallelism),
	)

	result, err := crawler.Run(ctx)
	if err != nil {
		slog.Error("crawl failed", slog.Any("error", err))
		os.Exit(1)
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	printSummary(result)
}

func printSummary(result *models.CrawlResult) {
	separator := "--------------------------------------------------"
	duration := result.EndTime.Sub(result.StartTime)
	booksPerSec := 0.0
	if duration.Seconds() > 0 {
		booksPerSec = float64(result.Books) / duration.Seconds()
	}

	fmt.Println("\n" + separator)
	fmt.Println("Crawl complete")
	fmt.Printf("  Categories:    %d crawled, %d failed\n", result.Categories, len(result.FailedCategories))
	if len(result.FailedCategories) > 0 {
		fmt.Printf("  Failed:        %v\n", result.FailedCategories)
	}
	fmt.Printf("  Pages:         %d\n", result.Pages)
	fmt.Printf("  Books:         %d\n", result.Books)
	fmt.Printf("  Requests:      %d\n", result.RequestCount)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:      %v\n", duration)
	fmt.Printf("  Books/sec:     %.2f\n", booksPerSec)
	fmt.Println(separator)
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
