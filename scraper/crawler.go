// Package scraper drives the crawl: category discovery, per-category
// pagination, and per-book detail processing.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/aluiziolira/go-book-warehouse/config"
	"github.com/aluiziolira/go-book-warehouse/extract"
	"github.com/aluiziolira/go-book-warehouse/fetcher"
	"github.com/aluiziolira/go-book-warehouse/models"
)

// seenCacheSize bounds the detail-URL cache; the demo catalog holds about a
// thousand books.
const seenCacheSize = 4096

// Persister is the subset of the store the crawler depends on. All three
// operations are idempotent, which is what makes parallel book fetches and
// repeated crawl runs safe.
type Persister interface {
	UpsertCategory(ctx context.Context, name, url string) (int64, error)
	UpsertBook(ctx context.Context, b *models.Book) (int64, error)
	LinkBookCategory(ctx context.Context, bookID, categoryID int64) error
}

// PageFetcher retrieves one page, retries included.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// Crawler walks the catalog and feeds the persistence layer.
type Crawler struct {
	cfg     *config.Config
	fetcher PageFetcher
	store   Persister
	limiter *rate.Limiter
	seen    *lru.Cache[string, int64]
	Metrics *Metrics

	requestCount int64
	retryCount   int64
	pageCount    int64
	bookCount    int64

	mu           sync.Mutex
	errorsByType map[string]int
}

// New builds a crawler around a fetcher and a persistence layer.
func New(cfg *config.Config, f PageFetcher, p Persister) (*Crawler, error) {
	seen, err := lru.New[string, int64](seenCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create seen cache: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestRate), 1)
	}

	return &Crawler{
		cfg:          cfg,
		fetcher:      f,
		store:        p,
		limiter:      limiter,
		seen:         seen,
		Metrics:      NewMetrics(),
		errorsByType: make(map[string]int),
	}, nil
}

// Run crawls the whole catalog once. A failure inside one category abandons
// that category's remaining pages; the other categories proceed
// independently. Only the initial index fetch and persistence failures are
// fatal for the run.
func (c *Crawler) Run(ctx context.Context) (*models.CrawlResult, error) {
	start := time.Now()

	page, err := c.get(ctx, c.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("fetch category index: %w", err)
	}
	doc, err := extract.Parse(page.Body)
	if err != nil {
		return nil, fmt.Errorf("parse category index: %w", err)
	}
	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, fmt.Errorf("parse index url: %w", err)
	}

	categories := extract.Categories(doc, base)
	if len(categories) == 0 {
		return nil, fmt.Errorf("category index %s lists no categories", page.URL)
	}
	slog.Info("discovered categories", slog.Int("count", len(categories)))

	result := &models.CrawlResult{StartTime: start}
	for _, cat := range categories {
		if ctx.Err() != nil {
			break
		}

		categoryID, err := c.store.UpsertCategory(ctx, cat.Name, cat.URL)
		if err != nil {
			return nil, fmt.Errorf("persist category %q: %w", cat.Name, err)
		}

		slog.Info("crawling category", slog.String("name", cat.Name))
		if err := c.crawlCategory(ctx, cat, categoryID); err != nil {
			c.countError(err)
			result.FailedCategories = append(result.FailedCategories, cat.Name)
			slog.Error("category crawl abandoned",
				slog.String("category", cat.Name),
				slog.String("error_type", errorTypeLabel(err)),
				slog.Any("error", err),
			)
			continue
		}
		result.Categories++
	}

	result.EndTime = time.Now()
	result.Pages = int(atomic.LoadInt64(&c.pageCount))
	result.Books = int(atomic.LoadInt64(&c.bookCount))
	result.RequestCount = int(atomic.LoadInt64(&c.requestCount))
	result.RetryCount = int(atomic.LoadInt64(&c.retryCount))
	result.ErrorsByType = c.snapshotErrors()
	return result, nil
}

// crawlCategory follows the pagination chain of one category. The only
// pagination state is the current page URL.
func (c *Crawler) crawlCategory(ctx context.Context, cat extract.CategoryRef, categoryID int64) error {
	pageURL := cat.URL
	for {
		page, err := c.get(ctx, pageURL)
		if err != nil {
			return err
		}
		doc, err := extract.Parse(page.Body)
		if err != nil {
			return err
		}
		base, err := url.Parse(page.URL)
		if err != nil {
			return err
		}

		if err := c.processBooks(ctx, extract.BookURLs(doc, base), categoryID); err != nil {
			return err
		}
		atomic.AddInt64(&c.pageCount, 1)
		c.Metrics.IncPages()

		next, ok := extract.NextPage(doc, base)
		if !ok {
			return nil
		}
		pageURL = next
	}
}

// processBooks handles one listing page's books over cfg.Parallelism
// workers. The first failure is reported after the page's workers drain and
// abandons the category; books already persisted stay put.
func (c *Crawler) processBooks(ctx context.Context, bookURLs []string, categoryID int64) error {
	workers := c.cfg.Parallelism
	if workers < 1 {
		workers = 1
	}

	sem := make(chan struct{}, workers)
	errCh := make(chan error, len(bookURLs))
	var wg sync.WaitGroup

	for _, bookURL := range bookURLs {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(bookURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			if err := c.processBook(ctx, bookURL, categoryID); err != nil {
				errCh <- fmt.Errorf("book %s: %w", bookURL, err)
			}
		}(bookURL)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		return err
	}
	return ctx.Err()
}

// processBook fetches, extracts, and persists a single book, then links it
// to the enclosing category. A book already seen in this run skips the
// fetch; only the link is added.
func (c *Crawler) processBook(ctx context.Context, bookURL string, categoryID int64) error {
	if bookID, ok := c.seen.Get(bookURL); ok {
		return c.store.LinkBookCategory(ctx, bookID, categoryID)
	}

	page, err := c.get(ctx, bookURL)
	if err != nil {
		return err
	}
	doc, err := extract.Parse(page.Body)
	if err != nil {
		return err
	}
	book, err := extract.BookDetail(doc, page.URL)
	if err != nil {
		return err
	}

	bookID, err := c.store.UpsertBook(ctx, book)
	if err != nil {
		return err
	}
	c.seen.Add(bookURL, bookID)
	atomic.AddInt64(&c.bookCount, 1)
	c.Metrics.IncBooks()

	slog.Debug("persisted book",
		slog.String("upc", book.UPC),
		slog.String("title", book.Title),
	)
	return c.store.LinkBookCategory(ctx, bookID, categoryID)
}

// get fetches one page with rate pacing and records request accounting.
func (c *Crawler) get(ctx context.Context, pageURL string) (*fetcher.Page, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	page, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		attempts := 1
		var netErr *fetcher.NetworkError
		if errors.As(err, &netErr) && netErr.Attempts > 0 {
			attempts = netErr.Attempts
		}
		c.account(attempts)
		c.Metrics.IncError(errorTypeLabel(err))
		return nil, err
	}

	c.account(page.Attempts)
	c.Metrics.ObserveDuration(time.Since(start))
	return page, nil
}

func (c *Crawler) account(attempts int) {
	atomic.AddInt64(&c.requestCount, int64(attempts))
	c.Metrics.AddRequests(attempts)
	if attempts > 1 {
		atomic.AddInt64(&c.retryCount, int64(attempts-1))
		c.Metrics.AddRetries(attempts - 1)
	}
}

func (c *Crawler) countError(err error) {
	label := errorTypeLabel(err)
	c.mu.Lock()
	c.errorsByType[label]++
	c.mu.Unlock()
}

func (c *Crawler) snapshotErrors() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorsByType))
	for k, v := range c.errorsByType {
		out[k] = v
	}
	return out
}
