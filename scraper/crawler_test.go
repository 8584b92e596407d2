package scraper

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/aluiziolira/go-book-warehouse/config"
	"github.com/aluiziolira/go-book-warehouse/fetcher"
	"github.com/aluiziolira/go-book-warehouse/models"
)

// memStore is an in-memory Persister with the same idempotence contract as
// the relational store: first write wins, duplicate links collapse.
type memStore struct {
	mu         sync.Mutex
	nextID     int64
	categories map[string]int64
	books      map[string]*models.Book
	links      map[[2]int64]struct{}
}

func newMemStore() *memStore {
	return &memStore{
		categories: make(map[string]int64),
		books:      make(map[string]*models.Book),
		links:      make(map[[2]int64]struct{}),
	}
}

func (m *memStore) UpsertCategory(_ context.Context, name, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.categories[name]; ok {
		return id, nil
	}
	m.nextID++
	m.categories[name] = m.nextID
	return m.nextID, nil
}

func (m *memStore) UpsertBook(_ context.Context, b *models.Book) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.books[b.UPC]; ok {
		return existing.ID, nil
	}
	m.nextID++
	stored := *b
	stored.ID = m.nextID
	m.books[b.UPC] = &stored
	return m.nextID, nil
}

func (m *memStore) LinkBookCategory(_ context.Context, bookID, categoryID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links[[2]int64{bookID, categoryID}] = struct{}{}
	return nil
}

func indexPage(categories map[string]string) string {
	items := ""
	for name, href := range categories {
		items += fmt.Sprintf(`<li><a href=%q>%s</a></li>`, href, name)
	}
	return `<html><body><div class="side_categories"><ul><li><a href="catalogue/category/books_1/index.html">Books</a><ul>` +
		items + `</ul></li></ul></div></body></html>`
}

func listingPage(bookHrefs []string, nextHref string) string {
	body := ""
	for _, href := range bookHrefs {
		body += fmt.Sprintf(`<article class="product_pod"><h3><a href=%q>t</a></h3></article>`, href)
	}
	if nextHref != "" {
		body += fmt.Sprintf(`<ul class="pager"><li class="next"><a href=%q>next</a></li></ul>`, nextHref)
	}
	return "<html><body>" + body + "</body></html>"
}

func detailPage(title, upc string) string {
	return fmt.Sprintf(`<html><body><h1>%s</h1><p class="star-rating Four"></p>
<table class="table table-striped">
<tr><th>UPC</th><td>%s</td></tr>
<tr><th>Price (excl. tax)</th><td>£10.00</td></tr>
<tr><th>Tax</th><td>£0.50</td></tr>
<tr><th>Availability</th><td>In stock (3 available)</td></tr>
<tr><th>Number of reviews</th><td>2</td></tr>
</table></body></html>`, title, upc)
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.BaseURL = "http://books.test/index.html"
	cfg.Parallelism = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 5 * time.Millisecond
	return cfg
}

func newTestCrawler(t *testing.T, cfg *config.Config, transport *httpmock.MockTransport, store Persister) *Crawler {
	t.Helper()
	policy := fetcher.DefaultRetryPolicy()
	policy.Backoff = cfg.RetryBackoff
	policy.BackoffMax = cfg.RetryBackoffMax
	f := fetcher.New(5*time.Second, policy, cfg.UserAgent).WithTransport(transport)
	c, err := New(cfg, f, store)
	if err != nil {
		t.Fatalf("new crawler: %v", err)
	}
	return c
}

func registerSingleCategorySite(transport *httpmock.MockTransport) {
	transport.RegisterResponder("GET", "http://books.test/index.html",
		httpmock.NewStringResponder(200, indexPage(map[string]string{
			"Travel": "catalogue/category/books/travel_2/index.html",
		})))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/travel_2/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../test-book_1/index.html"}, "")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/test-book_1/index.html",
		httpmock.NewStringResponder(200, detailPage("Test Book", "abc123")))
}

func TestCrawlEndToEnd(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerSingleCategorySite(transport)
	store := newMemStore()

	c := newTestCrawler(t, testConfig(), transport, store)
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Categories != 1 || len(result.FailedCategories) != 0 {
		t.Errorf("categories = %d (failed %v), want 1 with none failed", result.Categories, result.FailedCategories)
	}
	if result.Pages != 1 || result.Books != 1 {
		t.Errorf("pages = %d books = %d, want 1 and 1", result.Pages, result.Books)
	}
	if len(store.categories) != 1 || len(store.books) != 1 || len(store.links) != 1 {
		t.Fatalf("stored rows = %d/%d/%d, want 1/1/1", len(store.categories), len(store.books), len(store.links))
	}

	book := store.books["abc123"]
	if book == nil {
		t.Fatalf("book abc123 not stored")
	}
	if book.Title != "Test Book" {
		t.Errorf("title = %q", book.Title)
	}
	if book.Rating == nil || *book.Rating != 4 {
		t.Errorf("rating = %v, want 4", book.Rating)
	}
	if book.Stock != 3 || book.PriceExclTax != 10.00 || book.Tax != 0.50 || book.ReviewCount != 2 {
		t.Errorf("fields = stock %d price %v tax %v reviews %d",
			book.Stock, book.PriceExclTax, book.Tax, book.ReviewCount)
	}
}

func TestCrawlRepeatedRunAddsNoRows(t *testing.T) {
	transport := httpmock.NewMockTransport()
	registerSingleCategorySite(transport)
	store := newMemStore()

	for run := 0; run < 2; run++ {
		// A fresh crawler per run models a process restart: only the store
		// remembers what was already seen.
		c := newTestCrawler(t, testConfig(), transport, store)
		if _, err := c.Run(context.Background()); err != nil {
			t.Fatalf("run %d: %v", run+1, err)
		}
	}

	if len(store.categories) != 1 || len(store.books) != 1 || len(store.links) != 1 {
		t.Errorf("stored rows = %d/%d/%d after re-run, want 1/1/1",
			len(store.categories), len(store.books), len(store.links))
	}
}

func TestCrawlFollowsPagination(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/index.html",
		httpmock.NewStringResponder(200, indexPage(map[string]string{
			"Travel": "catalogue/category/books/travel_2/index.html",
		})))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/travel_2/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../book-one_1/index.html"}, "page-2.html")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/travel_2/page-2.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../book-two_2/index.html"}, "")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/book-one_1/index.html",
		httpmock.NewStringResponder(200, detailPage("Book One", "upc1")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/book-two_2/index.html",
		httpmock.NewStringResponder(200, detailPage("Book Two", "upc2")))

	store := newMemStore()
	c := newTestCrawler(t, testConfig(), transport, store)
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Pages != 2 {
		t.Errorf("pages = %d, want 2", result.Pages)
	}
	if len(store.books) != 2 {
		t.Errorf("books = %d, want 2", len(store.books))
	}
}

func TestCrawlIsolatesCategoryFailures(t *testing.T) {
	transport := httpmock.NewMockTransport()
	transport.RegisterResponder("GET", "http://books.test/index.html",
		httpmock.NewStringResponder(200, indexPage(map[string]string{
			"Travel":  "catalogue/category/books/travel_2/index.html",
			"Mystery": "catalogue/category/books/mystery_3/index.html",
		})))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/travel_2/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../broken_1/index.html"}, "")))
	// Detail page with the UPC label missing: structural breakage, fatal
	// for the category, not retried.
	transport.RegisterResponder("GET", "http://books.test/catalogue/broken_1/index.html",
		httpmock.NewStringResponder(200, `<html><body><h1>Broken</h1><p class="star-rating One"></p>
<table class="table table-striped"><tr><th>Tax</th><td>£0.00</td></tr></table></body></html>`))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/mystery_3/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../fine_2/index.html"}, "")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/fine_2/index.html",
		httpmock.NewStringResponder(200, detailPage("Fine Book", "fine2")))

	store := newMemStore()
	c := newTestCrawler(t, testConfig(), transport, store)
	result, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Categories != 1 {
		t.Errorf("succeeded categories = %d, want 1", result.Categories)
	}
	if len(result.FailedCategories) != 1 || result.FailedCategories[0] != "Travel" {
		t.Errorf("failed categories = %v, want [Travel]", result.FailedCategories)
	}
	if result.ErrorsByType["extraction"] != 1 {
		t.Errorf("errors = %v, want one extraction error", result.ErrorsByType)
	}
	if _, ok := store.books["fine2"]; !ok {
		t.Errorf("healthy category's book was not persisted")
	}
	// Both categories were discovered and persisted even though one crawl
	// failed.
	if len(store.categories) != 2 {
		t.Errorf("categories = %d, want 2", len(store.categories))
	}
}

func TestCrawlSharedBookFetchedOnce(t *testing.T) {
	transport := httpmock.NewMockTransport()
	bookURL := "http://books.test/catalogue/shared_1/index.html"
	transport.RegisterResponder("GET", "http://books.test/index.html",
		httpmock.NewStringResponder(200, indexPage(map[string]string{
			"Travel":  "catalogue/category/books/travel_2/index.html",
			"Mystery": "catalogue/category/books/mystery_3/index.html",
		})))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/travel_2/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../shared_1/index.html"}, "")))
	transport.RegisterResponder("GET", "http://books.test/catalogue/category/books/mystery_3/index.html",
		httpmock.NewStringResponder(200, listingPage([]string{"../../../shared_1/index.html"}, "")))
	transport.RegisterResponder("GET", bookURL,
		httpmock.NewStringResponder(200, detailPage("Shared Book", "shared1")))

	store := newMemStore()
	c := newTestCrawler(t, testConfig(), transport, store)
	if _, err := c.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(store.books) != 1 {
		t.Fatalf("books = %d, want 1", len(store.books))
	}
	if len(store.links) != 2 {
		t.Errorf("links = %d, want one per category", len(store.links))
	}
	if calls := transport.GetCallCountInfo()["GET "+bookURL]; calls != 1 {
		t.Errorf("detail page fetched %d times, want 1", calls)
	}
}
