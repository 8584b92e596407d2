// Package models defines data structures shared across the crawler.
package models

import "time"

// Category is a catalog category discovered on the index page. Identity is
// the unique name; the stored row is created once and never updated.
type Category struct {
	ID   int64
	Name string
	URL  string
}

// Book is one catalog entry scraped from its detail page. Identity is the
// site-assigned UPC; repeated sightings of the same UPC are no-ops.
type Book struct {
	ID           int64
	UPC          string
	Title        string
	Description  *string
	PriceExclTax float64
	Tax          float64
	Availability string
	Stock        int
	ReviewCount  int
	Rating       *int
	URL          string
}

// CrawlResult holds the overall outcome of a crawl run.
type CrawlResult struct {
	StartTime        time.Time
	EndTime          time.Time
	Categories       int
	FailedCategories []string
	Pages            int
	Books            int
	RequestCount     int
	RetryCount       int
	ErrorsByType     map[string]int
}
