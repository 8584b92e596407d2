package scraper

import (
	"errors"

	"github.com/aluiziolira/go-book-warehouse/extract"
	"github.com/aluiziolira/go-book-warehouse/fetcher"
)

// errorTypeLabel buckets crawl failures for logs and metrics.
func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var downgrade *fetcher.DowngradeError
	if errors.As(err, &downgrade) {
		return "downgrade"
	}
	var network *fetcher.NetworkError
	if errors.As(err, &network) {
		return "network"
	}
	var extraction *extract.ExtractionError
	if errors.As(err, &extraction) {
		return "extraction"
	}
	return "other"
}
