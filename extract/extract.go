// Package extract turns fetched catalog pages into structured records using
// the site's fixed selectors.
package extract

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-book-warehouse/models"
	"github.com/aluiziolira/go-book-warehouse/parser"
)

// Required labels of the detail-page product table.
const (
	labelUPC          = "UPC"
	labelPriceExclTax = "Price (excl. tax)"
	labelTax          = "Tax"
	labelAvailability = "Availability"
	labelReviews      = "Number of reviews"
)

// ExtractionError reports a page whose structure did not match the expected
// shape. It is fatal for that page: retrying an unchanged malformed page
// cannot succeed.
type ExtractionError struct {
	Page    string
	Missing string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: missing %q", e.Page, e.Missing)
}

// CategoryRef is a category name and its absolute listing URL, in page order.
type CategoryRef struct {
	Name string
	URL  string
}

// Parse builds a queryable document from page text.
func Parse(body string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Categories reads the nested side navigation of the index page. Order
// follows the page and is only used for crawl sequencing.
func Categories(doc *goquery.Document, base *url.URL) []CategoryRef {
	var refs []CategoryRef
	doc.Find("div.side_categories ul li ul li a").Each(func(_ int, s *goquery.Selection) {
		name := strings.TrimSpace(s.Text())
		href, ok := s.Attr("href")
		if name == "" || !ok {
			return
		}
		refs = append(refs, CategoryRef{Name: name, URL: absolute(base, href)})
	})
	return refs
}

// BookURLs returns the absolute detail URL of every book teaser on a
// category listing page, in page order.
func BookURLs(doc *goquery.Document, base *url.URL) []string {
	var urls []string
	doc.Find("article.product_pod h3 a").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		urls = append(urls, absolute(base, href))
	})
	return urls
}

// NextPage resolves the pagination link. ok is false on the last page.
func NextPage(doc *goquery.Document, base *url.URL) (next string, ok bool) {
	href, found := doc.Find("li.next a").First().Attr("href")
	if !found {
		return "", false
	}
	return absolute(base, href), true
}

// BookDetail reads a single book's detail page. The title comes from the
// first heading, the optional description from the sibling of the
// description anchor, the rating from the star-rating class token, and the
// remaining fields from the label→value product table.
func BookDetail(doc *goquery.Document, pageURL string) (*models.Book, error) {
	book := &models.Book{
		Title: strings.TrimSpace(doc.Find("h1").First().Text()),
		URL:   pageURL,
	}

	if p := doc.Find("#product_description ~ p").First(); p.Length() > 0 {
		text := strings.TrimSpace(p.Text())
		book.Description = &text
	}

	star := doc.Find("p.star-rating").First()
	if star.Length() == 0 {
		return nil, &ExtractionError{Page: pageURL, Missing: "star-rating"}
	}
	if rating, ok := parser.Rating(ratingToken(star)); ok {
		book.Rating = &rating
	}

	table := map[string]string{}
	doc.Find("table.table.table-striped tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if label != "" {
			table[label] = value
		}
	})
	for _, label := range []string{labelUPC, labelPriceExclTax, labelTax, labelAvailability, labelReviews} {
		if _, ok := table[label]; !ok {
			return nil, &ExtractionError{Page: pageURL, Missing: label}
		}
	}

	book.UPC = table[labelUPC]
	book.PriceExclTax = parser.Price(table[labelPriceExclTax])
	book.Tax = parser.Price(table[labelTax])
	book.Availability = table[labelAvailability]
	book.Stock = parser.Stock(book.Availability)
	if n, err := strconv.Atoi(table[labelReviews]); err == nil {
		book.ReviewCount = n
	}

	return book, nil
}

// ratingToken returns the second class of the star-rating element, e.g.
// "Three" from class="star-rating Three".
func ratingToken(star *goquery.Selection) string {
	class, _ := star.Attr("class")
	fields := strings.Fields(class)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

// absolute resolves href against the page URL, collapsing relative segments
// such as "../../../" the way a browser would.
func absolute(base *url.URL, href string) string {
	if base == nil {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
