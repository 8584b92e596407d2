// Package parser converts raw page text into typed field values. Every
// function is total: unparseable input degrades to a zero value or an
// absent flag, never an error.
package parser

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	stockPattern = regexp.MustCompile(`\((\d+) available\)`)
	priceStrip   = regexp.MustCompile(`[^0-9.]`)
)

// Rating maps the textual star-rating token to 1..5. Unknown tokens are
// reported as absent, not as errors.
func Rating(token string) (int, bool) {
	switch strings.TrimSpace(token) {
	case "One":
		return 1, true
	case "Two":
		return 2, true
	case "Three":
		return 3, true
	case "Four":
		return 4, true
	case "Five":
		return 5, true
	default:
		return 0, false
	}
}

// Stock extracts N from availability text like "In stock (20 available)".
// Text without the pattern yields 0.
func Stock(text string) int {
	match := stockPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return n
}

// Price strips everything that is not a digit or decimal point (currency
// symbols, mojibake such as "Â£") and parses the remainder. An empty
// remainder yields 0.
func Price(text string) float64 {
	clean := priceStrip.ReplaceAllString(text, "")
	if clean == "" {
		return 0
	}
	value, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	return value
}
