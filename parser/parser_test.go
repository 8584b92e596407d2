package parser

import "testing"

func TestRating(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
		present  bool
	}{
		{name: "One", input: "One", expected: 1, present: true},
		{name: "Two", input: "Two", expected: 2, present: true},
		{name: "Three", input: "Three", expected: 3, present: true},
		{name: "Four", input: "Four", expected: 4, present: true},
		{name: "Five", input: "Five", expected: 5, present: true},
		{name: "padded token", input: "  Four  ", expected: 4, present: true},
		{name: "unknown token", input: "Six", present: false},
		{name: "lowercase", input: "three", present: false},
		{name: "empty string", input: "", present: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, ok := Rating(tt.input)
			if ok != tt.present {
				t.Fatalf("Rating(%q) present = %v, want %v", tt.input, ok, tt.present)
			}
			if ok && value != tt.expected {
				t.Errorf("Rating(%q) = %d, want %d", tt.input, value, tt.expected)
			}
		})
	}
}

func TestStock(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int
	}{
		{name: "in stock", input: "In stock (20 available)", expected: 20},
		{name: "single copy", input: "In stock (1 available)", expected: 1},
		{name: "no pattern", input: "In stock", expected: 0},
		{name: "out of stock", input: "Out of stock", expected: 0},
		{name: "empty string", input: "", expected: 0},
		{name: "pattern embedded", input: "available now! In stock (3 available) hurry", expected: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Stock(tt.input); got != tt.expected {
				t.Errorf("Stock(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected float64
	}{
		{name: "currency symbol", input: "£51.77", expected: 51.77},
		{name: "mojibake prefix", input: "Â£51.77", expected: 51.77},
		{name: "already clean", input: "25.99", expected: 25.99},
		{name: "surrounding noise", input: " £ 99.99 £ ", expected: 99.99},
		{name: "no digits", input: "free", expected: 0},
		{name: "empty string", input: "", expected: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Price(tt.input); got != tt.expected {
				t.Errorf("Price(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}
