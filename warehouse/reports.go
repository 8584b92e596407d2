package warehouse

import (
	"context"
	"fmt"
)

// Reporter answers the fixed analytical questions against the star schema.
// Every query is read-only.
type Reporter struct {
	db DB
}

// NewReporter wraps the warehouse database.
func NewReporter(db DB) *Reporter {
	return &Reporter{db: db}
}

// CategoryBookCount is one row of the books-per-category report.
type CategoryBookCount struct {
	Category string
	Books    int64
}

// PricedBook is a book title with a total (price + tax) value.
type PricedBook struct {
	Title string
	Price float64
}

// MultiCategoryBook is a book appearing under more than one category.
type MultiCategoryBook struct {
	Title      string
	Categories int64
}

// CategoryBookPrice is a priced book within its category.
type CategoryBookPrice struct {
	Category string
	Title    string
	Price    float64
}

// PriceComparison relates one book's price to its category average.
type PriceComparison struct {
	Category    string
	Title       string
	Price       float64
	CategoryAvg float64
	Difference  float64
}

// CategoryRevenue is the top potential revenue book of a category.
type CategoryRevenue struct {
	Category string
	Title    string
	Revenue  float64
}

// CategoryCount answers: how many categories exist?
func (r *Reporter) CategoryCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM dim_category`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count categories: %w", err)
	}
	return count, nil
}

// BooksPerCategory answers: how many books per category? The LEFT JOIN keeps
// categories with zero books in the result.
func (r *Reporter) BooksPerCategory(ctx context.Context) ([]CategoryBookCount, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.name, COUNT(fb.book_key) AS num_books
		FROM dim_category dc
		LEFT JOIN fact_book fb ON dc.category_key = fb.category_key
		GROUP BY dc.name
		ORDER BY num_books DESC`)
	if err != nil {
		return nil, fmt.Errorf("books per category: %w", err)
	}
	defer rows.Close()

	var out []CategoryBookCount
	for rows.Next() {
		var row CategoryBookCount
		if err := rows.Scan(&row.Category, &row.Books); err != nil {
			return nil, fmt.Errorf("scan books per category: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// MostExpensiveBook answers: which book has the highest price including tax?
func (r *Reporter) MostExpensiveBook(ctx context.Context) (*PricedBook, error) {
	var book PricedBook
	err := r.db.QueryRow(ctx, `
		SELECT db.title, MAX(fb.price_no_tax + fb.tax) AS max_price
		FROM dim_book db
		JOIN fact_book fb ON db.book_key = fb.book_key
		GROUP BY db.title
		ORDER BY max_price DESC
		LIMIT 1`).Scan(&book.Title, &book.Price)
	if err != nil {
		return nil, fmt.Errorf("most expensive book: %w", err)
	}
	return &book, nil
}

// BooksInMultipleCategories answers: is any book filed under more than one
// category?
func (r *Reporter) BooksInMultipleCategories(ctx context.Context) ([]MultiCategoryBook, error) {
	rows, err := r.db.Query(ctx, `
		SELECT db.title, COUNT(DISTINCT fb.category_key) AS category_count
		FROM dim_book db
		JOIN fact_book fb ON db.book_key = fb.book_key
		GROUP BY db.title
		HAVING COUNT(DISTINCT fb.category_key) > 1`)
	if err != nil {
		return nil, fmt.Errorf("books in multiple categories: %w", err)
	}
	defer rows.Close()

	var out []MultiCategoryBook
	for rows.Next() {
		var row MultiCategoryBook
		if err := rows.Scan(&row.Title, &row.Categories); err != nil {
			return nil, fmt.Errorf("scan multi-category book: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// CheapestPerCategory answers: which book is cheapest in each category?
// Ties are all returned.
func (r *Reporter) CheapestPerCategory(ctx context.Context) ([]CategoryBookPrice, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.name, db.title, (fb.price_no_tax + fb.tax) AS total_price
		FROM dim_category dc
		JOIN fact_book fb ON dc.category_key = fb.category_key
		JOIN dim_book db ON fb.book_key = db.book_key
		WHERE (dc.category_key, (fb.price_no_tax + fb.tax)) IN (
			SELECT dc2.category_key, MIN(fb2.price_no_tax + fb2.tax)
			FROM dim_category dc2
			JOIN fact_book fb2 ON dc2.category_key = fb2.category_key
			GROUP BY dc2.category_key
		)
		ORDER BY dc.name, total_price`)
	if err != nil {
		return nil, fmt.Errorf("cheapest per category: %w", err)
	}
	defer rows.Close()

	var out []CategoryBookPrice
	for rows.Next() {
		var row CategoryBookPrice
		if err := rows.Scan(&row.Category, &row.Title, &row.Price); err != nil {
			return nil, fmt.Errorf("scan cheapest per category: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PriceVsCategoryAverage answers: how much cheaper or dearer is each book
// than its category average? The window function keeps individual rows
// while exposing the per-category mean.
func (r *Reporter) PriceVsCategoryAverage(ctx context.Context) ([]PriceComparison, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.name, db.title,
			(fb.price_no_tax + fb.tax) AS book_price,
			AVG(fb.price_no_tax + fb.tax) OVER (PARTITION BY dc.category_key) AS avg_category_price,
			((fb.price_no_tax + fb.tax) - AVG(fb.price_no_tax + fb.tax) OVER (PARTITION BY dc.category_key)) AS price_difference
		FROM dim_category dc
		JOIN fact_book fb ON dc.category_key = fb.category_key
		JOIN dim_book db ON fb.book_key = db.book_key
		ORDER BY dc.name, db.title`)
	if err != nil {
		return nil, fmt.Errorf("price vs category average: %w", err)
	}
	defer rows.Close()

	var out []PriceComparison
	for rows.Next() {
		var row PriceComparison
		if err := rows.Scan(&row.Category, &row.Title, &row.Price, &row.CategoryAvg, &row.Difference); err != nil {
			return nil, fmt.Errorf("scan price comparison: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// TopRevenuePerCategory answers: assuming current stock sells out, which
// book yields the most revenue in each category?
func (r *Reporter) TopRevenuePerCategory(ctx context.Context) ([]CategoryRevenue, error) {
	rows, err := r.db.Query(ctx, `
		SELECT dc.name, db.title, (fb.price_no_tax + fb.tax) * fb.stock AS potential_revenue
		FROM dim_category dc
		JOIN fact_book fb ON dc.category_key = fb.category_key
		JOIN dim_book db ON fb.book_key = db.book_key
		WHERE (dc.category_key, (fb.price_no_tax + fb.tax) * fb.stock) IN (
			SELECT dc2.category_key, MAX((fb2.price_no_tax + fb2.tax) * fb2.stock)
			FROM dim_category dc2
			JOIN fact_book fb2 ON dc2.category_key = fb2.category_key
			GROUP BY dc2.category_key
		)
		ORDER BY dc.name, potential_revenue DESC`)
	if err != nil {
		return nil, fmt.Errorf("top revenue per category: %w", err)
	}
	defer rows.Close()

	var out []CategoryRevenue
	for rows.Next() {
		var row CategoryRevenue
		if err := rows.Scan(&row.Category, &row.Title, &row.Revenue); err != nil {
			return nil, fmt.Errorf("scan top revenue: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
