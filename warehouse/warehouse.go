// Package warehouse migrates the normalized catalog tables into a star
// schema in the analytical store and answers the fixed reporting questions
// against it.
package warehouse

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgxpool.Pool the warehouse needs. Tests substitute
// recording fakes.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Loader copies the transactional tables into the dimensional schema.
// Re-runs are idempotent: dimension rows conflict-skip on their natural
// keys, facts on the (book, category) pair.
type Loader struct {
	src DB
	dw  DB
}

// NewLoader wires the transactional source and the warehouse destination.
func NewLoader(src, dw DB) *Loader {
	return &Loader{src: src, dw: dw}
}

// CreateSchema creates the dimensional tables if absent.
func (l *Loader) CreateSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS dim_book (
			book_key SERIAL PRIMARY KEY,
			book_id INT UNIQUE,
			upc VARCHAR(255),
			title TEXT,
			description TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS dim_category (
			category_key SERIAL PRIMARY KEY,
			category_id INT UNIQUE,
			name VARCHAR(255),
			url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS fact_book (
			fact_id SERIAL PRIMARY KEY,
			book_key INT REFERENCES dim_book(book_key),
			category_key INT REFERENCES dim_category(category_key),
			price_no_tax NUMERIC,
			tax NUMERIC,
			stock INT,
			number_of_reviews INT,
			rating INT,
			UNIQUE (book_key, category_key)
		)`,
	}
	for _, stmt := range statements {
		if _, err := l.dw.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create warehouse schema: %w", err)
		}
	}
	return nil
}

// Run performs the full ETL pass: schema, dimensions, then facts.
func (l *Loader) Run(ctx context.Context) error {
	if err := l.CreateSchema(ctx); err != nil {
		return err
	}
	if err := l.LoadDimCategories(ctx); err != nil {
		return err
	}
	if err := l.LoadDimBooks(ctx); err != nil {
		return err
	}
	return l.LoadFacts(ctx)
}

// LoadDimCategories copies category rows into dim_category, keyed by the
// transactional category_id.
func (l *Loader) LoadDimCategories(ctx context.Context) error {
	rows, err := l.src.Query(ctx, `SELECT category_id, name, url FROM category`)
	if err != nil {
		return fmt.Errorf("read categories: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id   int64
			name string
			url  string
		)
		if err := rows.Scan(&id, &name, &url); err != nil {
			return fmt.Errorf("scan category: %w", err)
		}
		if _, err := l.dw.Exec(ctx,
			`INSERT INTO dim_category (category_id, name, url) VALUES ($1, $2, $3)
			 ON CONFLICT (category_id) DO NOTHING`,
			id, name, url); err != nil {
			return fmt.Errorf("load dim_category %d: %w", id, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate categories: %w", err)
	}
	slog.Info("loaded category dimension", slog.Int("rows", count))
	return nil
}

// LoadDimBooks copies book rows into dim_book, keyed by the transactional
// book_id.
func (l *Loader) LoadDimBooks(ctx context.Context) error {
	rows, err := l.src.Query(ctx, `SELECT book_id, upc, title, description FROM book`)
	if err != nil {
		return fmt.Errorf("read books: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id          int64
			upc         string
			title       string
			description *string
		)
		if err := rows.Scan(&id, &upc, &title, &description); err != nil {
			return fmt.Errorf("scan book: %w", err)
		}
		if _, err := l.dw.Exec(ctx,
			`INSERT INTO dim_book (book_id, upc, title, description) VALUES ($1, $2, $3, $4)
			 ON CONFLICT (book_id) DO NOTHING`,
			id, upc, title, description); err != nil {
			return fmt.Errorf("load dim_book %d: %w", id, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate books: %w", err)
	}
	slog.Info("loaded book dimension", slog.Int("rows", count))
	return nil
}

// LoadFacts builds one fact row per book×category link, carrying the
// numeric measures and resolving dimension keys inside the insert.
func (l *Loader) LoadFacts(ctx context.Context) error {
	rows, err := l.src.Query(ctx, `
		SELECT bc.book_id, bc.category_id, b.price_no_tax, b.tax, b.stock, b.number_of_reviews, b.rating
		FROM bookxcategory bc
		JOIN book b ON b.book_id = bc.book_id`)
	if err != nil {
		return fmt.Errorf("read facts: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			bookID     int64
			categoryID int64
			price      float64
			tax        float64
			stock      int
			reviews    int
			rating     *int
		)
		if err := rows.Scan(&bookID, &categoryID, &price, &tax, &stock, &reviews, &rating); err != nil {
			return fmt.Errorf("scan fact: %w", err)
		}
		if _, err := l.dw.Exec(ctx,
			`INSERT INTO fact_book (book_key, category_key, price_no_tax, tax, stock, number_of_reviews, rating)
			 SELECT bdim.book_key, cdim.category_key, $1, $2, $3, $4, $5
			 FROM dim_book bdim
			 JOIN dim_category cdim ON cdim.category_id = $6
			 WHERE bdim.book_id = $7
			 ON CONFLICT (book_key, category_key) DO NOTHING`,
			price, tax, stock, reviews, rating, categoryID, bookID); err != nil {
			return fmt.Errorf("load fact for book %d category %d: %w", bookID, categoryID, err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate facts: %w", err)
	}
	slog.Info("loaded fact table", slog.Int("rows", count))
	return nil
}
