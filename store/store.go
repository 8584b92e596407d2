// Package store is the idempotent persistence layer over the transactional
// Postgres database. Every operation is safe to repeat with identical
// arguments; the store, not the process, decides what has already been seen.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-book-warehouse/models"
)

// uniqueViolation is the Postgres error code for a rejected duplicate key.
const uniqueViolation = "23505"

// DB is the subset of pgxpool.Pool the store needs. Tests substitute an
// in-memory fake.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store executes the upsert contract against the relational schema.
type Store struct {
	db DB
}

// New wraps an open database handle.
func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pgx connection pool for the given DSN.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// CreateSchema creates the three tables if absent. The DDL is the store's
// only persisted contract.
func (s *Store) CreateSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS category (
			category_id SERIAL PRIMARY KEY,
			name VARCHAR(255) UNIQUE,
			url TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS book (
			book_id SERIAL PRIMARY KEY,
			upc VARCHAR(255) UNIQUE,
			title TEXT,
			description TEXT,
			price_no_tax NUMERIC,
			tax NUMERIC,
			availability TEXT,
			stock INT,
			number_of_reviews INT,
			rating INT
		)`,
		`CREATE TABLE IF NOT EXISTS bookxcategory (
			book_id INT REFERENCES book(book_id),
			category_id INT REFERENCES category(category_id),
			PRIMARY KEY (book_id, category_id)
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// UpsertCategory inserts the category if its name is new and returns the
// stored id either way. The first write wins; later sightings only resolve
// the identity.
func (s *Store) UpsertCategory(ctx context.Context, name, url string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO category (name, url) VALUES ($1, $2)
		 ON CONFLICT (name) DO NOTHING
		 RETURNING category_id`,
		name, url).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !conflict(err) {
		return 0, fmt.Errorf("insert category %q: %w", name, err)
	}

	err = s.db.QueryRow(ctx, `SELECT category_id FROM category WHERE name = $1`, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve category %q: %w", name, err)
	}
	return id, nil
}

// UpsertBook inserts the book keyed by UPC and returns the stored id. A
// conflicting insert reads the existing identity back; the stored row keeps
// the first insert's values.
func (s *Store) UpsertBook(ctx context.Context, b *models.Book) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx,
		`INSERT INTO book (upc, title, description, price_no_tax, tax, availability, stock, number_of_reviews, rating)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (upc) DO NOTHING
		 RETURNING book_id`,
		b.UPC, b.Title, b.Description, b.PriceExclTax, b.Tax,
		b.Availability, b.Stock, b.ReviewCount, b.Rating).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !conflict(err) {
		return 0, fmt.Errorf("insert book %q: %w", b.UPC, err)
	}

	err = s.db.QueryRow(ctx, `SELECT book_id FROM book WHERE upc = $1`, b.UPC).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("resolve book %q: %w", b.UPC, err)
	}
	return id, nil
}

// LinkBookCategory records that the book appears under the category. The
// association has a composite primary key, so repeats are no-ops.
func (s *Store) LinkBookCategory(ctx context.Context, bookID, categoryID int64) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO bookxcategory (book_id, category_id) VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		bookID, categoryID)
	if err != nil && !conflict(err) {
		return fmt.Errorf("link book %d to category %d: %w", bookID, categoryID, err)
	}
	return nil
}

// conflict reports whether err is the expected "already exists" signal: no
// RETURNING row from a conflict-skipped insert, or a duplicate key rejected
// by a concurrent writer. Both mean "go read the existing identity back".
func conflict(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
