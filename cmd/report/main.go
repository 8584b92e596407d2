// Command report answers the fixed analytical questions against the
// warehouse and prints the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/aluiziolira/go-book-warehouse/config"
	"github.com/aluiziolira/go-book-warehouse/store"
	"github.com/aluiziolira/go-book-warehouse/warehouse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dw, err := store.Connect(ctx, cfg.WarehouseDSN())
	if err != nil {
		slog.Error("connecting to warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer dw.Close()

	if err := run(ctx, warehouse.NewReporter(dw)); err != nil {
		slog.Error("reporting failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, r *warehouse.Reporter) error {
	count, err := r.CategoryCount(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Number of book categories: %d\n", count)

	perCategory, err := r.BooksPerCategory(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nBooks per category:")
	for _, row := range perCategory {
		fmt.Printf("  %s: %d\n", row.Category, row.Books)
	}

	expensive, err := r.MostExpensiveBook(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("\nMost expensive book: %s at £%.2f\n", expensive.Title, expensive.Price)

	multi, err := r.BooksInMultipleCategories(ctx)
	if err != nil {
		return err
	}
	if len(multi) == 0 {
		fmt.Println("\nNo book appears in more than one category.")
	} else {
		fmt.Println("\nBooks in more than one category:")
		for _, row := range multi {
			fmt.Printf("  %s: %d categories\n", row.Title, row.Categories)
		}
	}

	cheapest, err := r.CheapestPerCategory(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nCheapest book(s) per category:")
	for _, row := range cheapest {
		fmt.Printf("  %s: %s at £%.2f\n", row.Category, row.Title, row.Price)
	}

	comparisons, err := r.PriceVsCategoryAverage(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nPrice vs category average:")
	for _, row := range comparisons {
		fmt.Printf("  %s - %s: price £%.2f, category average £%.2f, difference £%+.2f\n",
			row.Category, row.Title, row.Price, row.CategoryAvg, row.Difference)
	}

	revenue, err := r.TopRevenuePerCategory(ctx)
	if err != nil {
		return err
	}
	fmt.Println("\nTop potential revenue per category (all stock sold):")
	for _, row := range revenue {
		fmt.Printf("  %s: %s with £%.2f\n", row.Category, row.Title, row.Revenue)
	}

	return nil
}
