// Command warehouse migrates the normalized catalog tables into the star
// schema of the analytical store.
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

	src, err := store.Connect(ctx, cfg.TransactionalDSN())
	if err != nil {
		slog.Error("connecting to transactional store", slog.Any("error", err))
		os.Exit(1)
	}
	defer src.Close()

	dw, err := store.Connect(ctx, cfg.WarehouseDSN())
	if err != nil {
		slog.Error("connecting to warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	defer dw.Close()

	if err := warehouse.NewLoader(src, dw).Run(ctx); err != nil {
		slog.Error("warehouse load failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("warehouse load complete")
}
