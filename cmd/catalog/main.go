// cmd/catalog/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"librastacks/internal/catalog"
	"librastacks/internal/journal"
	"librastacks/internal/server"
	"librastacks/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "catalog")
	if err != nil {
		log.Fatalf("Failed to start catalog service: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	es := journal.New()
	root := storage.NewRoot(cfg.Storage.CabinetID, cfg.Storage.Shelves, cfg.Storage.SlotsPerShelf)
	svc := catalog.NewService(root, es,
		catalog.WithLogger(logger),
		catalog.WithStrictBookLinking(cfg.Catalog.StrictBookLinking),
	)

	router := server.NewRouter("catalog", logger)
	catalog.NewHandler(svc).Routes(router)
	journal.NewHandler(es).Routes(router)

	fmt.Printf("🚀 Starting Catalog Service on port %s\n", cfg.Server.Port)
	if err := server.Run(ctx, ":"+cfg.Server.Port, router, logger); err != nil {
		log.Fatalf("Catalog service stopped: %v", err)
	}
}
