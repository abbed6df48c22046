// cmd/membership/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "membership")
	if err != nil {
		log.Fatalf("Failed to start membership service: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	es := journal.New()
	svc := membership.NewService(es,
		membership.WithLogger(logger),
		membership.WithRateLimit(cfg.Membership.RegistrationsPerMinute, cfg.Membership.RegistrationBurst),
	)

	router := server.NewRouter("membership", logger)
	membership.NewHandler(svc).Routes(router)
	journal.NewHandler(es).Routes(router)

	fmt.Printf("🚀 Starting Membership Service on port %s\n", cfg.Server.Port)
	if err := server.Run(ctx, ":"+cfg.Server.Port, router, logger); err != nil {
		log.Fatalf("Membership service stopped: %v", err)
	}
}
