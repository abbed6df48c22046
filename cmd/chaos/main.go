// cmd/chaos/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librastacks/internal/chaos"
	"librastacks/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "chaos")
	if err != nil {
		log.Fatalf("Failed to start chaos run: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	lib := chaos.NewLibrary(cfg.Storage.Shelves, cfg.Storage.SlotsPerShelf, logger)
	engine := chaos.NewEngine(
		chaos.WithSampleInterval(250*time.Millisecond),
		chaos.WithPause(time.Second),
	)
	chaos.RegisterDrills(engine, lib, 2*time.Second)

	gameDay := chaos.GameDay{
		Name:      "Weekly Chaos Game Day",
		Date:      time.Now(),
		Scenarios: engine.Experiments(),
	}

	if err := engine.ExecuteGameDay(ctx, gameDay); err != nil {
		log.Fatalf("Chaos Game Day failed: %v", err)
	}
}
