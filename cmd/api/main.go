// cmd/api/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"librastacks/internal/gateway"
	"librastacks/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "gateway")
	if err != nil {
		log.Fatalf("Failed to start API gateway: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	up := gateway.Upstreams{
		Catalog:     orDefault(cfg.Remote.CatalogURL, "http://localhost:"+server.DefaultPort("catalog")),
		Circulation: orDefault(cfg.Remote.CirculationURL, "http://localhost:"+server.DefaultPort("circulation")),
		Membership:  orDefault(cfg.Remote.MembershipURL, "http://localhost:"+server.DefaultPort("membership")),
	}

	router := server.NewRouter("gateway", logger)
	if err := gateway.Mount(router, up, logger); err != nil {
		log.Fatalf("Failed to configure API gateway: %v", err)
	}

	fmt.Printf("🚀 API Gateway listening on port %s\n", cfg.Server.Port)
	if err := server.Run(ctx, ":"+cfg.Server.Port, router, logger); err != nil {
		log.Fatalf("API gateway stopped: %v", err)
	}
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}
