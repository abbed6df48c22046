// cmd/circulation/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librastacks/internal/circulation"
	"librastacks/internal/clients"
	"librastacks/internal/journal"
	"librastacks/internal/notification"
	"librastacks/internal/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "circulation")
	if err != nil {
		log.Fatalf("Failed to start circulation service: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	catalogServiceURL := cfg.Remote.CatalogURL
	if catalogServiceURL == "" {
		catalogServiceURL = "http://localhost:" + server.DefaultPort("catalog")
	}
	membershipServiceURL := cfg.Remote.MembershipURL
	if membershipServiceURL == "" {
		membershipServiceURL = "http://localhost:" + server.DefaultPort("membership")
	}

	es := journal.New()
	catalogClient := clients.NewCatalogClient(catalogServiceURL, clients.WithLogger(logger))
	membershipClient := clients.NewMembershipClient(membershipServiceURL, clients.WithLogger(logger))

	dispatcher := notification.NewDispatcher(notification.NewLogNotifier(logger), cfg.Notification.Workers, cfg.Notification.QueueSize, logger)
	svc := circulation.NewService(catalogClient, membershipClient, es,
		circulation.WithLogger(logger),
		circulation.WithMaxLoans(cfg.Circulation.MaxLoans),
		circulation.WithReservationHold(cfg.Circulation.ReservationHold()),
		circulation.WithNotifier(dispatcher),
	)
	go circulation.RunExpiryChecker(ctx, svc, cfg.Circulation.ExpiryCheckInterval, logger)

	router := server.NewRouter("circulation", logger)
	circulation.NewHandler(svc, cfg.Circulation.LoanPeriod()).Routes(router)
	journal.NewHandler(es).Routes(router)

	fmt.Printf("🚀 Starting Circulation Service on port %s\n", cfg.Server.Port)
	fmt.Printf("   catalog: %s, membership: %s\n", catalogServiceURL, membershipServiceURL)
	if err := server.Run(ctx, ":"+cfg.Server.Port, router, logger); err != nil {
		log.Fatalf("Circulation service stopped: %v", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn("notification queue not drained", "error", err)
	}
}
