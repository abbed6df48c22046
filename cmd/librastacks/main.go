// cmd/librastacks/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"librastacks/internal/catalog"
	"librastacks/internal/circulation"
	"librastacks/internal/clients"
	"librastacks/internal/journal"
	"librastacks/internal/membership"
	"librastacks/internal/notification"
	"librastacks/internal/server"
	"librastacks/internal/storage"
)

// librastacks runs every service in one process under the gateway's
// /api/v1 prefixes. Setting remote.catalog_url or remote.membership_url
// swaps that service for a client of a separate deployment.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, shutdownTelemetry, err := server.Bootstrap(ctx, "librastacks")
	if err != nil {
		log.Fatalf("Failed to start LibraStacks: %v", err)
	}
	defer shutdownTelemetry(context.Background())

	es := journal.New()
	router := server.NewRouter("librastacks", logger)

	var cat circulation.Catalog
	if cfg.Remote.CatalogURL != "" {
		cat = clients.NewCatalogClient(cfg.Remote.CatalogURL, clients.WithLogger(logger))
	} else {
		root := storage.NewRoot(cfg.Storage.CabinetID, cfg.Storage.Shelves, cfg.Storage.SlotsPerShelf)
		svc := catalog.NewService(root, es,
			catalog.WithLogger(logger),
			catalog.WithStrictBookLinking(cfg.Catalog.StrictBookLinking),
		)
		router.Route("/api/v1/catalog", catalog.NewHandler(svc).Routes)
		cat = svc
	}

	var accounts circulation.Accounts
	if cfg.Remote.MembershipURL != "" {
		accounts = clients.NewMembershipClient(cfg.Remote.MembershipURL, clients.WithLogger(logger))
	} else {
		svc := membership.NewService(es,
			membership.WithLogger(logger),
			membership.WithRateLimit(cfg.Membership.RegistrationsPerMinute, cfg.Membership.RegistrationBurst),
		)
		router.Route("/api/v1/members", membership.NewHandler(svc).Routes)
		accounts = svc
	}

	dispatcher := notification.NewDispatcher(notification.NewLogNotifier(logger), cfg.Notification.Workers, cfg.Notification.QueueSize, logger)
	circ := circulation.NewService(cat, accounts, es,
		circulation.WithLogger(logger),
		circulation.WithMaxLoans(cfg.Circulation.MaxLoans),
		circulation.WithReservationHold(cfg.Circulation.ReservationHold()),
		circulation.WithNotifier(dispatcher),
	)
	go circulation.RunExpiryChecker(ctx, circ, cfg.Circulation.ExpiryCheckInterval, logger)

	router.Route("/api/v1/circulation", circulation.NewHandler(circ, cfg.Circulation.LoanPeriod()).Routes)
	router.Route("/api/v1/journal", journal.NewHandler(es).Routes)

	fmt.Printf("🚀 Starting LibraStacks on port %s\n", cfg.Server.Port)
	if err := server.Run(ctx, ":"+cfg.Server.Port, router, logger); err != nil {
		log.Fatalf("LibraStacks stopped: %v", err)
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn("notification queue not drained", "error", err)
	}
}
