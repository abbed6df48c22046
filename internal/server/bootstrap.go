// internal/server/bootstrap.go
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"librastacks/internal/config"
	"librastacks/internal/telemetry"
)

// ConfigPathEnv names the variable holding an optional YAML config file.
const ConfigPathEnv = "ISB_CONFIG"

// defaultPorts keeps separately deployed services off each other's port. The
// client and gateway defaults point at these.
var defaultPorts = map[string]string{
	"gateway":     "8080",
	"catalog":     "8081",
	"circulation": "8082",
	"membership":  "8083",
}

// DefaultPort is the port a service listens on unless configured otherwise.
func DefaultPort(service string) string {
	if port, ok := defaultPorts[service]; ok {
		return port
	}
	return defaultPorts["gateway"]
}

// Bootstrap loads configuration and sets up logging and tracing for one
// binary. The returned func flushes telemetry.
func Bootstrap(ctx context.Context, service string) (*config.Config, *slog.Logger, func(context.Context) error, error) {
	cfg, err := config.Load(os.Getenv(ConfigPathEnv), config.WithDefault("server.port", DefaultPort(service)))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("build logger: %w", err)
	}
	logger = logger.With("service", service)
	slog.SetDefault(logger)

	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName + "-" + service,
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		Insecure:     cfg.Telemetry.Insecure,
	})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("set up telemetry: %w", err)
	}
	return cfg, logger, shutdown, nil
}
