// internal/config/config.go

// Package config loads librastacks settings from defaults, an optional YAML
// file and ISB_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "ISB"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Storage      StorageConfig      `mapstructure:"storage"`
	Catalog      CatalogConfig      `mapstructure:"catalog"`
	Circulation  CirculationConfig  `mapstructure:"circulation"`
	Membership   MembershipConfig   `mapstructure:"membership"`
	Notification NotificationConfig `mapstructure:"notification"`
	Telemetry    TelemetryConfig    `mapstructure:"telemetry"`
	Log          LogConfig          `mapstructure:"log"`
	Remote       RemoteConfig       `mapstructure:"remote"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

// StorageConfig fixes the shape of the cabinet at startup.
type StorageConfig struct {
	CabinetID     string `mapstructure:"cabinet_id"`
	Shelves       int    `mapstructure:"shelves"`
	SlotsPerShelf int    `mapstructure:"slots_per_shelf"`
}

type CatalogConfig struct {
	StrictBookLinking bool `mapstructure:"strict_book_linking"`
}

type CirculationConfig struct {
	MaxLoans            int           `mapstructure:"max_loans"`
	LoanPeriodDays      int           `mapstructure:"loan_period_days"`
	ReservationHoldDays int           `mapstructure:"reservation_hold_days"`
	ExpiryCheckInterval time.Duration `mapstructure:"expiry_check_interval"`
}

// LoanPeriod is the default time between issue and due date.
func (c CirculationConfig) LoanPeriod() time.Duration {
	return time.Duration(c.LoanPeriodDays) * 24 * time.Hour
}

func (c CirculationConfig) ReservationHold() time.Duration {
	return time.Duration(c.ReservationHoldDays) * 24 * time.Hour
}

type MembershipConfig struct {
	RegistrationsPerMinute int `mapstructure:"registrations_per_minute"`
	RegistrationBurst      int `mapstructure:"registration_burst"`
}

type NotificationConfig struct {
	Workers   int `mapstructure:"workers"`
	QueueSize int `mapstructure:"queue_size"`
}

type TelemetryConfig struct {
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
	Insecure     bool   `mapstructure:"insecure"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RemoteConfig points a process at separately deployed services. An empty
// catalog or membership URL means that service runs in-process. The gateway
// proxies to all three.
type RemoteConfig struct {
	CatalogURL     string `mapstructure:"catalog_url"`
	MembershipURL  string `mapstructure:"membership_url"`
	CirculationURL string `mapstructure:"circulation_url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")

	v.SetDefault("storage.cabinet_id", "MainCabinet")
	v.SetDefault("storage.shelves", 5)
	v.SetDefault("storage.slots_per_shelf", 10)

	v.SetDefault("catalog.strict_book_linking", false)

	v.SetDefault("circulation.max_loans", 5)
	v.SetDefault("circulation.loan_period_days", 14)
	v.SetDefault("circulation.reservation_hold_days", 7)
	v.SetDefault("circulation.expiry_check_interval", time.Hour)

	v.SetDefault("membership.registrations_per_minute", 60)
	v.SetDefault("membership.registration_burst", 10)

	v.SetDefault("notification.workers", 2)
	v.SetDefault("notification.queue_size", 100)

	v.SetDefault("telemetry.service_name", "librastacks")
	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.insecure", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("remote.catalog_url", "")
	v.SetDefault("remote.membership_url", "")
	v.SetDefault("remote.circulation_url", "")
}

// LoadOption adjusts the defaults of one binary before the file and the
// environment are applied.
type LoadOption func(*viper.Viper)

// WithDefault replaces the default of key, e.g. "server.port".
func WithDefault(key string, value interface{}) LoadOption {
	return func(v *viper.Viper) { v.SetDefault(key, value) }
}

// Load reads configuration. path may be empty, in which case only defaults and
// the environment apply (ISB_SERVER_PORT, ISB_STORAGE_SHELVES, ...).
func Load(path string, opts ...LoadOption) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidConfig}, args...)...))
		}
	}

	check(c.Server.Port != "", "server.port is empty")
	check(c.Storage.Shelves > 0, "storage.shelves must be positive, got %d", c.Storage.Shelves)
	check(c.Storage.SlotsPerShelf > 0, "storage.slots_per_shelf must be positive, got %d", c.Storage.SlotsPerShelf)
	check(c.Circulation.MaxLoans > 0, "circulation.max_loans must be positive, got %d", c.Circulation.MaxLoans)
	check(c.Circulation.LoanPeriodDays > 0, "circulation.loan_period_days must be positive, got %d", c.Circulation.LoanPeriodDays)
	check(c.Circulation.ReservationHoldDays > 0, "circulation.reservation_hold_days must be positive, got %d", c.Circulation.ReservationHoldDays)
	check(c.Circulation.ExpiryCheckInterval > 0, "circulation.expiry_check_interval must be positive")
	check(c.Membership.RegistrationsPerMinute > 0, "membership.registrations_per_minute must be positive")
	check(c.Membership.RegistrationBurst > 0, "membership.registration_burst must be positive")
	check(c.Notification.Workers > 0, "notification.workers must be positive")
	check(c.Notification.QueueSize >= 0, "notification.queue_size must not be negative")
	for key, raw := range map[string]string{
		"remote.catalog_url":     c.Remote.CatalogURL,
		"remote.membership_url":  c.Remote.MembershipURL,
		"remote.circulation_url": c.Remote.CirculationURL,
	} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		check(err == nil && u.Scheme != "" && u.Host != "", "%s is not an absolute URL: %q", key, raw)
	}

	return errors.Join(errs...)
}
