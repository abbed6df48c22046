// internal/config/config_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "MainCabinet", cfg.Storage.CabinetID)
	assert.Equal(t, 5, cfg.Storage.Shelves)
	assert.Equal(t, 10, cfg.Storage.SlotsPerShelf)
	assert.False(t, cfg.Catalog.StrictBookLinking)
	assert.Equal(t, 5, cfg.Circulation.MaxLoans)
	assert.Equal(t, 14*24*time.Hour, cfg.Circulation.LoanPeriod())
	assert.Equal(t, 7*24*time.Hour, cfg.Circulation.ReservationHold())
	assert.Equal(t, time.Hour, cfg.Circulation.ExpiryCheckInterval)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Remote.CatalogURL)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "isb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  cabinet_id: Archive
  shelves: 2
  slots_per_shelf: 3
catalog:
  strict_book_linking: true
circulation:
  expiry_check_interval: 5m
log:
  format: json
`), 0o600))

	t.Setenv("ISB_SERVER_PORT", "9090")
	t.Setenv("ISB_STORAGE_SHELVES", "4")
	t.Setenv("ISB_REMOTE_MEMBERSHIP_URL", "http://membership:8083")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "Archive", cfg.Storage.CabinetID)
	assert.Equal(t, 4, cfg.Storage.Shelves, "env wins over file")
	assert.Equal(t, 3, cfg.Storage.SlotsPerShelf)
	assert.True(t, cfg.Catalog.StrictBookLinking)
	assert.Equal(t, 5*time.Minute, cfg.Circulation.ExpiryCheckInterval)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "http://membership:8083", cfg.Remote.MembershipURL)
}

func TestLoadWithBinaryDefault(t *testing.T) {
	cfg, err := Load("", WithDefault("server.port", "8081"))
	require.NoError(t, err)
	assert.Equal(t, "8081", cfg.Server.Port)

	t.Setenv("ISB_SERVER_PORT", "9191")
	cfg, err = Load("", WithDefault("server.port", "8081"))
	require.NoError(t, err)
	assert.Equal(t, "9191", cfg.Server.Port, "env wins over the binary default")
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("ISB_STORAGE_SHELVES", "0")
	t.Setenv("ISB_CIRCULATION_MAX_LOANS", "-1")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "storage.shelves")
	assert.Contains(t, err.Error(), "circulation.max_loans")
}

func TestLoadRejectsRelativeRemoteURL(t *testing.T) {
	t.Setenv("ISB_REMOTE_CATALOG_URL", "catalog:8081")

	_, err := Load("")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "remote.catalog_url")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
