package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armorybot/armory/internal/config"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "123:ABC")
	t.Setenv("ARMORY_SUPER_ADMIN_ID", "42")
	t.Setenv("ARMORY_DB_ADDRESS", "localhost:27017")
	t.Setenv("ARMORY_DB_NAME", "armory")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "123:ABC", cfg.Token)
	assert.Equal(t, int64(42), cfg.SuperAdminID)

	// Defaults applied.
	assert.Equal(t, 15*time.Second, cfg.LPTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Cache.PermissionTTL)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StatsTTL)
	assert.Equal(t, 4096, cfg.Cache.PermissionCapacity)
	assert.Equal(t, "0 9 * * *", cfg.Notify.DigestCron)
	assert.Equal(t, 8, cfg.Notify.BroadcastWorkers)
	assert.Equal(t, 1, cfg.Notify.AuditWorkers)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "")
	t.Setenv("ARMORY_DB_ADDRESS", "localhost:27017")
	t.Setenv("ARMORY_DB_NAME", "armory")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "123:ABC")
	t.Setenv("ARMORY_DB_ADDRESS", "")
	t.Setenv("ARMORY_DB_NAME", "")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadCron(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "123:ABC")
	t.Setenv("ARMORY_DB_ADDRESS", "localhost:27017")
	t.Setenv("ARMORY_DB_NAME", "armory")
	t.Setenv("ARMORY_NOTIFY_DIGEST_CRON", "not a cron spec")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadUTCOffset(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "123:ABC")
	t.Setenv("ARMORY_DB_ADDRESS", "localhost:27017")
	t.Setenv("ARMORY_DB_NAME", "armory")
	t.Setenv("ARMORY_NOTIFY_UTC_OFFSET", "tomorrow")

	_, err := config.Load()
	assert.Error(t, err)
}

func TestNotifyLocation(t *testing.T) {
	var cfg config.NotifyConfig

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.Local, loc)

	cfg.UTCOffset = "+03:00"
	loc, err = cfg.Location()
	require.NoError(t, err)
	assert.NotNil(t, loc)
}

func TestCacheOverrides(t *testing.T) {
	t.Setenv("ARMORY_TOKEN", "123:ABC")
	t.Setenv("ARMORY_DB_ADDRESS", "localhost:27017")
	t.Setenv("ARMORY_DB_NAME", "armory")
	t.Setenv("ARMORY_CACHE_PERMISSION_TTL", "30s")
	t.Setenv("ARMORY_CACHE_PERMISSION_CAPACITY", "128")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Cache.PermissionTTL)
	assert.Equal(t, 128, cfg.Cache.PermissionCapacity)
}
