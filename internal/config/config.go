// Package config loads and validates the application configuration from
// a YAML file and/or environment variables.
package config

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/maxbolgarin/datetime"
	"github.com/maxbolgarin/lang"
	"github.com/robfig/cron/v3"

	"github.com/armorybot/armory/internal/storage"
)

// Config contains the full application configuration.
//
// You can use environment variables to fill it:
// ARMORY_TOKEN - Telegram bot token
// ARMORY_SUPER_ADMIN_ID - user to seed as the first super admin
// ARMORY_LP_TIMEOUT - long polling timeout
// ARMORY_DEBUG - enable debug mode
type Config struct {
	// Token is the Telegram bot token.
	Token string `yaml:"token" json:"token" env:"ARMORY_TOKEN"`

	// SuperAdminID is the Telegram user id that is granted the
	// super_admin role on startup, so a fresh deployment is never locked
	// out of the admin panel.
	SuperAdminID int64 `yaml:"super_admin_id" json:"super_admin_id" env:"ARMORY_SUPER_ADMIN_ID"`

	// LPTimeout is the long polling timeout.
	// Default is 15 seconds.
	LPTimeout time.Duration `yaml:"lp_timeout" json:"lp_timeout" env:"ARMORY_LP_TIMEOUT"`

	// Debug is a flag that enables debug mode.
	Debug bool `yaml:"debug" json:"debug" env:"ARMORY_DEBUG"`

	// MetricsAddress is the listen address of the Prometheus endpoint.
	// Empty disables the endpoint.
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address" env:"ARMORY_METRICS_ADDRESS"`

	// DB is the MongoDB configuration.
	DB storage.DatabaseConfig `yaml:"db" json:"db"`

	// Cache tunes the in-process caches.
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Notify tunes the digest scheduler and broadcasts.
	Notify NotifyConfig `yaml:"notify" json:"notify"`
}

// CacheConfig tunes the permission and statistics caches.
type CacheConfig struct {
	// PermissionTTL is how long resolved roles and permissions stay
	// cached. Default is 2 minutes.
	PermissionTTL time.Duration `yaml:"permission_ttl" json:"permission_ttl" env:"ARMORY_CACHE_PERMISSION_TTL"`

	// StatsTTL is how long dashboard aggregates stay cached.
	// Default is 5 minutes.
	StatsTTL time.Duration `yaml:"stats_ttl" json:"stats_ttl" env:"ARMORY_CACHE_STATS_TTL"`

	// PermissionCapacity bounds the permission cache.
	// Default is 4096 entries.
	PermissionCapacity int `yaml:"permission_capacity" json:"permission_capacity" env:"ARMORY_CACHE_PERMISSION_CAPACITY"`

	// SessionCapacity bounds the bot session cache.
	// Default is 10000 entries.
	SessionCapacity int `yaml:"session_capacity" json:"session_capacity" env:"ARMORY_CACHE_SESSION_CAPACITY"`

	// SessionTTL is how long idle bot sessions stay cached.
	// Default is 24 hours.
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl" env:"ARMORY_CACHE_SESSION_TTL"`
}

// NotifyConfig tunes the moderation digest and broadcasts.
type NotifyConfig struct {
	// DigestCron is the cron spec for the moderation digest sent to
	// admins. Default is every day at 09:00.
	DigestCron string `yaml:"digest_cron" json:"digest_cron" env:"ARMORY_NOTIFY_DIGEST_CRON"`

	// UTCOffset shifts the digest schedule clock, e.g. "+03:00".
	// Empty means server local time.
	UTCOffset string `yaml:"utc_offset" json:"utc_offset" env:"ARMORY_NOTIFY_UTC_OFFSET"`

	// BroadcastWorkers is the number of concurrent senders used for
	// broadcasts. Default is 8.
	BroadcastWorkers int `yaml:"broadcast_workers" json:"broadcast_workers" env:"ARMORY_NOTIFY_BROADCAST_WORKERS"`

	// AuditWorkers is the number of workers writing audit events.
	// Default is 1 to keep the log ordered.
	AuditWorkers int `yaml:"audit_workers" json:"audit_workers" env:"ARMORY_NOTIFY_AUDIT_WORKERS"`
}

// Load reads configuration from the given file (or from environment
// variables only, when no file is given), fills defaults and validates it.
func Load(fileName ...string) (Config, error) {
	var cfg Config
	if err := cfg.Read(fileName...); err != nil {
		return Config{}, err
	}
	if err := cfg.prepareAndValidate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) Read(fileName ...string) error {
	if len(fileName) > 0 {
		return cleanenv.ReadConfig(fileName[0], cfg)
	}
	return cleanenv.ReadEnv(cfg)
}

func (cfg *Config) prepareAndValidate() error {
	cfg.LPTimeout = lang.Check(cfg.LPTimeout, 15*time.Second)

	cfg.Cache.PermissionTTL = lang.Check(cfg.Cache.PermissionTTL, 2*time.Minute)
	cfg.Cache.StatsTTL = lang.Check(cfg.Cache.StatsTTL, 5*time.Minute)
	cfg.Cache.PermissionCapacity = lang.Check(cfg.Cache.PermissionCapacity, 4096)
	cfg.Cache.SessionCapacity = lang.Check(cfg.Cache.SessionCapacity, 10000)
	cfg.Cache.SessionTTL = lang.Check(cfg.Cache.SessionTTL, 24*time.Hour)

	cfg.Notify.DigestCron = lang.Check(cfg.Notify.DigestCron, "0 9 * * *")
	cfg.Notify.BroadcastWorkers = lang.Check(cfg.Notify.BroadcastWorkers, 8)
	cfg.Notify.AuditWorkers = lang.Check(cfg.Notify.AuditWorkers, 1)

	err := validation.ValidateStruct(cfg,
		validation.Field(&cfg.Token, validation.Required),
		validation.Field(&cfg.LPTimeout, validation.Required, validation.Min(1*time.Second)),
	)
	if err != nil {
		return err
	}

	if err := cfg.Notify.Validate(); err != nil {
		return err
	}
	return cfg.DB.Validate()
}

// Validate validates the notification configuration.
func (cfg NotifyConfig) Validate() error {
	return validation.ValidateStruct(&cfg,
		validation.Field(&cfg.DigestCron, validation.Required, validation.By(validateCronSpec)),
		validation.Field(&cfg.UTCOffset, validation.By(validateUTCOffset)),
		validation.Field(&cfg.BroadcastWorkers, validation.Min(1)),
		validation.Field(&cfg.AuditWorkers, validation.Min(1)),
	)
}

func validateCronSpec(value any) error {
	spec, _ := value.(string)
	_, err := cron.ParseStandard(spec)
	return err
}

func validateUTCOffset(value any) error {
	offset, _ := value.(string)
	if offset == "" {
		return nil
	}
	_, err := datetime.ParseUTCOffset(offset)
	return err
}

// Location returns the clock the digest schedule runs on.
func (cfg NotifyConfig) Location() (*time.Location, error) {
	if cfg.UTCOffset == "" {
		return time.Local, nil
	}
	return datetime.ParseUTCOffset(cfg.UTCOffset)
}
