package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Device     DeviceConfig     `yaml:"device" envPrefix:"DEVICE_"`
	Attendance AttendanceConfig `yaml:"attendance" envPrefix:"ATTENDANCE_"`
	Database   DatabaseConfig   `yaml:"database" envPrefix:"DATABASE_"`
	Push       PushConfig       `yaml:"push" envPrefix:"PUSH_"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool" envPrefix:"WORKER_POOL_"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size" env:"SIZE"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key" env:"VAPID_PUBLIC_KEY"`
	PrivateKey string `yaml:"vapid_private_key" env:"VAPID_PRIVATE_KEY"`
	Subject    string `yaml:"subject" env:"SUBJECT"`
	TTL        int    `yaml:"ttl" env:"TTL"`
}

// Enabled reports whether both VAPID keys are present.
func (p PushConfig) Enabled() bool {
	return p.PublicKey != "" && p.PrivateKey != ""
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port" env:"PORT"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec" env:"RATE_LIMIT_PER_SEC"`
	RateLimitBurst  int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds" env:"CACHE_TTL_SECONDS"`
	AllowedOrigin   string  `yaml:"allowed_origin" env:"ALLOWED_ORIGIN"`
}

// DeviceConfig controls the device socket and the command correlation timings.
type DeviceConfig struct {
	Path                     string `yaml:"path" env:"PATH"`
	HeartbeatIntervalSeconds int    `yaml:"heartbeat_interval_seconds" env:"HEARTBEAT_INTERVAL_SECONDS"`
	HeartbeatTimeoutSeconds  int    `yaml:"heartbeat_timeout_seconds" env:"HEARTBEAT_TIMEOUT_SECONDS"`
	EnrollTimeoutSeconds     int    `yaml:"enroll_timeout_seconds" env:"ENROLL_TIMEOUT_SECONDS"`
	DeleteTimeoutSeconds     int    `yaml:"delete_timeout_seconds" env:"DELETE_TIMEOUT_SECONDS"`
	MaxSlots                 int    `yaml:"max_slots" env:"MAX_SLOTS"`
	StreamKeepAliveSeconds   int    `yaml:"stream_keepalive_seconds" env:"STREAM_KEEPALIVE_SECONDS"`

	HeartbeatInterval time.Duration `yaml:"-"`
	HeartbeatTimeout  time.Duration `yaml:"-"`
	EnrollTimeout     time.Duration `yaml:"-"`
	DeleteTimeout     time.Duration `yaml:"-"`
	StreamKeepAlive   time.Duration `yaml:"-"`
}

// AttendanceConfig holds settings for check-in/check-out classification.
type AttendanceConfig struct {
	Timezone string         `yaml:"timezone" env:"TIMEZONE"`
	Location *time.Location `yaml:"-"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver" env:"DRIVER"`
	DSN                    string `yaml:"dsn" env:"DSN"`
	MaxOpenConns           int    `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns           int    `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" env:"CONN_MAX_LIFETIME_MINUTES"`
}

// Load reads the configuration from the given path and applies environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied. The database
// driver defaults to postgres and still needs a DSN.
func Default() *Config {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		// The default timezone is always loadable.
		panic(err)
	}
	return &cfg
}

func (cfg *Config) applyDefaults() error {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 5
	}

	d := &cfg.Device
	if d.Path == "" {
		d.Path = "/ws"
	}
	if d.HeartbeatIntervalSeconds <= 0 {
		d.HeartbeatIntervalSeconds = 10
	}
	if d.HeartbeatTimeoutSeconds <= 0 {
		d.HeartbeatTimeoutSeconds = 20
	}
	if d.EnrollTimeoutSeconds <= 0 {
		d.EnrollTimeoutSeconds = 30
	}
	if d.DeleteTimeoutSeconds <= 0 {
		d.DeleteTimeoutSeconds = 10
	}
	if d.MaxSlots <= 0 || d.MaxSlots > 127 {
		d.MaxSlots = 127
	}
	if d.StreamKeepAliveSeconds <= 0 {
		d.StreamKeepAliveSeconds = 20
	}
	d.HeartbeatInterval = time.Duration(d.HeartbeatIntervalSeconds) * time.Second
	d.HeartbeatTimeout = time.Duration(d.HeartbeatTimeoutSeconds) * time.Second
	d.EnrollTimeout = time.Duration(d.EnrollTimeoutSeconds) * time.Second
	d.DeleteTimeout = time.Duration(d.DeleteTimeoutSeconds) * time.Second
	d.StreamKeepAlive = time.Duration(d.StreamKeepAliveSeconds) * time.Second

	if cfg.Attendance.Timezone == "" {
		cfg.Attendance.Timezone = "Local"
	}
	loc, err := time.LoadLocation(cfg.Attendance.Timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", cfg.Attendance.Timezone, err)
	}
	cfg.Attendance.Location = loc

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
	return nil
}
