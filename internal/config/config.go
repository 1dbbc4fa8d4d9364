// Package config provides configuration management for camrelay using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultStreamTimeoutSeconds   = 300
	defaultMaxConcurrentStreams   = 50
	defaultMaxBufferFrames        = 30
	defaultRecordingCodec         = "mp4v"
	defaultRecordingFPS           = 30
	defaultRetentionDays          = 7
	defaultCleanupIntervalSeconds = 60
	defaultCleanupScheduleTime    = "03:00"
	defaultServerPort             = 5000
	defaultMaxFrameSizeMB         = 10
	defaultReadTimeout            = 30 * time.Second
	defaultShutdownTimeout        = 10 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Streams   StreamsConfig   `mapstructure:"streams"`
	Recording RecordingConfig `mapstructure:"recording"`
	Cleanup   CleanupConfig   `mapstructure:"cleanup"`
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// StreamsConfig holds live stream registry configuration.
type StreamsConfig struct {
	// TimeoutSeconds is the inactivity threshold after which a stream is
	// eligible for the cleanup sweep.
	TimeoutSeconds  int `mapstructure:"timeout_seconds"`
	MaxConcurrent   int `mapstructure:"max_concurrent"`
	MaxBufferFrames int `mapstructure:"max_buffer_frames"`
}

// Timeout returns the stream inactivity threshold as a duration.
func (c *StreamsConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RecordingConfig holds recording configuration.
type RecordingConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Codec         string `mapstructure:"codec"`
	FPS           int    `mapstructure:"fps"`
	RetentionDays int    `mapstructure:"retention_days"`
	BaseDir       string `mapstructure:"base_dir"`
}

// CleanupConfig holds background cleanup configuration.
type CleanupConfig struct {
	IntervalSeconds int `mapstructure:"interval_seconds"`
	// ScheduleTime is the daily retention sweep time in 24h "HH:MM" local time.
	ScheduleTime string `mapstructure:"schedule_time"`
}

// Interval returns the inactive-stream sweep interval as a duration.
func (c *CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	Debug          bool          `mapstructure:"debug"`
	CORSEnabled    bool          `mapstructure:"cors_enabled"`
	MaxFrameSizeMB int           `mapstructure:"max_frame_size_mb"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout must stay zero: MJPEG responses are long-lived and a
	// server-wide write deadline would sever every viewer.
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MaxFrameSizeBytes returns the per-frame upload cap in bytes.
func (c *ServerConfig) MaxFrameSizeBytes() int64 {
	return int64(c.MaxFrameSizeMB) * 1024 * 1024
}

// DatabaseConfig holds the recording index database configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with CAMRELAY_ and use underscores
// for nesting, e.g. CAMRELAY_SERVER_PORT=5000. A handful of legacy
// unprefixed variables are also honoured; see BindLegacyEnv.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/camrelay")
		v.AddConfigPath("$HOME/.camrelay")
	}

	v.SetEnvPrefix("CAMRELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindLegacyEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a Config from an already-populated
// Viper instance. Callers are expected to have applied SetDefaults.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults
// are in place.
func SetDefaults(v *viper.Viper) {
	// Streams defaults
	v.SetDefault("streams.timeout_seconds", defaultStreamTimeoutSeconds)
	v.SetDefault("streams.max_concurrent", defaultMaxConcurrentStreams)
	v.SetDefault("streams.max_buffer_frames", defaultMaxBufferFrames)

	// Recording defaults
	v.SetDefault("recording.enabled", true)
	v.SetDefault("recording.codec", defaultRecordingCodec)
	v.SetDefault("recording.fps", defaultRecordingFPS)
	v.SetDefault("recording.retention_days", defaultRetentionDays)
	v.SetDefault("recording.base_dir", "recordings")

	// Cleanup defaults
	v.SetDefault("cleanup.interval_seconds", defaultCleanupIntervalSeconds)
	v.SetDefault("cleanup.schedule_time", defaultCleanupScheduleTime)

	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.cors_enabled", true)
	v.SetDefault("server.max_frame_size_mb", defaultMaxFrameSizeMB)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)

	// Database defaults
	v.SetDefault("database.dsn", "camrelay.db")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)
}

// BindLegacyEnv binds the unprefixed environment variables carried over
// from earlier deployments. The prefixed CAMRELAY_ form wins when both
// are set.
func BindLegacyEnv(v *viper.Viper) {
	v.BindEnv("streams.timeout_seconds", "CAMRELAY_STREAMS_TIMEOUT_SECONDS", "STREAM_TIMEOUT_SECONDS")
	v.BindEnv("streams.max_concurrent", "CAMRELAY_STREAMS_MAX_CONCURRENT", "MAX_CONCURRENT_STREAMS")
	v.BindEnv("recording.retention_days", "CAMRELAY_RECORDING_RETENTION_DAYS", "RECORDING_RETENTION_DAYS")
	v.BindEnv("logging.level", "CAMRELAY_LOGGING_LEVEL", "LOG_LEVEL")
	v.BindEnv("server.port", "CAMRELAY_SERVER_PORT", "SERVER_PORT")
	v.BindEnv("server.debug", "CAMRELAY_SERVER_DEBUG", "SERVER_DEBUG")
}

// scheduleTimeRE matches the 24h "HH:MM" retention schedule format.
var scheduleTimeRE = regexp.MustCompile(`^([01]?\d|2[0-3]):[0-5]\d$`)

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}
	if c.Server.MaxFrameSizeMB < 1 {
		return fmt.Errorf("server.max_frame_size_mb must be at least 1")
	}

	if c.Streams.MaxConcurrent < 1 {
		return fmt.Errorf("streams.max_concurrent must be at least 1")
	}
	if c.Streams.MaxBufferFrames < 1 {
		return fmt.Errorf("streams.max_buffer_frames must be at least 1")
	}
	if c.Streams.TimeoutSeconds < 1 {
		return fmt.Errorf("streams.timeout_seconds must be at least 1")
	}

	if c.Recording.FPS < 1 {
		return fmt.Errorf("recording.fps must be at least 1")
	}
	if c.Recording.RetentionDays < 1 {
		return fmt.Errorf("recording.retention_days must be at least 1")
	}
	if c.Recording.Enabled && c.Recording.BaseDir == "" {
		return fmt.Errorf("recording.base_dir is required when recording is enabled")
	}

	if c.Cleanup.IntervalSeconds < 1 {
		return fmt.Errorf("cleanup.interval_seconds must be at least 1")
	}
	// An invalid schedule_time is not fatal: the retention job is simply
	// not scheduled (the cleanup manager logs it). Validate only that it
	// is non-empty so a typo'd key is still visible early.
	if c.Cleanup.ScheduleTime == "" {
		return fmt.Errorf("cleanup.schedule_time is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}

// ScheduleTimeValid reports whether the retention schedule time parses
// as 24h "HH:MM".
func (c *CleanupConfig) ScheduleTimeValid() bool {
	return scheduleTimeRE.MatchString(c.ScheduleTime)
}
