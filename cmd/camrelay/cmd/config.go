package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jmylchreest/camrelay/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for managing camrelay configuration.`,
}

var configDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Dump the effective configuration",
	Long: `Dump the effective configuration values in YAML format.

Redirect this output to a file to create a configuration template:

  camrelay config dump > config.yaml

Configuration can be set via:
  - Config file (config.yaml, /etc/camrelay/config.yaml, ~/.camrelay/config.yaml)
  - Environment variables with the CAMRELAY_ prefix and underscores for
    nesting, e.g. server.port -> CAMRELAY_SERVER_PORT
  - Legacy variables: STREAM_TIMEOUT_SECONDS, MAX_CONCURRENT_STREAMS,
    RECORDING_RETENTION_DAYS, LOG_LEVEL, SERVER_PORT, SERVER_DEBUG`,
	RunE: runConfigDump,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configDumpCmd)
}

func runConfigDump(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	yamlData, err := yaml.Marshal(configMap(cfg))
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	fmt.Println("# camrelay configuration")
	fmt.Println("#")
	fmt.Println("# Durations use Go syntax: 30s, 5m, 1h.")
	fmt.Println("")
	fmt.Print(string(yamlData))
	return nil
}

// configMap lays the config out with stable section names so the dump
// round-trips as a config file.
func configMap(cfg *config.Config) map[string]any {
	return map[string]any{
		"streams": map[string]any{
			"timeout_seconds":   cfg.Streams.TimeoutSeconds,
			"max_concurrent":    cfg.Streams.MaxConcurrent,
			"max_buffer_frames": cfg.Streams.MaxBufferFrames,
		},
		"recording": map[string]any{
			"enabled":        cfg.Recording.Enabled,
			"codec":          cfg.Recording.Codec,
			"fps":            cfg.Recording.FPS,
			"retention_days": cfg.Recording.RetentionDays,
			"base_dir":       cfg.Recording.BaseDir,
		},
		"cleanup": map[string]any{
			"interval_seconds": cfg.Cleanup.IntervalSeconds,
			"schedule_time":    cfg.Cleanup.ScheduleTime,
		},
		"server": map[string]any{
			"host":              cfg.Server.Host,
			"port":              cfg.Server.Port,
			"debug":             cfg.Server.Debug,
			"cors_enabled":      cfg.Server.CORSEnabled,
			"max_frame_size_mb": cfg.Server.MaxFrameSizeMB,
			"read_timeout":      cfg.Server.ReadTimeout.String(),
			"write_timeout":     cfg.Server.WriteTimeout.String(),
			"shutdown_timeout":  cfg.Server.ShutdownTimeout.String(),
		},
		"database": map[string]any{
			"dsn": cfg.Database.DSN,
		},
		"logging": map[string]any{
			"level":       cfg.Logging.Level,
			"format":      cfg.Logging.Format,
			"add_source":  cfg.Logging.AddSource,
			"time_format": cfg.Logging.TimeFormat,
		},
	}
}
