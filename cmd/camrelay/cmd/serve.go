package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/camrelay/internal/cleanup"
	"github.com/jmylchreest/camrelay/internal/config"
	"github.com/jmylchreest/camrelay/internal/database"
	internalhttp "github.com/jmylchreest/camrelay/internal/http"
	"github.com/jmylchreest/camrelay/internal/http/handlers"
	"github.com/jmylchreest/camrelay/internal/observability"
	"github.com/jmylchreest/camrelay/internal/recorder"
	"github.com/jmylchreest/camrelay/internal/stream"
	"github.com/jmylchreest/camrelay/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the camrelay server",
	Long: `Start the camrelay HTTP server.

The server provides:
- POST /publish/{name} for frame ingest
- GET /stream/{name} for MJPEG viewing
- REST API for stream stats, deletion, and recordings
- Health check endpoint and OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 5000, "Port to listen on")
	serveCmd.Flags().String("database", "camrelay.db", "Recording index database path")
	serveCmd.Flags().String("recordings-dir", "recordings", "Directory for recorded video files")
	serveCmd.Flags().Bool("recording", true, "Enable recording of published streams")

	mustBindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	mustBindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	mustBindPFlag("database.dsn", serveCmd.Flags().Lookup("database"))
	mustBindPFlag("recording.base_dir", serveCmd.Flags().Lookup("recordings-dir"))
	mustBindPFlag("recording.enabled", serveCmd.Flags().Lookup("recording"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.FromViper(viper.GetViper())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.Default()
	logger.Info("starting camrelay",
		slog.String("version", version.Short()),
		slog.Int("max_streams", cfg.Streams.MaxConcurrent),
		slog.Bool("recording", cfg.Recording.Enabled))

	streams := stream.NewManager(cfg.Streams.MaxConcurrent, cfg.Streams.MaxBufferFrames,
		observability.WithComponent(logger, "streams"))

	// Recording stack: index database, encoder service, retention. All
	// absent when recording is disabled.
	var (
		db        *database.DB
		repo      *database.RecordingRepository
		recording *recorder.Service
		retention *cleanup.Retention
	)
	if cfg.Recording.Enabled {
		db, err = database.New(cfg.Database.DSN, observability.WithComponent(logger, "database"))
		if err != nil {
			return fmt.Errorf("opening recording index: %w", err)
		}
		repo = database.NewRecordingRepository(db)

		recLogger := observability.WithComponent(logger, "recorder")
		recording, err = recorder.NewService(
			cfg.Recording.BaseDir,
			cfg.Recording.FPS,
			cfg.Recording.Codec,
			recorder.NewFFmpegWriterFactory(recLogger),
			recLogger,
		)
		if err != nil {
			return fmt.Errorf("initializing recording service: %w", err)
		}
		recording.WithFinalize(indexRecording(repo, recLogger))

		retention = cleanup.NewRetention(cfg.Recording.BaseDir, repo,
			observability.WithComponent(logger, "retention"))
	}

	// Nil interface values must stay nil; a typed nil would defeat the
	// nil checks downstream.
	var stopper cleanup.RecorderStopper
	var controller handlers.RecordingController
	if recording != nil {
		stopper = recording
		controller = recording
	}

	cleanupMgr := cleanup.NewManager(cleanup.Config{
		StreamTimeout: cfg.Streams.Timeout(),
		SweepInterval: cfg.Cleanup.Interval(),
		RetentionDays: cfg.Recording.RetentionDays,
		ScheduleTime:  cfg.Cleanup.ScheduleTime,
	}, streams, stopper, retention, observability.WithComponent(logger, "cleanup"))

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		CORSEnabled:     cfg.Server.CORSEnabled,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, observability.WithComponent(logger, "http"), version.Short())

	handlers.NewPublishHandler(streams, controller, cfg.Server.MaxFrameSizeBytes(),
		observability.WithComponent(logger, "publish")).RegisterRoutes(server.Router())
	handlers.NewViewHandler(streams,
		observability.WithComponent(logger, "view")).RegisterRoutes(server.Router())

	handlers.NewStreamAPIHandler(streams, controller,
		observability.WithComponent(logger, "api")).Register(server.API())
	handlers.NewHealthHandler(version.Short(), streams, handlers.HealthConfig{
		MaxStreams:       cfg.Streams.MaxConcurrent,
		RecordingEnabled: cfg.Recording.Enabled,
		TimeoutSeconds:   cfg.Streams.TimeoutSeconds,
		MaxBufferFrames:  cfg.Streams.MaxBufferFrames,
		RetentionDays:    cfg.Recording.RetentionDays,
	}).Register(server.API())
	if repo != nil {
		handlers.NewRecordingsHandler(repo).Register(server.API())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cleanupMgr.Start(ctx); err != nil {
		return fmt.Errorf("starting cleanup manager: %w", err)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case s := <-sig:
		logger.Info("shutdown signal received", slog.String("signal", s.String()))
	}

	// Shutdown order: stop background jobs, finalize recordings, then
	// drain HTTP connections.
	cleanupMgr.Stop()
	if recording != nil {
		recording.StopAll()
	}
	if err := server.Shutdown(context.Background()); err != nil {
		logger.Error("server shutdown failed", slog.String("error", err.Error()))
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("closing recording index", slog.String("error", err.Error()))
		}
	}

	logger.Info("camrelay stopped")
	return nil
}

// indexRecording returns a finalize callback that records each finished
// recording in the index.
func indexRecording(repo *database.RecordingRepository, logger *slog.Logger) recorder.FinalizeFunc {
	return func(sc recorder.Sidecar, metadataPath string) {
		startedAt, _ := time.Parse(time.RFC3339, sc.StartTime)
		endedAt, _ := time.Parse(time.RFC3339, sc.EndTime)

		rec := &database.Recording{
			StreamName:   sc.StreamName,
			Path:         sc.RecordingPath,
			MetadataPath: metadataPath,
			StartedAt:    startedAt,
			EndedAt:      endedAt,
			FrameCount:   sc.TotalFrames,
		}
		if err := repo.Create(rec); err != nil {
			logger.Warn("failed to index recording",
				slog.String("path", sc.RecordingPath),
				slog.String("error", err.Error()))
		}
	}
}
