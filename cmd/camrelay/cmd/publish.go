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

	"github.com/jmylchreest/camrelay/internal/observability"
	"github.com/jmylchreest/camrelay/internal/publisher"
	"github.com/jmylchreest/camrelay/internal/source"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish frames to a camrelay server",
	Long: `Publish frames to a camrelay server from an image directory or a
generated test pattern.

The uploader is adaptive: under queue pressure it sheds frames before
enqueueing, and it lowers JPEG quality when uploads are slow.`,
	RunE: runPublish,
}

func init() {
	rootCmd.AddCommand(publishCmd)

	publishCmd.Flags().String("server", "http://localhost:5000", "camrelay server base URL")
	publishCmd.Flags().String("stream", "", "stream name to publish to (required)")
	publishCmd.Flags().String("source", "test", "frame source: test or dir")
	publishCmd.Flags().String("dir", "", "image directory (required with --source dir)")
	publishCmd.Flags().Int("fps", 10, "frame production rate")
	publishCmd.Flags().Int("width", 640, "test pattern width")
	publishCmd.Flags().Int("height", 480, "test pattern height")
	publishCmd.Flags().Int("quality", 85, "base JPEG quality")
	publishCmd.Flags().Int("max-fps", 30, "upload rate cap")
	publishCmd.Flags().Int("queue-size", 15, "frame queue capacity")
	publishCmd.Flags().Bool("adaptive", true, "enable load shedding and quality adaptation")

	publishCmd.MarkFlagRequired("stream")
}

func runPublish(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	serverURL, _ := flags.GetString("server")
	streamName, _ := flags.GetString("stream")
	sourceKind, _ := flags.GetString("source")
	fps, _ := flags.GetInt("fps")

	logger := observability.WithComponent(slog.Default(), "publisher")

	var frames source.FrameSource
	switch sourceKind {
	case "test":
		width, _ := flags.GetInt("width")
		height, _ := flags.GetInt("height")
		frames = source.NewTestPattern(width, height)
	case "dir":
		dir, _ := flags.GetString("dir")
		if dir == "" {
			return fmt.Errorf("--dir is required with --source dir")
		}
		src, err := source.NewDirSource(dir)
		if err != nil {
			return fmt.Errorf("opening frame directory: %w", err)
		}
		frames = src
	default:
		return fmt.Errorf("unknown source %q (want test or dir)", sourceKind)
	}

	opts := publisher.DefaultOptions(serverURL, streamName)
	opts.Logger = logger
	opts.Quality, _ = flags.GetInt("quality")
	opts.MaxFPS, _ = flags.GetInt("max-fps")
	opts.MaxQueueSize, _ = flags.GetInt("queue-size")
	opts.Adaptive, _ = flags.GetBool("adaptive")

	pub := publisher.New(opts)
	pub.Start()
	defer pub.Stop()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if fps < 1 {
		fps = 1
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	statsEvery := time.NewTicker(10 * time.Second)
	defer statsEvery.Stop()

	logger.Info("publishing",
		slog.String("server", serverURL),
		slog.String("stream", streamName),
		slog.String("source", sourceKind),
		slog.Int("fps", fps))

	for {
		select {
		case <-ctx.Done():
			stats := pub.Stats()
			fmt.Fprintf(os.Stderr, "sent %d frames (%d failed, %d skipped, %d dropped)\n",
				stats.Total, stats.Failed, stats.Skipped, stats.Dropped)
			return nil
		case <-statsEvery.C:
			stats := pub.Stats()
			logger.Info("publisher stats",
				slog.Int64("total", stats.Total),
				slog.Int64("failed", stats.Failed),
				slog.Int64("skipped", stats.Skipped),
				slog.Int64("dropped", stats.Dropped),
				slog.Int("quality", stats.Quality),
				slog.Float64("avg_send_ms", stats.AvgSendMS))
		case <-ticker.C:
			frame, err := frames.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				return fmt.Errorf("producing frame: %w", err)
			}
			pub.Publish(frame)
		}
	}
}
