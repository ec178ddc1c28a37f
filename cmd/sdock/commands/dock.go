package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/sdock/internal/capture"
	"github.com/bryanchriswhite/sdock/internal/config"
	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/placement"
	"github.com/bryanchriswhite/sdock/internal/preview"
	"github.com/bryanchriswhite/sdock/internal/session"
)

func runDock(cmd *cobra.Command, args []string) error {
	configMgr, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := logger.WithComponent("dock")
	log.Debug().Str("config", configMgr.GetConfigPath()).Msg("Configuration loaded")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Rules must be in place before the window maps
	placeWindow(ctx, cfg)

	capturer := startCapture(ctx, cfg)
	if capturer != nil {
		defer capturer.Stop()
	}

	opts := session.Options{
		Title:    cfg.Title,
		AppID:    cfg.AppID,
		Capturer: capturer,
	}
	var stream *preview.Stream
	if cfg.Preview.Enabled {
		stream = preview.NewStream(cfg.Preview.FPS, cfg.Preview.Scale)
		opts.Sink = stream
	}

	conn, err := session.Connect("")
	if err != nil {
		return fmt.Errorf("failed to connect to wayland compositor: %w", err)
	}

	sess := session.New(opts)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debug().Err(err).Msg("Error while releasing the surface")
		}
	}()
	if err := sess.Start(conn); err != nil {
		return err
	}

	if stream != nil {
		go stream.Run(ctx)
		srv := preview.NewServer(stream, sess)
		go func() {
			if err := srv.Start(ctx, cfg.Preview.Port); err != nil {
				log.Error().Err(err).Msg("Preview server stopped")
			}
		}()
	}

	return sess.Run(ctx)
}

func placeWindow(ctx context.Context, cfg *config.Config) {
	log := logger.WithComponent("dock")

	placer, err := placement.New(cfg.Placement.Backend)
	if err != nil {
		log.Warn().Err(err).Msg("Skipping window placement")
		return
	}
	placement.Apply(ctx, placer, placement.Placement{
		AppID:         cfg.AppID,
		WidthPercent:  cfg.Placement.WidthPercent,
		HeightPercent: cfg.Placement.HeightPercent,
		YPercent:      cfg.Placement.YPercent,
	}, cfg.Placement.Timeout())
}

// startCapture returns a started capturer, or nil when the dock has to run
// on the fallback gradient
func startCapture(ctx context.Context, cfg *config.Config) capture.Capturer {
	log := logger.WithComponent("dock")

	capturer, err := capture.NewCapturer(cfg.Capture.Backend)
	if err != nil {
		if errors.Is(err, capture.ErrNoCapturer) {
			log.Info().Msg("Screen capture disabled, using the fallback fill")
		} else {
			log.Warn().Err(err).Msg("Screen capture unavailable, using the fallback fill")
		}
		return nil
	}

	if err := capture.StartWithRetry(ctx, capturer, cfg.Capture.InitAttempts, cfg.Capture.InitBackoff()); err != nil {
		log.Warn().Err(err).Msg("Screen capture unavailable, using the fallback fill")
		return nil
	}
	log.Info().Str("capturer", capturer.Name()).Msg("Screen capture started")
	return capturer
}
