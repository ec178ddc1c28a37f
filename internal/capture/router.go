package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bryanchriswhite/sdock/internal/logger"
)

// ErrNoCapturer is returned when the configured backend is "none" or no
// backend suits the environment
var ErrNoCapturer = errors.New("no capture backend available")

// Backend names accepted by NewCapturer
const (
	BackendAuto = "auto"
	BackendX11  = "x11"
	BackendNone = "none"
)

// NewCapturer selects a capturer by backend name. "auto" picks X11 when a
// DISPLAY is available (XWayland included).
func NewCapturer(backend string) (Capturer, error) {
	log := logger.WithComponent("capture-router")

	switch strings.ToLower(backend) {
	case BackendX11:
		return NewX11Capturer(), nil
	case BackendNone:
		return nil, ErrNoCapturer
	case BackendAuto, "":
		if os.Getenv("DISPLAY") != "" {
			log.Debug().Msg("DISPLAY set, using X11 capturer")
			return NewX11Capturer(), nil
		}
		log.Info().Msg("No DISPLAY, capture disabled")
		return nil, ErrNoCapturer
	default:
		return nil, fmt.Errorf("unknown capture backend %q", backend)
	}
}

// StartWithRetry starts c, retrying up to attempts times with a fixed
// backoff between tries. It gives up early if ctx is done.
func StartWithRetry(ctx context.Context, c Capturer, attempts int, backoff time.Duration) error {
	log := logger.WithComponent("capture-router")

	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = c.Start(); err == nil {
			if i > 1 {
				log.Info().Int("attempt", i).Str("capturer", c.Name()).Msg("Capturer started")
			}
			return nil
		}

		remaining := attempts - i
		log.Warn().
			Err(err).
			Str("capturer", c.Name()).
			Int("retries_remaining", remaining).
			Msg("Failed to start capturer")
		if remaining == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}

	return fmt.Errorf("failed to start %s capturer after %d attempts: %w", c.Name(), attempts, err)
}
