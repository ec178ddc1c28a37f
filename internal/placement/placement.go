// Package placement asks the window manager to float the dock and pin it
// to the bottom of the screen. Placement is best effort: the dock works
// without it, it just lands wherever the compositor tiles it.
package placement

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bryanchriswhite/sdock/internal/logger"
)

// Backend names accepted by New
const (
	BackendAuto = "auto"
	BackendSway = "sway"
	BackendKWin = "kwin"
	BackendNone = "none"
)

// Placement is where the dock window should go, in percent of the output
type Placement struct {
	AppID         string
	WidthPercent  int
	HeightPercent int
	YPercent      int
}

// Placer applies a Placement through a specific window manager
type Placer interface {
	Name() string
	Place(ctx context.Context, p Placement) error
}

// New returns the placer for backend. "auto" picks one from the running
// session.
func New(backend string) (Placer, error) {
	if backend == BackendAuto || backend == "" {
		backend = Detect()
		logger.WithComponent("placement").Debug().Str("backend", backend).Msg("Detected window manager")
	}

	switch backend {
	case BackendSway:
		return NewSwayPlacer(), nil
	case BackendKWin:
		return NewKWinPlacer(), nil
	case BackendNone:
		return nonePlacer{}, nil
	default:
		return nil, fmt.Errorf("unknown placement backend %q", backend)
	}
}

// Detect guesses the window manager: sway when SWAYSOCK is set, KWin when
// org.kde.KWin owns a name on the session bus, none otherwise.
func Detect() string {
	return detect(os.Getenv, kwinRunning)
}

func detect(getenv func(string) string, kwin func() bool) string {
	if getenv("SWAYSOCK") != "" {
		return BackendSway
	}
	if kwin() {
		return BackendKWin
	}
	return BackendNone
}

// Apply runs p through placer bounded by timeout. Failures are logged and
// swallowed.
func Apply(ctx context.Context, placer Placer, p Placement, timeout time.Duration) {
	log := logger.WithComponent("placement")

	if placer == nil {
		return
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if err := placer.Place(ctx, p); err != nil {
		log.Warn().Err(err).Str("backend", placer.Name()).Msg("Window placement failed, continuing without it")
		return
	}
	log.Info().
		Str("backend", placer.Name()).
		Int("width_percent", p.WidthPercent).
		Int("height_percent", p.HeightPercent).
		Int("y_percent", p.YPercent).
		Msg("Window placement rules installed")
}

type nonePlacer struct{}

func (nonePlacer) Name() string                           { return BackendNone }
func (nonePlacer) Place(context.Context, Placement) error { return nil }
