package placement

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// SwayPlacer installs for_window rules with swaymsg
type SwayPlacer struct {
	run runFunc
}

// NewSwayPlacer creates a placer that shells out to swaymsg
func NewSwayPlacer() *SwayPlacer {
	return &SwayPlacer{run: execRun}
}

func (s *SwayPlacer) Name() string {
	return BackendSway
}

// Place registers the rules before the dock window exists, so sway applies
// them when the window maps.
func (s *SwayPlacer) Place(ctx context.Context, p Placement) error {
	out, err := s.run(ctx, "swaymsg", SwayCommand(p))
	if err != nil {
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("swaymsg failed: %w: %s", err, msg)
		}
		return fmt.Errorf("swaymsg failed: %w", err)
	}
	return nil
}

// SwayCommand builds the swaymsg command that floats, sizes and moves
// windows with p.AppID.
func SwayCommand(p Placement) string {
	criteria := fmt.Sprintf("for_window [app_id=%q]", p.AppID)
	return strings.Join([]string{
		criteria + " floating enable",
		fmt.Sprintf("%s resize set width %dppt height %dppt", criteria, p.WidthPercent, p.HeightPercent),
		fmt.Sprintf("%s move position 0 %dppt", criteria, p.YPercent),
	}, ", ")
}
