package commands

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bryanchriswhite/sdock/internal/capture"
	"github.com/bryanchriswhite/sdock/internal/config"
	"github.com/bryanchriswhite/sdock/internal/geometry"
	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/render"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render one dock frame to a PNG file",
	Long: `Render a single dock frame without opening a window. Useful for checking
the shape and shadow, or the glass fill against a real screen capture.`,
	Example: `  # Render the fallback fill at 800x90
  sdock render --width 800 --height 90 -o dock.png

  # Reflect the current screen contents
  sdock render --capture -o dock.png

  # Write to stdout
  sdock render -o - > dock.png`,
	Args: cobra.NoArgs,
	RunE: runRender,
}

var (
	renderWidth   int
	renderHeight  int
	renderOutput  string
	renderCapture bool
)

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().IntVar(&renderWidth, "width", 1280, "panel width in pixels")
	renderCmd.Flags().IntVar(&renderHeight, "height", 96, "panel height in pixels")
	renderCmd.Flags().StringVarP(&renderOutput, "output", "o", "dock.png", "output file, - for stdout")
	renderCmd.Flags().BoolVar(&renderCapture, "capture", false, "fill the glass from a screen capture")
}

func runRender(cmd *cobra.Command, args []string) error {
	_, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if renderWidth < geometry.MinDimension || renderHeight < geometry.MinDimension {
		return fmt.Errorf("panel must be at least %dx%d, got %dx%d",
			geometry.MinDimension, geometry.MinDimension, renderWidth, renderHeight)
	}

	var frame *capture.Frame
	if renderCapture {
		frame, err = captureOnce(cfg, int32(renderWidth), int32(renderHeight))
		if err != nil {
			return err
		}
	}

	pix := render.Render(uint32(renderWidth), uint32(renderHeight), frame)
	img := render.ToImage(renderWidth, renderHeight, pix)

	if renderOutput == "-" {
		return writePNG(cmd.OutOrStdout(), img)
	}

	f, err := os.Create(renderOutput)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", renderOutput, err)
	}
	if err := writePNG(f, img); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", renderOutput, err)
	}

	logger.WithComponent("render").Info().
		Str("file", renderOutput).
		Int("width", renderWidth).
		Int("height", renderHeight).
		Bool("captured", frame != nil).
		Msg("Dock rendered")
	return nil
}

func writePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode PNG: %w", err)
	}
	return nil
}

// captureOnce grabs the region a width x height dock would reflect
func captureOnce(cfg *config.Config, width, height int32) (*capture.Frame, error) {
	capturer, err := capture.NewCapturer(cfg.Capture.Backend)
	if err != nil {
		return nil, fmt.Errorf("screen capture unavailable: %w", err)
	}
	if err := capturer.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s capturer: %w", capturer.Name(), err)
	}
	defer capturer.Stop()

	outputs := capturer.Outputs()
	if len(outputs) == 0 {
		return nil, fmt.Errorf("%s capturer reports no outputs", capturer.Name())
	}
	out := outputs[0]
	region := capture.DockRegion(width, height, out)

	frame, err := capturer.CaptureOutputFrame(out, region.Size(), out.Transform, &region)
	if err != nil {
		return nil, fmt.Errorf("capture failed: %w", err)
	}

	cache := capture.NewCache()
	if !cache.Update(frame) {
		return nil, fmt.Errorf("capture produced no usable pixels")
	}
	return cache.Get(), nil
}
