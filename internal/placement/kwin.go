package placement

import (
	"context"
	"fmt"
	"os"

	"github.com/godbus/dbus/v5"

	"github.com/bryanchriswhite/sdock/internal/logger"
)

// KWin D-Bus constants
const (
	kwinService         = "org.kde.KWin"
	kwinScriptingPath   = "/Scripting"
	kwinScriptingIface  = "org.kde.kwin.Scripting"
	kwinPlacementScript = "sdock_placement"
)

// kwinScript places every new window whose resource class or desktop file
// name matches the app id. KWin 6 emits windowAdded, KWin 5 clientAdded.
const kwinScript = `function sdockPlace(w) {
    if (!w || (w.resourceClass != %[1]q && w.desktopFileName != %[1]q)) {
        return;
    }
    var area = workspace.clientArea(KWin.FullScreenArea, w);
    w.noBorder = true;
    w.keepAbove = true;
    w.frameGeometry = {
        x: area.x,
        y: area.y + Math.round(area.height * %[3]d / 100),
        width: Math.round(area.width * %[2]d / 100),
        height: Math.round(area.height * %[4]d / 100)
    };
}
var sdockAdded = workspace.windowAdded || workspace.clientAdded;
sdockAdded.connect(sdockPlace);
`

// KWinScript renders the placement script for p
func KWinScript(p Placement) string {
	return fmt.Sprintf(kwinScript, p.AppID, p.WidthPercent, p.YPercent, p.HeightPercent)
}

// KWinPlacer loads a KWin script over the session bus
type KWinPlacer struct{}

// NewKWinPlacer creates a KWin placer. The bus is only contacted in Place.
func NewKWinPlacer() *KWinPlacer {
	return &KWinPlacer{}
}

func (k *KWinPlacer) Name() string {
	return BackendKWin
}

// Place loads the placement script and starts it. A script left over from
// an earlier run is unloaded first.
func (k *KWinPlacer) Place(ctx context.Context, p Placement) error {
	log := logger.WithComponent("placement")

	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	f, err := os.CreateTemp("", "sdock-kwin-*.js")
	if err != nil {
		return fmt.Errorf("failed to create kwin script: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(KWinScript(p)); err != nil {
		f.Close()
		return fmt.Errorf("failed to write kwin script: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write kwin script: %w", err)
	}

	obj := conn.Object(kwinService, kwinScriptingPath)

	var unloaded bool
	if err := obj.CallWithContext(ctx, kwinScriptingIface+".unloadScript", 0, kwinPlacementScript).Store(&unloaded); err != nil {
		log.Debug().Err(err).Msg("Failed to unload previous placement script")
	}

	var id int32
	if err := obj.CallWithContext(ctx, kwinScriptingIface+".loadScript", 0, f.Name(), kwinPlacementScript).Store(&id); err != nil {
		return fmt.Errorf("failed to load kwin script: %w", err)
	}
	if id < 0 {
		return fmt.Errorf("kwin rejected placement script")
	}

	if call := obj.CallWithContext(ctx, kwinScriptingIface+".start", 0); call.Err != nil {
		return fmt.Errorf("failed to start kwin scripting: %w", call.Err)
	}

	log.Debug().Int32("script_id", id).Msg("Loaded KWin placement script")
	return nil
}

// kwinRunning reports whether KWin owns its name on the session bus
func kwinRunning() bool {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return false
	}
	defer conn.Close()

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return false
	}
	for _, name := range names {
		if name == kwinService {
			return true
		}
	}
	return false
}
