package validate

import (
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"chatmedia/internal/logging"
)

var (
	vipsOnce  sync.Once
	vipsReady bool
)

// initVips starts libvips on first use. Startup failures disable the
// vips fallback for the session rather than failing validation.
func initVips() bool {
	vipsOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				logging.Warn("libvips unavailable, animated WebP fallback disabled: %v", r)
				vipsReady = false
			}
		}()

		vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
			switch level {
			case vips.LogLevelError, vips.LogLevelCritical:
				logging.Error("[vips/%s] %s", domain, msg)
			}
		}, vips.LogLevelError)
		vips.Startup(nil)
		vipsReady = true
	})
	return vipsReady
}

// decodeWithVips attempts a full decode through libvips and discards
// the result.
func decodeWithVips(path string) bool {
	if !initVips() {
		return false
	}

	img, err := vips.NewImageFromFile(path)
	if err != nil {
		return false
	}
	img.Close()
	return true
}

// ShutdownVips releases libvips resources. Called on process shutdown.
func ShutdownVips() {
	if vipsReady {
		vips.Shutdown()
	}
}
