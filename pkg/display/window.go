package display

import (
	"fmt"
	"os"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"
)

const (
	fallbackWidth  = 1920
	fallbackHeight = 1080
)

var log = logrus.WithField("component", "display")

// VideoDrivers returns SDL video drivers to try in order. An explicit
// driver is tried first.
func VideoDrivers(goos, explicit string) []string {
	if explicit != "" {
		return []string{explicit, "fbcon", "software", "dummy"}
	}
	if goos == "darwin" {
		return []string{"cocoa", "software", "dummy"}
	}
	return []string{"kmsdrm", "drm", "fbcon", "wayland", "x11", "software", "dummy"}
}

// Init initializes SDL's video subsystem, trying each driver in turn.
func Init() error {
	for _, driver := range VideoDrivers(runtime.GOOS, os.Getenv("SDL_VIDEODRIVER")) {
		entry := log.WithField("driver", driver)
		entry.Debug("Attempting SDL2 initialization")

		if err := tryInit(driver); err != nil {
			entry.WithError(err).Warn("SDL2 initialization failed")
			continue
		}
		entry.Info("SDL2 initialized")
		return nil
	}
	return fmt.Errorf("all SDL2 video drivers failed")
}

func tryInit(driver string) error {
	sdl.Quit()
	os.Setenv("SDL_VIDEODRIVER", driver)
	sdl.SetHint(sdl.HINT_VIDEODRIVER, driver)

	switch driver {
	case "kmsdrm":
		sdl.SetHint("SDL_KMSDRM_REQUIRE_DRM_MASTER", "1")
		sdl.SetHint("SDL_VIDEO_KMSDRM_DEVINDEX", "0")
		sdl.SetHint("SDL_RENDER_VSYNC", "1")
	case "fbcon":
		sdl.SetHint("SDL_FBDEV", "/dev/fb0")
	case "wayland":
		sdl.SetHint("SDL_VIDEO_WAYLAND_WMCLASS", "livewall")
	case "x11":
		sdl.SetHint("SDL_VIDEO_X11_NET_WM_BYPASS_COMPOSITOR", "0")
	case "software":
		sdl.SetHint("SDL_FRAMEBUFFER_ACCELERATION", "0")
	}

	switch driver {
	case "kmsdrm", "drm":
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengles2")
	case "cocoa":
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "opengl")
	default:
		sdl.SetHint(sdl.HINT_RENDER_DRIVER, "software")
	}
	sdl.SetHint(sdl.HINT_VIDEO_MINIMIZE_ON_FOCUS_LOSS, "0")
	sdl.SetHint(sdl.HINT_RENDER_SCALE_QUALITY, "1")

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return fmt.Errorf("SDL_INIT_VIDEO failed: %w", err)
	}
	if _, err := sdl.GetCurrentVideoDriver(); err != nil {
		return fmt.Errorf("failed to get video driver: %w", err)
	}
	return nil
}

// DisplaySize returns the current mode of display 0, or 1920x1080.
func DisplaySize() (int32, int32) {
	mode, err := sdl.GetCurrentDisplayMode(0)
	if err != nil {
		log.WithError(err).Warn("Failed to get display mode, using fallback")
		return fallbackWidth, fallbackHeight
	}
	return mode.W, mode.H
}

// OpenWindow creates a fullscreen window and a renderer, preferring
// hardware acceleration on GPU drivers.
func OpenWindow(title string, width, height int32) (*sdl.Window, *sdl.Renderer, error) {
	window, err := sdl.CreateWindow(title, 0, 0, width, height, sdl.WINDOW_SHOWN|sdl.WINDOW_FULLSCREEN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create window: %w", err)
	}

	driver, err := sdl.GetCurrentVideoDriver()
	if err != nil {
		driver = "unknown"
	}

	var renderer *sdl.Renderer
	switch driver {
	case "kmsdrm", "drm", "cocoa":
		flags := uint32(sdl.RENDERER_ACCELERATED)
		// Async flips fail on VC4 under kmsdrm.
		if driver != "kmsdrm" {
			flags |= sdl.RENDERER_PRESENTVSYNC
		}
		renderer, err = sdl.CreateRenderer(window, -1, flags)
		if err != nil {
			log.WithError(err).WithField("driver", driver).Warn("Hardware acceleration failed, trying software")
			renderer = nil
		}
	}

	if renderer == nil {
		renderer, err = sdl.CreateRenderer(window, -1, sdl.RENDERER_SOFTWARE)
		if err != nil {
			window.Destroy()
			return nil, nil, fmt.Errorf("failed to create renderer: %w", err)
		}
	}

	log.WithFields(logrus.Fields{
		"driver": driver,
		"size":   fmt.Sprintf("%dx%d", width, height),
	}).Info("Window ready")
	return window, renderer, nil
}
