package main

import (
	"errors"
	"io/fs"
	"os"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"livewall/pkg/display"
	"livewall/pkg/input"
	"livewall/pkg/performance"
	"livewall/pkg/settings"
	"livewall/pkg/video"
	"livewall/screens/wallpaper"
)

const statsInterval = 30 * time.Second

func main() {
	// SDL calls must stay on the main thread.
	runtime.LockOSThread()

	if err := godotenv.Load(); err != nil {
		logrus.WithError(err).Debug(".env file not found")
	}

	path := settings.Path()
	s := settings.Load(path)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		// First run: leave an editable file behind.
		if err := settings.Save(path, s); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Failed to write default settings")
		}
	}
	if err := s.ApplyEnv(os.LookupEnv); err != nil {
		logrus.WithError(err).Warn("Ignoring invalid environment overrides")
	}
	if err := s.Validate(); err != nil {
		logrus.WithError(err).Fatal("Invalid settings")
	}
	configureLogging(s.LogLevel)
	debug.SetGCPercent(50)

	log := logrus.WithField("component", "main")

	cfg, err := playlist(s)
	if err != nil {
		log.WithError(err).Fatal("Failed to build playlist")
	}

	if err := display.Init(); err != nil {
		log.WithError(err).Fatal("Failed to initialize SDL2")
	}
	defer func() {
		log.Info("Shutting down SDL2...")
		sdl.Quit()
	}()

	title := os.Getenv("GAME_TITLE")
	if title == "" {
		title = "Livewall"
	}
	screenWidth, screenHeight := display.DisplaySize()
	log.WithFields(logrus.Fields{"title": title, "width": screenWidth, "height": screenHeight}).Info("Starting")

	window, renderer, err := display.OpenWindow(title, screenWidth, screenHeight)
	if err != nil {
		log.WithError(err).Fatal("Failed to create window")
	}
	defer window.Destroy()
	defer renderer.Destroy()

	wp, err := wallpaper.New(cfg)
	if err != nil {
		log.WithError(err).Fatal("Failed to start playback")
	}
	defer wp.Close()

	if err := run(wp, renderer, s.TargetFPS); err != nil {
		log.WithError(err).Error("Playback stopped")
	}
	log.Info("Livewall shutting down...")
}

func configureLogging(level string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logrus.SetLevel(lvl)
}

// run is the render loop: one Update and one Frame per tick at targetFPS.
func run(wp *wallpaper.Wallpaper, renderer *sdl.Renderer, targetFPS int) error {
	log := logrus.WithField("component", "main")
	bindings := input.NewBindings()
	frameTime := time.Second / time.Duration(targetFPS)

	var sink *display.Sink
	defer func() {
		if sink != nil {
			sink.Close()
		}
	}()

	lastStats := time.Now()
	for {
		started := time.Now()

		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				return nil
			case *sdl.WindowEvent:
				if e.Event == sdl.WINDOWEVENT_FOCUS_LOST {
					bindings.Reset()
				}
			}
		}

		_, _, mouseState := sdl.GetMouseState()
		switch bindings.Poll(sdl.GetKeyboardState(), mouseState) {
		case input.ActionQuit:
			return nil
		case input.ActionNext:
			wp.Next()
		}

		if err := wp.Update(); err != nil {
			return err
		}

		outW, outH, err := renderer.GetOutputSize()
		if err != nil {
			return err
		}
		renderer.SetDrawColor(0, 0, 0, 255)
		renderer.Clear()

		if p, ok := wp.Frame(outW, outH); ok {
			if sink, err = ensureSink(sink, renderer, p); err != nil {
				return err
			}
			if err := sink.Present(p); err != nil {
				if !errors.Is(err, video.ErrShapeMismatch) {
					return err
				}
				log.WithError(err).Warn("Skipping frame")
			}
		}
		renderer.Present()

		if time.Since(lastStats) >= statsInterval {
			logStats(wp, sink)
			lastStats = time.Now()
		}

		if elapsed := time.Since(started); elapsed < frameTime {
			time.Sleep(frameTime - elapsed)
		}
	}
}

// ensureSink recreates the texture when the video size changes.
func ensureSink(sink *display.Sink, renderer *sdl.Renderer, p video.Presentation) (*display.Sink, error) {
	if sink != nil {
		if w, h := sink.Size(); w == p.Width && h == p.Height {
			return sink, nil
		}
		sink.Close()
	}
	return display.NewSink(renderer, p.Width, p.Height)
}

func logStats(wp *wallpaper.Wallpaper, sink *display.Sink) {
	st := wp.Stats()
	info := wp.Info()
	fields := logrus.Fields{
		"component":     "main",
		"video":         wp.CurrentVideo(),
		"codec":         info.CodecName,
		"fps":           info.FrameRate,
		"state":         st.State.String(),
		"generation":    st.Generation,
		"queued":        st.Queued,
		"pushed":        st.Pushed,
		"popped":        st.Popped,
		"duplicates":    st.Duplicates,
		"pool_alloc":    st.PoolAllocated,
		"pool_exhaust":  st.PoolExhausted,
		"avg_decode_ms": st.AvgDecodeMs,
		"avg_tick_ms":   st.AvgTickMs,
		"repeat_rate":   st.RepeatRate,
	}
	if st.FallingBehind {
		logrus.WithFields(fields).Warn("Decoding is falling behind the frame rate")
	}
	if sink != nil {
		w, h := sink.Size()
		fields["frame_buffers_mb"] = performance.FrameBuffersMB(w, h, st.PoolAllocated)
		fields["uploads"] = sink.Uploads()
	}
	performance.LogMemorySnapshot(fields)
}
