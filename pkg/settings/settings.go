package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"livewall/pkg/mpeg"
	"livewall/pkg/video"
)

// Settings represents user-tunable configuration that should persist across
// application restarts.
type Settings struct {
	Video            string `json:"video,omitempty"`
	VideoDir         string `json:"videoDir"`
	HighWater        int    `json:"highWater"`
	LowWater         int    `json:"lowWater"`
	TargetFPS        int    `json:"targetFps"`
	PlaybackInterval string `json:"playbackInterval"`
	LogLevel         string `json:"logLevel"`

	S3Bucket string `json:"s3Bucket,omitempty"`
	S3Folder string `json:"s3Folder,omitempty"`
	S3Limit  int    `json:"s3Limit,omitempty"`

	PreferredDecoder     string `json:"preferredDecoder,omitempty"`
	ForceSoftwareDecoder bool   `json:"forceSoftwareDecoder,omitempty"`
}

var defaultSettings = Settings{
	VideoDir:         "assets/videos",
	HighWater:        video.DefaultHighWater,
	LowWater:         video.DefaultLowWater,
	TargetFPS:        60,
	PlaybackInterval: "Every hour",
	LogLevel:         "info",
	S3Limit:          2,
}

// DefaultPath is used when LIVEWALL_SETTINGS is unset.
const DefaultPath = "settings.json"

// Defaults returns the built-in settings.
func Defaults() Settings {
	return defaultSettings
}

// Path returns the settings file location.
func Path() string {
	if p := os.Getenv("LIVEWALL_SETTINGS"); p != "" {
		return p
	}
	return DefaultPath
}

// Load reads the settings file from disk. When the file is missing or cannot
// be parsed, defaults are returned instead so the player can keep running.
func Load(path string) Settings {
	entry := logrus.WithFields(logrus.Fields{"component": "settings", "path": path})

	f, err := os.Open(path)
	if err != nil {
		entry.Debug("No settings file, using defaults")
		return defaultSettings
	}
	defer f.Close()

	// Fields absent from the file keep their defaults.
	s := defaultSettings
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		entry.WithError(err).Warn("Malformed settings file, using defaults")
		return defaultSettings
	}

	s.fillDefaults()
	s.clampLowWater()
	return s
}

// fillDefaults replaces zero values of fields that have no meaningful zero.
// LowWater 0 is kept: it means frames are taken as soon as one is queued.
func (s *Settings) fillDefaults() {
	if s.VideoDir == "" {
		s.VideoDir = defaultSettings.VideoDir
	}
	if s.HighWater == 0 {
		s.HighWater = defaultSettings.HighWater
	}
	if s.TargetFPS == 0 {
		s.TargetFPS = defaultSettings.TargetFPS
	}
	if s.PlaybackInterval == "" {
		s.PlaybackInterval = defaultSettings.PlaybackInterval
	}
	if s.LogLevel == "" {
		s.LogLevel = defaultSettings.LogLevel
	}
	if s.S3Limit == 0 {
		s.S3Limit = defaultSettings.S3Limit
	}
}

// Save writes the settings to disk, creating the file when necessary.
func Save(path string, s Settings) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ApplyEnv overrides fields from the environment. lookup is os.LookupEnv in
// production.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = n
	}

	str("LIVEWALL_VIDEO", &s.Video)
	str("LIVEWALL_VIDEO_DIR", &s.VideoDir)
	num("LIVEWALL_HIGH_WATER", &s.HighWater)
	num("LIVEWALL_LOW_WATER", &s.LowWater)
	num("LIVEWALL_TARGET_FPS", &s.TargetFPS)
	str("LIVEWALL_INTERVAL", &s.PlaybackInterval)
	str("LOG_LEVEL", &s.LogLevel)
	str("LIVEWALL_S3_BUCKET", &s.S3Bucket)
	str("LIVEWALL_S3_FOLDER", &s.S3Folder)
	num("LIVEWALL_S3_LIMIT", &s.S3Limit)
	str("VIDEO_DECODER", &s.PreferredDecoder)
	if v, ok := lookup("FORCE_SOFTWARE_DECODER"); ok {
		s.ForceSoftwareDecoder = v == "1" || strings.EqualFold(v, "true")
	}

	s.clampLowWater()
	return errors.Join(errs...)
}

// clampLowWater lowers LowWater to HighWater, as the pipeline does.
func (s *Settings) clampLowWater() {
	if s.HighWater > 0 && s.LowWater > s.HighWater {
		logrus.WithFields(logrus.Fields{
			"component":  "settings",
			"low_water":  s.LowWater,
			"high_water": s.HighWater,
		}).Warn("Low water above high water, clamping")
		s.LowWater = s.HighWater
	}
}

// Validate rejects settings the pipeline cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.HighWater <= 0 {
		errs = append(errs, fmt.Errorf("highWater must be positive, got %d", s.HighWater))
	}
	if s.LowWater < 0 {
		errs = append(errs, fmt.Errorf("lowWater must not be negative, got %d", s.LowWater))
	}
	if s.LowWater > s.HighWater {
		errs = append(errs, fmt.Errorf("lowWater %d exceeds highWater %d", s.LowWater, s.HighWater))
	}
	if s.TargetFPS <= 0 {
		errs = append(errs, fmt.Errorf("targetFps must be positive, got %d", s.TargetFPS))
	}
	if _, err := ParseInterval(s.PlaybackInterval); err != nil {
		errs = append(errs, err)
	}
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// PipelineConfig maps the settings onto pipeline and decoder options.
func (s Settings) PipelineConfig() mpeg.Config {
	return mpeg.Config{
		Pipeline: video.Options{
			HighWater: s.HighWater,
			// A depth of one takes any queued frame; zero would mean "default".
			LowWater: max(s.LowWater, 1),
		},
		Decoder: mpeg.DecoderSelection{
			Preferred:     s.PreferredDecoder,
			ForceSoftware: s.ForceSoftwareDecoder,
		},
	}
}

// Interval returns the rotation interval; zero means never rotate.
func (s Settings) Interval() time.Duration {
	d, _ := ParseInterval(s.PlaybackInterval)
	return d
}

// ParseInterval accepts the menu labels ("Every hour", "Never") or a Go
// duration such as "90s".
func ParseInterval(label string) (time.Duration, error) {
	switch label {
	case "Never":
		return 0, nil
	case "Every minute":
		return time.Minute, nil
	case "Every hour":
		return time.Hour, nil
	case "Every 12 hours":
		return 12 * time.Hour, nil
	case "Every day":
		return 24 * time.Hour, nil
	case "Every week":
		return 7 * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(label)
	if err != nil {
		return 0, fmt.Errorf("invalid playback interval %q", label)
	}
	if d < 0 {
		return 0, fmt.Errorf("negative playback interval %q", label)
	}
	return d, nil
}
