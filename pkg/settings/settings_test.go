package settings

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	s := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Equal(t, Defaults(), s)
	assert.NoError(t, s.Validate())
}

func TestLoadMalformedFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Equal(t, Defaults(), Load(path))
}

func TestLoadFillsMissingFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"highWater": 30, "playbackInterval": "Every day"}`), 0o644))

	s := Load(path)
	assert.Equal(t, 30, s.HighWater)
	assert.Equal(t, Defaults().LowWater, s.LowWater)
	assert.Equal(t, 24*time.Hour, s.Interval())
	assert.Equal(t, "assets/videos", s.VideoDir)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	want := Defaults()
	want.Video = "/srv/walls/ocean.mp4"
	want.ForceSoftwareDecoder = true

	require.NoError(t, Save(path, want))
	assert.Equal(t, want, Load(path))
}

func TestApplyEnv(t *testing.T) {
	s := Defaults()
	err := s.ApplyEnv(envMap(map[string]string{
		"LIVEWALL_VIDEO":         "/tmp/a.mkv",
		"LIVEWALL_HIGH_WATER":    "12",
		"LIVEWALL_LOW_WATER":     "4",
		"LIVEWALL_INTERVAL":      "90s",
		"LOG_LEVEL":              "debug",
		"VIDEO_DECODER":          "h264_rkmpp",
		"FORCE_SOFTWARE_DECODER": "1",
		"LIVEWALL_TARGET_FPS":    "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "/tmp/a.mkv", s.Video)
	assert.Equal(t, 12, s.HighWater)
	assert.Equal(t, 4, s.LowWater)
	assert.Equal(t, 60, s.TargetFPS)
	assert.Equal(t, 90*time.Second, s.Interval())
	assert.Equal(t, "debug", s.LogLevel)

	cfg := s.PipelineConfig()
	assert.Equal(t, 12, cfg.Pipeline.HighWater)
	assert.Equal(t, 4, cfg.Pipeline.LowWater)
	assert.Equal(t, "h264_rkmpp", cfg.Decoder.Preferred)
	assert.True(t, cfg.Decoder.ForceSoftware)
}

func TestApplyEnvRejectsNonNumeric(t *testing.T) {
	s := Defaults()
	err := s.ApplyEnv(envMap(map[string]string{"LIVEWALL_HIGH_WATER": "lots"}))
	assert.ErrorContains(t, err, "LIVEWALL_HIGH_WATER")
	assert.Equal(t, Defaults().HighWater, s.HighWater)
}

func TestValidate(t *testing.T) {
	s := Defaults()
	s.LowWater = 25
	assert.ErrorContains(t, s.Validate(), "exceeds highWater")

	s = Defaults()
	s.HighWater = 0
	assert.ErrorContains(t, s.Validate(), "highWater must be positive")

	s = Defaults()
	s.PlaybackInterval = "sometimes"
	assert.ErrorContains(t, s.Validate(), "invalid playback interval")

	s = Defaults()
	s.LogLevel = "chatty"
	assert.Error(t, s.Validate())
}

func TestParseInterval(t *testing.T) {
	d, err := ParseInterval("Never")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseInterval("Every week")
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, d)

	_, err = ParseInterval("-5m")
	assert.Error(t, err)
}

func TestLowWaterZeroIsKept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"lowWater": 0}`), 0o644))

	s := Load(path)
	assert.Equal(t, 0, s.LowWater)
	require.NoError(t, s.Validate())
	assert.Equal(t, 1, s.PipelineConfig().Pipeline.LowWater)

	s = Defaults()
	require.NoError(t, s.ApplyEnv(envMap(map[string]string{"LIVEWALL_LOW_WATER": "0"})))
	assert.Equal(t, 0, s.LowWater)
	assert.Equal(t, 1, s.PipelineConfig().Pipeline.LowWater)
}

func TestHighWaterAloneClampsLowWater(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.ApplyEnv(envMap(map[string]string{"LIVEWALL_HIGH_WATER": "10"})))
	assert.Equal(t, 10, s.HighWater)
	assert.Equal(t, 10, s.LowWater)
	assert.NoError(t, s.Validate())

	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"highWater": 8}`), 0o644))
	s = Load(path)
	assert.Equal(t, 8, s.LowWater)
	assert.NoError(t, s.Validate())
}
