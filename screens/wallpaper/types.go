package wallpaper

import (
	"time"

	"github.com/sirupsen/logrus"

	"livewall/pkg/video"
)

// prefetchBuffer is the number of videos kept downloaded ahead.
const prefetchBuffer = 2

// prefetchRetryDelay spaces download attempts while nothing is playable.
const prefetchRetryDelay = 30 * time.Second

// Playback is one open video: a running pipeline and the clock pacing it.
type Playback interface {
	Tick(targetW, targetH int32) (video.Presentation, bool)
	Stats() video.Stats
	Info() video.StreamInfo
	Err() error
	Close() error
}

// Opener opens a video file for playback.
type Opener func(path string) (Playback, error)

// Fetcher downloads up to count videos starting at index start and reports
// whether the end of the remote collection was reached.
type Fetcher func(start, count int) (paths []string, endOfCollection bool, err error)

// Config describes where videos come from and how often they rotate.
type Config struct {
	// Videos is the initial playlist.
	Videos []string
	// Interval between automatic rotations; zero disables rotation.
	Interval time.Duration
	Open     Opener
	// Fetch is set when Videos were downloaded from a collection. Played
	// files are then deleted and replaced in the background.
	Fetch Fetcher
	// NextRemote is the collection index following Videos.
	NextRemote int

	now func() time.Time
}

// Wallpaper plays a rotating list of looping videos.
type Wallpaper struct {
	open  Opener
	fetch Fetcher

	videos     []string
	current    int
	nextRemote int

	interval  time.Duration
	now       func() time.Time
	playStart time.Time
	playback  Playback

	prefetchResultCh chan prefetchResult
	prefetchPending  bool
	queuedNext       bool
	retryAt          time.Time

	err error
	log *logrus.Entry
}

type prefetchResult struct {
	vids            []string
	endOfCollection bool
	err             error
}
