package wallpaper

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"livewall/pkg/video"
)

// ErrNoPlayableVideo is returned when no video in the playlist could be opened.
var ErrNoPlayableVideo = errors.New("no playable video")

// New opens the first playable video of cfg.Videos.
func New(cfg Config) (*Wallpaper, error) {
	if cfg.Open == nil {
		return nil, errors.New("wallpaper: nil opener")
	}
	if len(cfg.Videos) == 0 {
		return nil, fmt.Errorf("empty playlist: %w", ErrNoPlayableVideo)
	}
	now := cfg.now
	if now == nil {
		now = time.Now
	}

	w := &Wallpaper{
		open:             cfg.Open,
		fetch:            cfg.Fetch,
		videos:           append([]string(nil), cfg.Videos...),
		nextRemote:       cfg.NextRemote,
		interval:         cfg.Interval,
		now:              now,
		prefetchResultCh: make(chan prefetchResult, 1),
		log:              logrus.WithField("component", "wallpaper"),
	}
	if err := w.startCurrent(); err != nil {
		return nil, err
	}
	return w, nil
}

// Update handles rotation, background downloads and playback failures. It
// never blocks on I/O.
func (w *Wallpaper) Update() error {
	w.handlePrefetchResults()

	if w.playback == nil && w.fetch != nil && !w.now().Before(w.retryAt) {
		w.startPrefetch()
	}

	if w.playback != nil {
		if err := w.playback.Err(); err != nil {
			if w.fetch == nil && len(w.videos) == 1 {
				return fmt.Errorf("playing %s: %w", w.CurrentVideo(), err)
			}
			w.log.WithError(err).WithField("video", w.CurrentVideo()).Error("Playback failed, skipping video")
			w.Next()
		}
	}

	if w.playback != nil && w.interval > 0 && w.now().Sub(w.playStart) >= w.interval {
		w.log.Info("Switching to next video due to interval")
		w.Next()
	}

	return w.err
}

// Frame returns the picture to show on a targetW x targetH surface this tick.
func (w *Wallpaper) Frame(targetW, targetH int32) (video.Presentation, bool) {
	if w.playback == nil {
		return video.Presentation{}, false
	}
	return w.playback.Tick(targetW, targetH)
}

// Stats returns the counters of the current pipeline.
func (w *Wallpaper) Stats() video.Stats {
	if w.playback == nil {
		return video.Stats{}
	}
	return w.playback.Stats()
}

// Info returns the stream metadata of the current video.
func (w *Wallpaper) Info() video.StreamInfo {
	if w.playback == nil {
		return video.StreamInfo{}
	}
	return w.playback.Info()
}

// CurrentVideo returns the path of the video on screen.
func (w *Wallpaper) CurrentVideo() string {
	if len(w.videos) == 0 {
		return ""
	}
	return w.videos[w.current]
}

// Videos returns the current playlist.
func (w *Wallpaper) Videos() []string {
	return append([]string(nil), w.videos...)
}

// IsPrefetchPending reports whether a background download is running.
func (w *Wallpaper) IsPrefetchPending() bool {
	return w.prefetchPending
}

// Next advances to the following video. While a download is pending the
// request is queued and replayed once it completes.
func (w *Wallpaper) Next() {
	if w.prefetchPending {
		w.queuedNext = true
		w.log.Debug("Prefetch pending, queued next request")
		return
	}
	w.err = nil

	if len(w.videos) == 0 {
		w.log.Debug("Playlist empty, waiting for downloads")
		w.startPrefetch()
		return
	}

	if w.fetch == nil && len(w.videos) == 1 {
		// A single local video keeps looping.
		w.playStart = w.now()
		return
	}

	w.closePlayback()
	if w.fetch != nil {
		w.removeCurrent()
	} else {
		w.current = (w.current + 1) % len(w.videos)
	}

	if len(w.videos) == 0 {
		w.log.Warn("Playlist empty, waiting for downloads")
		w.startPrefetch()
		return
	}

	w.startOrWait()
	w.startPrefetch()
}

// startOrWait opens the current video. A downloaded playlist that runs dry
// waits for the next download instead of failing.
func (w *Wallpaper) startOrWait() {
	err := w.startCurrent()
	switch {
	case err == nil:
		w.err = nil
	case w.fetch != nil:
		w.log.WithError(err).Warn("No downloaded video is playable, waiting for downloads")
	default:
		w.err = err
	}
}

// Close stops playback.
func (w *Wallpaper) Close() error {
	return w.closePlayback()
}

// startCurrent opens w.current, skipping files that fail to open. Broken
// remote files are deleted.
func (w *Wallpaper) startCurrent() error {
	for attempts := len(w.videos); attempts > 0 && len(w.videos) > 0; attempts-- {
		path := w.videos[w.current]
		pb, err := w.open(path)
		if err == nil {
			w.playback = pb
			w.playStart = w.now()
			w.log.WithField("video", path).Info("Playing video")
			return nil
		}

		w.log.WithError(err).WithField("video", path).Warn("Failed to open video")
		if w.fetch != nil {
			w.removeCurrent()
		} else {
			w.current = (w.current + 1) % len(w.videos)
		}
	}
	return ErrNoPlayableVideo
}

func (w *Wallpaper) closePlayback() error {
	if w.playback == nil {
		return nil
	}
	err := w.playback.Close()
	w.playback = nil
	if err != nil {
		w.log.WithError(err).Warn("Error closing playback")
	}
	return err
}

// removeCurrent deletes the current downloaded file and drops it from the
// playlist.
func (w *Wallpaper) removeCurrent() {
	if len(w.videos) == 0 {
		return
	}
	played := w.videos[w.current]
	if err := os.Remove(played); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.log.WithError(err).WithField("video", played).Warn("Failed to remove played video")
	}
	w.videos = append(w.videos[:w.current], w.videos[w.current+1:]...)
	w.current = 0
}

// startPrefetch tops the playlist back up to prefetchBuffer in the background.
func (w *Wallpaper) startPrefetch() {
	if w.fetch == nil || w.prefetchPending {
		return
	}
	missing := prefetchBuffer - len(w.videos)
	if missing <= 0 {
		return
	}

	w.prefetchPending = true
	w.log.WithFields(logrus.Fields{"count": missing, "start": w.nextRemote}).Debug("Starting prefetch")

	go func(fetch Fetcher, start, count int) {
		vids, end, err := fetch(start, count)
		w.prefetchResultCh <- prefetchResult{vids: vids, endOfCollection: end, err: err}
	}(w.fetch, w.nextRemote, missing)
}

func (w *Wallpaper) handlePrefetchResults() {
	select {
	case res := <-w.prefetchResultCh:
		w.prefetchPending = false
		if res.err != nil {
			w.log.WithError(res.err).Warn("Prefetch failed")
			w.nextRemote = 0
			w.retryAt = w.now().Add(prefetchRetryDelay)
		} else {
			w.videos = append(w.videos, res.vids...)
			w.nextRemote += len(res.vids)
			w.log.WithField("count", len(res.vids)).Info("Appended prefetched videos")
		}
		if res.endOfCollection {
			w.nextRemote = 0
			w.log.Debug("Reached end of collection, wrapping to start")
		}

		if w.playback == nil && len(w.videos) > 0 {
			w.startOrWait()
			if w.playback != nil {
				// The queued request was for the video that ran out.
				w.queuedNext = false
			}
		}
		if w.queuedNext {
			w.queuedNext = false
			w.Next()
		}
	default:
	}
}
