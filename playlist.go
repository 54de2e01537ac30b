package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"livewall/pkg/settings"
	"livewall/pkg/sharedTypes"
	"livewall/pkg/videoFs"
	"livewall/screens/wallpaper"
)

// playlist resolves where videos come from: a single file, an S3
// collection, or the local video directory, in that order.
func playlist(s settings.Settings) (wallpaper.Config, error) {
	cfg := wallpaper.Config{
		Interval: s.Interval(),
		Open:     wallpaper.OpenPlayback(s.PipelineConfig()),
	}

	switch {
	case s.Video != "":
		if _, err := os.Stat(s.Video); err != nil {
			return cfg, err
		}
		cfg.Videos = []string{s.Video}

	case s.S3Bucket != "":
		api, err := videoFs.NewS3Client()
		if err != nil {
			return cfg, err
		}
		collection := sharedTypes.Collection{
			Id:     s.S3Bucket + "/" + s.S3Folder,
			Title:  s.S3Folder,
			Bucket: s.S3Bucket,
			Folder: s.S3Folder,
		}

		vids, end, err := videoFs.DownloadSegment(api, collection, s.VideoDir, 0, s.S3Limit)
		if err != nil {
			return cfg, err
		}
		cfg.Videos = vids
		if !end {
			cfg.NextRemote = len(vids)
		}
		cfg.Fetch = func(start, count int) ([]string, bool, error) {
			return videoFs.DownloadSegment(api, collection, s.VideoDir, start, count)
		}

	default:
		vids, err := videoFs.AvailableVideos(s.VideoDir)
		if err != nil {
			return cfg, err
		}
		cfg.Videos = vids
	}

	if len(cfg.Videos) == 0 {
		return cfg, fmt.Errorf("no videos found in %s: %w", s.VideoDir, wallpaper.ErrNoPlayableVideo)
	}

	logrus.WithFields(logrus.Fields{
		"component": "main",
		"videos":    len(cfg.Videos),
		"remote":    cfg.Fetch != nil,
		"interval":  cfg.Interval,
	}).Info("Playlist ready")
	return cfg, nil
}
