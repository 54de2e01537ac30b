package videoFs

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// videoExtensions are the containers the player will try to open.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".webm": true,
	".mov":  true,
	".avi":  true,
	".mpg":  true,
	".mpeg": true,
	".m4v":  true,
}

// IsVideoFile reports whether name has a playable extension.
func IsVideoFile(name string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(name))]
}

// AvailableVideos lists playable files in dir, sorted by name.
func AvailableVideos(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		logrus.WithError(err).WithField("dir", dir).Error("Error reading video directory")
		return nil, err
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !IsVideoFile(entry.Name()) {
			continue
		}
		videos = append(videos, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(videos)

	logrus.WithFields(logrus.Fields{
		"component": "videoFs",
		"dir":       dir,
		"found":     len(videos),
	}).Info("Listed available videos")
	return videos, nil
}
