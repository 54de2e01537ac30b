package mpeg

import (
	"github.com/sirupsen/logrus"

	"livewall/pkg/video"
)

// Config gathers everything needed to open a pipeline for a file.
type Config struct {
	Pipeline video.Options
	Decoder  DecoderSelection
}

// OpenPipeline opens path, picks a decoder for its video stream and returns
// a pipeline ready to start. Nothing is decoded yet.
func OpenPipeline(path string, cfg Config) (*video.Pipeline, error) {
	opts := cfg.Pipeline.Normalized()

	dmx, err := OpenDemuxer(path, opts.ReadRetries)
	if err != nil {
		return nil, err
	}

	dec, err := NewDecoder(dmx.Stream(), dmx.FrameRate(), cfg.Decoder, opts.DrainCeiling)
	if err != nil {
		_ = dmx.Close()
		return nil, err
	}

	info := dec.Info()
	video.LogCodecAdvice(video.CodecInfo{
		Name:            info.CodecName,
		Path:            path,
		Width:           info.Width,
		Height:          info.Height,
		FrameRate:       info.FrameRate,
		IsHardwareAccel: dec.IsHardware(),
	})

	p, err := video.NewPipeline(dmx, dec, info, opts)
	if err != nil {
		_ = dec.Close()
		_ = dmx.Close()
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"component": "mpeg",
		"path":      path,
		"fps":       info.FrameRate,
	}).Info("Pipeline opened")
	return p, nil
}
