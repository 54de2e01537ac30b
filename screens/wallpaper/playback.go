package wallpaper

import (
	"errors"

	"livewall/pkg/mpeg"
	"livewall/pkg/video"
)

type pipelinePlayback struct {
	pipeline *video.Pipeline
	clock    *video.Clock
}

// OpenPlayback returns an Opener that decodes with cfg.
func OpenPlayback(cfg mpeg.Config) Opener {
	return func(path string) (Playback, error) {
		p, err := mpeg.OpenPipeline(path, cfg)
		if err != nil {
			return nil, err
		}
		if err := p.StartDecoding(); err != nil {
			return nil, errors.Join(err, p.Close())
		}
		return &pipelinePlayback{pipeline: p, clock: video.NewClock(p)}, nil
	}
}

func (pb *pipelinePlayback) Tick(targetW, targetH int32) (video.Presentation, bool) {
	return pb.clock.Tick(targetW, targetH)
}

func (pb *pipelinePlayback) Stats() video.Stats {
	return pb.pipeline.Stats()
}

func (pb *pipelinePlayback) Info() video.StreamInfo {
	return pb.pipeline.Info()
}

func (pb *pipelinePlayback) Err() error {
	return pb.pipeline.Err()
}

// Close releases the frame on screen before the pipeline drops its queue.
func (pb *pipelinePlayback) Close() error {
	pb.clock.Close()
	return pb.pipeline.Close()
}
