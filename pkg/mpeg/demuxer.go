package mpeg

import (
	"errors"
	"fmt"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/sirupsen/logrus"

	"livewall/pkg/video"
)

var logLevelOnce sync.Once

// quietFFmpeg suppresses non-critical libav warnings such as the
// colourspace-conversion notice.
func quietFFmpeg() {
	logLevelOnce.Do(func() {
		astiav.SetLogLevel(astiav.LogLevelError)
	})
}

// packet carries one demuxed packet of the selected video stream.
type packet struct {
	pkt *astiav.Packet
}

func (p *packet) PTS() int64 {
	if p.pkt == nil {
		return astiav.NoPtsValue
	}
	return p.pkt.Pts()
}

func (p *packet) Release() {
	if p.pkt != nil {
		p.pkt.Free()
		p.pkt = nil
	}
}

// Demuxer reads the packets of a container's best video stream.
type Demuxer struct {
	path        string
	fc          *astiav.FormatContext
	stream      *astiav.Stream
	readRetries int
	readFrame   func(*astiav.Packet) error

	closer    *astikit.Closer
	closeOnce sync.Once
	log       *logrus.Entry
}

// OpenDemuxer opens path and selects the video stream libavformat ranks
// best, which skips cover art and thumbnails.
func OpenDemuxer(path string, readRetries int) (*Demuxer, error) {
	quietFFmpeg()

	d := &Demuxer{
		path:        path,
		readRetries: readRetries,
		closer:      astikit.NewCloser(),
		log:         logrus.WithFields(logrus.Fields{"component": "demuxer", "path": path}),
	}
	if d.readRetries <= 0 {
		d.readRetries = video.DefaultReadRetries
	}

	if d.fc = astiav.AllocFormatContext(); d.fc == nil {
		return nil, errors.New("allocating format context failed")
	}
	d.closer.Add(d.fc.Free)

	dict := astiav.NewDictionary()
	defer dict.Free()
	if err := dict.Set("genpts", "1", astiav.NewDictionaryFlags()); err != nil {
		_ = d.closer.Close()
		return nil, fmt.Errorf("setting genpts: %w", err)
	}

	if err := d.fc.OpenInput(path, nil, dict); err != nil {
		_ = d.closer.Close()
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	d.closer.Add(d.fc.CloseInput)

	if err := d.fc.FindStreamInfo(nil); err != nil {
		_ = d.closer.Close()
		return nil, fmt.Errorf("finding stream info for %s: %w", path, err)
	}

	s, _, err := d.fc.FindBestStream(astiav.MediaTypeVideo, -1, -1)
	if err != nil || s == nil {
		_ = d.closer.Close()
		return nil, fmt.Errorf("%s: %w: %v", path, video.ErrNoVideoStream, err)
	}
	d.stream = s
	d.readFrame = d.fc.ReadFrame

	d.fixTimeBase()
	d.log = d.log.WithField("stream", d.stream.Index())
	d.log.WithField("time_base", rationalString(d.stream.TimeBase())).Debug("Selected video stream")
	return d, nil
}

// fixTimeBase replaces a zero stream time base with the inverse of the
// average frame rate.
func (d *Demuxer) fixTimeBase() {
	if d.stream.TimeBase().Num() != 0 {
		return
	}

	rate := d.stream.AvgFrameRate()
	if rate.Num() <= 0 || rate.Den() <= 0 {
		rate = astiav.NewRational(defaultFrameRate, 1)
	}
	tb := rate.Invert()
	d.log.WithField("time_base", rationalString(tb)).Warn("Video stream time base is zero, deriving it from the average frame rate")
	d.stream.SetTimeBase(tb)
}

// Stream returns the selected video stream.
func (d *Demuxer) Stream() *astiav.Stream {
	return d.stream
}

// FrameRate returns the stream's average frame rate, falling back to a
// guess and finally to 30fps.
func (d *Demuxer) FrameRate() float64 {
	if r := d.stream.AvgFrameRate(); r.Num() > 0 && r.Den() > 0 {
		return r.Float64()
	}
	if r := d.fc.GuessFrameRate(d.stream, nil); r.Num() > 0 && r.Den() > 0 {
		return r.Float64()
	}
	return defaultFrameRate
}

// ReadPacket returns the next packet of the video stream. Packets of other
// streams are skipped. Read errors other than end of file are retried up to
// the retry budget before the stream is reported exhausted.
func (d *Demuxer) ReadPacket() (video.Packet, bool) {
	failures := 0
	for {
		pkt := astiav.AllocPacket()
		if err := d.readFrame(pkt); err != nil {
			pkt.Free()
			if errors.Is(err, astiav.ErrEof) {
				return nil, false
			}
			failures++
			if failures >= d.readRetries {
				d.log.WithError(err).WithField("attempts", failures).Warn("Giving up reading packets")
				return nil, false
			}
			d.log.WithError(err).Debug("Transient read failure, retrying")
			continue
		}

		if pkt.StreamIndex() != d.stream.Index() {
			pkt.Free()
			continue
		}
		return &packet{pkt: pkt}, true
	}
}

// SeekToStart rewinds to the first keyframe of the stream.
func (d *Demuxer) SeekToStart() error {
	if err := d.fc.SeekFrame(d.stream.Index(), 0, astiav.NewSeekFlags(astiav.SeekFlagBackward)); err != nil {
		return fmt.Errorf("seeking %s to start: %w", d.path, err)
	}
	return nil
}

// Close releases the container.
func (d *Demuxer) Close() error {
	var err error
	d.closeOnce.Do(func() {
		err = d.closer.Close()
	})
	return err
}

func rationalString(r astiav.Rational) string {
	return fmt.Sprintf("%d/%d", r.Num(), r.Den())
}
