package mpeg

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/asticode/go-astiav"
	"github.com/asticode/go-astikit"
	"github.com/sirupsen/logrus"

	"livewall/pkg/video"
)

const (
	defaultFrameRate = 30
	// maxDrainFrames bounds frames discarded while draining.
	maxDrainFrames = 256
)

// Decoder decodes one video stream into packed RGB24 pictures.
type Decoder struct {
	codecCtx     *astiav.CodecContext
	codec        *astiav.Codec
	stream       *astiav.Stream
	codecName    string
	hardware     bool
	streamTB     astiav.Rational
	width        int
	height       int
	frameRate    float64
	drainCeiling int

	decoded *astiav.Frame
	scaler  *rgbScaler

	lastTimestamp float64
	haveTimestamp bool

	closer *astikit.Closer
	log    *logrus.Entry
}

// NewDecoder opens a decoder for stream. The stream must report a pixel
// format and non-zero dimensions.
func NewDecoder(stream *astiav.Stream, frameRate float64, sel DecoderSelection, drainCeiling int) (*Decoder, error) {
	params := stream.CodecParameters()
	if params.PixelFormat() == astiav.PixelFormatNone || params.Width() <= 0 || params.Height() <= 0 {
		return nil, fmt.Errorf("format %s, size %dx%d: %w",
			params.PixelFormat().String(), params.Width(), params.Height(), video.ErrInvalidCodecParameters)
	}
	if drainCeiling <= 0 {
		drainCeiling = video.DefaultDrainCeiling
	}
	if frameRate <= 0 {
		frameRate = defaultFrameRate
	}

	d := &Decoder{
		streamTB:     stream.TimeBase(),
		width:        params.Width(),
		height:       params.Height(),
		frameRate:    frameRate,
		drainCeiling: drainCeiling,
		scaler:       &rgbScaler{},
		closer:       astikit.NewCloser(),
		log:          logrus.WithField("component", "decoder"),
	}

	if err := d.open(stream, sel); err != nil {
		_ = d.closer.Close()
		return nil, err
	}

	d.decoded = astiav.AllocFrame()
	d.closer.Add(d.decoded.Free)
	d.closer.Add(d.scaler.close)

	d.log = d.log.WithField("decoder", d.codecName)
	d.log.WithFields(logrus.Fields{
		"size":      fmt.Sprintf("%dx%d", d.width, d.height),
		"pix_fmt":   params.PixelFormat().String(),
		"time_base": rationalString(d.codecCtx.TimeBase()),
		"hardware":  d.hardware,
	}).Info("Decoder ready")
	return d, nil
}

// open tries candidate decoders in priority order and keeps the first that
// opens, falling back to the default decoder for the codec.
func (d *Decoder) open(stream *astiav.Stream, sel DecoderSelection) error {
	params := stream.CodecParameters()
	id := params.CodecID()

	var candidates []*astiav.Codec
	for _, name := range candidateDecoders(id.Name(), runtime.GOOS, sel) {
		c := astiav.FindDecoderByName(name)
		if c == nil {
			d.log.WithField("decoder", name).Debug("Decoder not available")
			continue
		}
		if c.ID() != id {
			d.log.WithField("decoder", name).Debug("Decoder does not match stream codec, skipping")
			continue
		}
		candidates = append(candidates, c)
	}
	if c := astiav.FindDecoder(id); c != nil && !containsCodec(candidates, c) {
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return fmt.Errorf("no decoder for codec %s: %w", id.Name(), video.ErrInvalidCodecParameters)
	}

	for _, c := range candidates {
		ctx, err := d.tryOpen(c, stream)
		if err != nil {
			d.log.WithError(err).WithField("decoder", c.Name()).Warn("Failed to open decoder")
			continue
		}
		d.codecCtx = ctx
		d.codec = c
		d.stream = stream
		d.codecName = c.Name()
		d.hardware = video.IsHardwareDecoder(c.Name())
		d.closer.Add(d.freeCodecContext)
		return nil
	}
	return fmt.Errorf("no working decoder for codec %s: %w", id.Name(), video.ErrDecoderFault)
}

// freeCodecContext frees whichever context is current, so a context replaced
// by Reset is not freed twice.
func (d *Decoder) freeCodecContext() {
	if d.codecCtx != nil {
		d.codecCtx.Free()
		d.codecCtx = nil
	}
}

func containsCodec(list []*astiav.Codec, c *astiav.Codec) bool {
	for _, x := range list {
		if x.Name() == c.Name() {
			return true
		}
	}
	return false
}

func (d *Decoder) tryOpen(c *astiav.Codec, stream *astiav.Stream) (*astiav.CodecContext, error) {
	ctx := astiav.AllocCodecContext(c)
	if ctx == nil {
		return nil, errors.New("allocating codec context failed")
	}
	if err := stream.CodecParameters().ToCodecContext(ctx); err != nil {
		ctx.Free()
		return nil, fmt.Errorf("copying codec parameters: %w", err)
	}
	ctx.SetTimeBase(stream.TimeBase())
	ctx.SetThreadType(astiav.ThreadTypeFrame)
	ctx.SetThreadCount(0)

	if err := ctx.Open(c, nil); err != nil {
		ctx.Free()
		return nil, err
	}
	if tb := ctx.TimeBase(); tb.Num() == 0 || tb.Den() == 0 {
		ctx.SetTimeBase(stream.TimeBase())
	}
	return ctx, nil
}

// Info returns the stream metadata a pipeline is sized from.
func (d *Decoder) Info() video.StreamInfo {
	return video.StreamInfo{
		Width:     d.width,
		Height:    d.height,
		FrameRate: d.frameRate,
		CodecName: d.codecName,
	}
}

// IsHardware reports whether a hardware decoder was opened.
func (d *Decoder) IsHardware() bool {
	return d.hardware
}

// Feed rescales the packet from the stream to the decoder time base and
// submits it. The packet is released either way.
func (d *Decoder) Feed(p video.Packet) error {
	defer p.Release()

	pkt, ok := p.(*packet)
	if !ok || pkt.pkt == nil {
		return fmt.Errorf("unexpected packet type %T", p)
	}
	pkt.pkt.RescaleTs(d.streamTB, d.codecCtx.TimeBase())

	if err := d.codecCtx.SendPacket(pkt.pkt); err != nil {
		return fmt.Errorf("sending packet: %w", err)
	}
	return nil
}

// ReceiveFrame returns the next decoded picture, nil when the decoder wants
// more input, video.ErrDecoderEOF once drained and any other error as is.
func (d *Decoder) ReceiveFrame() (video.Picture, error) {
	if err := d.codecCtx.ReceiveFrame(d.decoded); err != nil {
		switch {
		case errors.Is(err, astiav.ErrEagain):
			return nil, nil
		case errors.Is(err, astiav.ErrEof):
			return nil, fmt.Errorf("%w: %w", video.ErrDecoderEOF, err)
		default:
			return nil, fmt.Errorf("receiving frame: %w", err)
		}
	}

	out := d.decoded
	if d.decoded.PixelFormat() != astiav.PixelFormatRgb24 {
		scaled, err := d.scaler.scale(d.decoded)
		if err != nil {
			return nil, err
		}
		out = scaled
	}

	return &picture{
		frame:     out,
		timestamp: d.timestamp(d.decoded.Pts()),
	}, nil
}

// timestamp converts pts to seconds in the decoder time base. Frames without
// a pts are placed one frame interval after the previous frame.
func (d *Decoder) timestamp(pts int64) float64 {
	var ts float64
	tb := d.codecCtx.TimeBase()
	switch {
	case pts != astiav.NoPtsValue && tb.Den() != 0:
		ts = float64(pts) * tb.Float64()
	case d.haveTimestamp:
		ts = d.lastTimestamp + 1/d.frameRate
	}
	d.lastTimestamp = ts
	d.haveTimestamp = true
	return ts
}

// EndOfInput tells the decoder no more packets follow, so frames it holds
// back for reordering or frame threading can be received.
func (d *Decoder) EndOfInput() error {
	if err := d.codecCtx.SendPacket(nil); err != nil && !errors.Is(err, astiav.ErrEof) {
		return fmt.Errorf("sending end of input: %w", err)
	}
	return nil
}

// Reset reopens the codec after EndOfInput so decoding can restart from a
// keyframe. The decoder keeps its codec, scaler and time base.
func (d *Decoder) Reset() error {
	ctx, err := d.tryOpen(d.codec, d.stream)
	if err != nil {
		return fmt.Errorf("reopening %s: %w", d.codecName, err)
	}
	d.codecCtx.Free()
	d.codecCtx = ctx
	d.haveTimestamp = false
	d.log.Debug("Decoder reset")
	return nil
}

// Drain signals end of input and discards buffered frames until the decoder
// reports end of stream. Failed receives are bounded by the drain ceiling.
func (d *Decoder) Drain() error {
	d.log.Debug("Draining decoder")
	if err := d.EndOfInput(); err != nil {
		d.log.WithError(err).Debug("End of input not accepted")
	}

	return drainFrames(func() error {
		err := d.codecCtx.ReceiveFrame(d.decoded)
		if err == nil {
			d.decoded.Unref()
		}
		return err
	}, d.drainCeiling)
}

// drainFrames calls receive until it reports end of stream. More than
// ceiling failed receives, or more than maxDrainFrames receives in total,
// end the drain with video.ErrDrainCeiling.
func drainFrames(receive func() error, ceiling int) error {
	failures := 0
	for i := 0; i < maxDrainFrames; i++ {
		err := receive()
		if err == nil {
			continue
		}
		if errors.Is(err, astiav.ErrEof) {
			return nil
		}
		failures++
		if failures > ceiling {
			return fmt.Errorf("%d failed receives: %w", failures, video.ErrDrainCeiling)
		}
	}
	return fmt.Errorf("%d frames discarded: %w", maxDrainFrames, video.ErrDrainCeiling)
}

// Close frees the codec context and frames.
func (d *Decoder) Close() error {
	return d.closer.Close()
}

// picture is a decoded RGB24 frame, valid until the next ReceiveFrame.
type picture struct {
	frame     *astiav.Frame
	timestamp float64
}

func (p *picture) Size() (int, int)   { return p.frame.Width(), p.frame.Height() }
func (p *picture) Timestamp() float64 { return p.timestamp }

func (p *picture) CopyTo(dst []byte) (int, error) {
	n, err := p.frame.ImageBufferSize(1)
	if err != nil {
		return 0, fmt.Errorf("image buffer size: %w", err)
	}
	if n > len(dst) {
		return 0, fmt.Errorf("picture needs %d bytes, buffer has %d: %w", n, len(dst), video.ErrShapeMismatch)
	}
	return p.frame.ImageCopyToBuffer(dst[:n], 1)
}

// rgbScaler converts frames to packed RGB24 at their own size. It rebuilds
// itself whenever the source format or size changes.
type rgbScaler struct {
	ssc    *astiav.SoftwareScaleContext
	dst    *astiav.Frame
	srcW   int
	srcH   int
	srcFmt astiav.PixelFormat
}

func (s *rgbScaler) ensure(src *astiav.Frame) error {
	w, h, f := src.Width(), src.Height(), src.PixelFormat()
	if s.ssc != nil && w == s.srcW && h == s.srcH && f == s.srcFmt {
		return nil
	}
	s.close()

	ssc, err := astiav.CreateSoftwareScaleContext(w, h, f, w, h, astiav.PixelFormatRgb24,
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagArea))
	if err != nil {
		return fmt.Errorf("creating scale context %dx%d %s -> rgb24: %w", w, h, f.String(), err)
	}

	dst := astiav.AllocFrame()
	dst.SetWidth(w)
	dst.SetHeight(h)
	dst.SetPixelFormat(astiav.PixelFormatRgb24)
	if err := dst.AllocBuffer(1); err != nil {
		dst.Free()
		ssc.Free()
		return fmt.Errorf("allocating rgb24 frame: %w", err)
	}

	s.ssc, s.dst = ssc, dst
	s.srcW, s.srcH, s.srcFmt = w, h, f
	logrus.WithFields(logrus.Fields{
		"component": "decoder",
		"from":      f.String(),
		"size":      fmt.Sprintf("%dx%d", w, h),
	}).Debug("Pixel format conversion to rgb24 enabled")
	return nil
}

func (s *rgbScaler) scale(src *astiav.Frame) (*astiav.Frame, error) {
	if err := s.ensure(src); err != nil {
		return nil, err
	}
	if err := s.ssc.ScaleFrame(src, s.dst); err != nil {
		return nil, fmt.Errorf("scaling frame: %w", err)
	}
	return s.dst, nil
}

func (s *rgbScaler) close() {
	if s.dst != nil {
		s.dst.Free()
		s.dst = nil
	}
	if s.ssc != nil {
		s.ssc.Free()
		s.ssc = nil
	}
}
