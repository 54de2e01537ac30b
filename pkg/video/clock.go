package video

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Rect is a destination rectangle on the render target.
type Rect struct {
	X, Y, W, H int32
}

// Letterbox fits a width x height image into the target, preserving aspect
// ratio and centring it.
func Letterbox(width, height int, targetW, targetH int32) Rect {
	if width <= 0 || height <= 0 || targetW <= 0 || targetH <= 0 {
		return Rect{W: targetW, H: targetH}
	}

	scaleW := float64(targetW) / float64(width)
	scaleH := float64(targetH) / float64(height)
	scale := scaleW
	if scaleH < scaleW {
		scale = scaleH
	}

	renderW := int32(float64(width) * scale)
	renderH := int32(float64(height) * scale)
	return Rect{
		X: (targetW - renderW) / 2,
		Y: (targetH - renderH) / 2,
		W: renderW,
		H: renderH,
	}
}

// Presentation is what one tick hands to the render sink. Pix is RGB24,
// row-major, without padding and stays valid until the next Tick.
type Presentation struct {
	Pix        []byte
	Width      int
	Height     int
	Generation uint32
	Timestamp  float64
	// Fresh is false when the tick repeated the previous frame.
	Fresh    bool
	Viewport Rect
}

// frameSource is the consumer half of a Pipeline.
type frameSource interface {
	TryPop(minDepth int) *TimedFrame
	Framerate() float32
}

type tickRecorder interface {
	RecordTick(d time.Duration, fresh bool)
}

// Clock paces consumption of a pipeline's queue from the render loop. It is
// owned by a single render goroutine and never blocks.
type Clock struct {
	src      frameSource
	lowWater int
	interval time.Duration
	monitor  tickRecorder

	now         func() time.Time
	last        *TimedFrame
	lastDisplay time.Time

	log *logrus.Entry
}

// NewClock creates a clock consuming from p with p's low-water mark.
func NewClock(p *Pipeline) *Clock {
	return newClock(p, p.opts.LowWater, p.opts.Monitor, time.Now)
}

func newClock(src frameSource, lowWater int, monitor tickRecorder, now func() time.Time) *Clock {
	fps := float64(src.Framerate())
	interval := time.Duration(0)
	if fps > 0 {
		interval = time.Duration(float64(time.Second) / fps)
	}
	return &Clock{
		src:      src,
		lowWater: lowWater,
		interval: interval,
		monitor:  monitor,
		now:      now,
		log:      logrus.WithField("component", "clock"),
	}
}

// Interval returns the target frame interval.
func (c *Clock) Interval() time.Duration {
	return c.interval
}

// Tick returns the frame to present for a target of the given size. ok is
// false until a first frame has been displayed.
func (c *Clock) Tick(targetW, targetH int32) (Presentation, bool) {
	started := c.now()
	fresh := c.advance(started)
	if c.monitor != nil && c.last != nil {
		c.monitor.RecordTick(c.now().Sub(started), fresh)
	}

	if c.last == nil {
		return Presentation{}, false
	}

	w, h := c.last.Buffer.Size()
	return Presentation{
		Pix:        c.last.Buffer.Bytes(),
		Width:      w,
		Height:     h,
		Generation: c.last.Generation,
		Timestamp:  c.last.Timestamp,
		Fresh:      fresh,
		Viewport:   Letterbox(w, h, targetW, targetH),
	}, true
}

// advance reports whether a new frame replaced the last displayed one.
func (c *Clock) advance(now time.Time) bool {
	if c.last != nil && now.Sub(c.lastDisplay) < c.interval {
		return false
	}

	next := c.src.TryPop(c.lowWater)
	if next == nil {
		if c.last == nil {
			c.log.Debug("No frame ready yet")
		}
		return false
	}

	c.last.Release()
	c.last = next
	c.lastDisplay = now
	return true
}

// Close releases the frame currently on display.
func (c *Clock) Close() {
	c.last.Release()
	c.last = nil
}
