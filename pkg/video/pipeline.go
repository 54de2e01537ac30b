package video

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"livewall/pkg/performance"
)

// Packet is one compressed unit of the selected video stream. Ownership
// passes to the Decoder on Feed.
type Packet interface {
	PTS() int64
	Release()
}

// Source yields the packets of one video stream in container order.
type Source interface {
	// ReadPacket returns the next packet, or false once the stream is
	// exhausted.
	ReadPacket() (Packet, bool)
	// SeekToStart rewinds to the earliest position.
	SeekToStart() error
	Close() error
}

// Picture is a decoded RGB24 image plus its presentation time in seconds.
// It is only valid until the next ReceiveFrame call.
type Picture interface {
	Image
	Timestamp() float64
}

// Decoder turns packets into pictures.
type Decoder interface {
	Feed(pkt Packet) error
	// ReceiveFrame returns (nil, nil) when more input is needed, an error
	// wrapping ErrDecoderEOF once fully drained, and any other error for a
	// fault.
	ReceiveFrame() (Picture, error)
	// Drain flushes buffered frames, bounded by an iteration ceiling.
	Drain() error
	Close() error
}

// Rewinder is implemented by decoders that hold frames back, for reordering
// or frame threading, and must be flushed when the source loops.
type Rewinder interface {
	// EndOfInput releases held frames to ReceiveFrame, which then ends with
	// ErrDecoderEOF.
	EndOfInput() error
	// Reset readies the decoder for packets from the start of the stream.
	Reset() error
}

// StreamInfo is the stream metadata the consumer sizes itself from.
type StreamInfo struct {
	Width     int
	Height    int
	FrameRate float64
	CodecName string
}

// State of the decode goroutine.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Pipeline decodes a video on its own goroutine into an ordered, bounded
// frame queue that a render loop drains once per tick.
//
// Goroutine topology:
//   - 1 decode goroutine (StartDecoding .. StopDecoding)
//   - the caller's render goroutine, which only pops and never blocks
//
// The queue is the only state both goroutines touch; every access holds mu.
type Pipeline struct {
	src  Source
	dec  Decoder
	info StreamInfo
	opts Options
	pool *FramePool

	mu    sync.Mutex
	room  *sync.Cond // signalled when the queue loses a frame or on shutdown
	queue *OrderedFrameQueue

	shutdown   atomic.Bool
	state      atomic.Int32
	generation atomic.Uint32
	wg         sync.WaitGroup

	lifecycleMu sync.Mutex
	started     bool
	closed      bool

	errMu sync.Mutex
	err   error

	pushed     atomic.Uint64
	duplicates atomic.Uint64
	popped     atomic.Uint64

	log *logrus.Entry
}

// NewPipeline wires a source and decoder into a pipeline. Nothing runs until
// StartDecoding.
func NewPipeline(src Source, dec Decoder, info StreamInfo, opts Options) (*Pipeline, error) {
	if info.Width <= 0 || info.Height <= 0 {
		return nil, fmt.Errorf("stream size %dx%d: %w", info.Width, info.Height, ErrInvalidCodecParameters)
	}

	opts = opts.withDefaults()
	p := &Pipeline{
		src:   src,
		dec:   dec,
		info:  info,
		opts:  opts,
		pool:  NewFramePool(info.Width, info.Height, opts.HighWater+opts.PoolSlack),
		queue: NewOrderedFrameQueue(opts.HighWater),
		log: logrus.WithFields(logrus.Fields{
			"component": "pipeline",
			"size":      fmt.Sprintf("%dx%d", info.Width, info.Height),
		}),
	}
	p.room = sync.NewCond(&p.mu)
	return p, nil
}

// DecoderSize returns the decoded frame dimensions.
func (p *Pipeline) DecoderSize() (uint32, uint32) {
	return uint32(p.info.Width), uint32(p.info.Height)
}

// Framerate returns the stream's average frame rate.
func (p *Pipeline) Framerate() float32 {
	return float32(p.info.FrameRate)
}

// Info returns the stream metadata.
func (p *Pipeline) Info() StreamInfo {
	return p.info
}

// Options returns the effective tuning.
func (p *Pipeline) Options() Options {
	return p.opts
}

// Monitor returns the performance monitor fed by the pipeline.
func (p *Pipeline) Monitor() *performance.Monitor {
	return p.opts.Monitor
}

// State returns the decode goroutine's current state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Err returns the fault that stopped the decode goroutine, if any.
func (p *Pipeline) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

// Generation returns the number of times the input has looped.
func (p *Pipeline) Generation() uint32 {
	return p.generation.Load()
}

// StartDecoding spawns the decode goroutine.
func (p *Pipeline) StartDecoding() error {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if p.closed || p.shutdown.Load() {
		return ErrPipelineClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}

	p.started = true
	p.state.Store(int32(StateRunning))
	p.log.Info("Starting decode goroutine")

	p.wg.Add(1)
	go p.decodeLoop()
	return nil
}

// StopDecoding raises the shutdown flag, wakes a suspended decoder and waits
// for the goroutine to drain the codec and exit. It is idempotent.
func (p *Pipeline) StopDecoding() {
	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()

	if !p.started {
		return
	}

	p.shutdown.Store(true)
	p.mu.Lock()
	p.room.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()
	p.started = false
	p.log.Info("Decode goroutine joined")
}

// Close stops decoding if needed, drops queued frames and releases the
// source and decoder.
func (p *Pipeline) Close() error {
	p.StopDecoding()

	p.lifecycleMu.Lock()
	defer p.lifecycleMu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.shutdown.Store(true)
	p.state.Store(int32(StateStopped))

	p.mu.Lock()
	p.queue.Clear()
	p.mu.Unlock()

	return errors.Join(p.dec.Close(), p.src.Close())
}

// Len returns the number of queued frames.
func (p *Pipeline) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.queue.Len()
}

// TryPop pops the next frame when at least minDepth frames are queued and
// wakes the decoder. It never blocks on the producer. The caller owns the
// returned frame and must Release it.
func (p *Pipeline) TryPop(minDepth int) *TimedFrame {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.queue.IsEmpty() || p.queue.Len() < minDepth {
		return nil
	}
	f := p.queue.Pop()
	p.popped.Add(1)
	p.room.Signal()
	return f
}

// Wake nudges a decoder suspended on a full queue to re-check for room.
func (p *Pipeline) Wake() {
	p.mu.Lock()
	p.room.Signal()
	p.mu.Unlock()
}

func (p *Pipeline) decodeLoop() {
	defer p.wg.Done()
	defer p.finish()

	var (
		looped        bool
		packetsInLoop int
	)

	for !p.shutdown.Load() {
		pkt, ok := p.src.ReadPacket()
		if !ok {
			if looped && packetsInLoop == 0 {
				p.fail(ErrEmptyStream)
				return
			}
			if !p.flushGeneration() {
				return
			}
			if err := p.src.SeekToStart(); err != nil {
				p.fail(fmt.Errorf("seeking to start: %w", err))
				return
			}
			gen := p.generation.Add(1)
			looped = true
			packetsInLoop = 0
			p.log.WithField("generation", gen).Debug("Video ended, seeking to start")
			continue
		}
		packetsInLoop++

		started := time.Now()
		pts := pkt.PTS()
		if err := p.dec.Feed(pkt); err != nil {
			p.log.WithError(err).WithField("pts", pts).Warn("Failed to feed packet to decoder")
			continue
		}

		if !p.receiveFrames(started, false) {
			return
		}
	}
}

// flushGeneration queues the frames a Rewinder still holds before the source
// loops, so they keep the generation they were decoded in. It returns false
// when the goroutine must exit.
func (p *Pipeline) flushGeneration() bool {
	rw, ok := p.dec.(Rewinder)
	if !ok {
		return true
	}
	if err := rw.EndOfInput(); err != nil {
		p.log.WithError(err).Warn("Decoder refused end of input, tail frames lost")
	} else if !p.receiveFrames(time.Now(), true) {
		return false
	}
	if err := rw.Reset(); err != nil {
		p.fail(fmt.Errorf("%w: resetting for loop: %w", ErrDecoderFault, err))
		return false
	}
	return true
}

// receiveFrames pulls every picture the decoder has ready. When flushing,
// ErrDecoderEOF ends the pull instead of the goroutine. It returns false
// when the goroutine must exit.
func (p *Pipeline) receiveFrames(started time.Time, flushing bool) bool {
	for {
		pic, err := p.dec.ReceiveFrame()
		if err != nil {
			if flushing && errors.Is(err, ErrDecoderEOF) {
				return true
			}
			if errors.Is(err, ErrDecoderEOF) {
				p.fail(fmt.Errorf("decoder reported end of stream outside drain: %w", err))
			} else {
				p.fail(fmt.Errorf("%w: %w", ErrDecoderFault, err))
			}
			return false
		}
		if pic == nil {
			return true
		}

		handle := p.pool.Get()
		if err := handle.FillWith(pic); err != nil {
			handle.Release()
			p.log.WithError(err).Error("Dropping decoded frame")
			continue
		}

		frame := &TimedFrame{
			Buffer:     handle,
			Generation: p.generation.Load(),
			Timestamp:  pic.Timestamp(),
		}
		p.opts.Monitor.RecordFrameDecode(time.Since(started))
		started = time.Now()

		if !p.push(frame) {
			return false
		}
	}
}

// push blocks while the queue is at capacity. It returns false when
// shutdown was requested, in which case frame has been released.
func (p *Pipeline) push(frame *TimedFrame) bool {
	p.mu.Lock()
	for p.queue.Len() >= p.opts.HighWater && !p.shutdown.Load() {
		p.log.WithField("queued", p.queue.Len()).Debug("Queue full, suspending decode")
		p.room.Wait()
	}
	if p.shutdown.Load() {
		p.mu.Unlock()
		frame.Release()
		return false
	}
	accepted := p.queue.Push(frame)
	queued := p.queue.Len()
	p.mu.Unlock()

	if !accepted {
		p.duplicates.Add(1)
		frame.Release()
		return true
	}

	p.pushed.Add(1)
	p.log.WithFields(logrus.Fields{
		"generation": frame.Generation,
		"timestamp":  frame.Timestamp,
		"queued":     queued,
	}).Debug("Queued decoded frame")
	return true
}

func (p *Pipeline) fail(err error) {
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
	p.log.WithError(err).Error("Decoding stopped")
}

// finish is the Draining -> Stopped transition.
func (p *Pipeline) finish() {
	p.state.Store(int32(StateDraining))
	if err := p.dec.Drain(); err != nil {
		p.log.WithError(err).Error("Decoder drain incomplete")
	} else {
		p.log.Debug("Decoder drained")
	}
	p.state.Store(int32(StateStopped))
}

// Stats is a point-in-time view of pipeline counters.
type Stats struct {
	State          State
	Generation     uint32
	Queued         int
	Pushed         uint64
	Duplicates     uint64
	Popped         uint64
	PoolAllocated  int
	PoolExhausted  int
	AvgDecodeMs    float64
	AvgTickMs      float64
	RepeatRate     float64
	FallingBehind  bool
	LastFatalError error
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	report := p.opts.Monitor.GetReport()
	return Stats{
		State:          p.State(),
		Generation:     p.Generation(),
		Queued:         p.Len(),
		Pushed:         p.pushed.Load(),
		Duplicates:     p.duplicates.Load(),
		Popped:         p.popped.Load(),
		PoolAllocated:  p.pool.Allocated(),
		PoolExhausted:  p.pool.Exhaustions(),
		AvgDecodeMs:    report.AvgDecodeMs,
		AvgTickMs:      report.AvgTickMs,
		RepeatRate:     report.RepeatRate,
		FallingBehind:  p.opts.Monitor.IsDecodeFallingBehind(p.info.FrameRate),
		LastFatalError: p.Err(),
	}
}
