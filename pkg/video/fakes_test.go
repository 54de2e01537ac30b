package video

import (
	"errors"
	"sync"
	"sync/atomic"
)

type testPicture struct {
	w, h int
	ts   float64
	fill byte
}

func (p *testPicture) Size() (int, int)   { return p.w, p.h }
func (p *testPicture) Timestamp() float64 { return p.ts }

func (p *testPicture) CopyTo(dst []byte) (int, error) {
	n := p.w * p.h * 3
	if len(dst) < n {
		return 0, errors.New("destination too small")
	}
	for i := 0; i < n; i++ {
		dst[i] = p.fill
	}
	return n, nil
}

type fakePacket struct {
	pts      int64
	released *atomic.Int64
}

func (p *fakePacket) PTS() int64 { return p.pts }

func (p *fakePacket) Release() {
	if p.released != nil {
		p.released.Add(1)
	}
}

// fakeSource yields count packets with pts 0..count-1 and loops on seek.
type fakeSource struct {
	count   int
	cursor  int
	seekErr error

	seeks    atomic.Int64
	closed   atomic.Int64
	released atomic.Int64
}

func (s *fakeSource) ReadPacket() (Packet, bool) {
	if s.cursor >= s.count {
		return nil, false
	}
	pkt := &fakePacket{pts: int64(s.cursor), released: &s.released}
	s.cursor++
	return pkt, true
}

func (s *fakeSource) SeekToStart() error {
	if s.seekErr != nil {
		return s.seekErr
	}
	s.seeks.Add(1)
	s.cursor = 0
	return nil
}

func (s *fakeSource) Close() error {
	s.closed.Add(1)
	return nil
}

type step struct {
	pic *testPicture
	err error
}

// fakeDecoder replays script first. Afterwards, with echo set, every fed
// packet decodes to one picture timestamped with the packet's pts.
type fakeDecoder struct {
	w, h    int
	script  []step
	echo    bool
	feedErr error

	mu      sync.Mutex
	pending []int64

	feeds    atomic.Int64
	receives atomic.Int64
	drains   atomic.Int64
	closed   atomic.Int64
}

func (d *fakeDecoder) Feed(pkt Packet) error {
	d.feeds.Add(1)
	defer pkt.Release()
	if d.feedErr != nil {
		return d.feedErr
	}
	d.mu.Lock()
	d.pending = append(d.pending, pkt.PTS())
	d.mu.Unlock()
	return nil
}

func (d *fakeDecoder) ReceiveFrame() (Picture, error) {
	d.receives.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.script) > 0 {
		s := d.script[0]
		d.script = d.script[1:]
		if s.err != nil {
			return nil, s.err
		}
		if s.pic == nil {
			return nil, nil
		}
		return s.pic, nil
	}

	if !d.echo || len(d.pending) == 0 {
		d.pending = d.pending[:0]
		return nil, nil
	}
	pts := d.pending[0]
	d.pending = d.pending[1:]
	return &testPicture{w: d.w, h: d.h, ts: float64(pts), fill: byte(pts)}, nil
}

func (d *fakeDecoder) Drain() error {
	d.drains.Add(1)
	return nil
}

func (d *fakeDecoder) Close() error {
	d.closed.Add(1)
	return nil
}

// laggingDecoder holds lag pictures back until EndOfInput, like a codec
// with frame threading or B-frame reordering.
type laggingDecoder struct {
	w, h int
	lag  int

	pending []int64
	ended   bool

	endOfInputs atomic.Int64
	resets      atomic.Int64
}

func (d *laggingDecoder) Feed(pkt Packet) error {
	defer pkt.Release()
	d.pending = append(d.pending, pkt.PTS())
	return nil
}

func (d *laggingDecoder) ReceiveFrame() (Picture, error) {
	if len(d.pending) == 0 {
		if d.ended {
			return nil, ErrDecoderEOF
		}
		return nil, nil
	}
	if !d.ended && len(d.pending) <= d.lag {
		return nil, nil
	}
	pts := d.pending[0]
	d.pending = d.pending[1:]
	return &testPicture{w: d.w, h: d.h, ts: float64(pts)}, nil
}

func (d *laggingDecoder) EndOfInput() error {
	d.endOfInputs.Add(1)
	d.ended = true
	return nil
}

func (d *laggingDecoder) Reset() error {
	d.resets.Add(1)
	d.ended = false
	d.pending = d.pending[:0]
	return nil
}

func (d *laggingDecoder) Drain() error { return nil }
func (d *laggingDecoder) Close() error { return nil }

func testFrame(pool *FramePool, gen uint32, ts float64) *TimedFrame {
	return &TimedFrame{Buffer: pool.Get(), Generation: gen, Timestamp: ts}
}
