package video

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// FramePool hands out fixed-size RGB24 buffers and takes them back when
// their handle is released. Get never blocks: an empty pool allocates.
type FramePool struct {
	width  int
	height int

	mu   sync.Mutex
	free [][]byte

	allocated  atomic.Int64
	exhaustion atomic.Int64
}

// NewFramePool pre-allocates capacity buffers of width*height*3 bytes.
func NewFramePool(width, height, capacity int) *FramePool {
	p := &FramePool{
		width:  width,
		height: height,
		free:   make([][]byte, 0, capacity),
	}
	for i := 0; i < capacity; i++ {
		p.free = append(p.free, p.alloc())
	}
	return p
}

func (p *FramePool) alloc() []byte {
	p.allocated.Add(1)
	return make([]byte, p.width*p.height*3)
}

// Size returns the buffer dimensions served by the pool.
func (p *FramePool) Size() (width, height int) {
	return p.width, p.height
}

// Get checks out a buffer.
func (p *FramePool) Get() *FrameHandle {
	p.mu.Lock()
	n := len(p.free)
	if n > 0 {
		buf := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.mu.Unlock()
		return &FrameHandle{buf: buf, width: p.width, height: p.height, pool: p}
	}
	p.mu.Unlock()

	p.exhaustion.Add(1)
	logrus.WithFields(logrus.Fields{
		"component": "frame_pool",
		"allocated": p.allocated.Load() + 1,
	}).Warn("Frame buffer pool is empty, allocating a new buffer")

	return &FrameHandle{buf: p.alloc(), width: p.width, height: p.height, pool: p}
}

// Free returns the number of buffers currently in the free list.
func (p *FramePool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// Allocated returns the number of buffers ever allocated by the pool.
func (p *FramePool) Allocated() int {
	return int(p.allocated.Load())
}

// Exhaustions returns how many times Get found the free list empty.
func (p *FramePool) Exhaustions() int {
	return int(p.exhaustion.Load())
}

func (p *FramePool) put(buf []byte) {
	p.mu.Lock()
	p.free = append(p.free, buf)
	p.mu.Unlock()
}

// Image is a decoded picture that can copy itself as packed RGB24.
type Image interface {
	Size() (width, height int)
	CopyTo(dst []byte) (int, error)
}

// FrameHandle is exclusive ownership of one pool buffer. Release hands the
// buffer back; afterwards Bytes returns nil and FillWith fails.
type FrameHandle struct {
	mu     sync.Mutex
	buf    []byte
	width  int
	height int
	pool   *FramePool
}

// Bytes returns the buffer contents, row-major RGB24 without padding.
func (h *FrameHandle) Bytes() []byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buf
}

// Size returns the buffer dimensions.
func (h *FrameHandle) Size() (width, height int) {
	return h.width, h.height
}

// FillWith copies img into the buffer.
func (h *FrameHandle) FillWith(img Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.buf == nil {
		return fmt.Errorf("fill released frame buffer: %w", ErrPipelineClosed)
	}

	w, hh := img.Size()
	if w != h.width || hh != h.height {
		return fmt.Errorf("buffer %dx%dx3 vs image %dx%d: %w", h.width, h.height, w, hh, ErrShapeMismatch)
	}

	n, err := img.CopyTo(h.buf)
	if err != nil {
		return fmt.Errorf("copying image into frame buffer: %w", err)
	}
	if n != len(h.buf) {
		return fmt.Errorf("copied %d of %d bytes: %w", n, len(h.buf), ErrShapeMismatch)
	}
	return nil
}

// Release returns the buffer to its pool. Calling it more than once is a
// no-op.
func (h *FrameHandle) Release() {
	h.mu.Lock()
	buf := h.buf
	h.buf = nil
	h.mu.Unlock()

	if buf != nil && h.pool != nil {
		h.pool.put(buf)
	}
}
