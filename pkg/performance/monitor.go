package performance

import (
	"sync"
	"time"
)

// RollingAverage maintains a rolling average of durations over a fixed window
type RollingAverage struct {
	samples    []time.Duration
	maxSamples int
	sum        time.Duration
	index      int
	filled     bool
	mu         sync.RWMutex
}

// NewRollingAverage creates a rolling average tracker with specified window size
func NewRollingAverage(windowSize int) *RollingAverage {
	if windowSize <= 0 {
		windowSize = 1
	}
	return &RollingAverage{
		samples:    make([]time.Duration, windowSize),
		maxSamples: windowSize,
	}
}

// Add records a new sample, evicting the oldest once the window is full
func (r *RollingAverage) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.filled {
		r.sum -= r.samples[r.index]
	}
	r.samples[r.index] = d
	r.sum += d

	r.index++
	if r.index >= r.maxSamples {
		r.index = 0
		r.filled = true
	}
}

// Average returns the current rolling average, or 0 with no samples
func (r *RollingAverage) Average() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := r.count()
	if count == 0 {
		return 0
	}
	return r.sum / time.Duration(count)
}

// Count returns the number of samples currently tracked
func (r *RollingAverage) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count()
}

func (r *RollingAverage) count() int {
	if r.filled {
		return r.maxSamples
	}
	return r.index
}

// Monitor tracks how fast frames are decoded and how often the render tick
// had a fresh frame to show. Decode samples come from the decode goroutine,
// tick samples from the render loop.
type Monitor struct {
	decodeTimes *RollingAverage
	tickTimes   *RollingAverage

	mu            sync.RWMutex
	decodedFrames int
	freshTicks    int
	repeatedTicks int
	startTime     time.Time
}

// Report contains aggregated playback metrics
type Report struct {
	AvgDecodeMs   float64 // Average time to produce one decoded frame
	AvgTickMs     float64 // Average time spent inside a render tick
	DecodedFrames int
	FreshTicks    int     // Ticks that presented a newly popped frame
	RepeatedTicks int     // Ticks that fell back to the last frame
	RepeatRate    float64 // Percentage of ticks that repeated
	IsHealthy     bool
	UptimeSeconds int64
}

// NewMonitor creates a new performance monitor.
// windowSize determines how many samples to average (120 = 2 seconds at 60fps)
func NewMonitor(windowSize int) *Monitor {
	return &Monitor{
		decodeTimes: NewRollingAverage(windowSize),
		tickTimes:   NewRollingAverage(windowSize),
		startTime:   time.Now(),
	}
}

// RecordFrameDecode records the time taken to decode one frame
func (m *Monitor) RecordFrameDecode(d time.Duration) {
	m.decodeTimes.Add(d)

	m.mu.Lock()
	m.decodedFrames++
	m.mu.Unlock()
}

// RecordTick records one render tick and whether it presented a new frame
func (m *Monitor) RecordTick(d time.Duration, fresh bool) {
	m.tickTimes.Add(d)

	m.mu.Lock()
	if fresh {
		m.freshTicks++
	} else {
		m.repeatedTicks++
	}
	m.mu.Unlock()
}

// GetReport generates a report with current metrics
func (m *Monitor) GetReport() Report {
	m.mu.RLock()
	defer m.mu.RUnlock()

	avgDecode := m.decodeTimes.Average()
	avgTick := m.tickTimes.Average()

	repeatRate := 0.0
	if total := m.freshTicks + m.repeatedTicks; total > 0 {
		repeatRate = float64(m.repeatedTicks) / float64(total) * 100.0
	}

	// Healthy while a frame decodes within a 30fps budget
	isHealthy := avgDecode < 33*time.Millisecond

	return Report{
		AvgDecodeMs:   float64(avgDecode.Microseconds()) / 1000.0,
		AvgTickMs:     float64(avgTick.Microseconds()) / 1000.0,
		DecodedFrames: m.decodedFrames,
		FreshTicks:    m.freshTicks,
		RepeatedTicks: m.repeatedTicks,
		RepeatRate:    repeatRate,
		IsHealthy:     isHealthy,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
	}
}

// IsDecodeFallingBehind reports whether decoding is slower than the stream's
// frame interval.
func (m *Monitor) IsDecodeFallingBehind(frameRate float64) bool {
	if frameRate <= 0 {
		return false
	}
	budget := time.Duration(float64(time.Second) / frameRate)
	return m.decodeTimes.Count() > 0 && m.decodeTimes.Average() > budget
}
