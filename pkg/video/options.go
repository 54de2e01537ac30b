package video

import "livewall/pkg/performance"

const (
	// DefaultHighWater is the number of decoded frames queued before the
	// decode goroutine suspends.
	DefaultHighWater = 20
	// DefaultLowWater is the queue depth the consumer waits for before it
	// starts taking frames.
	DefaultLowWater = 16
	// DefaultPoolSlack covers the frame in the decoder's hand and the frame
	// on screen.
	DefaultPoolSlack = 2
	// DefaultDrainCeiling bounds failed receives while draining the decoder.
	DefaultDrainCeiling = 3
	// DefaultReadRetries bounds consecutive failed reads before the demuxer
	// reports exhaustion.
	DefaultReadRetries = 3
)

// Options tunes a Pipeline. Zero fields take their defaults.
type Options struct {
	HighWater    int
	LowWater     int
	PoolSlack    int
	DrainCeiling int
	ReadRetries  int

	// Monitor receives decode and tick timings. One is created when nil.
	Monitor *performance.Monitor
}

func (o Options) withDefaults() Options {
	if o.HighWater <= 0 {
		o.HighWater = DefaultHighWater
	}
	if o.LowWater <= 0 {
		o.LowWater = DefaultLowWater
	}
	if o.LowWater > o.HighWater {
		o.LowWater = o.HighWater
	}
	if o.PoolSlack <= 0 {
		o.PoolSlack = DefaultPoolSlack
	}
	if o.DrainCeiling <= 0 {
		o.DrainCeiling = DefaultDrainCeiling
	}
	if o.ReadRetries <= 0 {
		o.ReadRetries = DefaultReadRetries
	}
	if o.Monitor == nil {
		o.Monitor = performance.NewMonitor(120)
	}
	return o
}

// Normalized returns o with defaults applied, the way a Pipeline uses it.
func (o Options) Normalized() Options {
	return o.withDefaults()
}
