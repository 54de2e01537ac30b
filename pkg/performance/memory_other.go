//go:build !linux && !darwin

package performance

import "time"

// GetSystemMemory is not implemented on this platform.
func GetSystemMemory() MemorySnapshot {
	return MemorySnapshot{Timestamp: time.Now()}
}
