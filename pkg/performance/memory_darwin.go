//go:build darwin

package performance

import (
	"runtime"
	"time"
)

// assumedTotalMB stands in for system memory where no cheap query exists.
const assumedTotalMB = 2048

// GetSystemMemory approximates memory on macOS from Go runtime stats. The
// figures describe this process, not the whole system.
func GetSystemMemory() MemorySnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	usedMB := m.Sys / (1024 * 1024)
	freeMB := uint64(0)
	if usedMB < assumedTotalMB {
		freeMB = assumedTotalMB - usedMB
	}

	return MemorySnapshot{
		Timestamp:   time.Now(),
		TotalMB:     assumedTotalMB,
		AvailableMB: freeMB,
		UsedMB:      usedMB,
		FreeMB:      freeMB,
	}
}
