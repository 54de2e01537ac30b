package performance

import (
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

// MemorySnapshot represents memory state at a point in time
type MemorySnapshot struct {
	Timestamp   time.Time
	TotalMB     uint64 // Total system memory
	AvailableMB uint64 // Available memory for use
	UsedMB      uint64 // Currently used memory
	FreeMB      uint64 // Free memory (not including buffers/cache)
}

// GoMemoryStats holds Go runtime memory statistics
type GoMemoryStats struct {
	AllocMB      uint64 // Currently allocated heap memory
	TotalAllocMB uint64 // Cumulative allocated memory
	SysMB        uint64 // Memory obtained from system
	NumGC        uint32 // Number of GC runs
}

// GetGoMemory retrieves Go runtime memory statistics
func GetGoMemory() GoMemoryStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return GoMemoryStats{
		AllocMB:      m.Alloc / (1024 * 1024),
		TotalAllocMB: m.TotalAlloc / (1024 * 1024),
		SysMB:        m.Sys / (1024 * 1024),
		NumGC:        m.NumGC,
	}
}

// FrameBuffersMB returns the memory held by count RGB24 frames of the given size
func FrameBuffersMB(width, height, count int) float64 {
	return float64(width*height*3*count) / (1024 * 1024)
}

// MemoryPressureLevel represents how much memory pressure the system is under
type MemoryPressureLevel int

const (
	MemoryPressureNone     MemoryPressureLevel = iota // >800MB available
	MemoryPressureLow                                 // 400-800MB available
	MemoryPressureMedium                              // 200-400MB available
	MemoryPressureHigh                                // 100-200MB available
	MemoryPressureCritical                            // <100MB available
)

// PressureFor classifies an available-memory figure
func PressureFor(availableMB uint64) MemoryPressureLevel {
	switch {
	case availableMB < 100:
		return MemoryPressureCritical
	case availableMB < 200:
		return MemoryPressureHigh
	case availableMB < 400:
		return MemoryPressureMedium
	case availableMB < 800:
		return MemoryPressureLow
	default:
		return MemoryPressureNone
	}
}

// GetMemoryPressure returns the current memory pressure level
func GetMemoryPressure() MemoryPressureLevel {
	return PressureFor(GetSystemMemory().AvailableMB)
}

func (m MemoryPressureLevel) String() string {
	switch m {
	case MemoryPressureNone:
		return "None"
	case MemoryPressureLow:
		return "Low"
	case MemoryPressureMedium:
		return "Medium"
	case MemoryPressureHigh:
		return "High"
	case MemoryPressureCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// LogMemorySnapshot logs system and runtime memory alongside the caller's
// fields, typically the frame pool footprint.
func LogMemorySnapshot(fields logrus.Fields) {
	sys := GetSystemMemory()
	goMem := GetGoMemory()
	pressure := PressureFor(sys.AvailableMB)

	entry := logrus.WithFields(logrus.Fields{
		"component":    "memory",
		"total_mb":     sys.TotalMB,
		"available_mb": sys.AvailableMB,
		"used_mb":      sys.UsedMB,
		"go_alloc_mb":  goMem.AllocMB,
		"go_sys_mb":    goMem.SysMB,
		"gc_runs":      goMem.NumGC,
		"pressure":     pressure.String(),
	}).WithFields(fields)

	if pressure >= MemoryPressureHigh {
		entry.Warn("Memory snapshot")
		return
	}
	entry.Info("Memory snapshot")
}
