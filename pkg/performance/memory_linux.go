//go:build linux

package performance

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// GetSystemMemory reads /proc/meminfo, falling back to sysinfo(2) when
// MemAvailable is missing.
func GetSystemMemory() MemorySnapshot {
	if snap, ok := readMeminfo("/proc/meminfo"); ok {
		return snap
	}

	var info syscall.Sysinfo_t
	if err := syscall.Sysinfo(&info); err != nil {
		logrus.WithError(err).WithField("component", "memory").Warn("Failed to read sysinfo")
		return MemorySnapshot{Timestamp: time.Now()}
	}

	unit := uint64(info.Unit)
	totalMB := (info.Totalram * unit) / (1024 * 1024)
	freeMB := (info.Freeram * unit) / (1024 * 1024)
	bufferMB := (info.Bufferram * unit) / (1024 * 1024)
	availableMB := freeMB + bufferMB

	return MemorySnapshot{
		Timestamp:   time.Now(),
		TotalMB:     totalMB,
		AvailableMB: availableMB,
		UsedMB:      totalMB - availableMB,
		FreeMB:      freeMB,
	}
}

func readMeminfo(path string) (MemorySnapshot, bool) {
	f, err := os.Open(path)
	if err != nil {
		return MemorySnapshot{}, false
	}
	defer f.Close()

	values := make(map[string]uint64, 4)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch name {
		case "MemTotal", "MemFree", "MemAvailable":
		default:
			continue
		}
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			continue
		}
		kb, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			continue
		}
		values[name] = kb / 1024
	}

	total, okTotal := values["MemTotal"]
	available, okAvail := values["MemAvailable"]
	if !okTotal || !okAvail {
		return MemorySnapshot{}, false
	}

	return MemorySnapshot{
		Timestamp:   time.Now(),
		TotalMB:     total,
		AvailableMB: available,
		UsedMB:      total - available,
		FreeMB:      values["MemFree"],
	}, true
}
