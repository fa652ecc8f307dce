package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the fd-limit floor: the watcher holds one
// descriptor per watched directory, and large trees blow through small
// ulimits fast.
const MinFileDescriptors = 1024

// CheckFileDescriptors verifies the process's soft fd limit.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: true,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusFail
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
	} else {
		result.Status = StatusPass
	}
	return result
}
