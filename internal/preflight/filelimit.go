package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the soft limit below which bleve may run out of
// descriptors while merging segments.
const MinFileDescriptors = 1024

func openFileLimit() (uint64, error) {
	var lim syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &lim); err != nil {
		return 0, err
	}
	return uint64(lim.Cur), nil
}

// CheckFileDescriptors warns when the open file soft limit is low.
func (c *Checker) CheckFileDescriptors() CheckResult {
	limit, err := openFileLimit()
	switch {
	case err != nil:
		return CheckResult{Name: "file_descriptors", Status: StatusWarn,
			Message: fmt.Sprintf("cannot read open file limit: %v", err)}
	case limit < MinFileDescriptors:
		return CheckResult{Name: "file_descriptors", Status: StatusWarn,
			Message: fmt.Sprintf("open file limit %d is below %d", limit, MinFileDescriptors),
			Details: "Raise it with 'ulimit -n 4096' before indexing large document sets"}
	default:
		return CheckResult{Name: "file_descriptors", Status: StatusPass,
			Message: fmt.Sprintf("open file limit %d", limit)}
	}
}
