package preflight

import (
	"fmt"
	"syscall"

	"github.com/jinhua10/ai-reviewer-base-file-rag-sub000/internal/optimizer"
)

// MinDiskSpaceBytes is the free space the storage directory needs for the
// lexical segments, the vector graph and their temp files during Save.
const MinDiskSpaceBytes = 100 * 1024 * 1024

func freeBytes(dir string) (uint64, error) {
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		return 0, err
	}
	return fs.Bavail * uint64(fs.Bsize), nil
}

// CheckDiskSpace reports the free space on the filesystem holding dir.
func (c *Checker) CheckDiskSpace(dir string) CheckResult {
	free, err := freeBytes(dir)
	if err != nil {
		return CheckResult{
			Name:     "disk_space",
			Status:   StatusFail,
			Required: true,
			Message:  fmt.Sprintf("cannot stat %s: %v", dir, err),
		}
	}

	status := StatusPass
	if free < MinDiskSpaceBytes {
		status = StatusFail
	}
	return CheckResult{
		Name:     "disk_space",
		Status:   status,
		Required: true,
		Message: fmt.Sprintf("%s free at %s, index needs %s",
			optimizer.FormatBytes(free), dir, optimizer.FormatBytes(MinDiskSpaceBytes)),
	}
}
