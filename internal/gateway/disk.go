package gateway

import (
	"net/http"

	"github.com/shirou/gopsutil/v4/disk"
)

// DiskUsage returns the free bytes of the filesystem holding path.
type DiskUsage func(path string) (uint64, error)

// FreeBytes reads free space with gopsutil.
func FreeBytes(path string) (uint64, error) {
	u, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return u.Free, nil
}

// ensureDisk fails with 507 when less than floor bytes are free.
func ensureDisk(usage DiskUsage, path string, floor uint64) error {
	if floor == 0 {
		return nil
	}
	free, err := usage(path)
	if err != nil {
		return internal("Unable to check free disk space.", err)
	}
	if free < floor {
		return exhausted(http.StatusInsufficientStorage, "disk", "Server disk space is too low.")
	}
	return nil
}
