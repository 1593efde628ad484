//go:build unix

package metrics

import (
	"time"

	"golang.org/x/sys/unix"
)

// processCPUTime returns user plus system CPU time of the whole process.
func processCPUTime() (time.Duration, error) {
	var usage unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &usage); err != nil {
		return 0, err
	}
	return time.Duration(usage.Utime.Nano() + usage.Stime.Nano()), nil
}
