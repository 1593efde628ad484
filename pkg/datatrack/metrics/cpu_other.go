//go:build !unix

package metrics

import (
	"errors"
	"time"
)

func processCPUTime() (time.Duration, error) {
	return 0, errors.New("cpu time not supported on this platform")
}
