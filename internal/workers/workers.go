package workers

import (
	"os"
	"runtime"
	"strconv"
)

// Pool size bounds for the heavy decrypt/transcode pool. The lower
// bound keeps at least two operations moving even on single-core
// machines; the upper bound avoids saturating disk and external
// decoder processes.
const (
	MinPoolSize = 2
	MaxPoolSize = 6
)

// PoolSize returns the worker count for the decrypt/transcode pool:
// half the available parallelism, clamped to [MinPoolSize, MaxPoolSize].
// GOMAXPROCS respects container CPU limits (Go 1.19+).
//
// Can be overridden with the PIPELINE_WORKERS environment variable.
func PoolSize() int {
	if override := os.Getenv("PIPELINE_WORKERS"); override != "" {
		if count, err := strconv.Atoi(override); err == nil && count > 0 {
			return count
		}
	}

	workers := runtime.GOMAXPROCS(0) / 2

	if workers < MinPoolSize {
		workers = MinPoolSize
	}
	if workers > MaxPoolSize {
		workers = MaxPoolSize
	}

	return workers
}
