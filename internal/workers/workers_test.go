package workers

import (
	"os"
	"runtime"
	"testing"
)

func TestPoolSizeBounds(t *testing.T) {
	originalEnv := os.Getenv("PIPELINE_WORKERS")
	defer func() {
		if originalEnv != "" {
			os.Setenv("PIPELINE_WORKERS", originalEnv)
		} else {
			os.Unsetenv("PIPELINE_WORKERS")
		}
	}()
	os.Unsetenv("PIPELINE_WORKERS")

	size := PoolSize()
	if size < MinPoolSize {
		t.Errorf("PoolSize() = %d, want >= %d", size, MinPoolSize)
	}
	if size > MaxPoolSize {
		t.Errorf("PoolSize() = %d, want <= %d", size, MaxPoolSize)
	}

	half := runtime.GOMAXPROCS(0) / 2
	if half >= MinPoolSize && half <= MaxPoolSize && size != half {
		t.Errorf("PoolSize() = %d, want %d (half of GOMAXPROCS)", size, half)
	}
}

func TestPoolSizeOverride(t *testing.T) {
	originalEnv := os.Getenv("PIPELINE_WORKERS")
	defer func() {
		if originalEnv != "" {
			os.Setenv("PIPELINE_WORKERS", originalEnv)
		} else {
			os.Unsetenv("PIPELINE_WORKERS")
		}
	}()

	os.Setenv("PIPELINE_WORKERS", "4")
	if got := PoolSize(); got != 4 {
		t.Errorf("PoolSize() with override = %d, want 4", got)
	}

	// Invalid overrides fall back to the derived value
	os.Setenv("PIPELINE_WORKERS", "not-a-number")
	size := PoolSize()
	if size < MinPoolSize || size > MaxPoolSize {
		t.Errorf("PoolSize() with bad override = %d, want within [%d, %d]", size, MinPoolSize, MaxPoolSize)
	}
}
