package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck returns a CheckFunc that reports unhealthy when the
// number of goroutines exceeds the threshold. Useful as a liveness check to
// catch goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		if count := runtime.NumGoroutine(); count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// GCMaxPauseCheck returns a CheckFunc that reports unhealthy when the most
// recent garbage collection pause exceeded the threshold.
func GCMaxPauseCheck(threshold time.Duration) CheckFunc {
	return func(_ context.Context) error {
		var stats runtime.MemStats
		runtime.ReadMemStats(&stats)

		pause := time.Duration(stats.PauseNs[(stats.NumGC+255)%256])
		if stats.NumGC > 0 && pause > threshold {
			return errors.Errorf("last GC pause %s exceeds threshold %s", pause, threshold)
		}
		return nil
	}
}
