package health

import (
	"context"
	"fmt"
	"runtime"
)

// RuntimeCheckerConfig configures the Go runtime health checker.
type RuntimeCheckerConfig struct {
	// WarningThreshold is the fraction of MaxHeap that triggers degraded
	// status. Value should be between 0 and 1. Default: 0.8 (80%)
	WarningThreshold float64

	// CriticalThreshold is the fraction of MaxHeap that triggers unhealthy
	// status. Value should be between 0 and 1. Default: 0.95 (95%)
	CriticalThreshold float64

	// MaxHeap is the expected heap ceiling in bytes. If zero, the memory
	// obtained from the OS is used as the ceiling.
	MaxHeap uint64

	// MaxGoroutines triggers degraded status when the live goroutine
	// count exceeds it. Zero disables the goroutine check.
	MaxGoroutines int
}

// RuntimeChecker reports heap pressure and goroutine counts of the running
// process. A climbing goroutine count usually means upstream calls are
// piling up behind a stalled dependency.
type RuntimeChecker struct {
	config RuntimeCheckerConfig
}

var _ InfoChecker = (*RuntimeChecker)(nil)

// NewRuntimeChecker creates a runtime health checker.
func NewRuntimeChecker(config RuntimeCheckerConfig) *RuntimeChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = config.WarningThreshold + 0.1
		if config.CriticalThreshold > 1 {
			config.CriticalThreshold = 0.99
		}
	}

	return &RuntimeChecker{config: config}
}

// Name identifies this checker.
func (c *RuntimeChecker) Name() string {
	return "runtime"
}

// Check performs the runtime health check. Heap pressure past the critical
// threshold wins over a high goroutine count.
func (c *RuntimeChecker) Check(ctx context.Context) Result {
	select {
	case <-ctx.Done():
		return Unhealthy("context cancelled", ctx.Err())
	default:
	}

	details, usageRatio, goroutines := c.snapshot()

	if usageRatio >= c.config.CriticalThreshold {
		return Unhealthy(
			fmt.Sprintf("heap usage critical: %.1f%%", usageRatio*100),
			ErrCheckFailed,
		).WithDetails(details)
	}

	if c.config.MaxGoroutines > 0 && goroutines > c.config.MaxGoroutines {
		return Degraded(
			fmt.Sprintf("goroutine count high: %d", goroutines),
		).WithDetails(details)
	}

	if usageRatio >= c.config.WarningThreshold {
		return Degraded(
			fmt.Sprintf("heap usage high: %.1f%%", usageRatio*100),
		).WithDetails(details)
	}

	return Healthy(
		fmt.Sprintf("heap usage normal: %.1f%%", usageRatio*100),
	).WithDetails(details)
}

// Info returns the runtime diagnostics without folding them into a status.
func (c *RuntimeChecker) Info(ctx context.Context) (map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	details, _, _ := c.snapshot()
	return details, nil
}

func (c *RuntimeChecker) snapshot() (map[string]any, float64, int) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	goroutines := runtime.NumGoroutine()

	maxHeap := c.config.MaxHeap
	if maxHeap == 0 {
		maxHeap = stats.Sys
	}

	var usageRatio float64
	if maxHeap > 0 {
		usageRatio = float64(stats.HeapAlloc) / float64(maxHeap)
	}

	details := map[string]any{
		"heap_alloc":     stats.HeapAlloc,
		"heap_sys":       stats.HeapSys,
		"heap_objects":   stats.HeapObjects,
		"max_heap":       maxHeap,
		"usage_percent":  usageRatio * 100,
		"gc_pause_total": stats.PauseTotalNs,
		"num_gc":         stats.NumGC,
		"goroutines":     goroutines,
	}
	if c.config.MaxGoroutines > 0 {
		details["max_goroutines"] = c.config.MaxGoroutines
	}

	return details, usageRatio, goroutines
}

// ForceGC triggers a garbage collection, for tests that want stable heap
// readings.
func (c *RuntimeChecker) ForceGC() {
	runtime.GC()
}
