package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

// BenchmarkExecuteSuccess measures the overhead of a resilient call whose
// first attempt succeeds.
func BenchmarkExecuteSuccess(b *testing.B) {
	ex, err := NewExecutor(Config{MaxRetries: 3})
	if err != nil {
		b.Fatal(err)
	}
	op := func(ctx context.Context) error { return nil }

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ex.Execute(context.Background(), op)
	}
}

// BenchmarkExecuteSuccessParallel measures the same call path under
// concurrent load.
func BenchmarkExecuteSuccessParallel(b *testing.B) {
	ex, err := NewExecutor(Config{MaxRetries: 3, BreakerThreshold: 5})
	if err != nil {
		b.Fatal(err)
	}
	op := func(ctx context.Context) error { return nil }

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			ex.Execute(context.Background(), op)
		}
	})
}

// BenchmarkBreakerAllow measures the hot-path state query.
func BenchmarkBreakerAllow(b *testing.B) {
	br, err := NewBreaker(BreakerConfig{Threshold: 5, ResetTimeout: time.Minute})
	if err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if br.Allow() {
				br.RecordSuccess()
			}
		}
	})
}

// BenchmarkNextDelay measures backoff computation with jitter.
func BenchmarkNextDelay(b *testing.B) {
	cfg := Config{
		InitialDelay:      100 * time.Millisecond,
		MaxDelay:          10 * time.Second,
		BackoffMultiplier: 2,
		JitterMax:         50 * time.Millisecond,
	}
	err := errors.New("transient")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		nextDelay(cfg, 3, err)
	}
}

// BenchmarkShouldRetry measures classification of a wrapped status error.
func BenchmarkShouldRetry(b *testing.B) {
	class := newClassifier(DefaultConfig())
	err := &StatusError{Code: 503, Status: "Service Unavailable"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		class.shouldRetry(err)
	}
}
