package ratelimit

import (
	"context"
	"testing"
	"time"
)

// BenchmarkLimiterCheck measures a plain in-limit admission on the
// memory store.
func BenchmarkLimiterCheck(b *testing.B) {
	store := NewMemoryStore()
	defer store.Close()
	l, err := NewLimiter(Config{Window: time.Hour, MaxRequests: 1 << 30}, store)
	if err != nil {
		b.Fatalf("NewLimiter() error = %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	req := Request{ClientAddr: "203.0.113.7", Path: "/charges", Method: "GET"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.Check(ctx, req)
	}
}

// BenchmarkLimiterCheckParallel measures contended admissions on one
// shared key.
func BenchmarkLimiterCheckParallel(b *testing.B) {
	store := NewMemoryStore()
	defer store.Close()
	l, err := NewLimiter(Config{Window: time.Hour, MaxRequests: 1 << 30}, store)
	if err != nil {
		b.Fatalf("NewLimiter() error = %v", err)
	}
	defer l.Close()

	ctx := context.Background()
	req := Request{ClientAddr: "203.0.113.7", Path: "/charges", Method: "GET"}

	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = l.Check(ctx, req)
		}
	})
}

// BenchmarkMemoryStoreIncrement measures the raw counting path.
func BenchmarkMemoryStoreIncrement(b *testing.B) {
	store := NewMemoryStore()
	defer store.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Increment(ctx, "bench", time.Hour)
	}
}

// BenchmarkMatch measures wildcard screening.
func BenchmarkMatch(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = match("key:*-prod-*", "key:acme-prod-7f2a")
	}
}

// BenchmarkResolveKeyAPIKey measures key resolution with hashing.
func BenchmarkResolveKeyAPIKey(b *testing.B) {
	store := NewMemoryStore()
	defer store.Close()
	l, err := NewLimiter(Config{KeyBy: KeyByAPIKey}, store)
	if err != nil {
		b.Fatalf("NewLimiter() error = %v", err)
	}
	defer l.Close()

	req := Request{ClientAddr: "203.0.113.7", APIKey: "pk_live_benchmark"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = l.resolveKey(req)
	}
}
