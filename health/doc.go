// Package health reports the readiness of the gateway and its dependencies.
//
// A Checker probes one dependency and reports a Status of Healthy, Degraded,
// or Unhealthy. The package ships checkers for the pieces a gateway
// deployment cares about: BreakerChecker surfaces circuit breaker state,
// StoreChecker probes the rate limit counter store with a full
// increment/read/reset roundtrip, and RuntimeChecker watches heap usage and
// goroutine counts.
//
// # Aggregating Checks
//
// Use Aggregator to fan out to registered checkers, in parallel by default,
// and fold their results into an overall status:
//
//	agg := health.NewAggregator()
//	agg.Register("breaker:acquirer", health.NewBreakerChecker(breaker))
//	agg.Register("store", health.NewStoreChecker(store))
//	agg.Register("runtime", health.NewRuntimeChecker(health.RuntimeCheckerConfig{}))
//
//	results := agg.CheckAll(ctx)
//	overall := agg.OverallStatus(results)
//
// # HTTP Probes
//
// The package provides HTTP handlers for the usual orchestration probes:
//
//	// Liveness probe (for Kubernetes)
//	http.Handle("/healthz", health.LivenessHandler())
//
//	// Readiness probe with component checks
//	http.Handle("/readyz", health.ReadinessHandler(aggregator))
//
//	// Detailed health status
//	http.Handle("/health", health.DetailedHandler(aggregator))
package health
