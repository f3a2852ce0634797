// Package resilience wraps calls to upstream payment services with retry,
// exponential backoff, and circuit breaking.
//
// Every call runs through an Executor, which classifies failures into
// retryable and non-retryable, schedules backoff between attempts, and
// reports outcomes to a circuit breaker guarding the upstream. The full
// attempt history is preserved in the returned Result, so callers and
// audit trails can see exactly what happened on the wire.
//
// # Retry
//
// The attempt budget is MaxRetries+1. The delay before attempt k+1 after
// failing attempt k is min(InitialDelay * BackoffMultiplier^(k-1),
// MaxDelay), overridden by a server Retry-After hint when one is honored,
// plus uniform random jitter up to JitterMax. Each attempt can carry its
// own timeout; overrunning it abandons that attempt only.
//
// # Classification
//
// Failures are classified through ErrorCode: explicit codes attached with
// WithCode, upstream statuses (StatusError), and transport errors mapped to
// conventional names (ECONNRESET, ETIMEDOUT, ...). Codes from the
// non-retryable set always win; unknown errors are never retried.
//
// # Circuit breaker
//
// The Breaker opens after Threshold consecutive terminal failures. After
// ResetTimeout it admits a single probe at a time; two consecutive probe
// successes close it again, and any probe failure reopens it. The breaker
// sees one outcome per logical call, not per attempt.
//
// # Usage
//
//	ex, err := resilience.NewExecutor(resilience.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//
//	charge, res := resilience.Do(ctx, ex, func(ctx context.Context) (*Charge, error) {
//	    return gateway.CreateCharge(ctx, req)
//	})
//	if res.Err != nil {
//	    return res.Err
//	}
//
// HTTP callers use Client, which treats configured response statuses as
// retryable failures, replays request bodies across attempts, and can
// stamp stable idempotency keys on mutating calls:
//
//	client, err := resilience.NewClient(ex,
//	    resilience.WithIdempotencyKeys("Idempotency-Key"),
//	)
//	resp, err := client.Post(ctx, gatewayURL+"/v1/charges", "application/json", payload)
package resilience
