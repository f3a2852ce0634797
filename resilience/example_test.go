package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/payguard/payguard/resilience"
)

// ExampleDo shows a call that recovers after transient failures, with the
// full attempt history preserved.
func ExampleDo() {
	ex, _ := resilience.NewExecutor(resilience.Config{
		MaxRetries:   2,
		InitialDelay: time.Millisecond,
	})

	calls := 0
	value, res := resilience.Do(context.Background(), ex, func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", resilience.WithCode(errors.New("conn dropped"), resilience.CodeConnReset)
		}
		return "txn_settled", nil
	})

	fmt.Println(value)
	fmt.Println(res.Success, len(res.Attempts))
	// Output:
	// txn_settled
	// true 3
}

// ExampleExecutor_Execute shows a non-retryable failure ending the call on
// the first attempt.
func ExampleExecutor_Execute() {
	ex, _ := resilience.NewExecutor(resilience.Config{MaxRetries: 5})

	res := ex.Execute(context.Background(), func(ctx context.Context) error {
		return resilience.WithCode(errors.New("card declined"), "card_declined")
	})

	fmt.Println(res.Success, len(res.Attempts))
	// Output: false 1
}

// ExampleBreaker shows the circuit opening after consecutive failures.
func ExampleBreaker() {
	b, _ := resilience.NewBreaker(resilience.BreakerConfig{
		Threshold:    2,
		ResetTimeout: time.Minute,
	})

	b.RecordFailure()
	b.RecordFailure()

	fmt.Println(b.State())
	fmt.Println(b.Allow())
	// Output:
	// open
	// false
}

// ExampleErrorCode shows classification codes for common failures.
func ExampleErrorCode() {
	fmt.Println(resilience.ErrorCode(resilience.WithCode(errors.New("x"), "card_declined")))
	fmt.Println(resilience.ErrorCode(&resilience.StatusError{Code: 503}))
	// Output:
	// card_declined
	// HTTP_503
}
