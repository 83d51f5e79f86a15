package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryer_Success(t *testing.T) {
	retryer, err := NewRetryer(EnableRetry(3, 10*time.Millisecond))
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Errorf("Expected no error, got: %v", err)
	}
	if attempts != 1 {
		t.Errorf("Expected 1 attempt, got %d", attempts)
	}
}

func TestRetryer_SuccessAfterRetries(t *testing.T) {
	config := EnableRetry(5, 10*time.Millisecond)
	config.Jitter = 0
	retryer, err := NewRetryer(config)
	if err != nil {
		t.Fatalf("Failed to create retryer: %v", err)
	}

	attempts := 0
	start := time.Now()
	err = retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary error")
		}
		return nil
	})
	duration := time.Since(start)

	if err != nil {
		t.Errorf("Expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
	// 10ms + 20ms
	if duration < 20*time.Millisecond {
		t.Errorf("Expected delays between retries, duration was too short: %v", duration)
	}
}

func TestRetryer_MaxAttemptsExceeded(t *testing.T) {
	retryer, _ := NewRetryer(EnableRetry(3, time.Millisecond))

	attempts := 0
	boom := errors.New("persistent error")
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Expected wrapped error, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", attempts)
	}
}

func TestRetryer_PermanentNotRetried(t *testing.T) {
	retryer, _ := NewRetryer(EnableRetry(5, time.Millisecond))

	attempts := 0
	notFound := errors.New("404 Not Found")
	err := retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return Permanent(fmt.Errorf("fetch failed: %w", notFound))
	})
	if attempts != 1 {
		t.Errorf("permanent error retried %d times", attempts)
	}
	if !errors.Is(err, notFound) || !IsPermanent(err) {
		t.Errorf("unexpected error chain: %v", err)
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) must be nil")
	}
}

func TestRetryer_CalculateDelay(t *testing.T) {
	config := EnableRetry(10, 100*time.Millisecond)
	config.MaxDelay = time.Second
	config.Jitter = 0

	tests := []struct {
		strategy BackoffStrategy
		attempt  int
		want     time.Duration
	}{
		{BackoffConstant, 3, 100 * time.Millisecond},
		{BackoffLinear, 3, 300 * time.Millisecond},
		{BackoffExponential, 1, 100 * time.Millisecond},
		{BackoffExponential, 3, 400 * time.Millisecond},
		{BackoffExponential, 10, time.Second}, // ограничено MaxDelay
	}

	for _, tt := range tests {
		config.BackoffStrategy = tt.strategy
		r, err := NewRetryer(config)
		if err != nil {
			t.Fatal(err)
		}
		if got := r.calculateDelay(tt.attempt); got != tt.want {
			t.Errorf("%s attempt %d: delay = %v, want %v", tt.strategy, tt.attempt, got, tt.want)
		}
	}
}

func TestRetryer_ContextCancellation(t *testing.T) {
	retryer, _ := NewRetryer(EnableRetry(10, 100*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	attempts := 0
	err := retryer.Do(ctx, func(ctx context.Context) error {
		attempts++
		return errors.New("error")
	})
	if err == nil {
		t.Error("Expected error due to context cancellation")
	}
	if attempts > 2 {
		t.Errorf("Expected at most 2 attempts before cancellation, got %d", attempts)
	}
}

func TestRetryer_OnRetryCallback(t *testing.T) {
	config := EnableRetry(3, time.Millisecond)
	calls := 0
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		calls++
	}
	retryer, _ := NewRetryer(config)

	retryer.Do(context.Background(), func(ctx context.Context) error {
		return errors.New("error")
	})
	// 3 попытки = 2 повтора
	if calls != 2 {
		t.Errorf("Expected 2 OnRetry calls, got %d", calls)
	}
}

func TestRetryer_RetryableErrors(t *testing.T) {
	config := EnableRetry(5, time.Millisecond)
	config.RetryableErrors = []string{"timeout", "503"}
	retryer, _ := NewRetryer(config)

	attempts := 0
	retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("invalid JSON")
	})
	if attempts != 1 {
		t.Errorf("non-retryable error retried: %d attempts", attempts)
	}

	attempts = 0
	retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("HTTP 503 Service Unavailable")
	})
	if attempts != 5 {
		t.Errorf("retryable error: %d attempts, want 5", attempts)
	}
}

func TestRetryer_Disabled(t *testing.T) {
	retryer, _ := NewRetryer(DefaultConfig())

	attempts := 0
	retryer.Do(context.Background(), func(ctx context.Context) error {
		attempts++
		return errors.New("error")
	})
	if attempts != 1 {
		t.Errorf("disabled retryer made %d attempts", attempts)
	}
}

func TestConfig_Validate(t *testing.T) {
	c := EnableRetry(3, time.Second)
	c.BackoffStrategy = "random"
	if err := c.Validate(); err == nil {
		t.Error("expected error for unknown strategy")
	}

	c = EnableRetry(3, time.Second)
	c.Jitter = 2
	if err := c.Validate(); err == nil {
		t.Error("expected error for jitter > 1")
	}

	c = EnableRetry(3, time.Minute)
	if err := c.Validate(); err != nil {
		t.Errorf("EnableRetry must raise MaxDelay to InitialDelay: %v", err)
	}
}
