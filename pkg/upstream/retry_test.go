package upstream

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps test backoffs short.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        40 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 1 {
		t.Errorf("MaxAttempts = %d, want 1", config.MaxAttempts)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
}

func TestRetryWithBackoff_SuccessFirstAttempt(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), func(int, bool) (ErrorClass, error) {
		callCount++
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}

func TestRetryWithBackoff_SuccessAfterRetries(t *testing.T) {
	callCount := 0
	err := retryWithBackoff(context.Background(), fastRetry(3), func(int, bool) (ErrorClass, error) {
		callCount++
		if callCount < 3 {
			return ErrorClassServer, errors.New("temporary")
		}
		return "", nil
	})

	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls, got %d", callCount)
	}
}

func TestRetryWithBackoff_LastFlag(t *testing.T) {
	var lasts []bool
	_ = retryWithBackoff(context.Background(), fastRetry(3), func(_ int, last bool) (ErrorClass, error) {
		lasts = append(lasts, last)
		return ErrorClassNetwork, errors.New("down")
	})

	want := []bool{false, false, true}
	if len(lasts) != len(want) {
		t.Fatalf("got %d attempts, want %d", len(lasts), len(want))
	}
	for i := range want {
		if lasts[i] != want[i] {
			t.Errorf("attempt %d last = %v, want %v", i+1, lasts[i], want[i])
		}
	}
}

func TestRetryWithBackoff_MaxAttemptsExhausted(t *testing.T) {
	callCount := 0
	testErr := &Error{ErrorClass: ErrorClassNetwork, Message: "origin unreachable"}

	err := retryWithBackoff(context.Background(), fastRetry(3), func(int, bool) (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, testErr
	})

	if !errors.Is(err, ErrRetryExhausted) {
		t.Errorf("Expected ErrRetryExhausted, got %v", err)
	}
	if !IsNetworkError(err) {
		t.Error("exhausted network error should still classify as network")
	}
	if callCount != 3 {
		t.Errorf("Expected 3 calls (MaxAttempts), got %d", callCount)
	}
}

func TestRetryWithBackoff_SingleAttemptReturnsOriginalError(t *testing.T) {
	testErr := errors.New("down")
	err := retryWithBackoff(context.Background(), fastRetry(1), func(int, bool) (ErrorClass, error) {
		return ErrorClassNetwork, testErr
	})

	if err != testErr {
		t.Errorf("err = %v, want original error", err)
	}
}

func TestRetryWithBackoff_ClientErrorNoRetry(t *testing.T) {
	callCount := 0
	testErr := errors.New("client error")

	err := retryWithBackoff(context.Background(), fastRetry(3), func(int, bool) (ErrorClass, error) {
		callCount++
		return ErrorClassClient, testErr
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call (no retry for client errors), got %d", callCount)
	}
	if errors.Is(err, ErrRetryExhausted) {
		t.Error("Should not return ErrRetryExhausted for client errors")
	}
	if !errors.Is(err, testErr) {
		t.Errorf("Expected original error, got %v", err)
	}
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	cfg := fastRetry(3)
	cfg.InitialBackoff = time.Second

	err := retryWithBackoff(ctx, cfg, func(int, bool) (ErrorClass, error) {
		callCount++
		if callCount == 1 {
			cancel()
		}
		return ErrorClassServer, errors.New("error")
	})

	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Expected ErrContextCancelled, got %v", err)
	}
	if callCount != 1 {
		t.Errorf("Expected 1 call before cancellation, got %d", callCount)
	}
}

func TestRetryWithBackoff_ZeroAttemptsMeansOne(t *testing.T) {
	callCount := 0
	_ = retryWithBackoff(context.Background(), RetryConfig{}, func(int, bool) (ErrorClass, error) {
		callCount++
		return ErrorClassNetwork, errors.New("down")
	})

	if callCount != 1 {
		t.Errorf("Expected 1 call, got %d", callCount)
	}
}
