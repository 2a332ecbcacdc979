package awsx

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/smithy-go"
)

func throttleErr() error {
	return &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"}
}

func deniedErr() error {
	return &smithy.GenericAPIError{Code: "AccessDenied", Message: "no"}
}

func TestRetrySucceedsAfterThrottle(t *testing.T) {
	calls := 0
	out, err := Retry(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", throttleErr()
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if out != "ok" || calls != 3 {
		t.Errorf("out=%q calls=%d", out, calls)
	}
}

func TestRetryDoesNotRetryTerminalErrors(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, deniedErr()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("access denied should not be retried, got %d calls", calls)
	}
}

func TestRetryGivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 0, throttleErr()
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != maxAttempts {
		t.Errorf("calls = %d, want %d", calls, maxAttempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Retry(ctx, func(ctx context.Context) (int, error) {
		return 0, throttleErr()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestIsThrottle(t *testing.T) {
	if !IsThrottle(throttleErr()) {
		t.Error("ThrottlingException should classify as throttle")
	}
	if IsThrottle(deniedErr()) {
		t.Error("AccessDenied should not classify as throttle")
	}
	if IsThrottle(errors.New("plain")) {
		t.Error("non-API error should not classify as throttle")
	}
}
