package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

type statusErr struct {
	code int
	msg  string
}

func (e *statusErr) Error() string   { return e.msg }
func (e *statusErr) StatusCode() int { return e.code }

func fastOpts() []Option {
	return []Option{
		WithBaseDelay(1 * time.Millisecond),
		WithMaxDelay(5 * time.Millisecond),
		WithMaxJitter(1 * time.Millisecond),
	}
}

func TestDoSuccessFirstTry(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	}, fastOpts()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Errorf("expected ok, got %q", got)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoRetriesThenSucceeds(t *testing.T) {
	calls := 0
	got, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("upstream hiccup")
		}
		return 42, nil
	}, fastOpts()...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDoExhaustsRetryBudget(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", errors.New("still down")
	}, fastOpts()...)
	if err == nil {
		t.Fatal("expected an error")
	}
	// Initial attempt plus three retries.
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	if !strings.Contains(err.Error(), "after 4 attempts") {
		t.Errorf("exhaustion error should mark the retry count, got: %v", err)
	}
}

func TestDoClientErrorShortCircuits(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{code: 404, msg: "group not found"}
	}, fastOpts()...)
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("client error must not be retried, got %d calls", calls)
	}
	var se *statusErr
	if !errors.As(err, &se) || se.code != 404 {
		t.Errorf("original status error must survive, got: %v", err)
	}
}

func TestDoServerErrorIsRetried(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", &statusErr{code: 503, msg: "service unavailable"}
	}, fastOpts()...)
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 4 {
		t.Errorf("5xx must be retried to exhaustion, got %d calls", calls)
	}
}

func TestDoWrappedClientErrorShortCircuits(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), func(ctx context.Context) (string, error) {
		calls++
		return "", fmt.Errorf("fetching team stats: %w", &statusErr{code: 400, msg: "bad request"})
	}, fastOpts()...)
	if err == nil {
		t.Fatal("expected an error")
	}
	if calls != 1 {
		t.Errorf("wrapped client error must not be retried, got %d calls", calls)
	}
}

func TestDoContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Do(ctx, func(ctx context.Context) (string, error) {
			calls++
			if calls == 1 {
				cancel()
			}
			return "", errors.New("transient")
		}, WithBaseDelay(1*time.Hour), WithMaxJitter(0))
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected an error after cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Do did not return after context cancellation")
	}
}

func TestIsClientError(t *testing.T) {
	if IsClientError(errors.New("404 timeout after 4 retries")) {
		t.Error("message content must not trigger client-error classification")
	}
	if !IsClientError(&statusErr{code: 422, msg: "unprocessable"}) {
		t.Error("422 is a client error")
	}
	if IsClientError(&statusErr{code: 500, msg: "boom"}) {
		t.Error("500 is not a client error")
	}
}
