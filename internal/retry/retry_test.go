package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/litekeeper/internal/infrastructure/config"
)

var errLocked = errors.New("database is locked")

func TestExecute_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Execute(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil, Aggressive())

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestExecute_RetriesTransientThenSucceeds(t *testing.T) {
	calls := 0
	strategy := Strategy{MaxRetries: 5, BaseDelay: time.Millisecond, Multiplier: 2}

	err := Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errLocked
		}
		return nil
	}, nil, strategy)

	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestExecute_FatalErrorReturnsImmediately(t *testing.T) {
	fatal := errors.New("no such table: missing")
	calls := 0

	err := Execute(context.Background(), func(context.Context) error {
		calls++
		return fatal
	}, nil, Aggressive())

	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fatal error should not retry, got %d calls", calls)
	}
}

func TestExecute_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	calls := 0
	strategy := Strategy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 1.5}

	err := Execute(context.Background(), func(context.Context) error {
		calls++
		return errLocked
	}, nil, strategy)

	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if !errors.Is(err, errLocked) {
		t.Error("expected exhausted error to wrap the last underlying error")
	}
	if calls != 4 {
		t.Errorf("MaxRetries=3 should make 4 attempts, got %d", calls)
	}

	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatal("expected *ExhaustedError")
	}
	if exhausted.Attempts != 4 {
		t.Errorf("expected Attempts=4, got %d", exhausted.Attempts)
	}
}

func TestExecute_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	strategy := Strategy{MaxRetries: 10, BaseDelay: time.Hour, Multiplier: 2}

	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- Execute(ctx, func(context.Context) error {
			calls++
			return errLocked
		}, nil, strategy)
	}()

	// Let the first attempt fail and enter the backoff sleep.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}

	if calls != 1 {
		t.Errorf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestExecute_CustomClassifier(t *testing.T) {
	special := errors.New("flaky network")
	calls := 0

	err := Execute(context.Background(), func(context.Context) error {
		calls++
		if calls < 2 {
			return special
		}
		return nil
	}, func(err error) bool {
		return errors.Is(err, special)
	}, Strategy{MaxRetries: 3, BaseDelay: time.Millisecond, Multiplier: 2})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}
}

func TestDelay_GrowsAndCaps(t *testing.T) {
	s := Strategy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}

	prev := time.Duration(0)
	for i := 0; i < 8; i++ {
		d := s.Delay(i)
		if d < prev {
			t.Errorf("delay decreased at attempt %d: %v < %v", i, d, prev)
		}
		if d > s.MaxDelay {
			t.Errorf("delay at attempt %d exceeds cap: %v", i, d)
		}
		prev = d
	}

	if s.Delay(0) != 100*time.Millisecond {
		t.Errorf("expected first delay 100ms, got %v", s.Delay(0))
	}
	if s.Delay(10) != time.Second {
		t.Errorf("expected capped delay 1s, got %v", s.Delay(10))
	}
}

func TestJitteredDelay_WithinBounds(t *testing.T) {
	s := Strategy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFraction: 0.25}

	base := s.Delay(2)
	low := time.Duration(float64(base) * 0.75)
	high := time.Duration(float64(base) * 1.25)

	for i := 0; i < 100; i++ {
		d := s.jitteredDelay(2)
		if d < low || d > high {
			t.Fatalf("jittered delay %v outside [%v, %v]", d, low, high)
		}
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "locked message", err: errors.New("database is locked"), want: true},
		{name: "table locked message", err: errors.New("database table is locked"), want: true},
		{name: "busy message", err: errors.New("database is busy"), want: true},
		{name: "schema changed", err: errors.New("schema has changed"), want: true},
		{name: "cannot commit", err: errors.New("cannot commit transaction"), want: true},
		{name: "wrapped locked", err: fmt.Errorf("executing statement: %w", errLocked), want: true},
		{name: "driver busy code", err: sqlite3.Error{Code: sqlite3.ErrBusy}, want: true},
		{name: "driver locked code", err: sqlite3.Error{Code: sqlite3.ErrLocked}, want: true},
		{name: "driver constraint code", err: sqlite3.Error{Code: sqlite3.ErrConstraint}, want: false},
		{name: "syntax error", err: errors.New("near \"SELEC\": syntax error"), want: false},
		{name: "missing table", err: errors.New("no such table: users"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestPresets(t *testing.T) {
	tests := []struct {
		name       string
		strategy   Strategy
		retries    int
		baseDelay  time.Duration
		multiplier float64
	}{
		{name: "aggressive", strategy: Aggressive(), retries: 10, baseDelay: 50 * time.Millisecond, multiplier: 1.5},
		{name: "balanced", strategy: Balanced(), retries: 5, baseDelay: 100 * time.Millisecond, multiplier: 2},
		{name: "conservative", strategy: Conservative(), retries: 3, baseDelay: 500 * time.Millisecond, multiplier: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.strategy.MaxRetries != tt.retries {
				t.Errorf("MaxRetries = %d, want %d", tt.strategy.MaxRetries, tt.retries)
			}
			if tt.strategy.BaseDelay != tt.baseDelay {
				t.Errorf("BaseDelay = %v, want %v", tt.strategy.BaseDelay, tt.baseDelay)
			}
			if tt.strategy.Multiplier != tt.multiplier {
				t.Errorf("Multiplier = %v, want %v", tt.strategy.Multiplier, tt.multiplier)
			}
		})
	}
}

func TestFromConfig(t *testing.T) {
	if got := FromConfig(config.RetryConfig{Preset: "aggressive"}); got.MaxRetries != 10 {
		t.Errorf("aggressive preset: MaxRetries = %d, want 10", got.MaxRetries)
	}
	if got := FromConfig(config.RetryConfig{Preset: "Conservative"}); got.MaxRetries != 3 {
		t.Errorf("conservative preset: MaxRetries = %d, want 3", got.MaxRetries)
	}
	if got := FromConfig(config.RetryConfig{Preset: "bogus"}); got.MaxRetries != 5 {
		t.Errorf("unknown preset should fall back to balanced, got MaxRetries = %d", got.MaxRetries)
	}

	custom := FromConfig(config.RetryConfig{
		Preset: "aggressive",
		Custom: &config.RetryStrategyConfig{
			MaxRetries:     7,
			BaseDelayMs:    25,
			MaxDelayMs:     1000,
			Multiplier:     1.8,
			JitterFraction: 0.2,
		},
	})
	if custom.MaxRetries != 7 || custom.BaseDelay != 25*time.Millisecond || custom.Multiplier != 1.8 {
		t.Errorf("custom strategy not honoured: %+v", custom)
	}
}
