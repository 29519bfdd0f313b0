package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/ai-detector/internal/logging"
)

type transientTestError struct{}

func (transientTestError) Error() string   { return "transient" }
func (transientTestError) Timeout() bool   { return true }
func (transientTestError) Temporary() bool { return true }

var fastPolicy = Policy{Attempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}

func TestDoRetriesTransientErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	attempts := 0
	err := Do(context.Background(), zap.New(core), fastPolicy, "test.operation", "ref-1", func() error {
		attempts++
		if attempts < 3 {
			return transientTestError{}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if got := logs.FilterMessage("transient error").Len(); got != 2 {
		t.Fatalf("expected 2 transient warnings, got %d", got)
	}
	if got := logs.FilterMessage("operation succeeded after retry").Len(); got != 1 {
		t.Fatalf("expected 1 recovery log, got %d", got)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), zap.NewNop(), fastPolicy, "test.operation", "ref-2", func() error {
		attempts++
		return transientTestError{}
	})
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	var opErr *logging.OperationError
	if !errors.As(err, &opErr) || opErr.Operation != "test.operation" || opErr.Ref != "ref-2" {
		t.Fatalf("expected OperationError, got %v", err)
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	attempts := 0
	_ = Do(context.Background(), zap.NewNop(), Policy{}, "test.operation", "", func() error {
		attempts++
		return transientTestError{}
	})
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestIsTransient(t *testing.T) {
	cases := map[string]struct {
		err  error
		want bool
	}{
		"nil":       {nil, false},
		"plain":     {errors.New("boom"), false},
		"deadline":  {context.DeadlineExceeded, true},
		"timeout":   {transientTestError{}, true},
		"wrapped":   {fmt.Errorf("query: %w", transientTestError{}), true},
		"cancelled": {context.Canceled, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
