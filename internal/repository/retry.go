package repository

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/example/ai-detector/internal/logging"
	"github.com/example/ai-detector/internal/retry"
)

// retrier re-runs idempotent reads on transient database errors.
type retrier struct {
	logger *zap.Logger
	policy retry.Policy
}

func newRetrier(logger *zap.Logger) retrier {
	return retrier{logger: logger, policy: retry.DefaultPolicy()}
}

func (r *retrier) executeWithRetry(ctx context.Context, operation, ref string, fn func() error) error {
	err := retry.Do(ctx, r.logger, r.policy, operation, ref, fn)
	if err != nil && !errors.Is(err, ErrNotFound) {
		logging.WithOperation(r.logger, operation, ref).Error("database operation failed", zap.Error(err))
	}
	return err
}
