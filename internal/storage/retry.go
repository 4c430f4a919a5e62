package storage

import (
	"context"
	"time"

	"github.com/amoylab/chatterbox/internal/common/config"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

// retrier runs operations with exponential backoff on transient errors
type retrier struct {
	logger     *zap.Logger
	maxRetries int
	baseDelay  time.Duration
	onRetry    func(op string)
}

func newRetrier(logger *zap.Logger, cfg config.StorageConfig) *retrier {
	return &retrier{
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		baseDelay:  cfg.BaseDelay,
	}
}

// backOff waits baseDelay * 2^n before retry n
func (r *retrier) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.baseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = r.baseDelay << r.maxRetries
	return b
}

func retry[T any](ctx context.Context, r *retrier, op string, fn func() (T, error)) (T, error) {
	operation := func() (T, error) {
		res, err := fn()
		if err == nil {
			return res, nil
		}
		err = translate(err)
		if !retryable(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.backOff()),
		backoff.WithMaxTries(uint(r.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			r.logger.Warn("retryable store error",
				zap.String("op", op),
				zap.Duration("next", next),
				zap.Error(err))
			if r.onRetry != nil {
				r.onRetry(op)
			}
		}),
	)
}
