package workflow

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"
	"go.uber.org/zap"

	"github.com/simplesurance/stagecoord/internal/logfields"
	"github.com/simplesurance/stagecoord/internal/retryerr"
)

// Retryer executes a function repeatedly until it was successful or a cancel
// condition happened.
type Retryer struct {
	logger          *zap.Logger
	maxRetryTimeout time.Duration
	shutdownChan    chan struct{}
}

func NewRetryer(maxRetryTimeout time.Duration) *Retryer {
	return &Retryer{
		logger:          zap.L().Named("retryer"),
		maxRetryTimeout: maxRetryTimeout,
		shutdownChan:    make(chan struct{}),
	}
}

// Run executes fn until it was successful, it returned an error that does
// not wrap retryerr.RetryableError or the execution was aborted via the
// context.
func (r *Retryer) Run(ctx context.Context, fn func(context.Context) error, logF []zap.Field) error {
	var tryCnt uint

	startTime := time.Now()
	endTime := startTime.Add(r.maxRetryTimeout)

	retryTimeout := time.NewTimer(r.maxRetryTimeout)
	defer retryTimeout.Stop()

	retryTimer := time.NewTimer(0)
	defer retryTimer.Stop()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 5 * time.Second

	for {
		tryCnt++
		logger := r.logger.With(logF...).With(zap.Uint("try_count", tryCnt))

		select {
		case <-ctx.Done():
			logger.Info(
				"step execution cancelled",
				logfields.Event("step_execution_cancelled"),
			)

			return ctx.Err()

		case <-retryTimer.C:
			logger.Debug(
				"running step",
				logfields.Event("step_running"),
				zap.Duration("age", bo.GetElapsedTime()),
				zap.Duration("retry_timeout", r.maxRetryTimeout),
			)

			err := fn(ctx)
			if err != nil {
				var retryError *retryerr.RetryableError

				logger = logger.With(zap.Error(err))

				if errors.Is(err, context.Canceled) {
					logger.Info(
						"step cancelled",
						logfields.Event("step_cancelled"),
					)

					return err
				}

				if errors.As(err, &retryError) {
					logger = logger.With(
						zap.Duration("age", bo.GetElapsedTime()),
						zap.Duration("retry_timeout", r.maxRetryTimeout),
					)

					if retryError.After.After(endTime) {
						logger.Error(
							"step failed, next possible retry time is after timeout expiration",
							logfields.Event("step_failed"),
							zap.Time("earliest_allowed_retry", retryError.After),
						)

						return err
					}

					var retryIn time.Duration

					if retryError.After.IsZero() {
						retryIn = bo.NextBackOff()
					} else {
						retryIn = time.Until(retryError.After)
					}

					retryTimer.Reset(retryIn)
					logger.Warn(
						"step failed, retry scheduled",
						logfields.Event("step_retry_scheduled"),
						zap.Duration("retry_in", retryIn),
					)

					continue
				}

				logger.Error(
					"step failed, not retryable",
					logfields.Event("step_failed"),
				)

				return err
			}

			logger.Debug(
				"step executed successfully",
				logfields.Event("step_executed_successfully"),
			)

			return nil

		case <-retryTimeout.C:
			logger.Warn(
				"giving up retrying step execution, retry timeout expired",
				logfields.Event("step_retry_timeout"),
				zap.Duration("age", bo.GetElapsedTime()),
				zap.Duration("retry_timeout", r.maxRetryTimeout),
			)

			return errors.New("retry timeout expired")

		case <-r.shutdownChan:
			logger.Info(
				"engine terminating, step not executed",
				logfields.Event("step_execution_cancelled_engine_terminated"),
			)

			return errors.New("engine terminated")
		}
	}
}

// Stop notifies all Run() methods to terminate.
// It does not wait for their termination.
func (r *Retryer) Stop() {
	r.logger.Debug("retryer terminating", logfields.Event("retryer_terminating"))

	select {
	case <-r.shutdownChan:
		return // already closed
	default:
		close(r.shutdownChan)
	}
}
