package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/simplesurance/stagecoord/internal/retryerr"
)

func TestRetryerReturnsNilOnSuccess(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(time.Minute)
	t.Cleanup(r.Stop)

	var calls int

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryerDoesNotRetryPlainErrors(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(time.Minute)
	t.Cleanup(r.Stop)

	var calls int
	wantErr := errors.New("not retryable")

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return wantErr
	}, nil)

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls)
}

func TestRetryerGivesUpWhenTimeoutExpires(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(100 * time.Millisecond)
	t.Cleanup(r.Stop)

	var calls int

	err := r.Run(context.Background(), func(context.Context) error {
		calls++
		return retryerr.NewRetryableAnytimeError(errors.New("err"))
	}, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry timeout expired")
	assert.GreaterOrEqual(t, calls, 1)
}

func TestRetryerRejectsRetryAfterBeyondTimeout(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(time.Second)
	t.Cleanup(r.Stop)

	wantErr := errors.New("err")

	err := r.Run(context.Background(), func(context.Context) error {
		return retryerr.NewRetryableError(wantErr, time.Now().Add(time.Hour))
	}, nil)

	require.ErrorIs(t, err, wantErr)
}

func TestRetryerStopsOnShutdown(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(time.Hour)

	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		var once bool

		done <- r.Run(context.Background(), func(context.Context) error {
			if !once {
				once = true
				close(started)
			}

			return retryerr.NewRetryableAnytimeError(errors.New("err"))
		}, nil)
	}()

	<-started
	r.Stop()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine terminated")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
}

func TestRetryerAbortsOnContextCancellation(t *testing.T) {
	t.Cleanup(zap.ReplaceGlobals(zaptest.NewLogger(t).Named(t.Name())))

	r := NewRetryer(time.Hour)
	t.Cleanup(r.Stop)

	ctx, cancel := context.WithCancel(context.Background())

	started := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		var once bool

		done <- r.Run(ctx, func(context.Context) error {
			if !once {
				once = true
				close(started)
			}

			return retryerr.NewRetryableAnytimeError(errors.New("err"))
		}, nil)
	}()

	<-started
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
