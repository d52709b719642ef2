package circuitbreaker_test

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"

	"github.com/opencrafts-io/parley/internal/circuitbreaker"
)

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	cb := circuitbreaker.New[int]("test", time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
	boom := errors.New("boom")

	for range 3 {
		_, err := cb.Execute(func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())
	_, err := cb.Execute(func() (int, error) { return 1, nil })
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	cb := circuitbreaker.New[int]("test", time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	for range 5 {
		v, err := cb.Execute(func() (int, error) { return 7, nil })
		assert.NoError(t, err)
		assert.Equal(t, 7, v)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
