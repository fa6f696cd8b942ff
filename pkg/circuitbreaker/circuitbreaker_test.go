package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ezmail/internal/apperr"
)

var errBoom = errors.New("boom")

func TestOpensAfterThresholdAndRecovers(t *testing.T) {
	var transitions []string
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(Config{
		Name:                "llm.chat",
		FailureThreshold:    2,
		SuccessThreshold:    1,
		Timeout:             20 * time.Second,
		HalfOpenMaxRequests: 1,
		OnStateChange: func(name string, from, to State) {
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		},
		Now: func() time.Time { return now },
	})

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateClosed, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(func() error { called = true; return nil })
	assert.ErrorIs(t, err, ErrCircuitBreakerOpen)
	assert.False(t, called)

	assert.ErrorIs(t, err, apperr.ErrTransport)

	now = now.Add(30 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.GetState())

	assert.Equal(t, []string{"llm.chat:closed->open", "llm.chat:open->half_open", "llm.chat:half_open->closed"}, transitions)
}

func TestCanceledCallsDoNotCount(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})

	err := cb.ExecuteContext(context.Background(), func(context.Context) error { return context.Canceled })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCanceledContextShortCircuits(t *testing.T) {
	cb := NewCircuitBreaker(DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := cb.ExecuteContext(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestResetCloses(t *testing.T) {
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute, HalfOpenMaxRequests: 1})
	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, StateOpen, cb.GetState())
	cb.Reset()
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestHalfOpenFailureReopens(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cb := NewCircuitBreaker(Config{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Second, HalfOpenMaxRequests: 1,
		Now: func() time.Time { return now }})

	_ = cb.Execute(func() error { return errBoom })
	now = now.Add(2 * time.Second)
	assert.NoError(t, cb.Execute(func() error { return nil }))
	assert.Equal(t, StateHalfOpen, cb.GetState())

	assert.ErrorIs(t, cb.Execute(func() error { return errBoom }), errBoom)
	assert.Equal(t, StateOpen, cb.GetState())
	assert.ErrorIs(t, cb.Execute(func() error { return nil }), ErrCircuitBreakerOpen)
}
