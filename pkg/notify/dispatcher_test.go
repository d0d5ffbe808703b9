package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xhad/tutor/internal/models"
)

type scriptedTransport struct {
	mu    sync.Mutex
	errs  []error
	calls []time.Time
	sent  []Message
}

func (s *scriptedTransport) Send(_ context.Context, msg Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.calls)
	s.calls = append(s.calls, time.Now())
	s.sent = append(s.sent, msg)
	if n < len(s.errs) && s.errs[n] != nil {
		return "", s.errs[n]
	}
	return fmt.Sprintf("msg-%d", n+1), nil
}

type recordingSleeper struct {
	waits []time.Duration
	err   error
}

func (r *recordingSleeper) Sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return r.err
}

func TestSend_FirstAttempt(t *testing.T) {
	transport := &scriptedTransport{}
	sleeper := &recordingSleeper{}
	d := NewWithConfig(DispatcherConfig{From: "tutor@example.com", Sleep: sleeper.Sleep}, transport)

	result := d.Send(context.Background(), "ana@example.com", Payload{Subject: "Hola", HTML: "<p>hola</p>"})

	require.True(t, result.Success)
	assert.NoError(t, result.Err)
	assert.Equal(t, "msg-1", result.MessageID)
	assert.Len(t, transport.calls, 1)
	assert.Empty(t, sleeper.waits)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.DeliverySuccess, result.Attempts[0].Outcome)
	assert.Equal(t, Message{From: "tutor@example.com", To: "ana@example.com", Subject: "Hola", HTML: "<p>hola</p>"}, transport.sent[0])
}

func TestSend_RetriesThenSucceeds(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errors.New("timeout"), errors.New("timeout")}}
	sleeper := &recordingSleeper{}
	d := NewWithConfig(DispatcherConfig{Sleep: sleeper.Sleep}, transport)

	result := d.Send(context.Background(), "ana@example.com", Payload{})

	require.True(t, result.Success)
	assert.Equal(t, "msg-3", result.MessageID)
	assert.Len(t, transport.calls, 3)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, sleeper.waits)

	require.Len(t, result.Attempts, 3)
	assert.Equal(t, models.DeliveryRetryable, result.Attempts[0].Outcome)
	assert.Equal(t, 500*time.Millisecond, result.Attempts[0].Backoff)
	assert.Equal(t, models.DeliveryRetryable, result.Attempts[1].Outcome)
	assert.Equal(t, models.DeliverySuccess, result.Attempts[2].Outcome)
}

func TestSend_GivesUpAfterThreeAttempts(t *testing.T) {
	last := errors.New("connection refused (3)")
	transport := &scriptedTransport{errs: []error{errors.New("connection refused (1)"), errors.New("connection refused (2)"), last, nil}}
	sleeper := &recordingSleeper{}
	d := NewWithConfig(DispatcherConfig{Sleep: sleeper.Sleep}, transport)

	result := d.Send(context.Background(), "ana@example.com", Payload{})

	assert.False(t, result.Success)
	assert.Empty(t, result.MessageID)
	assert.Len(t, transport.calls, 3)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 1000 * time.Millisecond}, sleeper.waits)

	var de *DeliveryError
	require.True(t, errors.As(result.Err, &de))
	assert.Equal(t, 3, de.Attempts)
	assert.Equal(t, "ana@example.com", de.Target)
	assert.ErrorIs(t, result.Err, last)

	require.Len(t, result.Attempts, 3)
	assert.Equal(t, models.DeliveryFatal, result.Attempts[2].Outcome)
	assert.Zero(t, result.Attempts[2].Backoff)
}

func TestSend_PermanentFailure(t *testing.T) {
	transport := &scriptedTransport{errs: []error{Permanent(errors.New("mailbox unavailable"))}}
	sleeper := &recordingSleeper{}
	d := NewWithConfig(DispatcherConfig{Sleep: sleeper.Sleep}, transport)

	result := d.Send(context.Background(), "nadie@example.com", Payload{})

	assert.False(t, result.Success)
	assert.Len(t, transport.calls, 1)
	assert.Empty(t, sleeper.waits)
	require.Len(t, result.Attempts, 1)
	assert.Equal(t, models.DeliveryFatal, result.Attempts[0].Outcome)
	assert.True(t, IsPermanent(result.Err))
}

func TestSend_ContextCancelledDuringBackoff(t *testing.T) {
	transport := &scriptedTransport{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	sleeper := &recordingSleeper{err: context.Canceled}
	d := NewWithConfig(DispatcherConfig{Sleep: sleeper.Sleep}, transport)

	result := d.Send(context.Background(), "ana@example.com", Payload{})

	assert.False(t, result.Success)
	assert.Len(t, transport.calls, 1)
	assert.ErrorIs(t, result.Err, context.Canceled)
}

func TestSend_RealBackoffTiming(t *testing.T) {
	if testing.Short() {
		t.Skip("sleeps for 1.5s")
	}
	transport := &scriptedTransport{errs: []error{errors.New("a"), errors.New("b"), errors.New("c")}}
	d := NewWithConfig(DispatcherConfig{}, transport)

	result := d.Send(context.Background(), "ana@example.com", Payload{})

	assert.False(t, result.Success)
	require.Len(t, transport.calls, 3)
	assert.GreaterOrEqual(t, transport.calls[2].Sub(transport.calls[0]), 1500*time.Millisecond)
}

func TestBackoff(t *testing.T) {
	d := NewWithConfig(DispatcherConfig{}, &scriptedTransport{})
	assert.Equal(t, 500*time.Millisecond, d.Backoff(1))
	assert.Equal(t, 1000*time.Millisecond, d.Backoff(2))
	assert.Equal(t, 2000*time.Millisecond, d.Backoff(3))
}

func TestPermanent(t *testing.T) {
	assert.Nil(t, Permanent(nil))

	base := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}
