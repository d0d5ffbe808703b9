// Package notify sends motivational emails with bounded retry.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/xhad/tutor/internal/models"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseBackoff = 500 * time.Millisecond
)

// Message is what a Transport delivers.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Transport delivers one message and returns the provider's message id.
type Transport interface {
	Send(ctx context.Context, msg Message) (string, error)
}

// Payload is the rendered content of a notification.
type Payload struct {
	Subject string
	HTML    string
}

type Result struct {
	Success   bool
	MessageID string
	Err       error
	Attempts  []models.DeliveryAttempt
}

// DeliveryError is returned once the dispatcher gives up on a target.
type DeliveryError struct {
	Target   string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed after %d attempt(s): %v", e.Target, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks a transport failure that must not be retried.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

type DispatcherConfig struct {
	From        string
	MaxAttempts int
	BaseBackoff time.Duration
	Sleep       Sleeper
}

type Dispatcher struct {
	transport Transport
	config    DispatcherConfig
}

func NewWithConfig(config DispatcherConfig, transport Transport) *Dispatcher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.BaseBackoff <= 0 {
		config.BaseBackoff = DefaultBaseBackoff
	}
	if config.Sleep == nil {
		config.Sleep = sleepContext
	}
	return &Dispatcher{transport: transport, config: config}
}

// Backoff is the wait after failed attempt n (1-based): base × 2^(n-1).
func (d *Dispatcher) Backoff(attempt int) time.Duration {
	return d.config.BaseBackoff << (attempt - 1)
}

// Send delivers payload to target, retrying transport failures up to
// MaxAttempts times in total. A success is never retried.
func (d *Dispatcher) Send(ctx context.Context, target string, payload Payload) Result {
	msg := Message{From: d.config.From, To: target, Subject: payload.Subject, HTML: payload.HTML}
	logger := log.With().Str("to", target).Logger()

	var result Result
	var lastErr error

	for attempt := 1; attempt <= d.config.MaxAttempts; attempt++ {
		id, err := d.transport.Send(ctx, msg)
		if err == nil {
			result.Attempts = append(result.Attempts, models.DeliveryAttempt{
				Target:  target,
				Attempt: attempt,
				Outcome: models.DeliverySuccess,
			})
			result.Success = true
			result.MessageID = id
			logger.Info().Int("attempt", attempt).Str("message_id", id).Msg("notification sent")
			return result
		}
		lastErr = err

		rec := models.DeliveryAttempt{Target: target, Attempt: attempt, Outcome: models.DeliveryRetryable, Err: err}
		if IsPermanent(err) || attempt == d.config.MaxAttempts {
			rec.Outcome = models.DeliveryFatal
			result.Attempts = append(result.Attempts, rec)
			break
		}

		rec.Backoff = d.Backoff(attempt)
		result.Attempts = append(result.Attempts, rec)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", rec.Backoff).Msg("notification failed, retrying")

		if err := d.config.Sleep(ctx, rec.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	result.Err = &DeliveryError{Target: target, Attempts: len(result.Attempts), Err: lastErr}
	logger.Error().Err(result.Err).Msg("notification not delivered")
	return result
}
