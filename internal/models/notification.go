package models

import "time"

type Student struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	LastActiveAt time.Time `json:"last_active_at"`
}

type DeliveryOutcome string

const (
	DeliverySuccess   DeliveryOutcome = "success"
	DeliveryRetryable DeliveryOutcome = "retryable"
	DeliveryFatal     DeliveryOutcome = "fatal"
)

// DeliveryAttempt records a single send attempt of the notification dispatcher.
type DeliveryAttempt struct {
	Target  string
	Attempt int
	Outcome DeliveryOutcome
	Backoff time.Duration
	Err     error
}

// Notification is an email audit record.
type Notification struct {
	ID        string    `json:"id"`
	StudentID string    `json:"student_id"`
	Kind      string    `json:"kind"`
	Email     string    `json:"email"`
	MessageID string    `json:"message_id,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	SentAt    time.Time `json:"sent_at"`
}
