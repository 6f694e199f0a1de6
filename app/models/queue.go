package models

import "time"

// ReplayRecord is the SQS message body for a reconciliation that failed after the
// event was verified. Everything needed to re-apply it is carried here.
type ReplayRecord struct {
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	UserID         string    `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	PriceID        string    `json:"price_id,omitempty"` // empty when the failure happened before plan resolution
	Reason         string    `json:"reason"`
	FailedAt       time.Time `json:"failed_at"`
}
