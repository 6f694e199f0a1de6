// Package models defines users, subscriptions and the points balance that gates generation.
package models

import "time"

type Plan string

const (
	PlanBasic Plan = "Basic"
	PlanPro   Plan = "Pro"
)

// User is keyed by the identity provider's subject.
type User struct {
	ID        string    `db:"id" json:"id"`
	Email     string    `db:"email" json:"email,omitempty"`
	Name      string    `db:"name" json:"name,omitempty"`
	Points    int64     `db:"points" json:"points"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Subscription mirrors the processor's subscription object. StripeSubscriptionID is unique
// and belongs to exactly one user.
type Subscription struct {
	UserID               string    `db:"user_id" json:"userId"`
	StripeSubscriptionID string    `db:"stripe_subscription_id" json:"subscriptionId"`
	StripeCustomerID     string    `db:"stripe_customer_id" json:"-"`
	Plan                 Plan      `db:"plan" json:"plan"`
	Status               string    `db:"status" json:"status"`
	CurrentPeriodStart   time.Time `db:"current_period_start" json:"currentPeriodStart"`
	CurrentPeriodEnd     time.Time `db:"current_period_end" json:"currentPeriodEnd"`
	UpdatedAt            time.Time `db:"updated_at" json:"updatedAt"`
}
