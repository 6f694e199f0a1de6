package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/johnp2003/captify-ai/app/models"
)

// UpsertSubscription writes the subscription keyed by its Stripe id, creating the owning
// user row if needed. Plan, status and period bounds are last-write-wins; the owner is
// fixed by the first write.
func (s *Store) UpsertSubscription(ctx context.Context, sub models.Subscription) error {
	if sub.UserID == "" || sub.StripeSubscriptionID == "" {
		return errors.New("subscription requires user id and subscription id")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, created_at)
		VALUES ($1, now())
		ON CONFLICT (id) DO NOTHING;
	`, sub.UserID)
	if err != nil {
		return fmt.Errorf("ensure user %s: %w", sub.UserID, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO subscriptions (
			stripe_subscription_id,
			user_id,
			stripe_customer_id,
			plan,
			status,
			current_period_start,
			current_period_end,
			updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (stripe_subscription_id) DO UPDATE
		SET stripe_customer_id = COALESCE(EXCLUDED.stripe_customer_id, subscriptions.stripe_customer_id),
		    plan = EXCLUDED.plan,
		    status = EXCLUDED.status,
		    current_period_start = EXCLUDED.current_period_start,
		    current_period_end = EXCLUDED.current_period_end,
		    updated_at = now()
		WHERE subscriptions.user_id = EXCLUDED.user_id;
	`,
		sub.StripeSubscriptionID,
		sub.UserID,
		nullIfEmpty(sub.StripeCustomerID),
		sub.Plan,
		sub.Status,
		sub.CurrentPeriodStart.UTC(),
		sub.CurrentPeriodEnd.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSubscriptionOwner
	}

	return tx.Commit()
}

// LatestSubscription returns the most recently updated subscription of a user.
func (s *Store) LatestSubscription(ctx context.Context, userID string) (models.Subscription, error) {
	var (
		sub      models.Subscription
		customer sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT
			stripe_subscription_id,
			user_id,
			stripe_customer_id,
			plan,
			status,
			current_period_start,
			current_period_end,
			updated_at
		FROM subscriptions
		WHERE user_id = $1
		ORDER BY updated_at DESC
		LIMIT 1;
	`, userID).Scan(
		&sub.StripeSubscriptionID,
		&sub.UserID,
		&customer,
		&sub.Plan,
		&sub.Status,
		&sub.CurrentPeriodStart,
		&sub.CurrentPeriodEnd,
		&sub.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Subscription{}, ErrNotFound
	}
	if err != nil {
		return models.Subscription{}, err
	}
	sub.StripeCustomerID = customer.String
	return sub, nil
}
