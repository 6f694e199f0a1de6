package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/johnp2003/captify-ai/app/models"
)

// UpsertUser creates the user with signupPoints, or refreshes email/name of an
// existing row. The balance of an existing user is never touched here.
func (s *Store) UpsertUser(ctx context.Context, u models.User, signupPoints int64) (models.User, error) {
	if u.ID == "" {
		return models.User{}, errors.New("missing user id")
	}
	const q = `
		INSERT INTO users (id, email, name, points, created_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET email = COALESCE(EXCLUDED.email, users.email),
		    name = COALESCE(EXCLUDED.name, users.name)
		RETURNING id, COALESCE(email, ''), COALESCE(name, ''), points, created_at;
	`
	var out models.User
	err := s.db.QueryRowContext(
		ctx,
		q,
		u.ID,
		nullIfEmpty(u.Email),
		nullIfEmpty(u.Name),
		signupPoints,
	).Scan(&out.ID, &out.Email, &out.Name, &out.Points, &out.CreatedAt)
	if err != nil {
		return models.User{}, fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return out, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	var u models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(email, ''), COALESCE(name, ''), points, created_at
		FROM users
		WHERE id = $1;
	`, userID).Scan(&u.ID, &u.Email, &u.Name, &u.Points, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *Store) GetPoints(ctx context.Context, userID string) (int64, error) {
	var points int64
	err := s.db.QueryRowContext(ctx, `
		SELECT points
		FROM users
		WHERE id = $1;
	`, userID).Scan(&points)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, err
	}
	return points, nil
}

// AdjustPoints applies a signed delta in one statement and returns the new balance.
// Credits create the user row when it does not exist yet (payment before first
// sign-in). Debits never take the balance below zero.
func (s *Store) AdjustPoints(ctx context.Context, userID string, delta int64) (int64, error) {
	if userID == "" {
		return 0, errors.New("missing user id")
	}
	if delta >= 0 {
		return s.creditPoints(ctx, userID, delta)
	}
	return s.debitPoints(ctx, userID, -delta)
}

func (s *Store) creditPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, points, created_at)
		VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE
		SET points = users.points + EXCLUDED.points
		RETURNING points;
	`, userID, amount).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("credit %d points to %s: %w", amount, userID, err)
	}
	return balance, nil
}

func (s *Store) debitPoints(ctx context.Context, userID string, amount int64) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET points = points - $2
		WHERE id = $1 AND points >= $2
		RETURNING points;
	`, userID, amount).Scan(&balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("debit %d points from %s: %w", amount, userID, err)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1);`, userID).Scan(&exists); err != nil {
		return 0, err
	}
	if !exists {
		return 0, ErrUserNotFound
	}
	return 0, ErrInsufficientPoints
}
