package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/johnp2003/captify-ai/app/models"
)

// SaveGeneratedContent appends a history entry and returns it with id and timestamp set.
func (s *Store) SaveGeneratedContent(ctx context.Context, c models.GeneratedContent) (models.GeneratedContent, error) {
	if c.UserID == "" {
		return models.GeneratedContent{}, errors.New("missing user id")
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO generated_content (id, user_id, content_type, prompt, content, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		RETURNING created_at;
	`, c.ID, c.UserID, c.ContentType, c.Prompt, c.Content).Scan(&c.CreatedAt)
	if err != nil {
		return models.GeneratedContent{}, fmt.Errorf("save generated content for %s: %w", c.UserID, err)
	}
	return c, nil
}

// ListGeneratedContent returns the newest entries first.
func (s *Store) ListGeneratedContent(ctx context.Context, userID string, limit int) ([]models.GeneratedContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, content_type, prompt, content, created_at
		FROM generated_content
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.GeneratedContent{}
	for rows.Next() {
		var c models.GeneratedContent
		if err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.ContentType,
			&c.Prompt,
			&c.Content,
			&c.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
