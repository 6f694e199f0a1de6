package models

import "time"

// GeneratedContent is one history entry. Content holds the posts joined by a blank line.
type GeneratedContent struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"-"`
	ContentType string    `db:"content_type" json:"contentType"`
	Prompt      string    `db:"prompt" json:"prompt"`
	Content     string    `db:"content" json:"content"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}
