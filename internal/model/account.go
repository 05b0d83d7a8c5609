package model

import "time"

// Account is one managed identity on the platform: the external user id,
// its access token, an optional per-account prompt, and an optional topic
// binding. PostCount only ever increases on a successful publish; the store
// increments it atomically so concurrent runs cannot lose updates.
type Account struct {
	ID          int64     `json:"id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"-"`
	Prompt      string    `json:"prompt,omitempty"`
	TopicID     *int64    `json:"topic_id,omitempty"`
	PostCount   int       `json:"post_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
