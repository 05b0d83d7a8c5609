package model

import "time"

// Topic is a content category. It owns sources (where articles come from)
// and accounts (where generated posts go), plus the default prompt used
// when an account has no prompt of its own.
type Topic struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	DisplayName   string    `json:"display_name"`
	Description   string    `json:"description,omitempty"`
	DefaultPrompt string    `json:"default_prompt,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SourceSelectors holds the CSS selectors used to pull an article out of a
// source's landing page. Empty fields fall back to crawler defaults.
type SourceSelectors struct {
	Article string `json:"article,omitempty"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// Source is a crawlable origin of articles, optionally bound to a topic.
type Source struct {
	ID        int64           `json:"id"`
	TopicID   *int64          `json:"topic_id,omitempty"`
	Name      string          `json:"name"`
	BaseURL   string          `json:"base_url"`
	Selectors SourceSelectors `json:"selectors"`
	UserAgent string          `json:"user_agent,omitempty"`
	TimeoutMS int             `json:"timeout_ms"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Timeout returns the per-source crawl timeout, defaulting to 10s.
func (s Source) Timeout() time.Duration {
	if s.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(s.TimeoutMS) * time.Millisecond
}
