package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// EventType identifies the kind of pipeline event.
type EventType string

const (
	EventPublishSuccess   EventType = "publish_success"
	EventPublishFailure   EventType = "publish_failure"
	EventNoContent        EventType = "no_content"
	EventDuplicateSkipped EventType = "duplicate_skipped"
)

// Event is a single webhook notification payload.
type Event struct {
	Type      EventType      `json:"type"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notifier delivers pipeline events to a webhook URL. Delivery is best
// effort: failures are logged and never propagated to the caller, and
// an empty webhook URL makes every method a no-op.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a Notifier posting to webhookURL.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// PublishSuccess reports that at least one account published the article.
func (n *Notifier) PublishSuccess(ctx context.Context, topic, title string, published, total int) {
	n.send(ctx, Event{
		Type:    EventPublishSuccess,
		Message: "published to " + topic,
		Details: map[string]any{
			"topic":     topic,
			"title":     title,
			"published": published,
			"total":     total,
		},
		Timestamp: time.Now().UTC(),
	})
}

// PublishFailure reports that every account failed to publish the article.
func (n *Notifier) PublishFailure(ctx context.Context, topic, title string, total int) {
	n.send(ctx, Event{
		Type:    EventPublishFailure,
		Message: "all accounts failed for " + topic,
		Details: map[string]any{
			"topic": topic,
			"title": title,
			"total": total,
		},
		Timestamp: time.Now().UTC(),
	})
}

// NoContent reports that no source yielded a viable article.
func (n *Notifier) NoContent(ctx context.Context, topic string) {
	n.send(ctx, Event{
		Type:      EventNoContent,
		Message:   "no content discovered for " + topic,
		Details:   map[string]any{"topic": topic},
		Timestamp: time.Now().UTC(),
	})
}

// DuplicateSkipped reports that the discovered article was already published.
func (n *Notifier) DuplicateSkipped(ctx context.Context, topic, title string) {
	n.send(ctx, Event{
		Type:    EventDuplicateSkipped,
		Message: "duplicate skipped for " + topic,
		Details: map[string]any{
			"topic": topic,
			"title": title,
		},
		Timestamp: time.Now().UTC(),
	})
}

func (n *Notifier) send(ctx context.Context, event Event) {
	if n.webhookURL == "" {
		return
	}
	if err := n.post(ctx, event); err != nil {
		zap.L().Error("notify: failed to send event",
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
		return
	}
	zap.L().Debug("notify: event sent", zap.String("type", string(event.Type)))
}

func (n *Notifier) post(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return eris.Wrap(err, "notify: marshal event")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
