// Package threads provides a client for the Threads Graph API.
package threads

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the Threads Graph API operations.
type Client interface {
	// Publish creates and publishes a text post, returning the post id.
	Publish(ctx context.Context, userID, token, text string) (string, error)
	// Reply creates and publishes a threaded reply to a post or comment.
	Reply(ctx context.Context, userID, token, replyToID, text string) (string, error)
	// Repost reshares an existing post on behalf of the token's user.
	Repost(ctx context.Context, token, postID string) error
	// Follow follows the target user on behalf of the token's user.
	Follow(ctx context.Context, token, targetUserID string) error
	// LikePost likes a post on behalf of the token's user.
	LikePost(ctx context.Context, token, postID string) error
	// RecentPosts returns the user's most recent posts, newest first.
	RecentPosts(ctx context.Context, userID, token string, limit int) ([]Post, error)
	// Comments returns the comments on a post.
	Comments(ctx context.Context, postID, token string) ([]Comment, error)
	// RecentPostID returns the id of the user's most recent post, or ""
	// when the user has none.
	RecentPostID(ctx context.Context, userID, token string) (string, error)
	// UserInfo returns the profile of the token's user.
	UserInfo(ctx context.Context, token string) (*User, error)
}

// Post is a published thread.
type Post struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// Comment is a reply on a post.
type Comment struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From User   `json:"from"`
}

// User is a Threads profile.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// APIError is a non-2xx response from the Threads API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("threads: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus exposes the response status so retry policies can treat
// 5xx/429 responses as transient.
func (e *APIError) HTTPStatus() int {
	return e.StatusCode
}

// PartialPublishError reports a two-phase operation that created a media
// container but failed to publish it.
type PartialPublishError struct {
	CreationID string
	Err        error
}

func (e *PartialPublishError) Error() string {
	return fmt.Sprintf("threads: created %s but publish failed: %v", e.CreationID, e.Err)
}

func (e *PartialPublishError) Unwrap() error { return e.Err }

// Option configures the Threads client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outbound requests per second. A non-positive rps
// disables client-side pacing.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			c.limiter = nil
		}
	}
}

type httpClient struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a Threads Graph API client.
func NewClient(opts ...Option) Client {
	c := &httpClient{
		baseURL: "https://graph.threads.net/v1.0",
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(2), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// do executes a request after waiting on the rate limiter and decodes the
// JSON response into out (when out is non-nil). Non-2xx responses become
// *APIError.
func (c *httpClient) do(ctx context.Context, method, path string, query url.Values, body map[string]any, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "threads: rate limit wait")
		}
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	var reqBody *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return eris.Wrap(err, "threads: marshal body")
		}
		reqBody = bytes.NewReader(encoded)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return eris.Wrap(err, "threads: create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "threads: %s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: buf.String()}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return eris.Wrap(err, "threads: decode response")
		}
	}
	return nil
}

type idResponse struct {
	ID string `json:"id"`
}

// createThread posts a media container and returns the creation id.
func (c *httpClient) createThread(ctx context.Context, userID, token string, body map[string]any) (string, error) {
	q := url.Values{"access_token": {token}}
	var created idResponse
	if err := c.do(ctx, http.MethodPost, "/"+userID+"/threads", q, body, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", eris.New("threads: empty creation id")
	}
	return created.ID, nil
}

// publishThread publishes a previously created media container and returns
// the post id.
func (c *httpClient) publishThread(ctx context.Context, userID, token, creationID string) (string, error) {
	q := url.Values{"access_token": {token}}
	var published idResponse
	err := c.do(ctx, http.MethodPost, "/"+userID+"/threads_publish", q,
		map[string]any{"creation_id": creationID}, &published)
	if err != nil {
		return "", &PartialPublishError{CreationID: creationID, Err: err}
	}
	return published.ID, nil
}

func (c *httpClient) Publish(ctx context.Context, userID, token, text string) (string, error) {
	creationID, err := c.createThread(ctx, userID, token, map[string]any{
		"media_type": "TEXT",
		"text":       text,
	})
	if err != nil {
		return "", err
	}
	return c.publishThread(ctx, userID, token, creationID)
}

func (c *httpClient) Reply(ctx context.Context, userID, token, replyToID, text string) (string, error) {
	creationID, err := c.createThread(ctx, userID, token, map[string]any{
		"media_type":  "TEXT",
		"text":        text,
		"reply_to_id": replyToID,
	})
	if err != nil {
		return "", err
	}
	return c.publishThread(ctx, userID, token, creationID)
}

func (c *httpClient) Repost(ctx context.Context, token, postID string) error {
	creationID, err := c.createThread(ctx, "me", token, map[string]any{
		"media_type": "REPOST",
		"repost_id":  postID,
	})
	if err != nil {
		return err
	}
	_, err = c.publishThread(ctx, "me", token, creationID)
	return err
}

func (c *httpClient) Follow(ctx context.Context, token, targetUserID string) error {
	q := url.Values{"access_token": {token}}
	return c.do(ctx, http.MethodPost, "/me/following", q,
		map[string]any{"target_user_id": targetUserID}, nil)
}

func (c *httpClient) LikePost(ctx context.Context, token, postID string) error {
	q := url.Values{"access_token": {token}}
	return c.do(ctx, http.MethodPost, "/"+postID+"/likes", q, nil, nil)
}

func (c *httpClient) RecentPosts(ctx context.Context, userID, token string, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = 5
	}
	q := url.Values{
		"fields":       {"id,text,timestamp"},
		"limit":        {fmt.Sprintf("%d", limit)},
		"access_token": {token},
	}
	var resp struct {
		Data []Post `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+userID+"/threads", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *httpClient) Comments(ctx context.Context, postID, token string) ([]Comment, error) {
	q := url.Values{
		"fields":       {"id,text,from{id,username}"},
		"access_token": {token},
	}
	var resp struct {
		Data []Comment `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+postID+"/comments", q, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

func (c *httpClient) RecentPostID(ctx context.Context, userID, token string) (string, error) {
	q := url.Values{
		"fields":       {"id"},
		"limit":        {"1"},
		"access_token": {token},
	}
	var resp struct {
		Data []Post `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/"+userID+"/threads", q, nil, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 {
		return "", nil
	}
	return resp.Data[0].ID, nil
}

func (c *httpClient) UserInfo(ctx context.Context, token string) (*User, error) {
	q := url.Values{
		"fields":       {"id,username"},
		"access_token": {token},
	}
	var u User
	if err := c.do(ctx, http.MethodGet, "/me", q, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
