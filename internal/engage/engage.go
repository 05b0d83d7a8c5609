package engage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/internal/pacing"
	"github.com/quillworks/quill/internal/store"
	"github.com/quillworks/quill/pkg/threads"
)

// Replier generates a short reply to a comment.
type Replier interface {
	ShortReply(ctx context.Context, postText, commentText string, maxChars int) (string, error)
}

// QuotaExceededError is returned by Create when the acting account has
// already queued its daily allowance of pending actions.
type QuotaExceededError struct {
	AccountID string
	Quota     int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("engage: daily action quota exceeded for %s (%d/day)", e.AccountID, e.Quota)
}

// Engine discovers engagement candidates and runs the pending-action
// approval workflow. It exclusively owns PendingAction status
// transitions.
type Engine struct {
	cfg     *config.Config
	store   store.Store
	threads threads.Client
	replier Replier

	now   func() time.Time
	newID func() string
	sleep func(ctx context.Context, d time.Duration) error
	wg    sync.WaitGroup
}

// New creates an Engine with all collaborators.
func New(cfg *config.Config, st store.Store, client threads.Client, replier Replier) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   st,
		threads: client,
		replier: replier,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		sleep:   sleepCtx,
	}
}

// Wait blocks until in-flight background work (username resolution)
// finishes. Call before shutdown.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Candidate is a distinct user who commented on one of the account's
// recent posts.
type Candidate struct {
	UserID   string
	Username string
}

// Discover walks the account's recent posts and their comments and
// returns the distinct commenters, excluding the account itself, in
// first-seen order.
func (e *Engine) Discover(ctx context.Context, accountID string) ([]Candidate, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, eris.Wrap(err, "engage: load account")
	}
	if account == nil {
		return nil, eris.Errorf("engage: account %s not found", accountID)
	}

	posts, err := e.threads.RecentPosts(ctx, account.UserID, account.AccessToken, e.cfg.Engage.RecentPostLimit)
	if err != nil {
		return nil, eris.Wrap(err, "engage: recent posts")
	}

	seen := make(map[string]bool)
	var candidates []Candidate

	results := pacing.ForEach(ctx, e.commentFetchConfig(), posts, func(ctx context.Context, post threads.Post) ([]threads.Comment, error) {
		return e.threads.Comments(ctx, post.ID, account.AccessToken)
	})
	for _, r := range results {
		if r.Err != nil {
			zap.L().Warn("engage: comment fetch failed",
				zap.String("post_id", r.Item.ID),
				zap.Error(r.Err),
			)
			continue
		}
		for _, comment := range r.Value {
			id := comment.From.ID
			if id == "" || id == account.UserID || seen[id] {
				continue
			}
			seen[id] = true
			candidates = append(candidates, Candidate{UserID: id, Username: comment.From.Username})
		}
	}

	zap.L().Info("engage: discovery complete",
		zap.String("account", accountID),
		zap.Int("posts", len(posts)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// QueueActions proposes a FOLLOW, LIKE and REPOST pending action for
// each discovered candidate. It stops at the daily quota and reports
// how many actions were queued.
func (e *Engine) QueueActions(ctx context.Context, accountID string) (int, error) {
	candidates, err := e.Discover(ctx, accountID)
	if err != nil {
		return 0, err
	}

	kinds := []model.ActionKind{model.ActionFollow, model.ActionLike, model.ActionRepost}
	queued := 0
	for _, candidate := range candidates {
		for _, kind := range kinds {
			createErr := e.Create(ctx, model.PendingAction{
				AccountID:      accountID,
				TargetUserID:   candidate.UserID,
				TargetUsername: candidate.Username,
				Kind:           kind,
			})
			if createErr != nil {
				var quotaErr *QuotaExceededError
				if errors.As(createErr, &quotaErr) {
					return queued, createErr
				}
				zap.L().Error("engage: queue action failed",
					zap.String("target", candidate.UserID),
					zap.String("kind", string(kind)),
					zap.Error(createErr),
				)
				continue
			}
			queued++
		}
	}
	return queued, nil
}

// QueueReplies proposes a short generated reply for the first comments
// of each recent post, bounded per post to cap API usage. Replies to
// the account's own comments are skipped.
func (e *Engine) QueueReplies(ctx context.Context, accountID string) (int, error) {
	account, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return 0, eris.Wrap(err, "engage: load account")
	}
	if account == nil {
		return 0, eris.Errorf("engage: account %s not found", accountID)
	}

	posts, err := e.threads.RecentPosts(ctx, account.UserID, account.AccessToken, e.cfg.Engage.RecentPostLimit)
	if err != nil {
		return 0, eris.Wrap(err, "engage: recent posts")
	}

	queued := 0
	for _, post := range posts {
		comments, commentErr := e.threads.Comments(ctx, post.ID, account.AccessToken)
		if commentErr != nil {
			zap.L().Warn("engage: comment fetch failed",
				zap.String("post_id", post.ID),
				zap.Error(commentErr),
			)
			continue
		}
		if max := e.cfg.Engage.MaxRepliesPerPost; max > 0 && len(comments) > max {
			comments = comments[:max]
		}

		// Once the quota trips, skip generation for the rest of the
		// sweep; every further Create would fail the same way.
		var quotaHit error
		results := pacing.ForEach(ctx, e.replyPaceConfig(), comments, func(ctx context.Context, comment threads.Comment) (int, error) {
			if quotaHit != nil {
				return 0, quotaHit
			}
			if comment.From.ID == "" || comment.From.ID == account.UserID {
				return 0, nil
			}
			reply, replyErr := e.replier.ShortReply(ctx, post.Text, comment.Text, e.cfg.Engage.ReplyMaxChars)
			if replyErr != nil {
				return 0, eris.Wrap(replyErr, "engage: generate reply")
			}
			createErr := e.Create(ctx, model.PendingAction{
				AccountID:      accountID,
				TargetUserID:   comment.From.ID,
				TargetUsername: comment.From.Username,
				Kind:           model.ActionReply,
				PostID:         comment.ID,
				Content:        reply,
			})
			if createErr != nil {
				if IsQuotaExceeded(createErr) {
					quotaHit = createErr
				}
				return 0, createErr
			}
			return 1, nil
		})
		for _, r := range results {
			if r.Err != nil {
				var quotaErr *QuotaExceededError
				if errors.As(r.Err, &quotaErr) {
					return queued, r.Err
				}
				zap.L().Error("engage: queue reply failed",
					zap.String("comment_id", r.Item.ID),
					zap.Error(r.Err),
				)
				continue
			}
			queued += r.Value
		}
	}
	return queued, nil
}

func (e *Engine) commentFetchConfig() pacing.Config {
	return pacing.Config{
		ItemDelay:   e.cfg.Engage.TargetDelay(),
		MaxAttempts: e.cfg.Pipeline.MaxAttempts,
		Backoff:     e.cfg.Pipeline.Backoff(),
		OnRetry:     pacing.RetryLogger("threads", "comments"),
	}
}

func (e *Engine) replyPaceConfig() pacing.Config {
	return pacing.Config{
		ItemDelay:   e.cfg.Engage.TargetDelay(),
		MaxAttempts: 1,
	}
}
