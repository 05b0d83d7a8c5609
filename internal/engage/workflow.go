package engage

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quillworks/quill/internal/model"
)

const usernameResolveTimeout = 10 * time.Second

// IsQuotaExceeded reports whether err is a daily-quota rejection.
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// Create validates the daily quota and stores a new PENDING action.
// The target's display name is resolved in the background; a failed
// lookup leaves the placeholder and never blocks creation.
func (e *Engine) Create(ctx context.Context, action model.PendingAction) error {
	if !action.Kind.Known() {
		return eris.Errorf("engage: unknown action kind %q", action.Kind)
	}
	if action.AccountID == "" {
		return eris.New("engage: action missing account id")
	}

	count, err := e.store.CountPendingCreatedSince(ctx, action.AccountID, e.startOfToday())
	if err != nil {
		return eris.Wrap(err, "engage: count pending actions")
	}
	if count >= e.cfg.Engage.DailyActionQuota {
		return &QuotaExceededError{AccountID: action.AccountID, Quota: e.cfg.Engage.DailyActionQuota}
	}

	if action.ID == "" {
		action.ID = e.newID()
	}
	action.Status = model.StatusPending
	action.CreatedAt = e.now().UTC()

	resolve := action.TargetUsername == ""
	if resolve {
		action.TargetUsername = placeholderUsername(action.TargetUserID)
	}

	if err := e.store.CreateAction(ctx, action); err != nil {
		return eris.Wrap(err, "engage: create action")
	}
	zap.L().Info("engage: pending action created",
		zap.String("id", action.ID),
		zap.String("kind", string(action.Kind)),
		zap.String("target", action.TargetUserID),
	)

	if resolve {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.resolveUsername(action.ID, action.TargetUserID)
		}()
	}
	return nil
}

// Approve executes the action and transitions it to APPROVED only after
// the underlying operation actually succeeded. Non-PENDING actions are
// not re-executed and report false. An execution failure leaves the
// record PENDING so a human may re-approve.
func (e *Engine) Approve(ctx context.Context, id string) (bool, error) {
	action, err := e.store.GetAction(ctx, id)
	if err != nil {
		return false, eris.Wrap(err, "engage: load action")
	}
	if action == nil || action.Status != model.StatusPending {
		return false, nil
	}

	account, err := e.store.GetAccount(ctx, action.AccountID)
	if err != nil {
		return false, eris.Wrap(err, "engage: load account")
	}
	if account == nil {
		return false, eris.Errorf("engage: no account for %s", action.AccountID)
	}

	ok, err := e.execute(ctx, *action, account.AccessToken)
	if err != nil {
		zap.L().Error("engage: action execution failed",
			zap.String("id", id),
			zap.String("kind", string(action.Kind)),
			zap.Error(err),
		)
		return false, err
	}
	if !ok {
		return false, nil
	}

	committed, err := e.store.UpdateActionStatus(ctx, id, model.StatusApproved)
	if err != nil {
		return false, eris.Wrap(err, "engage: commit approval")
	}
	if committed {
		zap.L().Info("engage: action approved",
			zap.String("id", id),
			zap.String("kind", string(action.Kind)),
		)
	}
	return committed, nil
}

// Reject transitions a PENDING action to REJECTED without any external
// call. It reports false when the action is missing or already terminal.
func (e *Engine) Reject(ctx context.Context, id string) (bool, error) {
	committed, err := e.store.UpdateActionStatus(ctx, id, model.StatusRejected)
	if err != nil {
		return false, eris.Wrap(err, "engage: reject action")
	}
	return committed, nil
}

// ListPending returns PENDING actions, newest first.
func (e *Engine) ListPending(ctx context.Context, limit int) ([]model.PendingAction, error) {
	return e.store.ListActionsByStatus(ctx, model.StatusPending, limit)
}

// BatchApprove approves each id in order with the mandatory fixed delay
// between approval operations. Cancellation stops the batch; remaining
// ids are not attempted and carry the cancellation error.
func (e *Engine) BatchApprove(ctx context.Context, ids []string) []model.BatchOutcome {
	delay := e.cfg.Engage.BatchApproveDelay()
	before := e.cfg.Engage.DelayBeforeApproval

	outcomes := make([]model.BatchOutcome, 0, len(ids))
	for i, id := range ids {
		// Before-placement pauses ahead of every approval; after-placement
		// pauses between approvals only.
		if delay > 0 && (before || i > 0) {
			if err := e.sleep(ctx, delay); err != nil {
				for _, rest := range ids[i:] {
					outcomes = append(outcomes, model.BatchOutcome{ActionID: rest, Error: err.Error()})
				}
				return outcomes
			}
		}

		approved, err := e.Approve(ctx, id)
		outcome := model.BatchOutcome{ActionID: id, Approved: approved}
		if err != nil {
			outcome.Error = err.Error()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes
}

// execute dispatches one action through the platform client. The bool
// result distinguishes an unknown kind (false, nil) from success.
func (e *Engine) execute(ctx context.Context, action model.PendingAction, token string) (bool, error) {
	switch action.Kind {
	case model.ActionFollow:
		if err := e.threads.Follow(ctx, token, action.TargetUserID); err != nil {
			return false, err
		}
		return true, nil

	case model.ActionLike:
		postID, err := e.threads.RecentPostID(ctx, action.TargetUserID, token)
		if err != nil {
			return false, err
		}
		if postID == "" {
			// Nothing to like counts as done.
			return true, nil
		}
		if err := e.threads.LikePost(ctx, token, postID); err != nil {
			return false, err
		}
		return true, nil

	case model.ActionRepost:
		postID, err := e.threads.RecentPostID(ctx, action.TargetUserID, token)
		if err != nil {
			return false, err
		}
		if postID == "" {
			return true, nil
		}
		if err := e.threads.Repost(ctx, token, postID); err != nil {
			return false, err
		}
		return true, nil

	case model.ActionReply:
		if action.PostID == "" || action.Content == "" {
			return false, eris.Errorf("engage: reply action %s missing post id or content", action.ID)
		}
		if _, err := e.threads.Reply(ctx, action.AccountID, token, action.PostID, action.Content); err != nil {
			return false, err
		}
		return true, nil

	default:
		return false, nil
	}
}

// resolveUsername looks up the target's display name with the target's
// own stored credential when that user is also a managed account.
func (e *Engine) resolveUsername(actionID, targetUserID string) {
	ctx, cancel := context.WithTimeout(context.Background(), usernameResolveTimeout)
	defer cancel()

	target, err := e.store.GetAccount(ctx, targetUserID)
	if err != nil || target == nil {
		return
	}
	user, err := e.threads.UserInfo(ctx, target.AccessToken)
	if err != nil || user == nil || user.Username == "" {
		zap.L().Debug("engage: username lookup failed", zap.String("target", targetUserID), zap.Error(err))
		return
	}
	if err := e.store.SetActionUsername(ctx, actionID, user.Username); err != nil {
		zap.L().Warn("engage: store username failed", zap.String("id", actionID), zap.Error(err))
	}
}

func (e *Engine) startOfToday() time.Time {
	now := e.now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
}

func placeholderUsername(userID string) string {
	if len(userID) < 6 {
		return "unknown_" + userID
	}
	return "unknown_" + userID[:6]
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
