package engage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/internal/config"
	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/pkg/threads"
)

type engageHarness struct {
	store   *mockStore
	threads *mockThreads
	replier *mockReplier
	engine  *Engine
}

func newEngageHarness() *engageHarness {
	h := &engageHarness{
		store:   &mockStore{},
		threads: &mockThreads{},
		replier: &mockReplier{},
	}
	cfg := &config.Config{}
	cfg.Pipeline.MaxAttempts = 1
	cfg.Engage.RecentPostLimit = 5
	cfg.Engage.MaxRepliesPerPost = 2
	cfg.Engage.ReplyMaxChars = 15
	cfg.Engage.DailyActionQuota = 100
	cfg.Engage.DelayBeforeApproval = true

	h.engine = New(cfg, h.store, h.threads, h.replier)
	nextID := 0
	h.engine.newID = func() string {
		nextID++
		return fmt.Sprintf("action-%d", nextID)
	}
	return h
}

func selfAccount() *model.Account {
	return &model.Account{ID: 1, UserID: "self-user", AccessToken: "self-token"}
}

func comment(id, fromID, fromName, text string) threads.Comment {
	return threads.Comment{ID: id, Text: text, From: threads.User{ID: fromID, Username: fromName}}
}

func TestDiscover_DistinctCommentersExcludingSelf(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{
		{ID: "post-1", Text: "first"},
		{ID: "post-2", Text: "second"},
	}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "nice"),
		comment("c2", "u2", "bob", "cool"),
		comment("c3", "self-user", "me", "thanks"),
	}, nil)
	h.threads.On("Comments", mock.Anything, "post-2", "self-token").Return([]threads.Comment{
		comment("c4", "u2", "bob", "again"),
		comment("c5", "u3", "carol", "wow"),
	}, nil)

	candidates, err := h.engine.Discover(context.Background(), "self-user")
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, []Candidate{
		{UserID: "u1", Username: "alice"},
		{UserID: "u2", Username: "bob"},
		{UserID: "u3", Username: "carol"},
	}, candidates)
}

func TestDiscover_CommentFetchFailureSkipsPost(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{
		{ID: "post-1"},
		{ID: "post-2"},
	}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return(nil, eris.New("boom"))
	h.threads.On("Comments", mock.Anything, "post-2", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "hello"),
	}, nil)

	candidates, err := h.engine.Discover(context.Background(), "self-user")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "u1", candidates[0].UserID)
}

func TestDiscover_AccountMissing(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "ghost").Return(nil, nil)

	_, err := h.engine.Discover(context.Background(), "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestQueueActions_ThreeKindsPerCandidate(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{{ID: "post-1"}}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "hello"),
	}, nil)
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(0, nil)
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil)

	queued, err := h.engine.QueueActions(context.Background(), "self-user")
	require.NoError(t, err)
	assert.Equal(t, 3, queued)

	var kinds []model.ActionKind
	for _, call := range h.store.Calls {
		if call.Method == "CreateAction" {
			action := call.Arguments.Get(1).(model.PendingAction)
			kinds = append(kinds, action.Kind)
			assert.Equal(t, "u1", action.TargetUserID)
			assert.Equal(t, "alice", action.TargetUsername)
			assert.Equal(t, model.StatusPending, action.Status)
		}
	}
	assert.Equal(t, []model.ActionKind{model.ActionFollow, model.ActionLike, model.ActionRepost}, kinds)
}

func TestQueueActions_StopsAtQuota(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{{ID: "post-1"}}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "hello"),
	}, nil)
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(99, nil).Once()
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(100, nil)
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil)

	queued, err := h.engine.QueueActions(context.Background(), "self-user")
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, 1, queued)
}

func TestCreate_HundredthActionAllowedNextRejected(t *testing.T) {
	h := newEngageHarness()
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(99, nil).Once()
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil).Once()

	err := h.engine.Create(context.Background(), model.PendingAction{
		AccountID:      "self-user",
		TargetUserID:   "u1",
		TargetUsername: "alice",
		Kind:           model.ActionFollow,
	})
	require.NoError(t, err)

	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(100, nil).Once()
	err = h.engine.Create(context.Background(), model.PendingAction{
		AccountID:      "self-user",
		TargetUserID:   "u2",
		TargetUsername: "bob",
		Kind:           model.ActionFollow,
	})
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))

	var quotaErr *QuotaExceededError
	require.ErrorAs(t, err, &quotaErr)
	assert.Equal(t, "self-user", quotaErr.AccountID)
	assert.Equal(t, 100, quotaErr.Quota)
}

func TestCreate_QuotaWindowStartsAtLocalMidnight(t *testing.T) {
	h := newEngageHarness()
	loc := time.FixedZone("KST", 9*60*60)
	fakeNow := time.Date(2026, 3, 14, 15, 9, 26, 0, loc)
	h.engine.now = func() time.Time { return fakeNow }

	wantSince := time.Date(2026, 3, 14, 0, 0, 0, 0, loc)
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", wantSince).Return(0, nil)
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil)

	err := h.engine.Create(context.Background(), model.PendingAction{
		AccountID:      "self-user",
		TargetUserID:   "u1",
		TargetUsername: "alice",
		Kind:           model.ActionLike,
	})
	require.NoError(t, err)
	h.store.AssertExpectations(t)
}

func TestCreate_PlaceholderUsernameAndAsyncResolution(t *testing.T) {
	h := newEngageHarness()
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(0, nil)
	h.store.On("CreateAction", mock.Anything, mock.MatchedBy(func(a model.PendingAction) bool {
		return a.TargetUsername == "unknown_target"
	})).Return(nil)
	target := &model.Account{UserID: "target-user", AccessToken: "target-token"}
	h.store.On("GetAccount", mock.Anything, "target-user").Return(target, nil)
	h.threads.On("UserInfo", mock.Anything, "target-token").Return(&threads.User{ID: "target-user", Username: "resolved"}, nil)
	h.store.On("SetActionUsername", mock.Anything, "action-1", "resolved").Return(nil)

	err := h.engine.Create(context.Background(), model.PendingAction{
		AccountID:    "self-user",
		TargetUserID: "target-user",
		Kind:         model.ActionFollow,
	})
	require.NoError(t, err)

	h.engine.Wait()
	h.store.AssertCalled(t, "SetActionUsername", mock.Anything, "action-1", "resolved")
}

func TestCreate_UnknownKindRejected(t *testing.T) {
	h := newEngageHarness()
	err := h.engine.Create(context.Background(), model.PendingAction{
		AccountID:    "self-user",
		TargetUserID: "u1",
		Kind:         "POKE",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown action kind")
}

func TestQueueReplies_BoundedPerPostAndSkipsSelf(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{
		{ID: "post-1", Text: "my post"},
	}, nil)
	// Three comments but only the first two are considered per post.
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "great read"),
		comment("c2", "self-user", "me", "thanks all"),
		comment("c3", "u3", "carol", "never considered"),
	}, nil)
	h.replier.On("ShortReply", mock.Anything, "my post", "great read", 15).Return("appreciated!", nil)
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(0, nil)
	h.store.On("CreateAction", mock.Anything, mock.MatchedBy(func(a model.PendingAction) bool {
		return a.Kind == model.ActionReply && a.PostID == "c1" && a.Content == "appreciated!" && a.TargetUserID == "u1"
	})).Return(nil)

	queued, err := h.engine.QueueReplies(context.Background(), "self-user")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
	h.replier.AssertNumberOfCalls(t, "ShortReply", 1)
}

func TestQueueReplies_GenerationFailureSkipsComment(t *testing.T) {
	h := newEngageHarness()
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{
		{ID: "post-1", Text: "my post"},
	}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "first"),
		comment("c2", "u2", "bob", "second"),
	}, nil)
	h.replier.On("ShortReply", mock.Anything, "my post", "first", 15).Return("", eris.New("model overloaded"))
	h.replier.On("ShortReply", mock.Anything, "my post", "second", 15).Return("nice!", nil)
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(0, nil)
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil)

	queued, err := h.engine.QueueReplies(context.Background(), "self-user")
	require.NoError(t, err)
	assert.Equal(t, 1, queued)
}

func TestPlaceholderUsername(t *testing.T) {
	assert.Equal(t, "unknown_123456", placeholderUsername("1234567890"))
	assert.Equal(t, "unknown_123", placeholderUsername("123"))
}

func TestQueueReplies_QuotaStopsGeneration(t *testing.T) {
	h := newEngageHarness()
	h.engine.cfg.Engage.MaxRepliesPerPost = 3
	h.store.On("GetAccount", mock.Anything, "self-user").Return(selfAccount(), nil)
	h.threads.On("RecentPosts", mock.Anything, "self-user", "self-token", 5).Return([]threads.Post{
		{ID: "post-1", Text: "my post"},
	}, nil)
	h.threads.On("Comments", mock.Anything, "post-1", "self-token").Return([]threads.Comment{
		comment("c1", "u1", "alice", "first"),
		comment("c2", "u2", "bob", "second"),
		comment("c3", "u3", "carol", "third"),
	}, nil)
	h.replier.On("ShortReply", mock.Anything, "my post", "first", 15).Return("nice!", nil)
	h.replier.On("ShortReply", mock.Anything, "my post", "second", 15).Return("agreed!", nil)
	// The quota trips on the second create; the third comment must not
	// spend a generation call.
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(99, nil).Once()
	h.store.On("CountPendingCreatedSince", mock.Anything, "self-user", mock.Anything).Return(100, nil)
	h.store.On("CreateAction", mock.Anything, mock.Anything).Return(nil)

	queued, err := h.engine.QueueReplies(context.Background(), "self-user")
	require.Error(t, err)
	assert.True(t, IsQuotaExceeded(err))
	assert.Equal(t, 1, queued)
	h.replier.AssertNumberOfCalls(t, "ShortReply", 2)
	h.store.AssertNumberOfCalls(t, "CreateAction", 1)
}
