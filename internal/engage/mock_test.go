package engage

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/quillworks/quill/internal/model"
	"github.com/quillworks/quill/pkg/threads"
)

// --- Store Mock ---

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateTopic(ctx context.Context, t model.Topic) (*model.Topic, error) {
	args := m.Called(ctx, t)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Topic), args.Error(1)
}

func (m *mockStore) GetTopic(ctx context.Context, name string) (*model.Topic, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Topic), args.Error(1)
}

func (m *mockStore) ListTopics(ctx context.Context, activeOnly bool) ([]model.Topic, error) {
	args := m.Called(ctx, activeOnly)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Topic), args.Error(1)
}

func (m *mockStore) UpdateTopic(ctx context.Context, t model.Topic) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockStore) DeleteTopic(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) CreateSource(ctx context.Context, s model.Source) (*model.Source, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Source), args.Error(1)
}

func (m *mockStore) ListSources(ctx context.Context) ([]model.Source, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Source), args.Error(1)
}

func (m *mockStore) ActiveSources(ctx context.Context) ([]model.Source, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Source), args.Error(1)
}

func (m *mockStore) ActiveSourcesByTopic(ctx context.Context, topicID int64) ([]model.Source, error) {
	args := m.Called(ctx, topicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Source), args.Error(1)
}

func (m *mockStore) UpdateSource(ctx context.Context, s model.Source) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockStore) DeleteSource(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) CreateAccount(ctx context.Context, a model.Account) (*model.Account, error) {
	args := m.Called(ctx, a)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *mockStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *mockStore) AccountsByTopic(ctx context.Context, topicID int64) ([]model.Account, error) {
	args := m.Called(ctx, topicID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *mockStore) UpdateAccount(ctx context.Context, a model.Account) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockStore) AccountsWithActiveTopic(ctx context.Context) ([]model.Account, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Account), args.Error(1)
}

func (m *mockStore) IncrementPostCount(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockStore) ResetPostCount(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

func (m *mockStore) DeleteAccount(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) CreateAction(ctx context.Context, a model.PendingAction) error {
	return m.Called(ctx, a).Error(0)
}

func (m *mockStore) GetAction(ctx context.Context, id string) (*model.PendingAction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PendingAction), args.Error(1)
}

func (m *mockStore) ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.PendingAction, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.PendingAction), args.Error(1)
}

func (m *mockStore) CountPendingCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	args := m.Called(ctx, accountID, since)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) UpdateActionStatus(ctx context.Context, id string, to model.ActionStatus) (bool, error) {
	args := m.Called(ctx, id, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) SetActionUsername(ctx context.Context, id, username string) error {
	return m.Called(ctx, id, username).Error(0)
}

func (m *mockStore) SeenArticle(ctx context.Context, key string) (bool, error) {
	args := m.Called(ctx, key)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) MarkArticleSeen(ctx context.Context, key string, ttl time.Duration) error {
	return m.Called(ctx, key, ttl).Error(0)
}

func (m *mockStore) DeleteExpiredSeen(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// --- Threads Mock ---

type mockThreads struct {
	mock.Mock
}

func (m *mockThreads) Publish(ctx context.Context, userID, token, text string) (string, error) {
	args := m.Called(ctx, userID, token, text)
	return args.String(0), args.Error(1)
}

func (m *mockThreads) Reply(ctx context.Context, userID, token, replyToID, text string) (string, error) {
	args := m.Called(ctx, userID, token, replyToID, text)
	return args.String(0), args.Error(1)
}

func (m *mockThreads) Repost(ctx context.Context, token, postID string) error {
	return m.Called(ctx, token, postID).Error(0)
}

func (m *mockThreads) Follow(ctx context.Context, token, targetUserID string) error {
	return m.Called(ctx, token, targetUserID).Error(0)
}

func (m *mockThreads) LikePost(ctx context.Context, token, postID string) error {
	return m.Called(ctx, token, postID).Error(0)
}

func (m *mockThreads) RecentPosts(ctx context.Context, userID, token string, limit int) ([]threads.Post, error) {
	args := m.Called(ctx, userID, token, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]threads.Post), args.Error(1)
}

func (m *mockThreads) Comments(ctx context.Context, postID, token string) ([]threads.Comment, error) {
	args := m.Called(ctx, postID, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]threads.Comment), args.Error(1)
}

func (m *mockThreads) RecentPostID(ctx context.Context, userID, token string) (string, error) {
	args := m.Called(ctx, userID, token)
	return args.String(0), args.Error(1)
}

func (m *mockThreads) UserInfo(ctx context.Context, token string) (*threads.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*threads.User), args.Error(1)
}

// --- Replier Mock ---

type mockReplier struct {
	mock.Mock
}

func (m *mockReplier) ShortReply(ctx context.Context, postText, commentText string, maxChars int) (string, error) {
	args := m.Called(ctx, postText, commentText, maxChars)
	return args.String(0), args.Error(1)
}
