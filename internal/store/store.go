package store

import (
	"context"
	"time"

	"github.com/quillworks/quill/internal/model"
)

// Store defines the persistence interface for topics, sources, accounts,
// pending engagement actions, and the seen-article cache backing the
// duplicate guard.
type Store interface {
	// Topics
	CreateTopic(ctx context.Context, t model.Topic) (*model.Topic, error)
	GetTopic(ctx context.Context, name string) (*model.Topic, error)
	ListTopics(ctx context.Context, activeOnly bool) ([]model.Topic, error)
	UpdateTopic(ctx context.Context, t model.Topic) error
	DeleteTopic(ctx context.Context, id int64) error

	// Sources
	CreateSource(ctx context.Context, s model.Source) (*model.Source, error)
	ListSources(ctx context.Context) ([]model.Source, error)
	ActiveSources(ctx context.Context) ([]model.Source, error)
	ActiveSourcesByTopic(ctx context.Context, topicID int64) ([]model.Source, error)
	UpdateSource(ctx context.Context, s model.Source) error
	DeleteSource(ctx context.Context, id int64) error

	// Accounts
	CreateAccount(ctx context.Context, a model.Account) (*model.Account, error)
	GetAccount(ctx context.Context, userID string) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	AccountsByTopic(ctx context.Context, topicID int64) ([]model.Account, error)
	AccountsWithActiveTopic(ctx context.Context) ([]model.Account, error)
	UpdateAccount(ctx context.Context, a model.Account) error
	IncrementPostCount(ctx context.Context, userID string) error
	ResetPostCount(ctx context.Context, userID string) error
	DeleteAccount(ctx context.Context, id int64) error

	// Pending actions
	CreateAction(ctx context.Context, a model.PendingAction) error
	GetAction(ctx context.Context, id string) (*model.PendingAction, error)
	ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.PendingAction, error)
	CountPendingCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// UpdateActionStatus transitions an action out of PENDING. It reports
	// whether the transition happened; a false result means the action was
	// missing or already terminal.
	UpdateActionStatus(ctx context.Context, id string, to model.ActionStatus) (bool, error)
	SetActionUsername(ctx context.Context, id, username string) error

	// Seen articles
	SeenArticle(ctx context.Context, key string) (bool, error)
	MarkArticleSeen(ctx context.Context, key string, ttl time.Duration) error
	DeleteExpiredSeen(ctx context.Context) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
