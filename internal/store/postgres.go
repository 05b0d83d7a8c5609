package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/quillworks/quill/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS topics (
	id             BIGSERIAL PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	display_name   TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	default_prompt TEXT NOT NULL DEFAULT '',
	active         BOOLEAN NOT NULL DEFAULT true,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS sources (
	id         BIGSERIAL PRIMARY KEY,
	topic_id   BIGINT REFERENCES topics(id),
	name       TEXT NOT NULL UNIQUE,
	base_url   TEXT NOT NULL,
	selectors  JSONB NOT NULL DEFAULT '{}',
	user_agent TEXT NOT NULL DEFAULT '',
	timeout_ms INTEGER NOT NULL DEFAULT 10000,
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS accounts (
	id           BIGSERIAL PRIMARY KEY,
	user_id      TEXT NOT NULL UNIQUE,
	access_token TEXT NOT NULL,
	prompt       TEXT NOT NULL DEFAULT '',
	topic_id     BIGINT REFERENCES topics(id),
	post_count   INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pending_actions (
	id              TEXT PRIMARY KEY,
	account_id      TEXT NOT NULL,
	target_user_id  TEXT NOT NULL,
	target_username TEXT NOT NULL DEFAULT '',
	kind            TEXT NOT NULL,
	post_id         TEXT NOT NULL DEFAULT '',
	content         TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL DEFAULT 'PENDING',
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS seen_articles (
	key        TEXT PRIMARY KEY,
	seen_at    TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_topic_id ON sources(topic_id);
CREATE INDEX IF NOT EXISTS idx_accounts_topic_id ON accounts(topic_id);
CREATE INDEX IF NOT EXISTS idx_actions_status ON pending_actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_account_created ON pending_actions(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_seen_articles_expires_at ON seen_articles(expires_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Topics

func (s *PostgresStore) CreateTopic(ctx context.Context, t model.Topic) (*model.Topic, error) {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO topics (name, display_name, description, default_prompt, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		t.Name, t.DisplayName, t.Description, t.DefaultPrompt, t.Active, now, now,
	).Scan(&t.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert topic %s", t.Name)
	}
	t.CreatedAt = now
	t.UpdatedAt = now
	return &t, nil
}

func (s *PostgresStore) GetTopic(ctx context.Context, name string) (*model.Topic, error) {
	var t model.Topic
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, display_name, description, default_prompt, active, created_at, updated_at
		 FROM topics WHERE name = $1`,
		name,
	).Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.DefaultPrompt, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get topic %s", name)
	}
	return &t, nil
}

func (s *PostgresStore) ListTopics(ctx context.Context, activeOnly bool) ([]model.Topic, error) {
	query := `SELECT id, name, display_name, description, default_prompt, active, created_at, updated_at FROM topics`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list topics")
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.DefaultPrompt, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan topic")
		}
		topics = append(topics, t)
	}
	return topics, eris.Wrap(rows.Err(), "postgres: list topics iterate")
}

func (s *PostgresStore) UpdateTopic(ctx context.Context, t model.Topic) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE topics SET display_name = $1, description = $2, default_prompt = $3, active = $4, updated_at = $5
		 WHERE id = $6`,
		t.DisplayName, t.Description, t.DefaultPrompt, t.Active, time.Now().UTC(), t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update topic %d", t.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("topic not found: %s", t.Name)
	}
	return nil
}

func (s *PostgresStore) DeleteTopic(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM topics WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete topic %d", id)
}

// Sources

func (s *PostgresStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	selectorsJSON, err := json.Marshal(src.Selectors)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal selectors")
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO sources (topic_id, name, base_url, selectors, user_agent, timeout_ms, active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		src.TopicID, src.Name, src.BaseURL, selectorsJSON, src.UserAgent, src.TimeoutMS, src.Active, now, now,
	).Scan(&src.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert source %s", src.Name)
	}
	src.CreatedAt = now
	src.UpdatedAt = now
	return &src, nil
}

func (s *PostgresStore) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

func (s *PostgresStore) ActiveSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active ORDER BY name`)
}

func (s *PostgresStore) ActiveSourcesByTopic(ctx context.Context, topicID int64) ([]model.Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE active AND topic_id = $1 ORDER BY name`,
		topicID,
	)
}

func (s *PostgresStore) querySources(ctx context.Context, query string, args ...any) ([]model.Source, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var selectorsJSON []byte
		if err := rows.Scan(&src.ID, &src.TopicID, &src.Name, &src.BaseURL, &selectorsJSON,
			&src.UserAgent, &src.TimeoutMS, &src.Active, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan source")
		}
		if err := json.Unmarshal(selectorsJSON, &src.Selectors); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal selectors")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "postgres: sources iterate")
}

func (s *PostgresStore) UpdateSource(ctx context.Context, src model.Source) error {
	selectorsJSON, err := json.Marshal(src.Selectors)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal selectors")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sources SET topic_id = $1, base_url = $2, selectors = $3, user_agent = $4, timeout_ms = $5, active = $6, updated_at = $7
		 WHERE id = $8`,
		src.TopicID, src.BaseURL, selectorsJSON, src.UserAgent, src.TimeoutMS, src.Active, time.Now().UTC(), src.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update source %d", src.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("source not found: %s", src.Name)
	}
	return nil
}

func (s *PostgresStore) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sources WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete source %d", id)
}

// Accounts

func (s *PostgresStore) CreateAccount(ctx context.Context, a model.Account) (*model.Account, error) {
	now := time.Now().UTC()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, access_token, prompt, topic_id, post_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		a.UserID, a.AccessToken, a.Prompt, a.TopicID, a.PostCount, now, now,
	).Scan(&a.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert account %s", a.UserID)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return &a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	var a model.Account
	err := s.pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`,
		userID,
	).Scan(&a.ID, &a.UserID, &a.AccessToken, &a.Prompt, &a.TopicID, &a.PostCount, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get account %s", userID)
	}
	return &a, nil
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY user_id`)
}

func (s *PostgresStore) AccountsByTopic(ctx context.Context, topicID int64) ([]model.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE topic_id = $1 ORDER BY user_id`,
		topicID,
	)
}

func (s *PostgresStore) AccountsWithActiveTopic(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT a.id, a.user_id, a.access_token, a.prompt, a.topic_id, a.post_count, a.created_at, a.updated_at
		 FROM accounts a JOIN topics t ON a.topic_id = t.id
		 WHERE t.active ORDER BY a.user_id`,
	)
}

func (s *PostgresStore) queryAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccessToken, &a.Prompt, &a.TopicID, &a.PostCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "postgres: accounts iterate")
}

func (s *PostgresStore) UpdateAccount(ctx context.Context, a model.Account) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET access_token = $1, prompt = $2, topic_id = $3, updated_at = $4 WHERE id = $5`,
		a.AccessToken, a.Prompt, a.TopicID, time.Now().UTC(), a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update account %s", a.UserID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("account not found: %s", a.UserID)
	}
	return nil
}

func (s *PostgresStore) IncrementPostCount(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET post_count = post_count + 1, updated_at = $1 WHERE user_id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: increment post count %s", userID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("account not found: %s", userID)
	}
	return nil
}

func (s *PostgresStore) ResetPostCount(ctx context.Context, userID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE accounts SET post_count = 0, updated_at = $1 WHERE user_id = $2`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: reset post count %s", userID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("account not found: %s", userID)
	}
	return nil
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return eris.Wrapf(err, "postgres: delete account %d", id)
}

// Pending actions

func (s *PostgresStore) CreateAction(ctx context.Context, a model.PendingAction) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pending_actions (id, account_id, target_user_id, target_username, kind, post_id, content, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.AccountID, a.TargetUserID, a.TargetUsername, string(a.Kind), a.PostID, a.Content, string(a.Status), a.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert action %s", a.ID)
}

func (s *PostgresStore) GetAction(ctx context.Context, id string) (*model.PendingAction, error) {
	var a model.PendingAction
	err := s.pool.QueryRow(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE id = $1`,
		id,
	).Scan(&a.ID, &a.AccountID, &a.TargetUserID, &a.TargetUsername, &a.Kind, &a.PostID, &a.Content, &a.Status, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get action %s", id)
	}
	return &a, nil
}

func (s *PostgresStore) ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.PendingAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE status = $1 ORDER BY created_at DESC LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list actions")
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var a model.PendingAction
		if err := rows.Scan(&a.ID, &a.AccountID, &a.TargetUserID, &a.TargetUsername, &a.Kind, &a.PostID, &a.Content, &a.Status, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan action")
		}
		actions = append(actions, a)
	}
	return actions, eris.Wrap(rows.Err(), "postgres: actions iterate")
}

func (s *PostgresStore) CountPendingCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE account_id = $1 AND status = 'PENDING' AND created_at >= $2`,
		accountID, since,
	).Scan(&count)
	return count, eris.Wrapf(err, "postgres: count pending for %s", accountID)
}

func (s *PostgresStore) UpdateActionStatus(ctx context.Context, id string, to model.ActionStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE pending_actions SET status = $1 WHERE id = $2 AND status = 'PENDING'`,
		string(to), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: update action status %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) SetActionUsername(ctx context.Context, id, username string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE pending_actions SET target_username = $1 WHERE id = $2`,
		username, id,
	)
	return eris.Wrapf(err, "postgres: set action username %s", id)
}

// Seen articles

func (s *PostgresStore) SeenArticle(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM seen_articles WHERE key = $1 AND expires_at > now()`,
		key,
	).Scan(&one)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, eris.Wrapf(err, "postgres: seen article %s", key)
	}
	return true, nil
}

func (s *PostgresStore) MarkArticleSeen(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen_articles (key, seen_at, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET seen_at = $2, expires_at = $3`,
		key, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "postgres: mark article seen %s", key)
}

func (s *PostgresStore) DeleteExpiredSeen(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM seen_articles WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired seen articles")
	}
	return int(tag.RowsAffected()), nil
}
