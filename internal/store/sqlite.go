package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/quillworks/quill/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS topics (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	name           TEXT NOT NULL UNIQUE,
	display_name   TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	default_prompt TEXT NOT NULL DEFAULT '',
	active         INTEGER NOT NULL DEFAULT 1,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sources (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	topic_id   INTEGER REFERENCES topics(id),
	name       TEXT NOT NULL UNIQUE,
	base_url   TEXT NOT NULL,
	selectors  TEXT NOT NULL DEFAULT '{}',
	user_agent TEXT NOT NULL DEFAULT '',
	timeout_ms INTEGER NOT NULL DEFAULT 10000,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS accounts (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id      TEXT NOT NULL UNIQUE,
	access_token TEXT NOT NULL,
	prompt       TEXT NOT NULL DEFAULT '',
	topic_id     INTEGER REFERENCES topics(id),
	post_count   INTEGER NOT NULL DEFAULT 0,
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
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
	created_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS seen_articles (
	key        TEXT PRIMARY KEY,
	seen_at    DATETIME NOT NULL,
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_topic_id ON sources(topic_id);
CREATE INDEX IF NOT EXISTS idx_accounts_topic_id ON accounts(topic_id);
CREATE INDEX IF NOT EXISTS idx_actions_status ON pending_actions(status);
CREATE INDEX IF NOT EXISTS idx_actions_account_created ON pending_actions(account_id, created_at);
CREATE INDEX IF NOT EXISTS idx_seen_articles_expires_at ON seen_articles(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Topics

func (s *SQLiteStore) CreateTopic(ctx context.Context, t model.Topic) (*model.Topic, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO topics (name, display_name, description, default_prompt, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.Name, t.DisplayName, t.Description, t.DefaultPrompt, t.Active, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert topic %s", t.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: topic id")
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return &t, nil
}

func (s *SQLiteStore) GetTopic(ctx context.Context, name string) (*model.Topic, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, display_name, description, default_prompt, active, created_at, updated_at
		 FROM topics WHERE name = ?`,
		name,
	)
	var t model.Topic
	err := row.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.DefaultPrompt, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get topic %s", name)
	}
	return &t, nil
}

func (s *SQLiteStore) ListTopics(ctx context.Context, activeOnly bool) ([]model.Topic, error) {
	query := `SELECT id, name, display_name, description, default_prompt, active, created_at, updated_at FROM topics`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list topics")
	}
	defer rows.Close()

	var topics []model.Topic
	for rows.Next() {
		var t model.Topic
		if err := rows.Scan(&t.ID, &t.Name, &t.DisplayName, &t.Description, &t.DefaultPrompt, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan topic")
		}
		topics = append(topics, t)
	}
	return topics, eris.Wrap(rows.Err(), "sqlite: list topics iterate")
}

func (s *SQLiteStore) UpdateTopic(ctx context.Context, t model.Topic) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE topics SET display_name = ?, description = ?, default_prompt = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		t.DisplayName, t.Description, t.DefaultPrompt, t.Active, time.Now().UTC(), t.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update topic %d", t.ID)
	}
	return checkRowsAffected(res, "topic", t.Name)
}

func (s *SQLiteStore) DeleteTopic(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM topics WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete topic %d", id)
}

// Sources

func (s *SQLiteStore) CreateSource(ctx context.Context, src model.Source) (*model.Source, error) {
	now := time.Now().UTC()
	selectorsJSON, err := json.Marshal(src.Selectors)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal selectors")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sources (topic_id, name, base_url, selectors, user_agent, timeout_ms, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		src.TopicID, src.Name, src.BaseURL, string(selectorsJSON), src.UserAgent, src.TimeoutMS, src.Active, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert source %s", src.Name)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: source id")
	}
	src.ID = id
	src.CreatedAt = now
	src.UpdatedAt = now
	return &src, nil
}

const sourceColumns = `id, topic_id, name, base_url, selectors, user_agent, timeout_ms, active, created_at, updated_at`

func (s *SQLiteStore) ListSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources ORDER BY name`)
}

func (s *SQLiteStore) ActiveSources(ctx context.Context) ([]model.Source, error) {
	return s.querySources(ctx, `SELECT `+sourceColumns+` FROM sources WHERE active = 1 ORDER BY name`)
}

func (s *SQLiteStore) ActiveSourcesByTopic(ctx context.Context, topicID int64) ([]model.Source, error) {
	return s.querySources(ctx,
		`SELECT `+sourceColumns+` FROM sources WHERE active = 1 AND topic_id = ? ORDER BY name`,
		topicID,
	)
}

func (s *SQLiteStore) querySources(ctx context.Context, query string, args ...any) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query sources")
	}
	defer rows.Close()

	var sources []model.Source
	for rows.Next() {
		var src model.Source
		var selectorsJSON string
		if err := rows.Scan(&src.ID, &src.TopicID, &src.Name, &src.BaseURL, &selectorsJSON,
			&src.UserAgent, &src.TimeoutMS, &src.Active, &src.CreatedAt, &src.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan source")
		}
		if err := json.Unmarshal([]byte(selectorsJSON), &src.Selectors); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal selectors")
		}
		sources = append(sources, src)
	}
	return sources, eris.Wrap(rows.Err(), "sqlite: sources iterate")
}

func (s *SQLiteStore) UpdateSource(ctx context.Context, src model.Source) error {
	selectorsJSON, err := json.Marshal(src.Selectors)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal selectors")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sources SET topic_id = ?, base_url = ?, selectors = ?, user_agent = ?, timeout_ms = ?, active = ?, updated_at = ?
		 WHERE id = ?`,
		src.TopicID, src.BaseURL, string(selectorsJSON), src.UserAgent, src.TimeoutMS, src.Active, time.Now().UTC(), src.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update source %d", src.ID)
	}
	return checkRowsAffected(res, "source", src.Name)
}

func (s *SQLiteStore) DeleteSource(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete source %d", id)
}

// Accounts

const accountColumns = `id, user_id, access_token, prompt, topic_id, post_count, created_at, updated_at`

func (s *SQLiteStore) CreateAccount(ctx context.Context, a model.Account) (*model.Account, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, access_token, prompt, topic_id, post_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AccessToken, a.Prompt, a.TopicID, a.PostCount, now, now,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert account %s", a.UserID)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: account id")
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return &a, nil
}

func (s *SQLiteStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`,
		userID,
	)
	var a model.Account
	err := row.Scan(&a.ID, &a.UserID, &a.AccessToken, &a.Prompt, &a.TopicID, &a.PostCount, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get account %s", userID)
	}
	return &a, nil
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY user_id`)
}

func (s *SQLiteStore) AccountsByTopic(ctx context.Context, topicID int64) ([]model.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE topic_id = ? ORDER BY user_id`,
		topicID,
	)
}

func (s *SQLiteStore) AccountsWithActiveTopic(ctx context.Context) ([]model.Account, error) {
	return s.queryAccounts(ctx,
		`SELECT a.id, a.user_id, a.access_token, a.prompt, a.topic_id, a.post_count, a.created_at, a.updated_at
		 FROM accounts a JOIN topics t ON a.topic_id = t.id
		 WHERE t.active = 1 ORDER BY a.user_id`,
	)
}

func (s *SQLiteStore) queryAccounts(ctx context.Context, query string, args ...any) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query accounts")
	}
	defer rows.Close()

	var accounts []model.Account
	for rows.Next() {
		var a model.Account
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccessToken, &a.Prompt, &a.TopicID, &a.PostCount, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan account")
		}
		accounts = append(accounts, a)
	}
	return accounts, eris.Wrap(rows.Err(), "sqlite: accounts iterate")
}

func (s *SQLiteStore) UpdateAccount(ctx context.Context, a model.Account) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET access_token = ?, prompt = ?, topic_id = ?, updated_at = ? WHERE id = ?`,
		a.AccessToken, a.Prompt, a.TopicID, time.Now().UTC(), a.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update account %s", a.UserID)
	}
	return checkRowsAffected(res, "account", a.UserID)
}

func (s *SQLiteStore) IncrementPostCount(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET post_count = post_count + 1, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: increment post count %s", userID)
	}
	return checkRowsAffected(res, "account", userID)
}

func (s *SQLiteStore) ResetPostCount(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE accounts SET post_count = 0, updated_at = ? WHERE user_id = ?`,
		time.Now().UTC(), userID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: reset post count %s", userID)
	}
	return checkRowsAffected(res, "account", userID)
}

func (s *SQLiteStore) DeleteAccount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	return eris.Wrapf(err, "sqlite: delete account %d", id)
}

// Pending actions

const actionColumns = `id, account_id, target_user_id, target_username, kind, post_id, content, status, created_at`

func (s *SQLiteStore) CreateAction(ctx context.Context, a model.PendingAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_actions (id, account_id, target_user_id, target_username, kind, post_id, content, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AccountID, a.TargetUserID, a.TargetUsername, string(a.Kind), a.PostID, a.Content, string(a.Status), a.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert action %s", a.ID)
}

func (s *SQLiteStore) GetAction(ctx context.Context, id string) (*model.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE id = ?`,
		id,
	)
	var a model.PendingAction
	err := row.Scan(&a.ID, &a.AccountID, &a.TargetUserID, &a.TargetUsername, &a.Kind, &a.PostID, &a.Content, &a.Status, &a.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get action %s", id)
	}
	return &a, nil
}

func (s *SQLiteStore) ListActionsByStatus(ctx context.Context, status model.ActionStatus, limit int) ([]model.PendingAction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+actionColumns+` FROM pending_actions WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list actions")
	}
	defer rows.Close()

	var actions []model.PendingAction
	for rows.Next() {
		var a model.PendingAction
		if err := rows.Scan(&a.ID, &a.AccountID, &a.TargetUserID, &a.TargetUsername, &a.Kind, &a.PostID, &a.Content, &a.Status, &a.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan action")
		}
		actions = append(actions, a)
	}
	return actions, eris.Wrap(rows.Err(), "sqlite: actions iterate")
}

func (s *SQLiteStore) CountPendingCreatedSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE account_id = ? AND status = 'PENDING' AND created_at >= ?`,
		accountID, since,
	).Scan(&count)
	return count, eris.Wrapf(err, "sqlite: count pending for %s", accountID)
}

func (s *SQLiteStore) UpdateActionStatus(ctx context.Context, id string, to model.ActionStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ? WHERE id = ? AND status = 'PENDING'`,
		string(to), id,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: update action status %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) SetActionUsername(ctx context.Context, id, username string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET target_username = ? WHERE id = ?`,
		username, id,
	)
	return eris.Wrapf(err, "sqlite: set action username %s", id)
}

// Seen articles

func (s *SQLiteStore) SeenArticle(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seen_articles WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: seen article %s", key)
	}
	return true, nil
}

func (s *SQLiteStore) MarkArticleSeen(ctx context.Context, key string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO seen_articles (key, seen_at, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET seen_at = excluded.seen_at, expires_at = excluded.expires_at`,
		key, now, now.Add(ttl),
	)
	return eris.Wrapf(err, "sqlite: mark article seen %s", key)
}

func (s *SQLiteStore) DeleteExpiredSeen(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM seen_articles WHERE expires_at <= ?`,
		time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired seen articles")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}
