// Package postgres provides the Postgres-backed store for server deployments.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/storage"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

const answerCountQuery = `
SELECT COUNT(a.id)
FROM question q
LEFT JOIN answer a
	ON a.question_id = q.id
	AND (q.user_id IS NULL OR a.user_id IS NULL OR a.user_id <> q.user_id)
WHERE q.external_id = $1
GROUP BY q.id`

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Ping(context.Context) error
	Close()
}

// Store implements storage.Store on a pgx pool.
type Store struct {
	pool   pool
	logger *zap.Logger
}

var _ storage.Store = (*Store)(nil)

// New connects to Postgres and applies the schema.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, &crawler.ConfigurationError{Key: "db.dsn", Reason: "required for the postgres driver"}
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(p, logger)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger.Named("postgres")}, nil
}

// Migrate creates every missing table.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := Schema.Statements()
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", storage.Tables[i], err)
		}
	}
	return nil
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// WithTx runs fn in a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&tx{tx: pgTx}); err != nil {
		if rbErr := pgTx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AnswerCount implements storage.Store.
func (s *Store) AnswerCount(ctx context.Context, externalID string) (*int, error) {
	var n int64
	err := s.pool.QueryRow(ctx, answerCountQuery, externalID).Scan(&n)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	count := int(n)
	return &count, nil
}

type tx struct {
	tx pgx.Tx
}

func (t *tx) FindUser(ctx context.Context, name string) (*storage.User, error) {
	var (
		u   storage.User
		pct sql.NullInt64
	)
	err := t.tx.QueryRow(ctx, `SELECT id, user_name, user_percent FROM "user" WHERE user_name = $1`, name).
		Scan(&u.ID, &u.Name, &pct)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	if pct.Valid {
		v := int(pct.Int64)
		u.Percent = &v
	}
	return &u, nil
}

func (t *tx) InsertUser(ctx context.Context, name string, percent *int) (int64, error) {
	return t.insertReturningID(ctx, storage.TableUser,
		`INSERT INTO "user" (user_name, user_percent) VALUES ($1, $2) RETURNING id`, name, percent)
}

func (t *tx) UpdateUserPercent(ctx context.Context, id int64, percent int) error {
	if _, err := t.tx.Exec(ctx, `UPDATE "user" SET user_percent = $1 WHERE id = $2`, percent, id); err != nil {
		return fmt.Errorf("update user percent: %w", err)
	}
	return nil
}

func (t *tx) FindKeyword(ctx context.Context, text string) (*storage.Keyword, error) {
	var k storage.Keyword
	err := t.tx.QueryRow(ctx, `SELECT id, keyword FROM keyword WHERE keyword = $1`, text).Scan(&k.ID, &k.Text)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select keyword: %w", err)
	}
	return &k, nil
}

func (t *tx) InsertKeyword(ctx context.Context, text string) (int64, error) {
	return t.insertReturningID(ctx, storage.TableKeyword,
		`INSERT INTO keyword (keyword) VALUES ($1) RETURNING id`, text)
}

func (t *tx) QuestionID(ctx context.Context, externalID string) (*int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `SELECT id FROM question WHERE external_id = $1`, externalID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}
	return &id, nil
}

func (t *tx) InsertQuestion(ctx context.Context, q storage.QuestionRow) (int64, error) {
	return t.insertReturningID(ctx, storage.TableQuestion, `
INSERT INTO question (external_id, category, subcategory, title, body, posted_at, url, user_id, ingested_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`,
		q.ExternalID, q.Category, q.Subcategory, q.Title, q.Body, q.PostedAt, q.URL, q.UserID, q.IngestedAt)
}

func (t *tx) DeleteQuestion(ctx context.Context, externalID string) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM question WHERE external_id = $1`, externalID)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *tx) LinkExists(ctx context.Context, questionID, keywordID int64) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM question_keyword WHERE question_id = $1 AND keyword_id = $2)`,
		questionID, keywordID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("select keyword link: %w", err)
	}
	return exists, nil
}

func (t *tx) InsertLink(ctx context.Context, questionID, keywordID int64) error {
	if _, err := t.tx.Exec(ctx,
		`INSERT INTO question_keyword (question_id, keyword_id) VALUES ($1, $2)`, questionID, keywordID); err != nil {
		return fmt.Errorf("insert keyword link: %w", err)
	}
	return nil
}

func (t *tx) InsertAnswer(ctx context.Context, a storage.AnswerRow) (int64, error) {
	return t.insertReturningID(ctx, storage.TableAnswer, `
INSERT INTO answer (user_id, external_id, question_id, posted_at, body, user_percent, answer_percent)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING id`,
		a.UserID, a.ExternalID, a.QuestionID, a.PostedAt, a.Body, a.UserPercent, a.AnswerPercent)
}

func (t *tx) insertReturningID(ctx context.Context, table storage.Table, query string, args ...any) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, query, args...).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && id <= 0) {
		return 0, fmt.Errorf("%s insert returned no id: %w", table, crawler.ErrStorageInvariant)
	}
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return id, nil
}
