// Package sqlite provides the file-backed store built on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/storage"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

const answerCountQuery = `
SELECT COUNT(a.id)
FROM QUESTION q
LEFT JOIN ANSWER a
	ON a.question_id = q.id
	AND (q.user_id IS NULL OR a.user_id IS NULL OR a.user_id <> q.user_id)
WHERE q.external_id = ?
GROUP BY q.id`

// Store implements storage.Store on a single SQLite connection.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, &crawler.ConfigurationError{Key: "db.path", Reason: "required for the sqlite driver"}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; the pragmas below are per connection.
	db.SetMaxOpenConns(1)

	s, err := NewWithDB(db, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if path != MemoryPath {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %q: %w", p, err)
		}
	}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

// NewWithDB wraps an existing handle without touching its schema.
func NewWithDB(db *sql.DB, logger *zap.Logger) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db handle is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger.Named("sqlite")}, nil
}

// Migrate creates every missing table.
func (s *Store) Migrate(ctx context.Context) error {
	stmts, err := Schema.Statements()
	if err != nil {
		return err
	}
	for i, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create table %s: %w", storage.Tables[i], err)
		}
	}
	return nil
}

// DB exposes the handle for inspection in tests and tools.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// Close releases the connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// WithTx runs fn in a transaction.
func (s *Store) WithTx(ctx context.Context, fn func(storage.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Error("rollback failed", zap.Error(rbErr))
		}
	}()

	if err = fn(&tx{tx: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// AnswerCount implements storage.Store.
func (s *Store) AnswerCount(ctx context.Context, externalID string) (*int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, answerCountQuery, externalID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("count answers: %w", err)
	}
	return &n, nil
}

var _ storage.Store = (*Store)(nil)

type tx struct {
	tx *sql.Tx
}

func (t *tx) FindUser(ctx context.Context, name string) (*storage.User, error) {
	var (
		u   storage.User
		pct sql.NullInt64
	)
	err := t.tx.QueryRowContext(ctx, `SELECT id, user_name, user_percent FROM "USER" WHERE user_name = ?`, name).
		Scan(&u.ID, &u.Name, &pct)
	if errors.Is(err, sql.ErrNoRows) {
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
	res, err := t.tx.ExecContext(ctx, `INSERT INTO "USER" (user_name, user_percent) VALUES (?, ?)`, name, nullable(percent))
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", err)
	}
	return insertedID(res, storage.TableUser)
}

func (t *tx) UpdateUserPercent(ctx context.Context, id int64, percent int) error {
	if _, err := t.tx.ExecContext(ctx, `UPDATE "USER" SET user_percent = ? WHERE id = ?`, percent, id); err != nil {
		return fmt.Errorf("update user percent: %w", err)
	}
	return nil
}

func (t *tx) FindKeyword(ctx context.Context, text string) (*storage.Keyword, error) {
	var k storage.Keyword
	err := t.tx.QueryRowContext(ctx, `SELECT id, keyword FROM KEYWORD WHERE keyword = ?`, text).Scan(&k.ID, &k.Text)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select keyword: %w", err)
	}
	return &k, nil
}

func (t *tx) InsertKeyword(ctx context.Context, text string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `INSERT INTO KEYWORD (keyword) VALUES (?)`, text)
	if err != nil {
		return 0, fmt.Errorf("insert keyword: %w", err)
	}
	return insertedID(res, storage.TableKeyword)
}

func (t *tx) QuestionID(ctx context.Context, externalID string) (*int64, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `SELECT id FROM QUESTION WHERE external_id = ?`, externalID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select question: %w", err)
	}
	return &id, nil
}

func (t *tx) InsertQuestion(ctx context.Context, q storage.QuestionRow) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO QUESTION (external_id, category, subcategory, title, body, posted_at, url, user_id, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ExternalID, q.Category, q.Subcategory, q.Title, q.Body, q.PostedAt, q.URL, nullable(q.UserID), q.IngestedAt)
	if err != nil {
		return 0, fmt.Errorf("insert question: %w", err)
	}
	return insertedID(res, storage.TableQuestion)
}

func (t *tx) DeleteQuestion(ctx context.Context, externalID string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM QUESTION WHERE external_id = ?`, externalID)
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete question: %w", err)
	}
	return n > 0, nil
}

func (t *tx) LinkExists(ctx context.Context, questionID, keywordID int64) (bool, error) {
	var one int
	err := t.tx.QueryRowContext(ctx,
		`SELECT 1 FROM QUESTION_KEYWORD WHERE question_id = ? AND keyword_id = ?`, questionID, keywordID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("select keyword link: %w", err)
	}
	return true, nil
}

func (t *tx) InsertLink(ctx context.Context, questionID, keywordID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`INSERT INTO QUESTION_KEYWORD (question_id, keyword_id) VALUES (?, ?)`, questionID, keywordID); err != nil {
		return fmt.Errorf("insert keyword link: %w", err)
	}
	return nil
}

func (t *tx) InsertAnswer(ctx context.Context, a storage.AnswerRow) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
INSERT INTO ANSWER (user_id, external_id, question_id, posted_at, body, user_percent, answer_percent)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullable(a.UserID), a.ExternalID, a.QuestionID, nullable(a.PostedAt), a.Body, nullable(a.UserPercent), nullable(a.AnswerPercent))
	if err != nil {
		return 0, fmt.Errorf("insert answer: %w", err)
	}
	return insertedID(res, storage.TableAnswer)
}

func insertedID(res sql.Result, table storage.Table) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("%s insert returned no id: %w: %w", table, crawler.ErrStorageInvariant, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("%s insert returned id %d: %w", table, id, crawler.ErrStorageInvariant)
	}
	return id, nil
}

// nullable dereferences optional values so the driver sees NULL or a scalar.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
