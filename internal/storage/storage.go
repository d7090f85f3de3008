// Package storage defines the relational schema contract and the
// transactional store interfaces used by the loader.
package storage

import (
	"context"
	"fmt"
	"time"
)

// Table identifies one relation of the schema.
type Table int

// Tables of the schema.
const (
	TableKeyword Table = iota + 1
	TableUser
	TableQuestion
	TableAnswer
	TableQuestionKeyword
)

// Tables lists every table in foreign-key dependency order.
var Tables = []Table{TableKeyword, TableUser, TableQuestion, TableAnswer, TableQuestionKeyword}

func (t Table) String() string {
	switch t {
	case TableKeyword:
		return "KEYWORD"
	case TableUser:
		return "USER"
	case TableQuestion:
		return "QUESTION"
	case TableAnswer:
		return "ANSWER"
	case TableQuestionKeyword:
		return "QUESTION_KEYWORD"
	default:
		return fmt.Sprintf("Table(%d)", int(t))
	}
}

// Schema maps each table to the DDL that creates it on one backend.
type Schema map[Table]string

// DDL returns the statement for t.
func (s Schema) DDL(t Table) (string, error) {
	stmt, ok := s[t]
	if !ok {
		return "", fmt.Errorf("no ddl for table %s", t)
	}
	return stmt, nil
}

// Statements returns the DDL of every table in dependency order.
func (s Schema) Statements() ([]string, error) {
	out := make([]string, 0, len(Tables))
	for _, t := range Tables {
		stmt, err := s.DDL(t)
		if err != nil {
			return nil, err
		}
		out = append(out, stmt)
	}
	return out, nil
}

// User is a row of the USER table.
type User struct {
	ID      int64
	Name    string
	Percent *int
}

// Keyword is a row of the KEYWORD table.
type Keyword struct {
	ID   int64
	Text string
}

// QuestionRow is the insert payload of the QUESTION table.
type QuestionRow struct {
	ExternalID  string
	Category    string
	Subcategory string
	Title       string
	Body        string
	PostedAt    time.Time
	URL         string
	UserID      *int64
	IngestedAt  time.Time
}

// AnswerRow is the insert payload of the ANSWER table.
type AnswerRow struct {
	ExternalID    string
	UserID        *int64
	QuestionID    int64
	PostedAt      *time.Time
	Body          string
	UserPercent   *int
	AnswerPercent *int
}

// Store owns the connection and hands out transactions.
type Store interface {
	// WithTx runs fn inside one transaction. The transaction commits when fn
	// returns nil and rolls back otherwise.
	WithTx(ctx context.Context, fn func(Tx) error) error
	// AnswerCount returns how many stored answers of the question were not
	// written by its asker, or nil when the question is not stored.
	AnswerCount(ctx context.Context, externalID string) (*int, error)
	// Ping checks that the database is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Tx is the set of statements the loader runs inside a transaction.
// Find methods return nil without error when no row matches.
type Tx interface {
	FindUser(ctx context.Context, name string) (*User, error)
	InsertUser(ctx context.Context, name string, percent *int) (int64, error)
	UpdateUserPercent(ctx context.Context, id int64, percent int) error
	FindKeyword(ctx context.Context, text string) (*Keyword, error)
	InsertKeyword(ctx context.Context, text string) (int64, error)
	QuestionID(ctx context.Context, externalID string) (*int64, error)
	InsertQuestion(ctx context.Context, q QuestionRow) (int64, error)
	// DeleteQuestion removes the question and, by cascade, its answers and
	// keyword links. It reports whether a row was deleted.
	DeleteQuestion(ctx context.Context, externalID string) (bool, error)
	LinkExists(ctx context.Context, questionID, keywordID int64) (bool, error)
	InsertLink(ctx context.Context, questionID, keywordID int64) error
	InsertAnswer(ctx context.Context, a AnswerRow) (int64, error)
}
