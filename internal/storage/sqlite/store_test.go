package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/storage"
)

func TestOpenCreatesSchema(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gyik.db")
	s, err := Open(context.Background(), path, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()

	for _, tbl := range []string{"KEYWORD", "USER", "QUESTION", "ANSWER", "QUESTION_KEYWORD"} {
		var name string
		err := s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, tbl).Scan(&name)
		require.NoError(t, err, tbl)
	}

	// reopening an existing file keeps the schema
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Ping(context.Background()))
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "", zap.NewNop())
	require.Error(t, err)
}

func TestUserRoundTrip(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		u, err := tx.FindUser(ctx, "alice")
		require.NoError(t, err)
		require.Nil(t, u)

		id, err := tx.InsertUser(ctx, "alice", nil)
		require.NoError(t, err)

		require.NoError(t, tx.UpdateUserPercent(ctx, id, 80))
		u, err = tx.FindUser(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, id, u.ID)
		require.Equal(t, 80, *u.Percent)
		return nil
	})
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithTx(ctx, func(tx storage.Tx) error {
		_, err := tx.InsertKeyword(ctx, "fizika")
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		k, err := tx.FindKeyword(ctx, "fizika")
		require.NoError(t, err)
		require.Nil(t, k)
		return nil
	}))
}

func TestAnswerCountExcludesAsker(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	count, err := s.AnswerCount(ctx, "404")
	require.NoError(t, err)
	require.Nil(t, count)

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		asker, err := tx.InsertUser(ctx, "kerdezo", nil)
		require.NoError(t, err)
		other, err := tx.InsertUser(ctx, "valaszolo", nil)
		require.NoError(t, err)

		known := insertQuestion(t, tx, "1", &asker)
		insertAnswer(t, tx, known, "11", &other)
		insertAnswer(t, tx, known, "12", &asker)
		insertAnswer(t, tx, known, "13", nil)

		unknown := insertQuestion(t, tx, "2", nil)
		insertAnswer(t, tx, unknown, "21", &asker)
		insertAnswer(t, tx, unknown, "22", nil)

		insertQuestion(t, tx, "3", &asker)
		return nil
	}))

	for id, want := range map[string]int{"1": 2, "2": 2, "3": 0} {
		got, err := s.AnswerCount(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, got, id)
		require.Equal(t, want, *got, id)
	}
}

func TestDeleteQuestionCascades(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		qid := insertQuestion(t, tx, "7", nil)
		insertAnswer(t, tx, qid, "71", nil)
		kid, err := tx.InsertKeyword(ctx, "ég")
		require.NoError(t, err)
		require.NoError(t, tx.InsertLink(ctx, qid, kid))

		exists, err := tx.LinkExists(ctx, qid, kid)
		require.NoError(t, err)
		require.True(t, exists)

		deleted, err := tx.DeleteQuestion(ctx, "7")
		require.NoError(t, err)
		require.True(t, deleted)

		deleted, err = tx.DeleteQuestion(ctx, "7")
		require.NoError(t, err)
		require.False(t, deleted)
		return nil
	}))

	for _, tbl := range []string{"ANSWER", "QUESTION_KEYWORD", "QUESTION"} {
		var n int
		require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM `+tbl).Scan(&n))
		require.Zero(t, n, tbl)
	}
	var keywords int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM KEYWORD`).Scan(&keywords))
	require.Equal(t, 1, keywords)
}

func TestAnswerExternalIDUniquePerQuestion(t *testing.T) {
	t.Parallel()

	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(tx storage.Tx) error {
		q1 := insertQuestion(t, tx, "1", nil)
		q2 := insertQuestion(t, tx, "2", nil)
		insertAnswer(t, tx, q1, "100", nil)
		insertAnswer(t, tx, q2, "100", nil)

		_, err := tx.InsertAnswer(ctx, storage.AnswerRow{ExternalID: "100", QuestionID: q1})
		require.Error(t, err)
		return nil
	}))
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertQuestion(t *testing.T, tx storage.Tx, externalID string, userID *int64) int64 {
	t.Helper()
	now := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	id, err := tx.InsertQuestion(context.Background(), storage.QuestionRow{
		ExternalID:  externalID,
		Category:    "Kat",
		Subcategory: "Alkat",
		Title:       "Cím " + externalID,
		PostedAt:    now,
		URL:         "https://www.gyakorikerdesek.hu/kat__alkat__" + externalID + "-cim",
		UserID:      userID,
		IngestedAt:  now,
	})
	require.NoError(t, err)
	return id
}

func insertAnswer(t *testing.T, tx storage.Tx, questionID int64, externalID string, userID *int64) {
	t.Helper()
	_, err := tx.InsertAnswer(context.Background(), storage.AnswerRow{
		ExternalID: externalID,
		QuestionID: questionID,
		UserID:     userID,
		Body:       "válasz",
	})
	require.NoError(t, err)
}
