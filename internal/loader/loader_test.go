package loader

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/storage"
	"github.com/JakeFAU/gyik-crawler/internal/storage/sqlite"
)

var posted = time.Date(2023, time.March, 2, 11, 15, 0, 0, time.UTC)

func TestLoadWritesGraph(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())

	res, err := l.Load(context.Background(), sampleDoc("12345"))
	require.NoError(t, err)
	require.Positive(t, res.QuestionID)
	require.Equal(t, 3, res.Answers)
	require.Equal(t, 2, res.Keywords)
	require.False(t, res.Replaced)

	require.Equal(t, 1, countRows(t, store, "QUESTION"))
	require.Equal(t, 3, countRows(t, store, "ANSWER"))
	require.Equal(t, 2, countRows(t, store, "KEYWORD"))
	require.Equal(t, 2, countRows(t, store, "QUESTION_KEYWORD"))
	// kerdezo, bela; the anonymous answer has no user
	require.Equal(t, 2, countRows(t, store, `"USER"`))

	// the asker's own follow-up is not counted
	count, err := store.AnswerCount(context.Background(), "12345")
	require.NoError(t, err)
	require.Equal(t, 2, *count)
}

func TestLoadRejectsDuplicateQuestion(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())

	_, err := l.Load(context.Background(), sampleDoc("1"))
	require.NoError(t, err)

	_, err = l.Load(context.Background(), sampleDoc("1"))
	require.ErrorIs(t, err, crawler.ErrDuplicateQuestion)
	require.Equal(t, 1, countRows(t, store, "QUESTION"))
	require.Equal(t, 3, countRows(t, store, "ANSWER"))
}

func TestLoadValidatesRequiredFields(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())

	doc := sampleDoc("1")
	doc.Question.PostedAt = nil
	_, err := l.Load(context.Background(), doc)

	var mf *crawler.MissingRequiredFieldError
	require.ErrorAs(t, err, &mf)
	require.Equal(t, "posted_at", mf.Field)
	require.Zero(t, countRows(t, store, "QUESTION"))

	doc = sampleDoc("1")
	doc.Question.Subcategory = " "
	_, err = l.Replace(context.Background(), doc)
	require.ErrorIs(t, err, crawler.ErrMissingRequiredField)
}

func TestLoadIsAtomic(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	failing := &failingStore{Store: store, failAnswer: 3}
	l := New(failing, fixedClock{}, zap.NewNop())

	_, err := l.Load(context.Background(), sampleDoc("12345"))
	require.ErrorIs(t, err, errInjected)

	for _, table := range []string{"QUESTION", "ANSWER", "QUESTION_KEYWORD", "KEYWORD", `"USER"`} {
		require.Zero(t, countRows(t, store, table), table)
	}
	count, err := store.AnswerCount(context.Background(), "12345")
	require.NoError(t, err)
	require.Nil(t, count)
}

func TestResolveOrCreateUserFirstPercentWins(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(tx storage.Tx) error {
		first, err := l.ResolveOrCreateUser(ctx, tx, "alice", nil)
		require.NoError(t, err)

		second, err := l.ResolveOrCreateUser(ctx, tx, "alice", ptr(80))
		require.NoError(t, err)
		require.Equal(t, first, second)
		requirePercent(t, tx, "alice", 80)

		third, err := l.ResolveOrCreateUser(ctx, tx, "alice", ptr(50))
		require.NoError(t, err)
		require.Equal(t, first, third)
		requirePercent(t, tx, "alice", 80)
		return nil
	}))
	require.Equal(t, 1, countRows(t, store, `"USER"`))
}

func TestResolveOrCreateKeyword(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, store.WithTx(ctx, func(tx storage.Tx) error {
		a, err := l.ResolveOrCreateKeyword(ctx, tx, "fizika")
		require.NoError(t, err)
		b, err := l.ResolveOrCreateKeyword(ctx, tx, "fizika")
		require.NoError(t, err)
		require.Equal(t, a, b)
		return nil
	}))
	require.Equal(t, 1, countRows(t, store, "KEYWORD"))
}

func TestLoadDeduplicatesLinksAndAnswers(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())

	doc := sampleDoc("9")
	doc.Question.Keywords = []string{"ég", "ég", " ", "fizika"}
	doc.Answers = append(doc.Answers, doc.Answers[0])

	res, err := l.Load(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, 2, res.Keywords)
	require.Equal(t, 3, res.Answers)
	require.Equal(t, 2, countRows(t, store, "QUESTION_KEYWORD"))
	require.Equal(t, 3, countRows(t, store, "ANSWER"))
}

func TestReplaceSwapsStoredGraph(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	l := New(store, fixedClock{}, zap.NewNop())
	ctx := context.Background()

	first, err := l.Load(ctx, sampleDoc("12345"))
	require.NoError(t, err)

	doc := sampleDoc("12345")
	doc.Answers = append(doc.Answers, crawler.AnswerRecord{
		ExternalID: "104",
		Responder:  "geza",
		PostedAt:   &posted,
		Body:       "új válasz",
	})
	second, err := l.Replace(ctx, doc)
	require.NoError(t, err)
	require.True(t, second.Replaced)
	require.NotEqual(t, first.QuestionID, second.QuestionID)

	require.Equal(t, 1, countRows(t, store, "QUESTION"))
	require.Equal(t, 4, countRows(t, store, "ANSWER"))
	require.Equal(t, 2, countRows(t, store, "QUESTION_KEYWORD"))

	count, err := store.AnswerCount(ctx, "12345")
	require.NoError(t, err)
	require.Equal(t, 3, *count)

	fresh, err := l.Replace(ctx, sampleDoc("777"))
	require.NoError(t, err)
	require.False(t, fresh.Replaced)
}

func TestReplaceRollsBackDelete(t *testing.T) {
	t.Parallel()

	store := openStore(t)
	ctx := context.Background()
	_, err := New(store, fixedClock{}, zap.NewNop()).Load(ctx, sampleDoc("5"))
	require.NoError(t, err)

	failing := &failingStore{Store: store, failAnswer: 1}
	_, err = New(failing, fixedClock{}, zap.NewNop()).Replace(ctx, sampleDoc("5"))
	require.ErrorIs(t, err, errInjected)

	// the old graph survives the failed replacement
	require.Equal(t, 1, countRows(t, store, "QUESTION"))
	require.Equal(t, 3, countRows(t, store, "ANSWER"))
}

func sampleDoc(externalID string) crawler.QuestionDocument {
	return crawler.QuestionDocument{
		Question: crawler.QuestionRecord{
			ExternalID:  externalID,
			URL:         "https://www.gyakorikerdesek.hu/tudomanyok__fizika__" + externalID + "-miert-kek-az-eg",
			Title:       "Miért kék az ég?",
			Category:    "Tudományok",
			Subcategory: "Fizika",
			Body:        "Valaki elmagyarázná?",
			Keywords:    []string{"ég", "fizika"},
			Asker:       "kerdezo",
			PostedAt:    &posted,
		},
		Answers: []crawler.AnswerRecord{
			{ExternalID: "101", Responder: "bela", PostedAt: &posted, Body: "Rayleigh-szórás.", UserPercent: ptr(80), AnswerPercent: ptr(90)},
			{ExternalID: "102", Responder: "kerdezo", PostedAt: &posted, Body: "Köszönöm!"},
			{ExternalID: "103", Responder: "", PostedAt: &posted, Body: "Mert kék."},
		},
	}
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(context.Background(), sqlite.MemoryPath, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countRows(t *testing.T, s *sqlite.Store, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.DB().QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func requirePercent(t *testing.T, tx storage.Tx, name string, want int) {
	t.Helper()
	u, err := tx.FindUser(context.Background(), name)
	require.NoError(t, err)
	require.NotNil(t, u.Percent)
	require.Equal(t, want, *u.Percent)
}

func ptr(v int) *int {
	return &v
}

type fixedClock struct{}

func (fixedClock) Now() time.Time {
	return time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
}

var errInjected = errors.New("injected answer failure")

// failingStore fails the n-th InsertAnswer inside its transactions.
type failingStore struct {
	storage.Store
	failAnswer int
}

func (f *failingStore) WithTx(ctx context.Context, fn func(storage.Tx) error) error {
	return f.Store.WithTx(ctx, func(tx storage.Tx) error {
		return fn(&failingTx{Tx: tx, failAt: f.failAnswer})
	})
}

type failingTx struct {
	storage.Tx
	failAt int
	calls  int
}

func (f *failingTx) InsertAnswer(ctx context.Context, a storage.AnswerRow) (int64, error) {
	f.calls++
	if f.calls == f.failAt {
		return 0, errInjected
	}
	return f.Tx.InsertAnswer(ctx, a)
}
