// Package loader writes assembled question documents to storage in
// dependency order inside a single transaction.
package loader

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/storage"
)

// Result summarizes a committed document.
type Result struct {
	QuestionID int64
	Answers    int
	Keywords   int
	// Replaced is set when Replace removed a previously stored graph.
	Replaced bool
}

// Loader persists question documents.
type Loader struct {
	store  storage.Store
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds a Loader.
func New(store storage.Store, clock crawler.Clock, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{store: store, clock: clock, logger: logger.Named("loader")}
}

// Load inserts the document: asker, question, keyword links, then answers.
// A question whose external id is already stored fails with
// crawler.ErrDuplicateQuestion. Any failure rolls the whole graph back.
func (l *Loader) Load(ctx context.Context, doc crawler.QuestionDocument) (Result, error) {
	if err := Validate(doc.Question); err != nil {
		return Result{}, err
	}
	var res Result
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		var err error
		res, err = l.insert(ctx, tx, doc)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("load question %s: %w", doc.Question.ExternalID, err)
	}
	return res, nil
}

// Replace deletes any stored graph for the document's external id and
// inserts the document in the same transaction.
func (l *Loader) Replace(ctx context.Context, doc crawler.QuestionDocument) (Result, error) {
	if err := Validate(doc.Question); err != nil {
		return Result{}, err
	}
	var res Result
	err := l.store.WithTx(ctx, func(tx storage.Tx) error {
		deleted, err := tx.DeleteQuestion(ctx, doc.Question.ExternalID)
		if err != nil {
			return err
		}
		res, err = l.insert(ctx, tx, doc)
		res.Replaced = deleted
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("replace question %s: %w", doc.Question.ExternalID, err)
	}
	return res, nil
}

// Validate checks the fields every stored question must carry.
func Validate(q crawler.QuestionRecord) error {
	required := []struct {
		field string
		ok    bool
	}{
		{"external_id", strings.TrimSpace(q.ExternalID) != ""},
		{"url", strings.TrimSpace(q.URL) != ""},
		{"title", strings.TrimSpace(q.Title) != ""},
		{"category", strings.TrimSpace(q.Category) != ""},
		{"subcategory", strings.TrimSpace(q.Subcategory) != ""},
		{"posted_at", q.PostedAt != nil},
	}
	for _, r := range required {
		if !r.ok {
			return &crawler.MissingRequiredFieldError{Field: r.field, Source: q.URL}
		}
	}
	return nil
}

func (l *Loader) insert(ctx context.Context, tx storage.Tx, doc crawler.QuestionDocument) (Result, error) {
	q := doc.Question
	logger := l.logger.With(zap.String("external_id", q.ExternalID))

	var askerID *int64
	if q.Asker != "" {
		id, err := l.ResolveOrCreateUser(ctx, tx, q.Asker, nil)
		if err != nil {
			return Result{}, err
		}
		askerID = &id
	}

	existing, err := tx.QuestionID(ctx, q.ExternalID)
	if err != nil {
		return Result{}, err
	}
	if existing != nil {
		return Result{}, fmt.Errorf("external id %s: %w", q.ExternalID, crawler.ErrDuplicateQuestion)
	}
	questionID, err := tx.InsertQuestion(ctx, storage.QuestionRow{
		ExternalID:  q.ExternalID,
		Category:    q.Category,
		Subcategory: q.Subcategory,
		Title:       q.Title,
		Body:        q.Body,
		PostedAt:    *q.PostedAt,
		URL:         q.URL,
		UserID:      askerID,
		IngestedAt:  l.clock.Now(),
	})
	if err != nil {
		return Result{}, err
	}
	res := Result{QuestionID: questionID}

	for _, kw := range q.Keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		keywordID, err := l.ResolveOrCreateKeyword(ctx, tx, kw)
		if err != nil {
			return Result{}, err
		}
		linked, err := tx.LinkExists(ctx, questionID, keywordID)
		if err != nil {
			return Result{}, err
		}
		if linked {
			logger.Warn("keyword already linked", zap.String("keyword", kw))
			continue
		}
		if err := tx.InsertLink(ctx, questionID, keywordID); err != nil {
			return Result{}, err
		}
		res.Keywords++
	}

	seen := make(map[string]struct{}, len(doc.Answers))
	for _, a := range doc.Answers {
		if _, dup := seen[a.ExternalID]; dup {
			logger.Warn("duplicate answer in thread", zap.String("answer_id", a.ExternalID))
			continue
		}
		seen[a.ExternalID] = struct{}{}

		var responderID *int64
		if a.Responder != "" {
			id, err := l.ResolveOrCreateUser(ctx, tx, a.Responder, a.UserPercent)
			if err != nil {
				return Result{}, err
			}
			responderID = &id
		}
		if _, err := tx.InsertAnswer(ctx, storage.AnswerRow{
			ExternalID:    a.ExternalID,
			UserID:        responderID,
			QuestionID:    questionID,
			PostedAt:      a.PostedAt,
			Body:          a.Body,
			UserPercent:   a.UserPercent,
			AnswerPercent: a.AnswerPercent,
		}); err != nil {
			return Result{}, fmt.Errorf("answer %s: %w", a.ExternalID, err)
		}
		res.Answers++
	}
	return res, nil
}

// ResolveOrCreateUser returns the id of the named user, creating it when
// missing. A stored percent is only ever filled in, never overwritten.
func (l *Loader) ResolveOrCreateUser(ctx context.Context, tx storage.Tx, name string, percent *int) (int64, error) {
	u, err := tx.FindUser(ctx, name)
	if err != nil {
		return 0, err
	}
	if u == nil {
		return tx.InsertUser(ctx, name, percent)
	}
	if u.Percent == nil && percent != nil {
		if err := tx.UpdateUserPercent(ctx, u.ID, *percent); err != nil {
			return 0, err
		}
		l.logger.Debug("user percent filled in", zap.String("user", name), zap.Int("percent", *percent))
	}
	return u.ID, nil
}

// ResolveOrCreateKeyword returns the id of the keyword, creating it when missing.
func (l *Loader) ResolveOrCreateKeyword(ctx context.Context, tx storage.Tx, text string) (int64, error) {
	k, err := tx.FindKeyword(ctx, text)
	if err != nil {
		return 0, err
	}
	if k != nil {
		return k.ID, nil
	}
	return tx.InsertKeyword(ctx, text)
}
