// Package thread assembles a complete question document from the pages of
// a thread.
package thread

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/metrics"
	"github.com/JakeFAU/gyik-crawler/internal/parser"
)

// DefaultMaxPages bounds pagination when the thread pager is unreadable.
const DefaultMaxPages = 200

// Assembler walks a thread page by page.
type Assembler struct {
	fetcher  crawler.Fetcher
	parser   *parser.Parser
	clock    crawler.Clock
	maxPages int
	logger   *zap.Logger
}

// New builds an Assembler. maxPages <= 0 selects DefaultMaxPages.
func New(fetcher crawler.Fetcher, p *parser.Parser, clock crawler.Clock, maxPages int, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	return &Assembler{
		fetcher:  fetcher,
		parser:   p,
		clock:    clock,
		maxPages: maxPages,
		logger:   logger.Named("thread"),
	}
}

// Assemble fetches the first page of url, extracts the question and then
// follows the next-page links, appending answers in the order they appear.
// Follow-ups tagged with the OP sentinel are attributed to the asker when
// the asker's name is known.
func (a *Assembler) Assemble(ctx context.Context, url string) (crawler.QuestionDocument, error) {
	first, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return crawler.QuestionDocument{}, fmt.Errorf("fetch question page: %w", err)
	}
	question, err := a.parser.ParseQuestion(first.Doc, url, a.clock.Now())
	if err != nil {
		return crawler.QuestionDocument{}, fmt.Errorf("parse question: %w", err)
	}

	page := a.parser.ParseAnswers(first.Doc, a.clock.Now())
	answers := page.Answers
	skipped := page.Skipped

	limit := a.maxPages
	if last := a.parser.LastAnswerPage(first.Doc); last != nil && *last < limit {
		limit = *last
	}
	visited := map[string]struct{}{url: {}}
	if first.FinalURL != "" {
		visited[first.FinalURL] = struct{}{}
	}

	pages := 1
	for next := page.NextPage; next != ""; next = page.NextPage {
		if _, seen := visited[next]; seen {
			a.logger.Warn("answer pager points back to a visited page",
				zap.String("url", url),
				zap.String("next", next),
			)
			break
		}
		if pages >= limit {
			a.logger.Warn("answer page ceiling reached",
				zap.String("url", url),
				zap.Int("pages", pages),
				zap.Int("limit", limit),
			)
			break
		}
		visited[next] = struct{}{}

		doc, err := a.fetcher.Fetch(ctx, next)
		if err != nil {
			return crawler.QuestionDocument{}, fmt.Errorf("fetch answer page %d: %w", pages+1, err)
		}
		pages++
		page = a.parser.ParseAnswers(doc.Doc, a.clock.Now())
		answers = append(answers, page.Answers...)
		skipped += page.Skipped
	}

	if question.AskerKnown() {
		for i := range answers {
			if answers[i].IsOP() {
				answers[i].Responder = question.Asker
			}
		}
	}
	if skipped > 0 {
		metrics.ObserveAnswers(0, skipped)
	}

	a.logger.Debug("thread assembled",
		zap.String("external_id", question.ExternalID),
		zap.Int("pages", pages),
		zap.Int("answers", len(answers)),
		zap.Int("skipped", skipped),
	)
	return crawler.QuestionDocument{Question: question, Answers: answers}, nil
}
