// Package worker implements the crawl loop over category list pages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/loader"
	"github.com/JakeFAU/gyik-crawler/internal/metrics"
	"github.com/JakeFAU/gyik-crawler/internal/parser"
)

// Decision is what the crawl does with one listed question.
type Decision string

// Crawl decisions.
const (
	DecisionIngest   Decision = "ingest"
	DecisionSkip     Decision = "skip"
	DecisionReingest Decision = "reingest"
	// DecisionForce is used by direct single-question ingestion.
	DecisionForce Decision = "force"
)

// Decide compares the stored answer count with the count shown on the list
// page. An unseen question is ingested, a changed count triggers a
// re-ingest, and anything else is skipped.
func Decide(stored, observed *int) Decision {
	switch {
	case stored == nil:
		return DecisionIngest
	case observed == nil:
		return DecisionSkip
	case *stored == *observed:
		return DecisionSkip
	default:
		return DecisionReingest
	}
}

// Assembler builds a full thread from its first page URL.
type Assembler interface {
	Assemble(ctx context.Context, url string) (crawler.QuestionDocument, error)
}

// Loader persists assembled threads.
type Loader interface {
	Load(ctx context.Context, doc crawler.QuestionDocument) (loader.Result, error)
	Replace(ctx context.Context, doc crawler.QuestionDocument) (loader.Result, error)
}

// AnswerCounter reports how many answers are stored for a question.
type AnswerCounter interface {
	AnswerCount(ctx context.Context, externalID string) (*int, error)
}

// Config controls Worker behavior.
type Config struct {
	BaseURL string
	Topic   string
}

// Stats counts what a crawl run did.
type Stats struct {
	RunID      string    `json:"run_id"`
	ListPages  int       `json:"list_pages"`
	Seen       int       `json:"seen"`
	Ingested   int       `json:"ingested"`
	Reingested int       `json:"reingested"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	Published  int       `json:"published"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Worker drives list pages through the assembler and loader, one question
// at a time.
type Worker struct {
	fetcher   crawler.Fetcher
	parser    *parser.Parser
	assembler Assembler
	loader    Loader
	counts    AnswerCounter
	publisher crawler.Publisher
	ids       crawler.IDGenerator
	clock     crawler.Clock
	cfg       Config
	logger    *zap.Logger

	mu    sync.Mutex
	stats Stats
}

// New constructs a Worker. publisher and ids may be nil.
func New(
	fetcher crawler.Fetcher,
	p *parser.Parser,
	assembler Assembler,
	ld Loader,
	counts AnswerCounter,
	publisher crawler.Publisher,
	ids crawler.IDGenerator,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:   fetcher,
		parser:    p,
		assembler: assembler,
		loader:    ld,
		counts:    counts,
		publisher: publisher,
		ids:       ids,
		clock:     clock,
		cfg:       cfg,
		logger:    logger.Named("worker"),
	}
}

// Stats returns a snapshot of the current or last run.
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// ResolveEndPage reads the last list page of path from the category's
// first page. A listing without a pager has a single page.
func (w *Worker) ResolveEndPage(ctx context.Context, path string, start int) (int, error) {
	url := strings.TrimRight(w.cfg.BaseURL, "/") + "/" + strings.Trim(path, "/")
	page, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		return 0, fmt.Errorf("resolve end page: %w", err)
	}
	last := w.parser.LastListPage(page.Doc)
	if last == nil {
		w.logger.Info("list has no pager, crawling a single page", zap.String("path", path))
		return start, nil
	}
	return *last, nil
}

// Run crawls list pages start..end of path. end <= 0 resolves the last page
// from the site. A list page that cannot be fetched ends the run with an
// error; failures on single questions are logged and counted.
func (w *Worker) Run(ctx context.Context, start, end int, path string) (Stats, error) {
	if start < 1 {
		return Stats{}, &crawler.ConfigurationError{Key: "crawl.start_page", Reason: "must be at least 1"}
	}
	if path == "" {
		return Stats{}, &crawler.ConfigurationError{Key: "crawl.category", Reason: "required"}
	}
	if end <= 0 {
		resolved, err := w.ResolveEndPage(ctx, path, start)
		if err != nil {
			return Stats{}, err
		}
		end = resolved
	}
	if end < start {
		return Stats{}, &crawler.ConfigurationError{
			Key:    "crawl.end_page",
			Reason: fmt.Sprintf("end page %d is before start page %d", end, start),
		}
	}

	w.begin()
	logger := w.logger.With(zap.String("run_id", w.Stats().RunID), zap.String("path", path))
	logger.Info("crawl started", zap.Int("start_page", start), zap.Int("end_page", end))

	for n := start; n <= end; n++ {
		if err := ctx.Err(); err != nil {
			return w.finish(), fmt.Errorf("crawl interrupted: %w", err)
		}
		url := crawler.ListPageURL(w.cfg.BaseURL, path, n)
		page, err := w.fetcher.Fetch(ctx, url)
		if err != nil {
			metrics.ObserveListPage("error")
			logger.Error("list page fetch failed", zap.String("url", url), zap.Error(err))
			return w.finish(), fmt.Errorf("fetch list page %d: %w", n, err)
		}
		metrics.ObserveListPage("ok")
		w.update(func(s *Stats) { s.ListPages++ })

		entries := w.parser.ParseListPage(page.Doc)
		logger.Info("list page parsed", zap.Int("page", n), zap.Int("questions", len(entries)))
		for _, entry := range entries {
			if err := w.handleEntry(ctx, entry); err != nil {
				return w.finish(), fmt.Errorf("crawl interrupted: %w", err)
			}
		}
	}

	stats := w.finish()
	logger.Info("crawl finished",
		zap.Int("ingested", stats.Ingested),
		zap.Int("reingested", stats.Reingested),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}

// IngestQuestion assembles and stores a single thread, replacing any stored
// copy without comparing answer counts.
func (w *Worker) IngestQuestion(ctx context.Context, url string) (loader.Result, error) {
	w.begin()
	defer w.finish()
	w.update(func(s *Stats) { s.Seen++ })

	res, err := w.ingest(ctx, url, DecisionForce)
	if err != nil {
		metrics.ObserveQuestion(string(DecisionForce), "error")
		w.update(func(s *Stats) { s.Failed++ })
		return loader.Result{}, err
	}
	w.update(func(s *Stats) { s.Ingested++ })
	return res, nil
}

// handleEntry only returns an error when the context has ended.
func (w *Worker) handleEntry(ctx context.Context, entry crawler.ListEntry) error {
	logger := w.logger.With(zap.String("external_id", entry.ExternalID), zap.String("url", entry.URL))
	w.update(func(s *Stats) { s.Seen++ })

	stored, err := w.counts.AnswerCount(ctx, entry.ExternalID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("answer count lookup failed", zap.Error(err))
		metrics.ObserveQuestion("unknown", "error")
		w.update(func(s *Stats) { s.Failed++ })
		return nil
	}

	decision := Decide(stored, entry.ObservedAnswers)
	if decision == DecisionSkip {
		logger.Debug("question up to date", zap.Intp("stored", stored), zap.Intp("observed", entry.ObservedAnswers))
		metrics.ObserveQuestion(string(decision), "ok")
		w.update(func(s *Stats) { s.Skipped++ })
		return nil
	}

	if _, err := w.ingest(ctx, entry.URL, decision); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Error("question ingest failed", zap.String("decision", string(decision)), zap.Error(err))
		metrics.ObserveQuestion(string(decision), "error")
		w.update(func(s *Stats) { s.Failed++ })
		return nil
	}
	w.update(func(s *Stats) {
		if decision == DecisionReingest {
			s.Reingested++
		} else {
			s.Ingested++
		}
	})
	return nil
}

func (w *Worker) ingest(ctx context.Context, url string, decision Decision) (loader.Result, error) {
	doc, err := w.assembler.Assemble(ctx, url)
	if err != nil {
		return loader.Result{}, fmt.Errorf("assemble %s: %w", url, err)
	}

	var res loader.Result
	if decision == DecisionIngest {
		res, err = w.loader.Load(ctx, doc)
	} else {
		res, err = w.loader.Replace(ctx, doc)
	}
	if err != nil {
		return loader.Result{}, err
	}
	metrics.ObserveQuestion(string(decision), "ok")
	metrics.ObserveAnswers(res.Answers, 0)
	w.logger.Info("question stored",
		zap.String("external_id", doc.Question.ExternalID),
		zap.String("decision", string(decision)),
		zap.Int64("question_id", res.QuestionID),
		zap.Int("answers", res.Answers),
	)
	w.publish(ctx, doc, res, decision)
	return res, nil
}

func (w *Worker) publish(ctx context.Context, doc crawler.QuestionDocument, res loader.Result, decision Decision) {
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	event := crawler.IngestEvent{
		RunID:      w.Stats().RunID,
		ExternalID: doc.Question.ExternalID,
		QuestionID: res.QuestionID,
		Answers:    res.Answers,
		Action:     string(decision),
		URL:        doc.Question.URL,
		IngestedAt: w.clock.Now(),
	}
	msgID, err := w.publisher.Publish(ctx, w.cfg.Topic, event)
	if err != nil {
		w.logger.Warn("publish ingest event failed", zap.String("external_id", event.ExternalID), zap.Error(err))
		return
	}
	w.update(func(s *Stats) { s.Published++ })
	w.logger.Debug("ingest event published", zap.String("message_id", msgID))
}

func (w *Worker) begin() {
	runID := ""
	if w.ids != nil {
		id, err := w.ids.NewID()
		if err != nil {
			w.logger.Warn("run id generation failed", zap.Error(err))
		} else {
			runID = id
		}
	}
	w.mu.Lock()
	w.stats = Stats{RunID: runID, StartedAt: w.clock.Now()}
	w.mu.Unlock()
}

func (w *Worker) finish() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.FinishedAt = w.clock.Now()
	return w.stats
}

func (w *Worker) update(fn func(*Stats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

// IsFatal reports whether err should end the process with a failure status.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
