// Package collyfetcher implements crawler.Fetcher using gocolly.
package collyfetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/metrics"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// RequestDelay is slept before every HTTP request, retries included.
	RequestDelay   time.Duration
	MaxRetries     int
	BackoffInitial time.Duration
	RetryStatuses  []int
	// BlockCooldown is slept after a captcha or ban page before trying again.
	BlockCooldown time.Duration
	// BlockMaxRetries caps consecutive blocked attempts. Zero retries forever.
	BlockMaxRetries int
}

// DefaultConfig mirrors the site etiquette the scraper has always used.
func DefaultConfig() Config {
	return Config{
		UserAgent:      "gyik-crawler/1.0 (+https://github.com/JakeFAU/gyik-crawler)",
		Timeout:        30 * time.Second,
		RequestDelay:   3 * time.Second,
		MaxRetries:     3,
		BackoffInitial: 300 * time.Millisecond,
		RetryStatuses:  []int{http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout},
		BlockCooldown:  30 * time.Second,
	}
}

// Fetcher implements crawler.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	logger        *zap.Logger
	pauser        crawler.Pauser
	clock         func() time.Time
	baseCollector *colly.Collector
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithPauser replaces the timer-based pauser, mostly for tests.
func WithPauser(p crawler.Pauser) Option {
	return func(f *Fetcher) {
		if p != nil {
			f.pauser = p
		}
	}
}

// WithClock overrides the FetchedAt time source.
func WithClock(c crawler.Clock) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.clock = c.Now
		}
	}
}

// WithTransport swaps the pooled HTTP transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) {
		if rt != nil {
			f.baseCollector.WithTransport(rt)
		}
	}
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// visitResult collects what the colly callbacks observed for one request.
type visitResult struct {
	finalURL    string
	status      int
	contentType string
	body        []byte
	err         error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger, opts ...Option) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.DetectCharset = true
	c.WithTransport(newHTTPTransport())

	f := &Fetcher{
		cfg:           cfg,
		logger:        logger.Named("fetcher"),
		pauser:        crawler.TimerPauser{},
		clock:         time.Now,
		baseCollector: c,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves url as a parsed document. Transient failures are retried
// with backoff; captcha and ban pages trigger a cooldown and another attempt.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	blocked := 0
	for {
		start := time.Now()
		page, err := f.fetchWithRetry(ctx, url)
		if err != nil {
			switch {
			case errors.Is(err, crawler.ErrEmptyPage):
				metrics.ObserveFetch(metrics.FetchEmpty, 0, time.Since(start))
			case ctx.Err() == nil:
				metrics.ObserveFetch(metrics.FetchError, 0, time.Since(start))
			}
			return crawler.Page{}, err
		}

		kind, isBlocked := DetectBlock(page.Doc)
		if !isBlocked {
			metrics.ObserveFetch(metrics.FetchOK, len(page.Body), time.Since(start))
			return page, nil
		}

		blocked++
		metrics.ObserveFetch(metrics.FetchBlocked, len(page.Body), time.Since(start))
		metrics.ObserveBlock(string(kind))
		blockErr := &crawler.BlockedError{URL: url, Kind: kind}
		if f.cfg.BlockMaxRetries > 0 && blocked > f.cfg.BlockMaxRetries {
			return crawler.Page{}, &crawler.ExhaustedRetriesError{URL: url, Attempts: blocked, Last: blockErr}
		}
		f.logger.Warn("blocked by site, cooling down",
			zap.String("url", url),
			zap.String("kind", string(kind)),
			zap.Int("attempt", blocked),
			zap.Duration("cooldown", f.cfg.BlockCooldown),
		)
		if err := f.pauser.Pause(ctx, f.cfg.BlockCooldown); err != nil {
			return crawler.Page{}, fmt.Errorf("block cooldown: %w", err)
		}
	}
}

func (f *Fetcher) fetchWithRetry(ctx context.Context, url string) (crawler.Page, error) {
	var (
		attempts int
		last     visitResult
	)
	backoff := retry.WithMaxRetries(uint64(max(f.cfg.MaxRetries, 0)), retry.NewExponential(f.backoffBase()))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		if attempts > 1 {
			metrics.ObserveRetry()
			f.logger.Debug("retrying fetch",
				zap.String("url", url),
				zap.Int("attempt", attempts),
				zap.Int("status", last.status),
			)
		}
		if err := f.pauser.Pause(ctx, f.cfg.RequestDelay); err != nil {
			return fmt.Errorf("politeness pause: %w", err)
		}

		res, err := f.visit(ctx, url)
		last = res
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return retry.RetryableError(err)
		}
		if res.status >= 200 && res.status < 300 {
			return nil
		}
		statusErr := fmt.Errorf("unexpected status %d", res.status)
		if f.retryable(res.status) {
			return retry.RetryableError(statusErr)
		}
		return statusErr
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return crawler.Page{}, fmt.Errorf("fetch %s: %w", url, ctxErr)
		}
		return crawler.Page{}, &crawler.FetchError{URL: url, StatusCode: last.status, Attempts: attempts, Err: err}
	}

	return f.buildPage(url, last)
}

func (f *Fetcher) buildPage(url string, res visitResult) (crawler.Page, error) {
	if len(bytes.TrimSpace(res.body)) == 0 {
		return crawler.Page{}, fmt.Errorf("fetch %s: %w", url, crawler.ErrEmptyPage)
	}
	if res.contentType != "" && !strings.Contains(strings.ToLower(res.contentType), "html") {
		return crawler.Page{}, fmt.Errorf("fetch %s: content type %q: %w", url, res.contentType, crawler.ErrEmptyPage)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.body))
	if err != nil {
		return crawler.Page{}, fmt.Errorf("fetch %s: parse html: %w", url, crawler.ErrEmptyPage)
	}
	if doc.Find("html").Length() == 0 || strings.TrimSpace(doc.Find("html").Text()) == "" {
		return crawler.Page{}, fmt.Errorf("fetch %s: no document content: %w", url, crawler.ErrEmptyPage)
	}

	finalURL := res.finalURL
	if finalURL == "" {
		finalURL = url
	}
	return crawler.Page{
		URL:        url,
		FinalURL:   finalURL,
		StatusCode: res.status,
		Body:       res.body,
		Doc:        doc,
		FetchedAt:  f.clock(),
	}, nil
}

func (f *Fetcher) visit(ctx context.Context, url string) (visitResult, error) {
	var res visitResult
	collector := f.buildCollector(ctx, &res)
	if err := f.runCollector(ctx, collector, url); err != nil {
		if res.err != nil {
			return res, fmt.Errorf("colly response failed: %w", res.err)
		}
		// colly reports 4xx/5xx as a visit error; the status is already captured.
		if res.status != 0 {
			return res, nil
		}
		return res, err
	}
	if res.err != nil && res.status == 0 {
		return res, fmt.Errorf("colly response failed: %w", res.err)
	}
	return res, nil
}

func (f *Fetcher) buildCollector(ctx context.Context, res *visitResult) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.Context = ctx
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	f.configureCollectorHooks(collector, res)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, res *visitResult) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept-Language", "hu-HU,hu;q=0.9")
	})

	hooks.OnResponse(func(r *colly.Response) {
		res.status = r.StatusCode
		res.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			res.contentType = r.Headers.Get("Content-Type")
		}
		if r.Request != nil && r.Request.URL != nil {
			res.finalURL = r.Request.URL.String()
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			res.status = r.StatusCode
			res.body = append([]byte(nil), r.Body...)
			return
		}
		res.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) retryable(status int) bool {
	return slices.Contains(f.cfg.RetryStatuses, status)
}

func (f *Fetcher) backoffBase() time.Duration {
	if f.cfg.BackoffInitial <= 0 {
		return 300 * time.Millisecond
	}
	return f.cfg.BackoffInitial
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
