// Package archive snapshots fetched pages to a blob store.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/gyik-crawler/internal/crawler"
	"github.com/JakeFAU/gyik-crawler/internal/metrics"
)

const contentType = "text/html; charset=utf-8"

// Fetcher wraps another Fetcher and writes every successfully fetched body
// to <prefix>/<yyyy-mm-dd>/<sha256>.html. Archive failures never fail the fetch.
type Fetcher struct {
	next   crawler.Fetcher
	store  crawler.BlobStore
	hasher crawler.Hasher
	clock  crawler.Clock
	prefix string
	logger *zap.Logger
}

// New builds an archiving Fetcher.
func New(next crawler.Fetcher, store crawler.BlobStore, hasher crawler.Hasher, clock crawler.Clock, prefix string, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		next:   next,
		store:  store,
		hasher: hasher,
		clock:  clock,
		prefix: strings.Trim(prefix, "/"),
		logger: logger.Named("archive"),
	}
}

// Fetch delegates to the wrapped Fetcher and archives the body.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.Page, error) {
	page, err := f.next.Fetch(ctx, url)
	if err != nil {
		return page, err
	}
	uri, err := f.put(ctx, page)
	if err != nil {
		metrics.ObserveArchive("error")
		f.logger.Warn("archive page failed", zap.String("url", url), zap.Error(err))
		return page, nil
	}
	metrics.ObserveArchive("ok")
	f.logger.Debug("page archived", zap.String("url", url), zap.String("uri", uri))
	return page, nil
}

func (f *Fetcher) put(ctx context.Context, page crawler.Page) (string, error) {
	if len(page.Body) == 0 {
		return "", fmt.Errorf("nothing to archive")
	}
	digest, err := f.hasher.Hash(page.Body)
	if err != nil {
		return "", fmt.Errorf("hash body: %w", err)
	}
	return f.store.PutObject(ctx, f.Path(page, digest), contentType, bytes.NewReader(page.Body))
}

// Path returns the object path for a page body with the given digest.
func (f *Fetcher) Path(page crawler.Page, digest string) string {
	at := page.FetchedAt
	if at.IsZero() {
		at = f.clock.Now()
	}
	day := at.Format("2006-01-02")
	if f.prefix == "" {
		return fmt.Sprintf("%s/%s.html", day, digest)
	}
	return fmt.Sprintf("%s/%s/%s.html", f.prefix, day, digest)
}
