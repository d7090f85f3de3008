package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL as a parsed document.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes ingestion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
