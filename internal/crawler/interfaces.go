package crawler

import (
	"context"
	"time"
)

// Store is the write contract the ingest pipeline requires.
type Store interface {
	FindByID(ctx context.Context, externalID string) (Record, bool, error)
	// InsertIfAbsent commits rec unless a record with the same ExternalID exists.
	// The check and the insert happen atomically at the store.
	InsertIfAbsent(ctx context.Context, rec Record) (Outcome, error)
}

// Catalog is the read side consumed by the query facade.
type Catalog interface {
	FindByID(ctx context.Context, externalID string) (Record, bool, error)
	Find(ctx context.Context, q Query) ([]Record, error)
	Count(ctx context.Context) (int, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes ingest events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Queue provides enqueue/dequeue semantics for item tasks.
type Queue interface {
	Enqueue(ctx context.Context, task ItemTask) error
	Dequeue(ctx context.Context) (ItemTask, error)
	Close()
}

// RetryPolicy decides whether and when a failed operation is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Hasher computes digests for archive object names.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl run IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
