package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes one stored object, a confirmation video or an
// archive batch.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads to object storage. Video uploads go through
// PutMultipart; archive batches fit in a single Put.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobReader reads from object storage. GetRange backs HTTP range
// requests on the video stream endpoint.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	GetRange(ctx context.Context, path string, offset, length int64) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves aged rows from the database to cold storage.
type Archiver interface {
	ArchiveLedger(ctx context.Context, before time.Time) (int64, error)
	ArchiveWebhookEvents(ctx context.Context, before time.Time) (int64, error)
}
