package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage. Implemented by the S3 blob
// writer; the archiver is its only consumer.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
