package imagestore

import (
	"context"
	"io"
)

// NewForTest creates a GCS store whose objects are handed to write
func NewForTest(bucket, prefix string, write func(object, contentType string) io.WriteCloser) *GCS {
	return &GCS{
		bucket: bucket,
		prefix: prefix,
		writer: func(_ context.Context, object, contentType string) io.WriteCloser {
			return write(object, contentType)
		},
	}
}
