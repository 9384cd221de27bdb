// Package imagestore keeps the image bytes of reference cases in Cloud Storage. The
// returned reference has the form gs://bucket/object and is stored as the ImageRef of
// the case.
package imagestore

import (
	"context"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type objectWriter func(ctx context.Context, object, contentType string) io.WriteCloser

type GCS struct {
	bucket string
	prefix string
	client *storage.Client
	writer objectWriter
}

var _ interfaces.ImageStore = &GCS{}

type Option func(*GCS)

// WithPrefix puts all objects under the given path prefix
func WithPrefix(prefix string) Option {
	return func(g *GCS) {
		g.prefix = strings.Trim(prefix, "/")
	}
}

func New(ctx context.Context, bucket string, opts ...Option) (*GCS, error) {
	if bucket == "" {
		return nil, goerr.New("bucket is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	g := &GCS{
		bucket: bucket,
		client: client,
		writer: func(ctx context.Context, object, contentType string) io.WriteCloser {
			w := client.Bucket(bucket).Object(object).NewWriter(ctx)
			w.ContentType = contentType
			return w
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Put uploads the image as <prefix>/<namespace>/<category>/<uuid><ext>
func (g *GCS) Put(ctx context.Context, ns types.NamespaceID, category types.CategoryID, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	object := path.Join(g.prefix, ns.String(), category.String(), uuid.NewString()+extension(contentType))

	w := g.writer(ctx, object, contentType)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", goerr.Wrap(err, "failed to write image object",
			goerr.V("bucket", g.bucket), goerr.V("object", object), goerr.V(model.NamespaceKey, ns))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize image object",
			goerr.V("bucket", g.bucket), goerr.V("object", object), goerr.V(model.NamespaceKey, ns))
	}

	return "gs://" + g.bucket + "/" + object, nil
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	if err := g.client.Close(); err != nil {
		return goerr.Wrap(err, "failed to close storage client")
	}
	return nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/jpeg":
		return ".jpg"
	default:
		return ""
	}
}
