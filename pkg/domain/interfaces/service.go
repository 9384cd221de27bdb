package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// Embedder converts an image into a fixed length feature vector. Errors wrap model.ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, image []byte) ([]float32, error)
	// Dimension returns the vector length, or 0 if it is only known after the first call
	Dimension() int
}

// Judge asks a vision model whether an image satisfies question. Errors wrap model.ErrJudgment.
type Judge interface {
	Judge(ctx context.Context, image []byte, question string) (*model.Verdict, error)
	// Name identifies the model in validation results
	Name() string
}

// ImageStore persists reference image bytes and returns a reference to them
type ImageStore interface {
	Put(ctx context.Context, ns types.NamespaceID, category types.CategoryID, data []byte, contentType string) (string, error)
}

// NamespaceCache remembers namespaces that are known to hold no reference cases, so the
// nearest neighbor lookup can be skipped for them. Entries are dropped by Sweep once
// they are older than the cache TTL.
type NamespaceCache interface {
	MarkCleared(ctx context.Context, ns types.NamespaceID, now time.Time) error
	MarkPopulated(ctx context.Context, ns types.NamespaceID) error
	IsKnownEmpty(ctx context.Context, ns types.NamespaceID, now time.Time) (bool, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}
