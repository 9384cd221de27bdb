package interfaces

import (
	"context"

	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// ReferenceRepository stores reference cases and answers nearest neighbor queries
// scoped to one namespace and category.
type ReferenceRepository interface {
	// FindNearest returns up to limit cases whose cosine similarity to vector is strictly
	// greater than model.SimilarityFloor, ordered by similarity descending. Ties are ordered
	// by CreatedAt then ID. An empty (non-nil) slice is returned when nothing matches.
	FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error)

	// Store validates and persists the case, then returns its nearest neighbors
	// (limited to model.DefaultNeighborLimit). The namespace is registered on first use.
	Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error)

	// ClearNamespace removes every case of the namespace. Clearing an empty or unknown
	// namespace succeeds.
	ClearNamespace(ctx context.Context, ns types.NamespaceID) error

	// DeleteOne removes one case. model.ErrNotFound is returned if it does not exist.
	DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error

	// List returns cases of the namespace ordered by CreatedAt descending. page starts at 1.
	// Returns cases, total count, and error
	List(ctx context.Context, ns types.NamespaceID, page, limit int) ([]*model.ReferenceCase, int, error)

	// Stats counts the cases of the namespace per category
	Stats(ctx context.Context, ns types.NamespaceID) (*model.NamespaceStats, error)
}
