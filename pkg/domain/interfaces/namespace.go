package interfaces

import (
	"context"

	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

// NamespaceRepository keeps the registry of known namespaces
type NamespaceRepository interface {
	// Upsert creates the namespace or refreshes its UpdatedAt
	Upsert(ctx context.Context, ns *model.Namespace) (*model.Namespace, error)

	// Create fails with model.ErrNamespaceExists if the namespace is already registered
	Create(ctx context.Context, ns *model.Namespace) (*model.Namespace, error)

	// Get returns model.ErrNotFound for an unknown namespace
	Get(ctx context.Context, id types.NamespaceID) (*model.Namespace, error)

	// List returns all namespaces ordered by ID
	List(ctx context.Context) ([]*model.Namespace, error)

	// Delete removes the namespace entry only. Reference cases are cleared separately.
	Delete(ctx context.Context, id types.NamespaceID) error
}
