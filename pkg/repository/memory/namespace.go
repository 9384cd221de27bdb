package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type namespaceRepository struct {
	mu         sync.RWMutex
	namespaces map[types.NamespaceID]*model.Namespace
}

func newNamespaceRepository() *namespaceRepository {
	return &namespaceRepository{
		namespaces: make(map[types.NamespaceID]*model.Namespace),
	}
}

func copyNamespace(ns *model.Namespace) *model.Namespace {
	copied := *ns
	return &copied
}

func (r *namespaceRepository) Upsert(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	id := ns.ID.OrDefault()
	if existing, ok := r.namespaces[id]; ok {
		existing.UpdatedAt = now
		if ns.Description != "" {
			existing.Description = ns.Description
		}
		return copyNamespace(existing), nil
	}

	created := copyNamespace(ns)
	created.ID = id
	if created.Name == "" {
		created.Name = id.String()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	r.namespaces[id] = created
	return copyNamespace(created), nil
}

func (r *namespaceRepository) Create(ctx context.Context, ns *model.Namespace) (*model.Namespace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := ns.ID.OrDefault()
	if _, ok := r.namespaces[id]; ok {
		return nil, goerr.Wrap(model.ErrNamespaceExists, "namespace already exists", goerr.V(model.NamespaceKey, id))
	}

	now := time.Now().UTC()
	created := copyNamespace(ns)
	created.ID = id
	if created.Name == "" {
		created.Name = id.String()
	}
	created.CreatedAt = now
	created.UpdatedAt = now
	r.namespaces[id] = created
	return copyNamespace(created), nil
}

func (r *namespaceRepository) Get(ctx context.Context, id types.NamespaceID) (*model.Namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ns, ok := r.namespaces[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
	}
	return copyNamespace(ns), nil
}

func (r *namespaceRepository) List(ctx context.Context) ([]*model.Namespace, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Namespace, 0, len(r.namespaces))
	for _, ns := range r.namespaces {
		result = append(result, copyNamespace(ns))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r *namespaceRepository) Delete(ctx context.Context, id types.NamespaceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.namespaces[id]; !ok {
		return goerr.Wrap(model.ErrNotFound, "namespace not found", goerr.V(model.NamespaceKey, id))
	}
	delete(r.namespaces, id)
	return nil
}
