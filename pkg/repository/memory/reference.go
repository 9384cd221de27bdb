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

type referenceRepository struct {
	mu         sync.RWMutex
	entries    map[types.NamespaceID]map[model.ReferenceID]*model.ReferenceCase
	dims       map[types.NamespaceID]int
	namespaces *namespaceRepository
	registry   *model.CategoryRegistry
}

func newReferenceRepository(namespaces *namespaceRepository) *referenceRepository {
	return &referenceRepository{
		entries:    make(map[types.NamespaceID]map[model.ReferenceID]*model.ReferenceCase),
		dims:       make(map[types.NamespaceID]int),
		namespaces: namespaces,
		registry:   model.DefaultCategoryRegistry(),
	}
}

func (r *referenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.findNearest(vector, category, ns, limit), nil
}

// findNearest must be called with the lock held
func (r *referenceRepository) findNearest(vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) []*model.SimilarCase {
	bucket, exists := r.entries[ns]
	if !exists {
		return []*model.SimilarCase{}
	}

	var candidates []*model.SimilarCase
	for _, ref := range bucket {
		if ref.Metadata.Category != category {
			continue
		}
		s := model.CosineSimilarity(vector, ref.Embedding)
		if s <= model.SimilarityFloor {
			continue
		}
		candidates = append(candidates, model.NewSimilarCase(ref, s))
	}

	return model.RankSimilarCases(candidates, limit)
}

func (r *referenceRepository) Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error) {
	if err := ref.Validate(r.registry); err != nil {
		return nil, err
	}

	if _, err := r.namespaces.Upsert(ctx, &model.Namespace{ID: ref.Namespace}); err != nil {
		return nil, goerr.Wrap(err, "failed to register namespace", goerr.V(model.NamespaceKey, ref.Namespace))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[ref.Namespace]
	if !exists {
		bucket = make(map[model.ReferenceID]*model.ReferenceCase)
		r.entries[ref.Namespace] = bucket
	}

	if dim, ok := r.dims[ref.Namespace]; ok && len(bucket) > 0 && dim != len(ref.Embedding) {
		return nil, goerr.Wrap(model.ErrDimensionMismatch, "embedding dimension differs from stored cases",
			goerr.V(model.NamespaceKey, ref.Namespace),
			goerr.V("expected", dim),
			goerr.V("actual", len(ref.Embedding)))
	}
	r.dims[ref.Namespace] = len(ref.Embedding)

	created := ref.Clone()
	if created.ID == "" {
		created.ID = model.NewReferenceID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}
	bucket[created.ID] = created

	return r.findNearest(created.Embedding, created.Metadata.Category, created.Namespace, model.DefaultNeighborLimit), nil
}

func (r *referenceRepository) ClearNamespace(ctx context.Context, ns types.NamespaceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, ns)
	delete(r.dims, ns)
	return nil
}

func (r *referenceRepository) DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket, exists := r.entries[ns]
	if !exists {
		return goerr.Wrap(model.ErrNotFound, "reference case not found", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	if _, exists := bucket[id]; !exists {
		return goerr.Wrap(model.ErrNotFound, "reference case not found", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}

	delete(bucket, id)
	return nil
}

func (r *referenceRepository) List(ctx context.Context, ns types.NamespaceID, page, limit int) ([]*model.ReferenceCase, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	offset, limit := model.Paginate(page, limit)

	bucket := r.entries[ns]
	all := make([]*model.ReferenceCase, 0, len(bucket))
	for _, ref := range bucket {
		all = append(all, ref)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})

	total := len(all)
	if offset >= total {
		return []*model.ReferenceCase{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]*model.ReferenceCase, 0, end-offset)
	for _, ref := range all[offset:end] {
		result = append(result, ref.Clone())
	}
	return result, total, nil
}

func (r *referenceRepository) Stats(ctx context.Context, ns types.NamespaceID) (*model.NamespaceStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	refs := make([]*model.ReferenceCase, 0, len(r.entries[ns]))
	for _, ref := range r.entries[ns] {
		refs = append(refs, ref)
	}
	return model.NewNamespaceStats(ns, refs), nil
}
