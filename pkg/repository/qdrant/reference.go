package qdrant

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/qdrant/go-client/qdrant"
	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

const (
	payloadReferenceID = "reference_id"
	payloadNamespace   = "namespace"
	payloadCategory    = "category"
	payloadState       = "state"
	payloadCreatedAt   = "created_at_us"
	payloadMetadata    = "metadata"

	scrollBatchSize = 256
)

// pointIDSpace seeds the point IDs. The same reference ID may exist in several
// namespaces, while point IDs are unique in the whole collection.
var pointIDSpace = uuid.MustParse("6f1c3a52-27a4-4c0e-9d59-8a3c0f9b1e27")

func pointID(ns types.NamespaceID, id model.ReferenceID) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(pointIDSpace, []byte(ns.String()+"/"+id.String())).String())
}

type referenceRepository struct {
	client     pointsClient
	collection string
	namespaces interfaces.NamespaceRepository
	registry   *model.CategoryRegistry
}

func namespaceFilter(ns types.NamespaceID, conditions ...*qdrant.Condition) *qdrant.Filter {
	return &qdrant.Filter{
		Must: append([]*qdrant.Condition{qdrant.NewMatchKeyword(payloadNamespace, ns.String())}, conditions...),
	}
}

func toPoint(ref *model.ReferenceCase) (*qdrant.PointStruct, error) {
	payload, err := model.MarshalMetadata(&ref.Metadata)
	if err != nil {
		return nil, err
	}

	return &qdrant.PointStruct{
		Id:      pointID(ref.Namespace, ref.ID),
		Vectors: qdrant.NewVectorsDense(append([]float32{}, ref.Embedding...)),
		Payload: map[string]*qdrant.Value{
			payloadReferenceID: qdrant.NewValueString(ref.ID.String()),
			payloadNamespace:   qdrant.NewValueString(ref.Namespace.String()),
			payloadCategory:    qdrant.NewValueString(ref.Metadata.Category.String()),
			payloadState:       qdrant.NewValueString(ref.Metadata.State.String()),
			payloadCreatedAt:   qdrant.NewValueInt(ref.CreatedAt.UnixMicro()),
			payloadMetadata:    qdrant.NewValueString(string(payload)),
		},
	}, nil
}

func fromPoint(payload map[string]*qdrant.Value, vectors *qdrant.VectorsOutput) (*model.ReferenceCase, error) {
	id := model.ReferenceID(payload[payloadReferenceID].GetStringValue())

	meta, err := model.UnmarshalMetadata([]byte(payload[payloadMetadata].GetStringValue()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode qdrant payload", goerr.V(model.ReferenceIDKey, id))
	}

	ref := &model.ReferenceCase{
		ID:        id,
		Namespace: types.NamespaceID(payload[payloadNamespace].GetStringValue()),
		Metadata:  *meta,
		CreatedAt: time.UnixMicro(payload[payloadCreatedAt].GetIntegerValue()).UTC(),
	}

	if v := vectors.GetVector(); v != nil {
		data := v.GetDense().GetData()
		if len(data) == 0 {
			data = v.GetData()
		}
		ref.Embedding = append([]float32{}, data...)
	}
	return ref, nil
}

func (r *referenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	if limit <= 0 {
		limit = model.DefaultNeighborLimit
	}

	points, err := r.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: r.collection,
		Query:          qdrant.NewQueryDense(vector),
		Filter:         namespaceFilter(ns, qdrant.NewMatchKeyword(payloadCategory, category.String())),
		ScoreThreshold: qdrant.PtrOf(float32(model.SimilarityFloor)),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query qdrant",
			goerr.V(model.NamespaceKey, ns),
			goerr.V(model.CategoryKey, category))
	}

	cases := make([]*model.SimilarCase, 0, len(points))
	for _, p := range points {
		if p == nil || float64(p.Score) <= model.SimilarityFloor {
			continue
		}
		ref, err := fromPoint(p.Payload, p.Vectors)
		if err != nil {
			return nil, err
		}
		cases = append(cases, model.NewSimilarCase(ref, float64(p.Score)))
	}

	return model.RankSimilarCases(cases, limit), nil
}

func (r *referenceRepository) Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error) {
	if err := ref.Validate(r.registry); err != nil {
		return nil, err
	}

	if _, err := r.namespaces.Upsert(ctx, &model.Namespace{ID: ref.Namespace}); err != nil {
		return nil, goerr.Wrap(err, "failed to register namespace", goerr.V(model.NamespaceKey, ref.Namespace))
	}

	created := ref.Clone()
	if created.ID == "" {
		created.ID = model.NewReferenceID()
	}
	if created.CreatedAt.IsZero() {
		created.CreatedAt = time.Now().UTC()
	}

	point, err := toPoint(created)
	if err != nil {
		return nil, err
	}

	if _, err := r.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         []*qdrant.PointStruct{point},
	}); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert qdrant point",
			goerr.V(model.NamespaceKey, created.Namespace),
			goerr.V(model.ReferenceIDKey, created.ID))
	}

	return r.FindNearest(ctx, created.Embedding, created.Metadata.Category, created.Namespace, model.DefaultNeighborLimit)
}

func (r *referenceRepository) ClearNamespace(ctx context.Context, ns types.NamespaceID) error {
	if _, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(namespaceFilter(ns)),
	}); err != nil {
		return goerr.Wrap(err, "failed to clear qdrant namespace", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (r *referenceRepository) DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error {
	pid := pointID(ns, id)

	points, err := r.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: r.collection,
		Ids:            []*qdrant.PointId{pid},
		WithPayload:    qdrant.NewWithPayload(false),
	})
	if err != nil {
		return goerr.Wrap(err, "failed to get qdrant point", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	if len(points) == 0 {
		return goerr.Wrap(model.ErrNotFound, "reference case not found", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}

	if _, err := r.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: r.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelector(pid),
	}); err != nil {
		return goerr.Wrap(err, "failed to delete qdrant point", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	return nil
}

// fetchAll scrolls through every point of the namespace. Scroll cannot page by an
// arbitrary offset in CreatedAt order, so cases are sorted in memory.
func (r *referenceRepository) fetchAll(ctx context.Context, ns types.NamespaceID, withVectors bool) ([]*model.ReferenceCase, error) {
	var refs []*model.ReferenceCase
	var offset *qdrant.PointId

	for {
		points, next, err := r.client.ScrollAndOffset(ctx, &qdrant.ScrollPoints{
			CollectionName: r.collection,
			Filter:         namespaceFilter(ns),
			Offset:         offset,
			Limit:          qdrant.PtrOf(uint32(scrollBatchSize)),
			WithPayload:    qdrant.NewWithPayload(true),
			WithVectors:    qdrant.NewWithVectors(withVectors),
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to scroll qdrant points", goerr.V(model.NamespaceKey, ns))
		}

		for _, p := range points {
			if p == nil {
				continue
			}
			ref, err := fromPoint(p.Payload, p.Vectors)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}

		if next == nil || len(points) == 0 {
			break
		}
		offset = next
	}

	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].CreatedAt.After(refs[j].CreatedAt)
		}
		return refs[i].ID < refs[j].ID
	})
	return refs, nil
}

func (r *referenceRepository) List(ctx context.Context, ns types.NamespaceID, page, limit int) ([]*model.ReferenceCase, int, error) {
	offset, limit := model.Paginate(page, limit)

	refs, err := r.fetchAll(ctx, ns, true)
	if err != nil {
		return nil, 0, err
	}

	total := len(refs)
	if offset >= total {
		return []*model.ReferenceCase{}, total, nil
	}
	return refs[offset:min(offset+limit, total)], total, nil
}

func (r *referenceRepository) Stats(ctx context.Context, ns types.NamespaceID) (*model.NamespaceStats, error) {
	total, err := r.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: r.collection,
		Filter:         namespaceFilter(ns),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to count qdrant points", goerr.V(model.NamespaceKey, ns))
	}
	if total == 0 {
		return model.NewNamespaceStats(ns, nil), nil
	}

	refs, err := r.fetchAll(ctx, ns, false)
	if err != nil {
		return nil, err
	}
	return model.NewNamespaceStats(ns, refs), nil
}
