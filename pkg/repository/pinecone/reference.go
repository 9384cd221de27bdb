package pinecone

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pinecone-io/go-pinecone/v4/pinecone"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	metaCategory  = "category"
	metaState     = "state"
	metaCreatedAt = "created_at_us"
	metaPayload   = "metadata"

	fetchBatchSize = 100
)

func toVector(ref *model.ReferenceCase) (*pinecone.Vector, error) {
	payload, err := model.MarshalMetadata(&ref.Metadata)
	if err != nil {
		return nil, err
	}

	metadata, err := structpb.NewStruct(map[string]any{
		metaCategory:  ref.Metadata.Category.String(),
		metaState:     ref.Metadata.State.String(),
		metaCreatedAt: float64(ref.CreatedAt.UnixMicro()),
		metaPayload:   string(payload),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build pinecone metadata")
	}

	values := append([]float32{}, ref.Embedding...)
	return &pinecone.Vector{
		Id:       ref.ID.String(),
		Values:   &values,
		Metadata: metadata,
	}, nil
}

func fromVector(ns types.NamespaceID, v *pinecone.Vector) (*model.ReferenceCase, error) {
	if v == nil {
		return nil, goerr.New("empty pinecone vector")
	}
	fields := v.Metadata.GetFields()

	meta, err := model.UnmarshalMetadata([]byte(fields[metaPayload].GetStringValue()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode pinecone metadata", goerr.V(model.ReferenceIDKey, v.Id))
	}

	ref := &model.ReferenceCase{
		ID:        model.ReferenceID(v.Id),
		Namespace: ns,
		Metadata:  *meta,
		CreatedAt: time.UnixMicro(int64(fields[metaCreatedAt].GetNumberValue())).UTC(),
	}
	if v.Values != nil {
		ref.Embedding = append([]float32{}, (*v.Values)...)
	}
	return ref, nil
}

func categoryFilter(category types.CategoryID) (*pinecone.MetadataFilter, error) {
	filter, err := structpb.NewStruct(map[string]any{
		metaCategory: map[string]any{"$eq": category.String()},
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build pinecone filter")
	}
	return filter, nil
}

func (r *referenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	if limit <= 0 {
		limit = model.DefaultNeighborLimit
	}

	conn, err := r.conn(ns)
	if err != nil {
		return nil, err
	}

	filter, err := categoryFilter(category)
	if err != nil {
		return nil, err
	}

	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(limit),
		MetadataFilter:  filter,
		IncludeMetadata: true,
		IncludeValues:   true,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query pinecone",
			goerr.V(model.NamespaceKey, ns),
			goerr.V(model.CategoryKey, category))
	}

	cases := make([]*model.SimilarCase, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match == nil || float64(match.Score) <= model.SimilarityFloor {
			continue
		}
		ref, err := fromVector(ns, match.Vector)
		if err != nil {
			return nil, err
		}
		cases = append(cases, model.NewSimilarCase(ref, float64(match.Score)))
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

	vec, err := toVector(created)
	if err != nil {
		return nil, err
	}

	conn, err := r.conn(created.Namespace)
	if err != nil {
		return nil, err
	}
	if _, err := conn.UpsertVectors(ctx, []*pinecone.Vector{vec}); err != nil {
		return nil, goerr.Wrap(err, "failed to upsert pinecone vector",
			goerr.V(model.NamespaceKey, created.Namespace),
			goerr.V(model.ReferenceIDKey, created.ID))
	}

	return r.FindNearest(ctx, created.Embedding, created.Metadata.Category, created.Namespace, model.DefaultNeighborLimit)
}

func (r *referenceRepository) ClearNamespace(ctx context.Context, ns types.NamespaceID) error {
	conn, err := r.conn(ns)
	if err != nil {
		return err
	}

	// Pinecone rejects deleting from a namespace that holds no vectors
	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to describe pinecone index", goerr.V(model.NamespaceKey, ns))
	}
	if summary, ok := stats.Namespaces[ns.String()]; !ok || summary == nil || summary.VectorCount == 0 {
		return nil
	}

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return goerr.Wrap(err, "failed to clear pinecone namespace", goerr.V(model.NamespaceKey, ns))
	}
	return nil
}

func (r *referenceRepository) DeleteOne(ctx context.Context, ns types.NamespaceID, id model.ReferenceID) error {
	conn, err := r.conn(ns)
	if err != nil {
		return err
	}

	resp, err := conn.FetchVectors(ctx, []string{id.String()})
	if err != nil {
		return goerr.Wrap(err, "failed to fetch pinecone vector", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	if _, ok := resp.Vectors[id.String()]; !ok {
		return goerr.Wrap(model.ErrNotFound, "reference case not found", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}

	if err := conn.DeleteVectorsById(ctx, []string{id.String()}); err != nil {
		return goerr.Wrap(err, "failed to delete pinecone vector", goerr.V(model.NamespaceKey, ns), goerr.V(model.ReferenceIDKey, id))
	}
	return nil
}

// fetchAll loads every case of the namespace. Pinecone can only list vector IDs, so List
// and Stats read the whole namespace and sort in memory.
func (r *referenceRepository) fetchAll(ctx context.Context, ns types.NamespaceID) ([]*model.ReferenceCase, error) {
	conn, err := r.conn(ns)
	if err != nil {
		return nil, err
	}

	var ids []string
	var token *string
	limit := uint32(fetchBatchSize)
	for {
		resp, err := conn.ListVectors(ctx, &pinecone.ListVectorsRequest{
			Limit:           &limit,
			PaginationToken: token,
		})
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list pinecone vectors", goerr.V(model.NamespaceKey, ns))
		}
		for _, id := range resp.VectorIds {
			if id != nil {
				ids = append(ids, *id)
			}
		}
		if resp.NextPaginationToken == nil || *resp.NextPaginationToken == "" {
			break
		}
		token = resp.NextPaginationToken
	}

	refs := make([]*model.ReferenceCase, 0, len(ids))
	for start := 0; start < len(ids); start += fetchBatchSize {
		end := min(start+fetchBatchSize, len(ids))
		resp, err := conn.FetchVectors(ctx, ids[start:end])
		if err != nil {
			return nil, goerr.Wrap(err, "failed to fetch pinecone vectors", goerr.V(model.NamespaceKey, ns))
		}
		for _, v := range resp.Vectors {
			ref, err := fromVector(ns, v)
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		}
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

	refs, err := r.fetchAll(ctx, ns)
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
	refs, err := r.fetchAll(ctx, ns)
	if err != nil {
		return nil, err
	}
	return model.NewNamespaceStats(ns, refs), nil
}
