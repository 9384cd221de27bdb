package qdrant

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/qdrant/go-client/qdrant"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
	"github.com/secmon-lab/argus/pkg/repository/memory"
)

// fakePoints keeps points in memory and evaluates keyword filters and cosine scores
type fakePoints struct {
	points map[string]*qdrant.PointStruct
	closed bool
}

func newFakePoints() *fakePoints {
	return &fakePoints{points: make(map[string]*qdrant.PointStruct)}
}

func matches(p *qdrant.PointStruct, filter *qdrant.Filter) bool {
	for _, cond := range filter.GetMust() {
		field := cond.GetField()
		if p.Payload[field.GetKey()].GetStringValue() != field.GetMatch().GetKeyword() {
			return false
		}
	}
	return true
}

func output(p *qdrant.PointStruct) *qdrant.VectorsOutput {
	return &qdrant.VectorsOutput{
		VectorsOptions: &qdrant.VectorsOutput_Vector{
			Vector: &qdrant.VectorOutput{
				Vector: &qdrant.VectorOutput_Dense{
					Dense: &qdrant.DenseVector{Data: p.Vectors.GetVector().GetDense().GetData()},
				},
			},
		},
	}
}

func (f *fakePoints) Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	for _, p := range request.Points {
		f.points[p.Id.GetUuid()] = p
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	query := request.Query.GetNearest().GetDense().GetData()

	var result []*qdrant.ScoredPoint
	for _, p := range f.points {
		if !matches(p, request.Filter) {
			continue
		}
		score := float32(model.CosineSimilarity(query, p.Vectors.GetVector().GetDense().GetData()))
		if request.ScoreThreshold != nil && score < *request.ScoreThreshold {
			continue
		}
		result = append(result, &qdrant.ScoredPoint{Id: p.Id, Payload: p.Payload, Score: score, Vectors: output(p)})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Score > result[j].Score })
	if request.Limit != nil && len(result) > int(*request.Limit) {
		result = result[:*request.Limit]
	}
	return result, nil
}

func (f *fakePoints) Get(ctx context.Context, request *qdrant.GetPoints) ([]*qdrant.RetrievedPoint, error) {
	var result []*qdrant.RetrievedPoint
	for _, id := range request.Ids {
		if p, ok := f.points[id.GetUuid()]; ok {
			result = append(result, &qdrant.RetrievedPoint{Id: p.Id})
		}
	}
	return result, nil
}

func (f *fakePoints) ScrollAndOffset(ctx context.Context, request *qdrant.ScrollPoints) ([]*qdrant.RetrievedPoint, *qdrant.PointId, error) {
	var result []*qdrant.RetrievedPoint
	for _, p := range f.points {
		if matches(p, request.Filter) {
			result = append(result, &qdrant.RetrievedPoint{Id: p.Id, Payload: p.Payload, Vectors: output(p)})
		}
	}
	return result, nil, nil
}

func (f *fakePoints) Delete(ctx context.Context, request *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	if filter := request.Points.GetFilter(); filter != nil {
		for id, p := range f.points {
			if matches(p, filter) {
				delete(f.points, id)
			}
		}
	}
	for _, id := range request.Points.GetPoints().GetIds() {
		delete(f.points, id.GetUuid())
	}
	return &qdrant.UpdateResult{}, nil
}

func (f *fakePoints) Count(ctx context.Context, request *qdrant.CountPoints) (uint64, error) {
	var n uint64
	for _, p := range f.points {
		if matches(p, request.Filter) {
			n++
		}
	}
	return n, nil
}

func (f *fakePoints) Close() error {
	f.closed = true
	return nil
}

func newTestRepository(t *testing.T) (*Qdrant, *fakePoints) {
	t.Helper()
	client := newFakePoints()
	return newQdrant(client, DefaultCollection, memory.New().Namespace()), client
}

// unitVector returns a vector whose cosine similarity to [1, 0, 0, 0] is s
func unitVector(s float32) []float32 {
	return []float32{s, float32(math.Sqrt(1 - float64(s)*float64(s))), 0, 0}
}

func newRef(ns types.NamespaceID, category types.CategoryID, state types.State, vec []float32, createdAt time.Time) *model.ReferenceCase {
	return &model.ReferenceCase{
		Namespace: ns,
		Metadata: model.ReferenceMetadata{
			Category:      category,
			State:         state,
			Confidence:    0.97,
			KeyFeatures:   []string{"threads visible"},
			DiagnosisText: "valid thread engagement",
		},
		Embedding: vec,
		CreatedAt: createdAt,
	}
}

func TestQdrant_FindNearest(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepository(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i, s := range []float32{0.9, 0.97, 0.7} {
		_, err := repo.Reference().Store(ctx, newRef("site_1", "threads", "visible", unitVector(s), base.Add(time.Duration(i)*time.Second)))
		gt.NoError(t, err).Required()
	}
	_, err := repo.Reference().Store(ctx, newRef("site_2", "threads", "visible", unitVector(1), base))
	gt.NoError(t, err).Required()

	cases, err := repo.Reference().FindNearest(ctx, []float32{1, 0, 0, 0}, "threads", "site_1", 5)
	gt.NoError(t, err).Required()
	gt.Array(t, cases).Length(2)
	gt.Bool(t, cases[0].Similarity > cases[1].Similarity).True()
	gt.Value(t, cases[0].Namespace).Equal(types.NamespaceID("site_1"))
	gt.Value(t, cases[0].DiagnosisString()).Equal("valid thread engagement")
	gt.Array(t, cases[0].KeyFeatures).Has("threads visible")

	cases, err = repo.Reference().FindNearest(ctx, []float32{1, 0, 0, 0}, "corrosion", "site_1", 5)
	gt.NoError(t, err).Required()
	gt.Value(t, cases).NotNil()
	gt.Array(t, cases).Length(0)
}

func TestQdrant_SameIDInTwoNamespaces(t *testing.T) {
	ctx := context.Background()
	repo, client := newTestRepository(t)

	for _, ns := range []types.NamespaceID{"site_1", "site_2"} {
		ref := newRef(ns, "threads", "visible", unitVector(1), time.Time{})
		ref.ID = "shared-id"
		_, err := repo.Reference().Store(ctx, ref)
		gt.NoError(t, err).Required()
	}
	gt.Value(t, len(client.points)).Equal(2)

	gt.NoError(t, repo.Reference().DeleteOne(ctx, "site_1", "shared-id"))
	gt.Error(t, repo.Reference().DeleteOne(ctx, "site_1", "shared-id")).Is(model.ErrNotFound)
	gt.Value(t, len(client.points)).Equal(1)
}

func TestQdrant_ClearListStats(t *testing.T) {
	ctx := context.Background()
	repo, client := newTestRepository(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	stats, err := repo.Reference().Stats(ctx, "site_3")
	gt.NoError(t, err).Required()
	gt.Value(t, stats.TotalVectors).Equal(0)

	for i := 0; i < 3; i++ {
		_, err := repo.Reference().Store(ctx, newRef("site_3", "threads", "visible", unitVector(1), base.Add(time.Duration(i)*time.Minute)))
		gt.NoError(t, err).Required()
	}
	_, err = repo.Reference().Store(ctx, newRef("site_4", "threads", "damaged", unitVector(1), base))
	gt.NoError(t, err).Required()

	refs, total, err := repo.Reference().List(ctx, "site_3", 1, 2)
	gt.NoError(t, err).Required()
	gt.Value(t, total).Equal(3)
	gt.Array(t, refs).Length(2)
	gt.Value(t, refs[0].CreatedAt).Equal(base.Add(2 * time.Minute))
	gt.Array(t, refs[0].Embedding).Length(4)

	stats, err = repo.Reference().Stats(ctx, "site_3")
	gt.NoError(t, err).Required()
	gt.Value(t, stats.TotalVectors).Equal(3)
	gt.Value(t, stats.Categories[types.CategoryID("threads")]).Equal(3)

	gt.NoError(t, repo.Reference().ClearNamespace(ctx, "site_3"))
	gt.NoError(t, repo.Reference().ClearNamespace(ctx, "site_3"))
	gt.Value(t, len(client.points)).Equal(1)

	cases, err := repo.Reference().FindNearest(ctx, unitVector(1), "threads", "site_3", 5)
	gt.NoError(t, err).Required()
	gt.Array(t, cases).Length(0)

	gt.NoError(t, repo.Close())
	gt.Bool(t, client.closed).True()
}
