package usecase_test

import (
	"context"
	"sync"

	"github.com/secmon-lab/argus/pkg/domain/interfaces"
	"github.com/secmon-lab/argus/pkg/domain/model"
	"github.com/secmon-lab/argus/pkg/domain/types"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, image []byte) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, image)
	}
	return []float32{1, 0, 0, 0}, nil
}

func (m *mockEmbedder) Dimension() int {
	return 4
}

type mockJudge struct {
	judgeFn func(ctx context.Context, image []byte, question string) (*model.Verdict, error)
}

func (m *mockJudge) Judge(ctx context.Context, image []byte, question string) (*model.Verdict, error) {
	if m.judgeFn != nil {
		return m.judgeFn(ctx, image, question)
	}
	return newVerdict(true, 0.7), nil
}

func (m *mockJudge) Name() string {
	return "mock/judge"
}

type mockImageStore struct {
	putFn func(ctx context.Context, ns types.NamespaceID, category types.CategoryID, data []byte, contentType string) (string, error)
}

func (m *mockImageStore) Put(ctx context.Context, ns types.NamespaceID, category types.CategoryID, data []byte, contentType string) (string, error) {
	if m.putFn != nil {
		return m.putFn(ctx, ns, category, data, contentType)
	}
	return "gs://bucket/" + ns.String() + "/" + category.String() + "/image.jpg", nil
}

// mockRepository delegates to base unless a reference function is overridden
type mockRepository struct {
	base interfaces.Repository

	mu            sync.Mutex
	findCalls     int
	findNearestFn func(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error)
	storeFn       func(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error)
}

func (m *mockRepository) Reference() interfaces.ReferenceRepository {
	return &mockReferenceRepository{
		ReferenceRepository: m.base.Reference(),
		parent:              m,
	}
}

func (m *mockRepository) Namespace() interfaces.NamespaceRepository {
	return m.base.Namespace()
}

func (m *mockRepository) Close() error {
	return m.base.Close()
}

func (m *mockRepository) findNearestCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findCalls
}

type mockReferenceRepository struct {
	interfaces.ReferenceRepository
	parent *mockRepository
}

func (r *mockReferenceRepository) FindNearest(ctx context.Context, vector []float32, category types.CategoryID, ns types.NamespaceID, limit int) ([]*model.SimilarCase, error) {
	r.parent.mu.Lock()
	r.parent.findCalls++
	r.parent.mu.Unlock()

	if r.parent.findNearestFn != nil {
		return r.parent.findNearestFn(ctx, vector, category, ns, limit)
	}
	return r.ReferenceRepository.FindNearest(ctx, vector, category, ns, limit)
}

func (r *mockReferenceRepository) Store(ctx context.Context, ref *model.ReferenceCase) ([]*model.SimilarCase, error) {
	if r.parent.storeFn != nil {
		return r.parent.storeFn(ctx, ref)
	}
	return r.ReferenceRepository.Store(ctx, ref)
}

func newVerdict(isValid bool, confidence float64) *model.Verdict {
	assessment := "Invalid"
	if isValid {
		assessment = "Valid"
	}
	return &model.Verdict{
		IsValid:         isValid,
		Confidence:      confidence,
		MatchedCriteria: []string{},
		FailedCriteria:  []string{},
		Diagnosis: model.Diagnosis{
			OverallAssessment: assessment,
			ConfidenceLevel:   confidence,
			KeyObservations:   []string{"plate surface visible"},
			MatchedCriteria:   []string{},
			FailedCriteria:    []string{},
		},
	}
}
